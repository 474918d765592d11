package pool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"nostrmux/internal/nostrmodel"
)

type alwaysVerifier struct{}

func (alwaysVerifier) Verify(idHex, pubKeyHex, sigHex string) bool { return true }

// validEvent builds an event whose ID is actually the correct hash of its
// content, keyed by content so distinct logical events get distinct ids.
func validEvent(t *testing.T, content string) nostrmodel.Event {
	t.Helper()
	e := nostrmodel.Event{PubKey: "pk", CreatedAt: 1, Kind: 1, Tags: [][]string{}, Content: content, Sig: "s"}
	id, err := e.ComputeID()
	require.NoError(t, err)
	e.ID = id
	return e
}

func eventFrame(t *testing.T, sub string, e nostrmodel.Event) []byte {
	t.Helper()
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	frame, err := json.Marshal([]any{"EVENT", sub, json.RawMessage(raw)})
	require.NoError(t, err)
	return frame
}

func TestSubmitDedupsSameSubscription(t *testing.T) {
	p := New(alwaysVerifier{}, zerolog.Nop())
	ev := validEvent(t, "hello")

	require.NoError(t, p.Submit(eventFrame(t, "sub1", ev), "wss://a"))
	require.NoError(t, p.Submit(eventFrame(t, "sub1", ev), "wss://b"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := p.PopEvent(ctx)
	require.True(t, ok)

	_, ok = p.TryPopEvent()
	require.False(t, ok, "duplicate event for same subscription must not be delivered twice")
}

func TestSubmitAllowsSameEventDifferentSubscription(t *testing.T) {
	p := New(alwaysVerifier{}, zerolog.Nop())
	ev := validEvent(t, "hello")

	require.NoError(t, p.Submit(eventFrame(t, "sub1", ev), "wss://a"))
	require.NoError(t, p.Submit(eventFrame(t, "sub2", ev), "wss://a"))

	_, ok := p.TryPopEvent()
	require.True(t, ok)
	_, ok = p.TryPopEvent()
	require.True(t, ok, "same event under a different subscription id must be delivered")
}

func TestSubmitNotice(t *testing.T) {
	p := New(alwaysVerifier{}, zerolog.Nop())
	require.NoError(t, p.Submit([]byte(`["NOTICE", "hello"]`), "wss://a"))
	n, ok := p.TryPopNotice()
	require.True(t, ok)
	require.Equal(t, "hello", n.Text)
}

func TestSubmitEOSE(t *testing.T) {
	p := New(alwaysVerifier{}, zerolog.Nop())
	require.NoError(t, p.Submit([]byte(`["EOSE", "sub1"]`), "wss://a"))
	m, ok := p.TryPopEOSE()
	require.True(t, ok)
	require.Equal(t, "sub1", m.SubscriptionID)
}

func TestDedupLRUEviction(t *testing.T) {
	p := New(alwaysVerifier{}, zerolog.Nop(), WithDedupLRUSize(2), WithQueueSize(16))

	ev1 := validEvent(t, "one")
	ev2 := validEvent(t, "two")
	ev3 := validEvent(t, "three")

	require.NoError(t, p.Submit(eventFrame(t, "sub", ev1), "wss://a"))
	require.NoError(t, p.Submit(eventFrame(t, "sub", ev2), "wss://a"))
	require.NoError(t, p.Submit(eventFrame(t, "sub", ev3), "wss://a"))
	require.LessOrEqual(t, p.dedupSize(), 2)

	// ev1's dedup key should have been evicted, so resubmitting it delivers again.
	require.NoError(t, p.Submit(eventFrame(t, "sub", ev1), "wss://a"))
	delivered := 0
	for i := 0; i < 4; i++ {
		if _, ok := p.TryPopEvent(); ok {
			delivered++
		} else {
			break
		}
	}
	require.Equal(t, 4, delivered)
}

type rejectVerifier struct{}

func (rejectVerifier) Verify(idHex, pubKeyHex, sigHex string) bool { return false }

func TestSubmitRejectsBadSignature(t *testing.T) {
	p := New(rejectVerifier{}, zerolog.Nop())
	err := p.Submit(eventFrame(t, "sub1", validEvent(t, "hello")), "wss://a")
	require.Error(t, err)
	_, ok := p.TryPopEvent()
	require.False(t, ok)
}
