package intake

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nostrmux/internal/nostrmodel"
)

func TestPushAndDrainEvents(t *testing.T) {
	in := New()
	in.PushEvent("sub1", nostrmodel.Event{ID: "e1"})
	in.PushEvent("sub1", nostrmodel.Event{ID: "e2"})
	in.PushEvent("sub2", nostrmodel.Event{ID: "e3"})

	got := in.DrainEvents("sub1")
	require.Len(t, got, 2)
	require.Equal(t, "e1", got[0].Event.ID)

	require.Empty(t, in.DrainEvents("sub1"), "drain must clear the buffer")
	require.Len(t, in.DrainEvents("sub2"), 1)
}

func TestEOSEFlagIsOneShot(t *testing.T) {
	in := New()
	require.False(t, in.TakeEOSE("sub1"))

	in.MarkEOSE("sub1")
	require.True(t, in.TakeEOSE("sub1"))
	require.False(t, in.TakeEOSE("sub1"), "TakeEOSE must clear the flag")
}

func TestNoticesDrain(t *testing.T) {
	in := New()
	in.PushNotice("a")
	in.PushNotice("b")

	require.Equal(t, []string{"a", "b"}, in.DrainNotices())
	require.Empty(t, in.DrainNotices())
}

func TestForgetSubscriptionClearsAllState(t *testing.T) {
	in := New()
	in.PushEvent("sub1", nostrmodel.Event{ID: "e1"})
	in.MarkEOSE("sub1")

	in.ForgetSubscription("sub1")

	require.Empty(t, in.DrainEvents("sub1"))
	require.False(t, in.TakeEOSE("sub1"))
}

func TestIntakeIsNotGlobal(t *testing.T) {
	a := New()
	b := New()
	a.PushNotice("only-a")
	require.Empty(t, b.DrainNotices(), "separate Intake instances must not share state")
}
