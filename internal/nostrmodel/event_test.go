package nostrmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeVerifier struct{ ok bool }

func (f fakeVerifier) Verify(idHex, pubKeyHex, sigHex string) bool { return f.ok }

func TestParseEventRejectsMissingID(t *testing.T) {
	_, err := ParseEvent([]byte(`{"pubkey":"pk"}`))
	require.Error(t, err)
}

func TestComputeIDDeterministic(t *testing.T) {
	e := Event{PubKey: "pk", CreatedAt: 1, Kind: 1, Tags: [][]string{}, Content: "hi"}
	id1, err := e.ComputeID()
	require.NoError(t, err)
	id2, err := e.ComputeID()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Len(t, id1, 64)
}

func TestVerifyRejectsIDMismatch(t *testing.T) {
	e := Event{ID: "not-the-real-id", PubKey: "pk", Content: "hi", Tags: [][]string{}}
	err := e.Verify(fakeVerifier{ok: true})
	require.Error(t, err)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	e := Event{PubKey: "pk", Content: "hi", Tags: [][]string{}}
	id, err := e.ComputeID()
	require.NoError(t, err)
	e.ID = id
	err = e.Verify(fakeVerifier{ok: false})
	require.Error(t, err)
}

func TestVerifyAccepts(t *testing.T) {
	e := Event{PubKey: "pk", Content: "hi", Tags: [][]string{}}
	id, err := e.ComputeID()
	require.NoError(t, err)
	e.ID = id
	require.NoError(t, e.Verify(fakeVerifier{ok: true}))
}

// TestComputeIDDoesNotHTMLEscape guards against json.Marshal's default
// HTML-escaping, which would rewrite <, >, & inside content/tags and produce
// an id other relays never compute, silently dropping the event downstream.
func TestComputeIDDoesNotHTMLEscape(t *testing.T) {
	e := Event{
		PubKey:    "pk",
		CreatedAt: 1,
		Kind:      1,
		Tags:      [][]string{{"r", "https://example.com/a?b=1&c=2"}},
		Content:   "AT&T <says> hello & goodbye",
	}

	got, err := e.ComputeID()
	require.NoError(t, err)

	raw, err := json.Marshal([]any{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content})
	require.NoError(t, err)
	require.NotContains(t, string(raw), `&`, "sanity check: stdlib Marshal HTML-escapes & by default")

	want := sha256.Sum256([]byte(`[0,"pk",1,1,[["r","https://example.com/a?b=1&c=2"]],"AT&T <says> hello & goodbye"]`))
	require.Equal(t, hex.EncodeToString(want[:]), got)
}
