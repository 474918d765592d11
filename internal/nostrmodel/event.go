// Package nostrmodel holds the typed Nostr event and filter model shared by
// every other package: the wire codec decodes into raw JSON, and nostrmodel
// is where that JSON becomes a validated Event a Session can dedup, match
// against a Filter, and hand to the Message Pool.
package nostrmodel

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Event is a Nostr event exactly per NIP-01.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ParseEvent decodes raw event JSON. It does not verify the signature; call
// Verify separately once a Verifier is available.
func ParseEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("nostrmodel: parse event: %w", err)
	}
	if e.Tags == nil {
		e.Tags = [][]string{}
	}
	if e.ID == "" {
		return Event{}, fmt.Errorf("nostrmodel: event missing id")
	}
	return e, nil
}

// serializationArray is the canonical NIP-01 array used to compute an event id:
// [0, pubkey, created_at, kind, tags, content].
func (e Event) serializationArray() []any {
	return []any{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
}

// ComputeID returns the lowercase-hex sha256 of the event's canonical
// serialization, independent of whatever e.ID currently holds. The
// serialization must match real relays byte-for-byte, so HTML-escaping is
// disabled: json.Marshal would otherwise rewrite `<`, `>`, `&` (and
// U+2028/U+2029) inside content or tags, producing a different hash than
// every other implementation computes for the same event.
func (e Event) ComputeID() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e.serializationArray()); err != nil {
		return "", fmt.Errorf("nostrmodel: serialize event: %w", err)
	}
	// Encoder.Encode appends a trailing newline; the canonical
	// serialization has none.
	sum := sha256.Sum256(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:]), nil
}

// Verifier authenticates a schnorr signature over an event id. Concrete
// implementations live in internal/cryptoutil; nostrmodel only depends on
// the interface so it stays free of key-management concerns.
type Verifier interface {
	Verify(idHex, pubKeyHex, sigHex string) bool
}

// Verify checks both the id/content binding and the signature. It is the
// single gate an inbound relay event must pass before entering the pool.
func (e Event) Verify(v Verifier) error {
	computed, err := e.ComputeID()
	if err != nil {
		return err
	}
	if computed != e.ID {
		return fmt.Errorf("nostrmodel: event id mismatch: computed %s, got %s", computed, e.ID)
	}
	if !v.Verify(e.ID, e.PubKey, e.Sig) {
		return fmt.Errorf("nostrmodel: signature verification failed for event %s", e.ID)
	}
	return nil
}
