// Package pool is the process-wide Message Pool: the single ingestion point
// every Relay Session hands decoded frames to, and the single place that
// enforces per-subscription event uniqueness across relays. Grounded on the
// original message_pool.py's Queue+lock+set shape, adapted to Go channels
// plus a bounded LRU in place of the unbounded Python set.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"nostrmux/internal/nostrmodel"
	"nostrmux/internal/wire"
)

// EventMessage is a relay-delivered event annotated with the subscription it
// arrived under (already rewritten) and the relay URL it came from.
type EventMessage struct {
	Event          nostrmodel.Event
	SubscriptionID string
	SourceURL      string
}

// NoticeMessage is a relay-delivered NOTICE annotated with its source.
type NoticeMessage struct {
	Text      string
	SourceURL string
}

// EOSEMessage signals end-of-stored-events for a subscription on one relay.
type EOSEMessage struct {
	SubscriptionID string
	SourceURL      string
}

const defaultDedupLRUSize = 50_000

// Pool is the thread-safe, process-wide intake described in SPEC_FULL §4.3.
// One Pool instance is shared by the Manager's sessions and drained by
// Routers (indirectly, via the Manager/Intake wiring in cmd/nostrmux).
type Pool struct {
	events   chan EventMessage
	notices  chan NoticeMessage
	eoses    chan EOSEMessage
	verifier nostrmodel.Verifier
	log      zerolog.Logger

	mu      sync.Mutex
	seen    map[string]*list.Element // dedup key -> LRU element
	lru     *list.List               // front = most recently seen
	lruCap  int
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithDedupLRUSize overrides the default 50,000-entry dedup bound.
func WithDedupLRUSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.lruCap = n
		}
	}
}

// WithQueueSize overrides the default per-queue channel capacity (256).
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.events = make(chan EventMessage, n)
			p.notices = make(chan NoticeMessage, n)
			p.eoses = make(chan EOSEMessage, n)
		}
	}
}

// New builds a Pool. verifier authenticates inbound EVENT frames before they
// are enqueued; logger receives structured diagnostics for dropped frames.
func New(verifier nostrmodel.Verifier, logger zerolog.Logger, opts ...Option) *Pool {
	p := &Pool{
		events:   make(chan EventMessage, 256),
		notices:  make(chan NoticeMessage, 256),
		eoses:    make(chan EOSEMessage, 256),
		verifier: verifier,
		log:      logger.With().Str("component", "pool").Logger(),
		seen:     make(map[string]*list.Element),
		lru:      list.New(),
		lruCap:   defaultDedupLRUSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit decodes a raw relay frame, classifies it, and (for EVENT) verifies
// and dedups it before enqueueing. Undecodable frames, unknown tags, and
// events that are missing, unparseable or fail verification are dropped and
// the reason is returned as an error, which the calling Session read loop
// records before it goes on reading. Other well-formed frames (OK, REQ,
// CLOSE) and duplicate events are dropped with a nil error.
func (p *Pool) Submit(raw []byte, sourceURL string) error {
	frame, err := wire.Decode(raw)
	if err != nil {
		p.log.Debug().Err(err).Str("url", sourceURL).Msg("dropping undecodable frame")
		return err
	}

	switch f := frame.(type) {
	case wire.EventFrame:
		return p.submitEvent(f, sourceURL)
	case wire.NoticeFrame:
		p.notices <- NoticeMessage{Text: f.Text, SourceURL: sourceURL}
		return nil
	case wire.EOSEFrame:
		p.eoses <- EOSEMessage{SubscriptionID: f.SubID, SourceURL: sourceURL}
		return nil
	default:
		p.log.Debug().Str("url", sourceURL).Msg("dropping frame of unhandled type")
		return nil
	}
}

func (p *Pool) submitEvent(f wire.EventFrame, sourceURL string) error {
	if len(f.RawJSON) == 0 {
		return fmt.Errorf("pool: EVENT frame missing payload")
	}
	ev, err := nostrmodel.ParseEvent(f.RawJSON)
	if err != nil {
		p.log.Debug().Err(err).Str("url", sourceURL).Msg("dropping unparseable event")
		return err
	}
	if p.verifier != nil {
		if verr := ev.Verify(p.verifier); verr != nil {
			p.log.Debug().Err(verr).Str("url", sourceURL).Msg("dropping event: verification failed")
			return verr
		}
	}

	key := dedupKey(f.SubID, ev.ID)
	if p.markSeen(key) {
		return nil // already delivered for this subscription
	}

	p.events <- EventMessage{Event: ev, SubscriptionID: f.SubID, SourceURL: sourceURL}
	return nil
}

func dedupKey(subscriptionID, eventID string) string {
	return subscriptionID + "_" + eventID
}

// markSeen reports whether key was already seen, and otherwise records it,
// evicting the least-recently-seen entry once the LRU is at capacity.
func (p *Pool) markSeen(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if elem, ok := p.seen[key]; ok {
		p.lru.MoveToFront(elem)
		return true
	}

	elem := p.lru.PushFront(key)
	p.seen[key] = elem
	if p.lru.Len() > p.lruCap {
		oldest := p.lru.Back()
		if oldest != nil {
			p.lru.Remove(oldest)
			delete(p.seen, oldest.Value.(string))
		}
	}
	return false
}

// TryPopEvent is a non-blocking event pop.
func (p *Pool) TryPopEvent() (EventMessage, bool) {
	select {
	case m := <-p.events:
		return m, true
	default:
		return EventMessage{}, false
	}
}

// PopEvent blocks until an event is available or ctx is done.
func (p *Pool) PopEvent(ctx context.Context) (EventMessage, bool) {
	select {
	case m := <-p.events:
		return m, true
	case <-ctx.Done():
		return EventMessage{}, false
	}
}

// TryPopNotice is a non-blocking notice pop.
func (p *Pool) TryPopNotice() (NoticeMessage, bool) {
	select {
	case m := <-p.notices:
		return m, true
	default:
		return NoticeMessage{}, false
	}
}

// PopNotice blocks until a notice is available or ctx is done.
func (p *Pool) PopNotice(ctx context.Context) (NoticeMessage, bool) {
	select {
	case m := <-p.notices:
		return m, true
	case <-ctx.Done():
		return NoticeMessage{}, false
	}
}

// TryPopEOSE is a non-blocking EOSE pop.
func (p *Pool) TryPopEOSE() (EOSEMessage, bool) {
	select {
	case m := <-p.eoses:
		return m, true
	default:
		return EOSEMessage{}, false
	}
}

// PopEOSE blocks until an EOSE notice is available or ctx is done.
func (p *Pool) PopEOSE(ctx context.Context) (EOSEMessage, bool) {
	select {
	case m := <-p.eoses:
		return m, true
	case <-ctx.Done():
		return EOSEMessage{}, false
	}
}

// dedupSize reports the current LRU occupancy; used by tests and metrics.
func (p *Pool) dedupSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}
