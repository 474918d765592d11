// Package router implements the Subscription Multiplexer: one Router per
// inbound client websocket, rewriting client-chosen subscription ids to
// globally unique tokens before installing them on every relay, and fanning
// relay responses back to the owning client. Grounded on the original
// service's NostrRouter (router.py) — client_to_nostr/nostr_to_client,
// _handle_client_req/_handle_client_close — adapted onto goroutines and
// gorilla/websocket, with google/uuid replacing urlsafe_short_hash().
package router

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nostrmux/internal/intake"
	"nostrmux/internal/manager"
	"nostrmux/internal/nostrmodel"
	"nostrmux/internal/wire"
)

const outboundPumpTick = 100 * time.Millisecond

// Router owns one inbound client connection.
type Router struct {
	conn    *websocket.Conn
	manager *manager.Manager
	intake  *intake.Intake
	log     zerolog.Logger

	mu                  sync.Mutex
	originalToRewritten map[string]string
	writeMu             sync.Mutex

	cancel  context.CancelFunc
	stopped sync.Once
	done    chan struct{}
}

// New builds a Router for an already-upgraded client connection.
func New(conn *websocket.Conn, mgr *manager.Manager, in *intake.Intake, logger zerolog.Logger) *Router {
	return &Router{
		conn:                conn,
		manager:             mgr,
		intake:              in,
		log:                 logger.With().Str("component", "router").Logger(),
		originalToRewritten: make(map[string]string),
		done:                make(chan struct{}),
	}
}

// Start launches the inbound and outbound pumps and blocks until the Router
// stops (client disconnect, parent cancellation, or an explicit Stop call).
func (r *Router) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.inboundPump(runCtx)
	}()
	go func() {
		defer wg.Done()
		r.outboundPump(runCtx)
	}()
	// The inbound pump blocks in ReadMessage; Stop closes the connection so
	// that parent cancellation also ends it.
	go func() {
		<-runCtx.Done()
		r.Stop()
	}()
	wg.Wait()

	r.Stop()
}

// inboundPump reads client frames and forwards REQ/CLOSE/EVENT to the
// Manager, rewriting subscription ids as it goes.
func (r *Router) inboundPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			r.cancelSelf()
			return
		}

		frame, decodeErr := wire.Decode(raw)
		if decodeErr != nil {
			r.log.Debug().Err(decodeErr).Msg("dropping undecodable client frame")
			continue
		}

		switch f := frame.(type) {
		case wire.ReqFrame:
			r.handleReq(f)
		case wire.CloseFrame:
			r.handleClose(f)
		case wire.EventFrame:
			r.manager.PublishMessage(raw)
		default:
			r.log.Debug().Msg("dropping client frame of unhandled type")
		}
	}
}

func (r *Router) handleReq(f wire.ReqFrame) {
	rewritten := shortID()

	r.mu.Lock()
	previous, hadPrevious := r.originalToRewritten[f.SubID]
	r.originalToRewritten[f.SubID] = rewritten
	r.mu.Unlock()

	// A client re-REQing an existing sub id replaces it; close the orphaned
	// rewritten id on every relay and forget its buffered intake state so it
	// doesn't leak.
	if hadPrevious {
		r.manager.CloseSubscription(previous)
		r.intake.ForgetSubscription(previous)
	}

	filters := make(nostrmodel.FilterSet, 0, len(f.Filters))
	for _, raw := range f.Filters {
		var flt nostrmodel.Filter
		if err := json.Unmarshal(raw, &flt); err != nil {
			continue
		}
		filters = append(filters, flt)
	}

	r.manager.AddSubscription(rewritten, filters)
}

func (r *Router) handleClose(f wire.CloseFrame) {
	r.mu.Lock()
	rewritten, ok := r.originalToRewritten[f.SubID]
	if ok {
		delete(r.originalToRewritten, f.SubID)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Debug().Str("sub_id", f.SubID).Msg("failed to unsubscribe: unknown subscription")
		return
	}
	r.manager.CloseSubscription(rewritten)
	r.intake.ForgetSubscription(rewritten)
}

// outboundPump ticks every ~100ms, draining the Intake for each owned
// subscription and forwarding EVENT/EOSE frames back to the client with
// their original (pre-rewrite) subscription id.
func (r *Router) outboundPump(ctx context.Context) {
	ticker := time.NewTicker(outboundPumpTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drainOwnedSubscriptions()
		}
	}
}

func (r *Router) drainOwnedSubscriptions() {
	r.mu.Lock()
	owned := make(map[string]string, len(r.originalToRewritten))
	for orig, rewritten := range r.originalToRewritten {
		owned[orig] = rewritten
	}
	r.mu.Unlock()

	for original, rewritten := range owned {
		for _, env := range r.intake.DrainEvents(rewritten) {
			r.sendEvent(original, env.Event)
		}
		if r.intake.TakeEOSE(rewritten) {
			r.sendEOSE(original)
		}
	}
}

func (r *Router) sendEvent(originalSubID string, e nostrmodel.Event) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	frame := wire.EventFrame{SubID: originalSubID, RawJSON: raw}
	r.writeFrame(frame)
}

func (r *Router) sendEOSE(originalSubID string) {
	r.writeFrame(wire.EOSEFrame{SubID: originalSubID})
}

func (r *Router) writeFrame(f wire.Frame) {
	raw, err := wire.Encode(f)
	if err != nil {
		return
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.WriteMessage(websocket.TextMessage, raw)
}

func (r *Router) cancelSelf() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop cancels both pumps, closes every subscription this Router owns, and
// closes the client connection. Idempotent.
func (r *Router) Stop() {
	r.stopped.Do(func() {
		r.cancelSelf()

		r.mu.Lock()
		owned := make([]string, 0, len(r.originalToRewritten))
		for _, rewritten := range r.originalToRewritten {
			owned = append(owned, rewritten)
		}
		r.originalToRewritten = make(map[string]string)
		r.mu.Unlock()

		for _, rewritten := range owned {
			r.manager.CloseSubscription(rewritten)
			r.intake.ForgetSubscription(rewritten)
		}

		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Websocket connection closed"),
			time.Now().Add(time.Second))
		_ = r.conn.Close()

		close(r.done)
	})
}

// Done returns a channel closed once Stop has completed.
func (r *Router) Done() <-chan struct{} {
	return r.done
}

// shortID generates a URL-safe rewritten subscription id, the Go-native
// equivalent of the original service's urlsafe_short_hash().
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
