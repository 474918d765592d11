// Package manager implements the Relay Manager: the registry of Relay
// Sessions, the subscription cache replayed onto every session, and the
// restart supervisor's backoff policy. Grounded on the original service's
// RelayManager (relay_manager.py) — add_relay/remove_relay/add_subscription/
// check_and_restart_relays — adapted from Python dicts+locks onto
// xsync.MapOf per SPEC_FULL §4.5.
package manager

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"nostrmux/internal/intake"
	"nostrmux/internal/nostrmodel"
	"nostrmux/internal/pool"
	"nostrmux/internal/session"
	"nostrmux/internal/wire"
)

// Subscription is a client-chosen (but already rewritten-to-unique) id plus
// the filters to install on every relay.
type Subscription struct {
	ID      string
	Filters nostrmodel.FilterSet
}

// restartState carries the original spec's `min(60*error_counter, 3600)`
// backoff bookkeeping forward across restarts. A fresh Session always starts
// its own error_counter at zero, so this struct is what actually accumulates
// error history: baselineErrorCounter is the live Session's error_counter as
// of the last time we observed it, and totalErrorCounter is the running sum
// carried across every incarnation of the Session for this url.
type restartState struct {
	lastErrorAt          time.Time
	totalErrorCounter    int
	baselineErrorCounter int
}

// Manager owns every Session and the shared subscription cache.
type Manager struct {
	pool *pool.Pool
	log  zerolog.Logger
	cfg  session.Config

	sessions      *xsync.MapOf[string, *session.Session]
	subscriptions *xsync.MapOf[string, Subscription]
	cancels       *xsync.MapOf[string, context.CancelFunc]

	restartMu sync.Mutex
	restarts  map[string]*restartState
}

// New builds a Manager bound to a shared Pool.
func New(p *pool.Pool, cfg session.Config, logger zerolog.Logger) *Manager {
	return &Manager{
		pool:          p,
		log:           logger.With().Str("component", "manager").Logger(),
		cfg:           cfg,
		sessions:      xsync.NewMapOf[string, *session.Session](),
		subscriptions: xsync.NewMapOf[string, Subscription](),
		cancels:       xsync.NewMapOf[string, context.CancelFunc](),
		restarts:      make(map[string]*restartState),
	}
}

// AddRelay registers url (a no-op if already present), starts its Session,
// and replays the current subscription cache onto it.
func (m *Manager) AddRelay(ctx context.Context, url string) *session.Session {
	if existing, ok := m.sessions.Load(url); ok {
		return existing
	}

	sess := session.New(url, m.pool, m.cfg, m.log)
	m.sessions.Store(url, sess)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancels.Store(url, cancel)

	go func() {
		if err := sess.Run(runCtx); err != nil {
			m.log.Debug().Err(err).Str("url", url).Msg("session run returned")
		}
	}()

	sess.PublishSubscriptions(m.currentReqFrames())
	return sess
}

// RemoveRelay closes and unregisters url's Session.
func (m *Manager) RemoveRelay(url string) {
	if sess, ok := m.sessions.LoadAndDelete(url); ok {
		sess.Close()
	}
	if cancel, ok := m.cancels.LoadAndDelete(url); ok {
		cancel()
	}
}

// RemoveRelays unregisters every relay.
func (m *Manager) RemoveRelays() {
	m.sessions.Range(func(url string, _ *session.Session) bool {
		m.RemoveRelay(url)
		return true
	})
}

// AddSubscription caches id/filters and installs it on every live relay.
func (m *Manager) AddSubscription(id string, filters nostrmodel.FilterSet) {
	sub := Subscription{ID: id, Filters: filters}
	m.subscriptions.Store(id, sub)

	req := reqFrameFor(sub)
	m.sessions.Range(func(_ string, sess *session.Session) bool {
		sess.PublishSubscriptions([]wire.ReqFrame{req})
		return true
	})
}

// CloseSubscription removes id from the cache and closes it on every relay.
func (m *Manager) CloseSubscription(id string) {
	m.subscriptions.Delete(id)
	closeFrame := wire.CloseFrame{SubID: id}
	raw, err := wire.Encode(closeFrame)
	if err != nil {
		return
	}
	m.sessions.Range(func(_ string, sess *session.Session) bool {
		sess.Publish(raw)
		return true
	})
}

// CloseAllSubscriptions closes every cached subscription on every relay.
func (m *Manager) CloseAllSubscriptions() {
	var ids []string
	m.subscriptions.Range(func(id string, _ Subscription) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		m.CloseSubscription(id)
	}
}

// PublishMessage broadcasts a raw client→relay frame (typically an EVENT
// publish) to every live relay.
func (m *Manager) PublishMessage(raw []byte) {
	m.sessions.Range(func(_ string, sess *session.Session) bool {
		sess.Publish(raw)
		return true
	})
}

// HandleNotice logs a relay-sourced NOTICE. A NOTICE is not an error, so it
// must never touch restart backoff state (doing so previously reset
// waitSince on every notice, making subsequent restarts fire on every sweep).
func (m *Manager) HandleNotice(sourceURL, text string) {
	m.log.Info().Str("url", sourceURL).Str("notice", text).Msg("relay notice")
}

// CheckAndRestartRelays restarts any Session whose underlying connection has
// dropped, honoring the `min(60*error_counter, 3600)` backoff formula from
// the original spec: a relay with more accumulated errors waits longer
// between restart attempts, capped at one hour.
func (m *Manager) CheckAndRestartRelays(ctx context.Context) {
	type candidate struct {
		url  string
		sess *session.Session
	}
	var stopped []candidate

	m.sessions.Range(func(url string, sess *session.Session) bool {
		if !sess.Stats().Connected {
			stopped = append(stopped, candidate{url: url, sess: sess})
		}
		return true
	})

	for _, c := range stopped {
		m.maybeRestart(ctx, c.url, c.sess)
	}
}

func (m *Manager) maybeRestart(ctx context.Context, url string, sess *session.Session) {
	live := sess.ErrorCounter()

	m.restartMu.Lock()
	st, ok := m.restarts[url]
	if !ok {
		st = &restartState{lastErrorAt: time.Now()}
		m.restarts[url] = st
	}
	// The live Session's own error_counter resets to zero on every new
	// incarnation, so only the growth since we last observed it (delta) is
	// new error history; fold that into the carried-forward total instead
	// of overwriting it, and only move lastErrorAt on an actual error
	// transition, not on every sweep tick.
	if delta := live - st.baselineErrorCounter; delta > 0 {
		st.totalErrorCounter += delta
		st.baselineErrorCounter = live
		st.lastErrorAt = time.Now()
	}
	waitSince := time.Since(st.lastErrorAt)
	backoff := backoffFor(st.totalErrorCounter)
	m.restartMu.Unlock()

	if waitSince < backoff {
		return
	}

	m.log.Info().Str("url", url).Int("error_counter", st.totalErrorCounter).Msg("restarting relay connection")
	m.RemoveRelay(url)
	m.AddRelay(ctx, url)

	m.restartMu.Lock()
	st.baselineErrorCounter = 0 // the just-created Session starts its own counter at zero
	m.restartMu.Unlock()
}

// backoffFor applies `min(60*error_counter, 3600)` seconds, matching the
// original service's _restart_relay.
func backoffFor(errorCounter int) time.Duration {
	seconds := 60 * errorCounter
	if seconds > 3600 {
		seconds = 3600
	}
	return time.Duration(seconds) * time.Second
}

// currentReqFrames snapshots the subscription cache as REQ frames, used to
// replay the Router's desired state onto a freshly (re)connected relay.
func (m *Manager) currentReqFrames() []wire.ReqFrame {
	var out []wire.ReqFrame
	m.subscriptions.Range(func(_ string, sub Subscription) bool {
		out = append(out, reqFrameFor(sub))
		return true
	})
	return out
}

func reqFrameFor(sub Subscription) wire.ReqFrame {
	rawFilters := make([]json.RawMessage, 0, len(sub.Filters))
	for _, f := range sub.Filters {
		raw, err := json.Marshal(f)
		if err != nil {
			continue
		}
		rawFilters = append(rawFilters, raw)
	}
	return wire.ReqFrame{SubID: sub.ID, Filters: rawFilters}
}

// SessionURLs returns every currently registered relay URL.
func (m *Manager) SessionURLs() []string {
	var out []string
	m.sessions.Range(func(url string, _ *session.Session) bool {
		out = append(out, url)
		return true
	})
	return out
}

// Session returns the Session for url, if registered.
func (m *Manager) Session(url string) (*session.Session, bool) {
	return m.sessions.Load(url)
}

// RunPoolDrain continuously moves decoded frames out of the shared Pool and
// into in, the process-wide (but explicitly-owned) Intake every Router
// drains from. One instance runs for the whole process, started by
// cmd/nostrmux; it is the Go analogue of the original nostr_to_client
// background consumption that fed NostrRouter's class-level dicts, but
// feeding an explicitly-constructed Intake instead of global state.
func (m *Manager) RunPoolDrain(ctx context.Context, in *intake.Intake) {
	go m.drainEvents(ctx, in)
	go m.drainEOSEs(ctx, in)
	go m.drainNotices(ctx, in)
}

func (m *Manager) drainEvents(ctx context.Context, in *intake.Intake) {
	for {
		msg, ok := m.pool.PopEvent(ctx)
		if !ok {
			return
		}
		in.PushEvent(msg.SubscriptionID, msg.Event)
	}
}

func (m *Manager) drainEOSEs(ctx context.Context, in *intake.Intake) {
	for {
		msg, ok := m.pool.PopEOSE(ctx)
		if !ok {
			return
		}
		in.MarkEOSE(msg.SubscriptionID)
	}
}

func (m *Manager) drainNotices(ctx context.Context, in *intake.Intake) {
	for {
		msg, ok := m.pool.PopNotice(ctx)
		if !ok {
			return
		}
		m.HandleNotice(msg.SourceURL, msg.Text)
		in.PushNotice(msg.Text)
	}
}
