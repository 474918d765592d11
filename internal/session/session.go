// Package session implements the Relay Connection Engine: one supervised
// websocket connection per configured relay URL, with a read loop, a bounded
// send loop, and the counted stats the Manager's restart supervisor and the
// admin API surface. Grounded on the teacher's RelayConn/readLoop in
// relay_pool.go, generalized from an ad hoc per-subscription fan-out to the
// Message Pool intake the rest of this service shares.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nostrmux/internal/pool"
	"nostrmux/internal/wire"
)

// State is the Session's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	maxErrorList      = 20
	maxNoticeList     = 20
	defaultQueueSize  = 256
	defaultPingPeriod = 8 * time.Second
	defaultPongWait   = 20 * time.Second
)

// Config holds the per-session tunables sourced from AppConfig.
type Config struct {
	SendQueueSize  int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	TLSVerify      bool
	ErrorThreshold int
}

// DefaultConfig returns the SPEC_FULL §4.4/§9 defaults.
func DefaultConfig() Config {
	return Config{
		SendQueueSize:  defaultQueueSize,
		PingInterval:   defaultPingPeriod,
		PongTimeout:    defaultPongWait,
		TLSVerify:      true, // REDESIGN FLAG: legacy lenient default rejected
		ErrorThreshold: 100,
	}
}

// Stats is the runtime-only status the admin API reports per relay.
type Stats struct {
	Connected         bool
	PingMS            int64
	NumSentEvents     uint64
	NumReceivedEvents uint64
	ErrorCounter      int
	ErrorList         []string
	NoticeList        []string
}

// Session owns one websocket connection to one relay URL.
type Session struct {
	URL  string
	cfg  Config
	pool *pool.Pool
	log  zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	pingMS     int64
	pingSentAt time.Time
	numSent    uint64
	numRecv    uint64
	errCounter int
	errorList  []string
	noticeList []string

	outbound chan []byte

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Session. The connection is not opened until Run starts.
func New(url string, p *pool.Pool, cfg Config, logger zerolog.Logger) *Session {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultQueueSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingPeriod
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongWait
	}
	return &Session{
		URL:      url,
		cfg:      cfg,
		pool:     p,
		log:      logger.With().Str("component", "session").Str("url", url).Logger(),
		outbound: make(chan []byte, cfg.SendQueueSize),
		done:     make(chan struct{}),
	}
}

// Run dials the relay and runs the read and send loops until ctx is
// cancelled or the connection drops. Run itself does not retry; the
// Manager's supervisor reconnects by replacing the Session with a new one.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.state = StateConnecting
	s.mu.Unlock()

	dialer := *websocket.DefaultDialer
	if !s.cfg.TLSVerify {
		dialer.TLSClientConfig = insecureTLSConfig()
	}

	conn, _, err := dialer.DialContext(runCtx, s.URL, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.recordError(err.Error())
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("session: dial %s: %w", s.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	conn.SetPongHandler(s.onPong)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.sendLoop(runCtx)
	}()

	go s.pingLoop(runCtx)

	wg.Wait()

	s.mu.Lock()
	s.state = StateDisconnected
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	return nil
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.state == StateClosing
			s.mu.Unlock()
			if !closing {
				s.log.Debug().Err(err).Msg("read loop: connection error")
			}
			s.cancel()
			return
		}

		frame, decodeErr := wire.Decode(raw)
		if decodeErr != nil {
			s.mu.Lock()
			s.recordError(decodeErr.Error())
			s.mu.Unlock()
			continue
		}
		if nf, ok := frame.(wire.NoticeFrame); ok {
			s.mu.Lock()
			s.recordNotice(nf.Text)
			s.mu.Unlock()
		}

		if err := s.pool.Submit(raw, s.URL); err != nil {
			s.mu.Lock()
			s.recordError(err.Error())
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		s.numRecv++
		s.mu.Unlock()
	}
}

func (s *Session) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.outbound:
			if !ok {
				return
			}
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.mu.Lock()
				s.recordError(err.Error())
				s.mu.Unlock()
				continue
			}
			s.mu.Lock()
			s.numSent++
			s.mu.Unlock()
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			sentAt := time.Now()
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				continue
			}
			s.mu.Lock()
			s.pingSentAt = sentAt
			s.mu.Unlock()
		}
	}
}

func (s *Session) onPong(string) error {
	s.mu.Lock()
	if !s.pingSentAt.IsZero() {
		s.pingMS = time.Since(s.pingSentAt).Milliseconds()
	}
	s.mu.Unlock()
	return nil
}

// Publish enqueues a frame for send with a short non-blocking attempt, then
// a bounded wait; on timeout it drops the oldest queued frame and records an
// error (drop-oldest backpressure, per SPEC_FULL §4.4/§9) rather than
// blocking the caller.
func (s *Session) Publish(raw []byte) {
	select {
	case s.outbound <- raw:
		return
	default:
	}

	timer := time.NewTimer(200 * time.Millisecond)
	defer timer.Stop()
	select {
	case s.outbound <- raw:
	case <-timer.C:
		select {
		case <-s.outbound:
			s.mu.Lock()
			s.recordError("outbound queue full: dropped oldest frame")
			s.mu.Unlock()
		default:
		}
		select {
		case s.outbound <- raw:
		default:
			s.mu.Lock()
			s.recordError("outbound queue full: dropped frame")
			s.mu.Unlock()
		}
	}
}

// PublishSubscriptions enqueues a REQ frame for every active subscription,
// called on (re)connect so new connections replay the Router's desired
// state.
func (s *Session) PublishSubscriptions(subs []wire.ReqFrame) {
	for _, req := range subs {
		raw, err := wire.Encode(req)
		if err != nil {
			continue
		}
		s.Publish(raw)
	}
}

// Close transitions the session to Closing and tears down the connection.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosing
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		// Unblocks a read loop waiting in ReadMessage.
		_ = conn.Close()
	}
}

// Stats returns a point-in-time snapshot of the session's runtime status.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Connected:         s.state == StateConnected,
		PingMS:            s.pingMS,
		NumSentEvents:     s.numSent,
		NumReceivedEvents: s.numRecv,
		ErrorCounter:      s.errCounter,
		ErrorList:         append([]string{}, s.errorList...),
		NoticeList:        append([]string{}, s.noticeList...),
	}
}

// ErrorCounter reports the error count used by the restart supervisor's
// backoff formula.
func (s *Session) ErrorCounter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCounter
}

// recordError appends to the most-recent-first, capped error_list and bumps
// error_counter. Caller must hold s.mu.
func (s *Session) recordError(msg string) {
	s.errCounter++
	s.errorList = append([]string{msg}, s.errorList...)
	if len(s.errorList) > maxErrorList {
		s.errorList = s.errorList[:maxErrorList]
	}
}

// recordNotice appends to the most-recent-first, capped notice_list. Caller
// must hold s.mu.
func (s *Session) recordNotice(text string) {
	s.noticeList = append([]string{text}, s.noticeList...)
	if len(s.noticeList) > maxNoticeList {
		s.noticeList = s.noticeList[:maxNoticeList]
	}
}
