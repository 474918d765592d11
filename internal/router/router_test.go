package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"nostrmux/internal/intake"
	"nostrmux/internal/manager"
	"nostrmux/internal/nostrmodel"
	"nostrmux/internal/pool"
	"nostrmux/internal/session"
)

func testEvent() nostrmodel.Event {
	return nostrmodel.Event{
		ID:        "abc",
		PubKey:    "pk",
		CreatedAt: 1,
		Kind:      1,
		Tags:      [][]string{},
		Content:   "hi",
		Sig:       "sig",
	}
}

func TestShortIDIsURLSafeAndUnique(t *testing.T) {
	a := shortID()
	b := shortID()
	require.Len(t, a, 16)
	require.NotEqual(t, a, b)
	require.NotContains(t, a, "-")
}

type alwaysVerifier struct{}

func (alwaysVerifier) Verify(string, string, string) bool { return true }

// newTestServer spins up a single-connection websocket echo-through server
// backed by a real Router, and hands the test the Router instance itself
// (via routerCh) so it can inspect internal state directly.
func newTestServer(t *testing.T) (srv *httptest.Server, mgr *manager.Manager, in *intake.Intake, routerCh chan *Router) {
	t.Helper()
	p := pool.New(alwaysVerifier{}, zerolog.Nop())
	mgr = manager.New(p, session.DefaultConfig(), zerolog.Nop())
	in = intake.New()
	routerCh = make(chan *Router, 1)

	upgrader := websocket.Upgrader{}
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		rt := New(conn, mgr, in, zerolog.Nop())
		routerCh <- rt
		rt.Start(r.Context())
	}))
	return srv, mgr, in, routerCh
}

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestRouterRewritesSubscriptionID(t *testing.T) {
	srv, _, _, routerCh := newTestServer(t)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	defer conn.Close()
	rt := <-routerCh

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`["REQ", "client-sub", {"kinds":[1]}]`)))

	require.Eventually(t, func() bool {
		rt.mu.Lock()
		_, ok := rt.originalToRewritten["client-sub"]
		rt.mu.Unlock()
		return ok
	}, time.Second, 10*time.Millisecond, "inbound REQ must register a rewritten subscription id")

	rt.mu.Lock()
	rewritten := rt.originalToRewritten["client-sub"]
	rt.mu.Unlock()
	require.NotEqual(t, "client-sub", rewritten, "rewritten id must differ from the client's own id")
	require.Len(t, rewritten, 16)
}

func TestRouterCloseForgetsSubscription(t *testing.T) {
	srv, _, _, routerCh := newTestServer(t)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	defer conn.Close()
	rt := <-routerCh

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`["REQ", "client-sub", {"kinds":[1]}]`)))
	require.Eventually(t, func() bool {
		rt.mu.Lock()
		_, ok := rt.originalToRewritten["client-sub"]
		rt.mu.Unlock()
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`["CLOSE", "client-sub"]`)))

	require.Eventually(t, func() bool {
		rt.mu.Lock()
		_, ok := rt.originalToRewritten["client-sub"]
		rt.mu.Unlock()
		return !ok
	}, time.Second, 10*time.Millisecond, "CLOSE must forget the rewritten mapping")
}

func TestRouterStopIsIdempotent(t *testing.T) {
	srv, _, _, routerCh := newTestServer(t)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	defer conn.Close()
	rt := <-routerCh

	require.NotPanics(t, func() {
		rt.Stop()
		rt.Stop()
	})
	<-rt.Done()
}

func TestRouterDeliversEventToOriginalSubID(t *testing.T) {
	srv, _, in, routerCh := newTestServer(t)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	defer conn.Close()
	rt := <-routerCh

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`["REQ", "client-sub", {"kinds":[1]}]`)))
	var rewritten string
	require.Eventually(t, func() bool {
		rt.mu.Lock()
		var ok bool
		rewritten, ok = rt.originalToRewritten["client-sub"]
		rt.mu.Unlock()
		return ok
	}, time.Second, 10*time.Millisecond)

	in.PushEvent(rewritten, testEvent())

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"client-sub"`)
	require.Contains(t, string(raw), `"EVENT"`)
}
