package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"nostrmux/internal/intake"
	"nostrmux/internal/manager"
	"nostrmux/internal/pool"
	"nostrmux/internal/session"
	"nostrmux/internal/store"
)

type noopVerifier struct{}

func (noopVerifier) Verify(string, string, string) bool { return true }

func newTestServer(t *testing.T, adminToken string) (*Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p := pool.New(noopVerifier{}, zerolog.Nop())
	mgr := manager.New(p, session.DefaultConfig(), zerolog.Nop())
	in := intake.New()

	return New(mgr, in, st, adminToken, zerolog.Nop()), st
}

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	s, _ := newTestServer(t, "secret-token")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/relays")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/relays", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddAndListRelay(t *testing.T) {
	s, _ := newTestServer(t, "secret-token")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, err := json.Marshal(map[string]any{"url": "wss://relay.example.com"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/relay", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/relays", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var views []relayView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	require.Equal(t, "wss://relay.example.com", views[0].URL)
}

func TestAddRelayRejectsDuplicate(t *testing.T) {
	s, _ := newTestServer(t, "secret-token")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	addRelay := func() *http.Response {
		body, err := json.Marshal(map[string]any{"url": "wss://relay.example.com"})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/relay", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer secret-token")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	require.Equal(t, http.StatusOK, addRelay().StatusCode)
	require.Equal(t, http.StatusBadRequest, addRelay().StatusCode)
}

func TestRelayTestGeneratesSignedEvent(t *testing.T) {
	s, _ := newTestServer(t, "secret-token")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	receiverPriv, err := randomPrivKeyHex()
	require.NoError(t, err)
	receiverPub, err := s.signer.PubKeyFor(receiverPriv)
	require.NoError(t, err)

	body, err := json.Marshal(testMessageRequest{ReceiverPublicKey: receiverPub, Message: "hello"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/relay/test", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out testMessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.PrivateKey)
	require.NotEmpty(t, out.PublicKey)
	require.NotEmpty(t, out.EventJSON)
}

func TestConfigGetSetsDefaultsAndPutPersists(t *testing.T) {
	s, _ := newTestServer(t, "secret-token")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get := func() store.Config {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/config", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer secret-token")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var cfg store.Config
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
		return cfg
	}

	cfg := get()
	require.Equal(t, store.DefaultOwnerID, cfg.OwnerID)
	require.False(t, cfg.PublicWS)

	cfg.PublicWS = true
	body, err := json.Marshal(cfg)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/config", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.True(t, get().PublicWS)
}

func TestWebsocketRejectsPublicWhenDisabled(t *testing.T) {
	s, _ := newTestServer(t, "secret-token")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/relay")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebsocketRejectsPrivateIDThatDoesNotDecryptToRelay(t *testing.T) {
	s, st := newTestServer(t, "my-admin-token")
	require.NoError(t, st.SaveConfig(context.Background(), store.Config{OwnerID: store.DefaultOwnerID, PrivateWS: true}))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/not-a-valid-token")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
