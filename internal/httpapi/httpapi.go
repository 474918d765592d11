// Package httpapi wires the admin HTTP surface (go-chi) and the inbound
// websocket upgrade endpoint described in SPEC_FULL §6. Grounded on
// gmonarque-lighthouse's relay server for the websocket upgrade/client
// bookkeeping style,
// generalized from a relay's own event storage to this service's relay
// multiplexer core.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nostrmux/internal/cryptoutil"
	"nostrmux/internal/intake"
	"nostrmux/internal/manager"
	"nostrmux/internal/nostrmodel"
	"nostrmux/internal/router"
	"nostrmux/internal/session"
	"nostrmux/internal/store"
)

// Server is the Admin/WS Endpoint Glue: chi routes, auth gating, websocket
// upgrade, and process lifecycle start/stop.
type Server struct {
	mgr        *manager.Manager
	intake     *intake.Intake
	st         store.Store
	adminToken string
	rawCBC     cryptoutil.RawCBC
	signer     nostrmodel.Signer
	encrypter  nostrmodel.Encrypter
	log        zerolog.Logger

	upgrader websocket.Upgrader
	router   chi.Router
}

// New builds the Server and registers every route.
func New(mgr *manager.Manager, in *intake.Intake, st store.Store, adminToken string, logger zerolog.Logger) *Server {
	s := &Server{
		mgr:        mgr,
		intake:     in,
		st:         st,
		adminToken: adminToken,
		rawCBC:     cryptoutil.NewRawCBC(adminToken),
		signer:     cryptoutil.SchnorrSigner{},
		encrypter:  cryptoutil.NIP04Encrypter{},
		log:        logger.With().Str("component", "httpapi").Logger(),
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
	s.routes()
	return s
}

// Handler returns the configured http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(admin chi.Router) {
			admin.Use(s.requireAdminToken)
			admin.Get("/relays", s.handleListRelays)
			admin.Post("/relay", s.handleAddRelay)
			admin.Delete("/relay", s.handleDeleteRelay)
			admin.Put("/relay/test", s.handleRelayTest)
			admin.Get("/config", s.handleGetConfig)
			admin.Put("/config", s.handlePutConfig)
		})
		api.Get("/{wsID}", s.handleWebsocket)
	})

	s.router = r
}

func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if s.adminToken == "" || !strings.HasPrefix(auth, prefix) || strings.TrimPrefix(auth, prefix) != s.adminToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// relayView is a Relay annotated with its current runtime status, per
// SPEC_FULL §3's Relay+RelayStatus split.
type relayView struct {
	store.Relay
	Status session.Stats `json:"status"`
}

func (s *Server) handleListRelays(w http.ResponseWriter, r *http.Request) {
	relays, err := s.st.LoadRelays(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]relayView, 0, len(relays))
	for _, relay := range relays {
		view := relayView{Relay: relay}
		if sess, ok := s.mgr.Session(relay.URL); ok {
			view.Status = sess.Stats()
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddRelay(w http.ResponseWriter, r *http.Request) {
	var req store.Relay
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "missing or invalid url", http.StatusBadRequest)
		return
	}

	existing, err := s.st.LoadRelays(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, relay := range existing {
		if relay.URL == req.URL {
			http.Error(w, "relay already registered", http.StatusBadRequest)
			return
		}
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Active = true

	if err := s.st.SaveRelay(r.Context(), req); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.mgr.AddRelay(r.Context(), req.URL)

	relays, err := s.st.LoadRelays(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, relays)
}

func (s *Server) handleDeleteRelay(w http.ResponseWriter, r *http.Request) {
	var req store.Relay
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	s.mgr.RemoveRelay(req.URL)
	if err := s.st.DeleteRelay(r.Context(), req.URL); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// testMessageRequest/testMessageResponse implement PUT /relay/test: a NIP-04
// encrypted DM constructed via the Signer/Encrypter abstractions, to confirm
// the crypto wiring end-to-end.
type testMessageRequest struct {
	SenderPrivateKey  string `json:"sender_private_key"`
	ReceiverPublicKey string `json:"reciever_public_key"`
	Message           string `json:"message"`
}

type testMessageResponse struct {
	PrivateKey string          `json:"private_key"`
	PublicKey  string          `json:"public_key"`
	EventJSON  json.RawMessage `json:"event_json"`
}

func (s *Server) handleRelayTest(w http.ResponseWriter, r *http.Request) {
	var req testMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReceiverPublicKey == "" {
		http.Error(w, "missing reciever_public_key", http.StatusBadRequest)
		return
	}

	privKey := req.SenderPrivateKey
	if privKey == "" {
		generated, err := randomPrivKeyHex()
		if err != nil {
			http.Error(w, "failed to generate private key", http.StatusInternalServerError)
			return
		}
		privKey = generated
	}

	pubKey, err := s.signer.PubKeyFor(privKey)
	if err != nil {
		http.Error(w, "invalid private key", http.StatusBadRequest)
		return
	}

	ciphertext, err := s.encrypter.Encrypt(req.Message, privKey, req.ReceiverPublicKey)
	if err != nil {
		http.Error(w, "invalid reciever_public_key", http.StatusBadRequest)
		return
	}

	ev := nostrmodel.Event{
		PubKey:    pubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      4,
		Tags:      [][]string{{"p", req.ReceiverPublicKey}},
		Content:   ciphertext,
	}
	id, err := ev.ComputeID()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ev.ID = id
	sig, err := s.signer.Sign(id, privKey)
	if err != nil {
		http.Error(w, "invalid private key", http.StatusBadRequest)
		return
	}
	ev.Sig = sig

	eventJSON, err := json.Marshal(ev)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, testMessageResponse{
		PrivateKey: privKey,
		PublicKey:  pubKey,
		EventJSON:  eventJSON,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.st.LoadConfig(r.Context(), store.DefaultOwnerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg store.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid config body", http.StatusBadRequest)
		return
	}
	if cfg.OwnerID == "" {
		cfg.OwnerID = store.DefaultOwnerID
	}
	if err := s.st.SaveConfig(r.Context(), cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleWebsocket implements GET /api/v1/{ws_id}: the public-literal vs
// decrypt-to-"relay" gate from SPEC_FULL §6.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	wsID := chi.URLParam(r, "wsID")

	cfg, err := s.st.LoadConfig(r.Context(), store.DefaultOwnerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if wsID == "relay" {
		if !cfg.PublicWS {
			http.Error(w, "Public websocket connections not accepted.", http.StatusForbidden)
			return
		}
	} else {
		if !cfg.PrivateWS {
			http.Error(w, "Private websocket connections not accepted.", http.StatusForbidden)
			return
		}
		plain, err := s.rawCBC.Decrypt(wsID)
		if err != nil || plain != "relay" {
			http.Error(w, "invalid websocket id", http.StatusForbidden)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	rt := router.New(conn, s.mgr, s.intake, s.log)
	rt.Start(r.Context())
}

func randomPrivKeyHex() (string, error) {
	return cryptoutil.RandomPrivKeyHex()
}
