// Command nostrmux runs the relay multiplexer process: it loads AppConfig,
// opens the configured storage backend, restores persisted relays, and
// serves the admin HTTP API and inbound client websocket endpoint until it
// receives SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nostrmux/internal/appconfig"
	"nostrmux/internal/cryptoutil"
	"nostrmux/internal/httpapi"
	"nostrmux/internal/intake"
	"nostrmux/internal/manager"
	"nostrmux/internal/obslog"
	"nostrmux/internal/pool"
	"nostrmux/internal/session"
	"nostrmux/internal/store"
)

const restartSweepDefault = 30 * time.Second

func main() {
	cfg, err := appconfig.Load("")
	if err != nil {
		panic(err)
	}

	log := obslog.New(os.Getenv("NOSTRMUX_LOG_LEVEL"))
	log.Info().Str("listen_addr", cfg.ListenAddr).Msg("starting nostrmux")

	st, err := store.Open(cfg.RedisURL, cfg.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("error closing store")
		}
	}()

	verifier := cryptoutil.SchnorrVerifier{}
	p := pool.New(verifier, log, pool.WithDedupLRUSize(cfg.DedupLRUSize), pool.WithQueueSize(cfg.RelaySendQueueSize))

	sessionCfg := session.Config{
		SendQueueSize:  cfg.RelaySendQueueSize,
		PingInterval:   cfg.PingInterval,
		PongTimeout:    cfg.PongTimeout,
		TLSVerify:      cfg.TLSVerifyUpstream,
		ErrorThreshold: cfg.ErrorThreshold,
	}
	mgr := manager.New(p, sessionCfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relays, err := st.LoadRelays(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load persisted relays")
	}
	for _, relay := range relays {
		if relay.Active {
			mgr.AddRelay(ctx, relay.URL)
		}
	}

	in := intake.New()
	mgr.RunPoolDrain(ctx, in)

	restartSweep := cfg.RestartSweepInterval
	if restartSweep <= 0 {
		restartSweep = restartSweepDefault
	}
	go runRestartSweeper(ctx, mgr, restartSweep)

	srv := httpapi.New(mgr, in, st, cfg.AdminToken, log)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during http server shutdown")
	}

	mgr.RemoveRelays()
	log.Info().Msg("nostrmux stopped")
}

// runRestartSweeper periodically asks the Manager to restart any dropped
// relay Session whose backoff window has elapsed.
func runRestartSweeper(ctx context.Context, mgr *manager.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.CheckAndRestartRelays(ctx)
		}
	}
}
