// Package app wires the duplex voice server together: provider construction
// from configuration, the HTTP/WebSocket surface, per-connection session
// management, and lifecycle.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicefuture/duplex/internal/config"
	"github.com/voicefuture/duplex/internal/health"
	"github.com/voicefuture/duplex/internal/observe"
	"github.com/voicefuture/duplex/pkg/audio/ws"
)

// App owns the server lifecycle: New wires everything, Run serves until the
// context is cancelled, Shutdown drains and releases resources.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	metrics   *observe.Metrics
	providers *ProviderSet
	sessions  *SessionManager
	server    *http.Server

	stopOnce sync.Once
}

// New builds the application from configuration. Provider misconfiguration
// fails here rather than on the first connection.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	metrics := observe.DefaultMetrics()

	providers, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		providers: providers,
		sessions:  NewSessionManager(cfg, providers, metrics, log),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/call", a.handleCall)
	mux.HandleFunc("GET /sessions", a.handleSessions)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.healthCheckers()...).Register(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", a.cfg.Server.ListenAddr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections, waits for in-flight sessions up to
// the context deadline, and releases provider resources.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "active_sessions", a.sessions.Count())
		err = a.server.Shutdown(ctx)
		if closeErr := a.providers.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}

// handleCall upgrades the connection and runs a duplex session for its whole
// lifetime.
func (a *App) handleCall(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		a.log.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	wsConn, err := ws.Accept(r.Context(), conn, ws.Config{
		SampleRate:   a.cfg.Audio.SampleRate,
		FrameSamples: a.cfg.Audio.FrameSamples,
	}, a.log)
	if err != nil {
		a.log.Warn("session handshake failed", "remote_addr", r.RemoteAddr, "error", err)
		conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}
	defer wsConn.Close()

	if err := a.sessions.Run(r.Context(), wsConn, wsConn, wsConn, r.RemoteAddr); err != nil {
		a.log.Error("session failed", "remote_addr", r.RemoteAddr, "error", err)
	}
}

// handleSessions reports the currently active sessions as JSON.
func (a *App) handleSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(a.sessions.Active()); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// healthCheckers builds the readiness checks for /readyz.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "providers",
			Check: func(context.Context) error {
				if a.providers.Recognizer == nil || a.providers.Synthesizer == nil {
					return errors.New("providers not initialised")
				}
				return nil
			},
		},
	}
}
