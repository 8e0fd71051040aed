package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audexa/noisewatch/internal/config"
	"github.com/audexa/noisewatch/internal/engine"
	"github.com/audexa/noisewatch/internal/server"
	"github.com/audexa/noisewatch/internal/types"
)

// Server is the HTTP server exposing the monitor's control API, the
// live WebSocket feed and the Prometheus metrics endpoint.
type Server struct {
	config  *config.Config
	engine  *engine.Engine
	version *VersionChecker
}

// NewServer returns a new Server for the given config and engine.
func NewServer(cfg *config.Config, eng *engine.Engine) *Server {
	return &Server{
		config:  cfg,
		engine:  eng,
		version: NewVersionChecker(),
	}
}

// handleWebSocket serves the live status and levels feed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, done)

	s.runWebSocketEventLoop(send, done)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader drains the connection until the client goes away.
// The feed is one-way; incoming messages are ignored.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, done chan<- struct{}) {
	defer close(done)
	for {
		var discard map[string]any
		if err := conn.ReadJSON(&discard); err != nil {
			return
		}
	}
}

// runWebSocketEventLoop pushes periodic status and level updates.
func (s *Server) runWebSocketEventLoop(send chan any, done <-chan struct{}) {
	levelsTicker := time.NewTicker(100 * time.Millisecond)  // 10 fps for level meters
	statusTicker := time.NewTicker(3000 * time.Millisecond) // Status updates every 3s
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-levelsTicker.C:
			if !trySend(types.WSLevelsResponse{Type: "levels", Levels: s.engine.AudioLevels()}) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response. Secrets
// never leave the process: S3 credentials are stripped before sending.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()
	status := s.engine.Status()
	counters := s.engine.Counters()

	dump := cfg.Dump
	dump.S3AccessKeyID = ""
	dump.S3SecretAccessKey = ""

	return types.WSStatusResponse{
		Type:          "status",
		Engine:        status,
		RMSThreshold:  cfg.RMSThreshold,
		MonitorPeriod: cfg.MonitorPeriodMs,
		AudioInterval: cfg.AudioIntervalMs,
		Cycles:        counters.Monitor.Cycles,
		CyclesSkipped: counters.Monitor.Skipped,
		FramesForward: counters.Stream.Forwarded,
		Dropouts:      counters.Stream.Dropouts,
		AlertWebhook:  cfg.WebhookURL,
		AlertLogPath:  cfg.LogPath,
		Zabbix: types.ZabbixConfig{
			Server: cfg.ZabbixServer,
			Port:   cfg.ZabbixPort,
			Host:   cfg.ZabbixHost,
			Key:    cfg.ZabbixKey,
		},
		GraphFrom:      cfg.GraphFromAddress,
		GraphTo:        cfg.GraphRecipients,
		AlertDump:      dump,
		Version:        s.version.Info(),
		IndicatorState: status.AlertState == "loud",
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	// Control API (API key auth)
	mux.HandleFunc("/api/status", s.apiKeyAuth(s.handleAPIStatus))
	mux.HandleFunc("/api/levels", s.apiKeyAuth(s.handleAPILevels))
	mux.HandleFunc("/api/events", s.apiKeyAuth(s.handleAPIEvents))
	mux.HandleFunc("/api/monitor/start", s.apiKeyAuth(s.handleMonitorStart))
	mux.HandleFunc("/api/monitor/stop", s.apiKeyAuth(s.handleMonitorStop))
	mux.HandleFunc("/api/monitor/restart", s.apiKeyAuth(s.handleMonitorRestart))
	mux.HandleFunc("/api/settings/detection", s.apiKeyAuth(s.handleDetectionUpdate))
	mux.HandleFunc("/api/settings/webhook", s.apiKeyAuth(s.handleWebhookUpdate))
	mux.HandleFunc("/api/settings/log", s.apiKeyAuth(s.handleLogUpdate))
	mux.HandleFunc("/api/settings/email", s.apiKeyAuth(s.handleEmailUpdate))
	mux.HandleFunc("/api/settings/zabbix", s.apiKeyAuth(s.handleZabbixUpdate))
	mux.HandleFunc("/api/test/", s.apiKeyAuth(s.handleTest))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleHealth reports process liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// apiKeyAuth returns middleware for API key authentication.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.APIKey()
		if apiKey == "" {
			http.Error(w, "API key not configured", http.StatusServiceUnavailable)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
