// Package server exposes a small local HTTP status surface for the
// running bot: health and a few runtime counters.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/focuslock/cooagent/bot"
)

// Server is the status HTTP server.
type Server struct {
	addr    string
	bot     *bot.Bot
	logger  *slog.Logger
	httpSrv *http.Server

	startTime time.Time
	version   string
}

// New creates a Server bound to addr reporting on the given bot.
func New(addr string, b *bot.Bot, ver string, logger *slog.Logger) *Server {
	s := &Server{
		addr:      addr,
		bot:       b,
		logger:    logger,
		startTime: time.Now(),
		version:   ver,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":            s.version,
		"uptime_seconds":     int(time.Since(s.startTime).Seconds()),
		"pending_proposals":  s.bot.Proposals().Len(),
		"unlocked_operators": s.bot.UnlockedCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
