// Package httpserver exposes the bot's HTTP surface: the Viber callback
// endpoint, a health check, and Prometheus metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/viberbot/welcome-bot/internal/bot"
	"github.com/viberbot/welcome-bot/internal/metrics"
	"github.com/viberbot/welcome-bot/internal/store"
	"github.com/viberbot/welcome-bot/internal/viber"
)

// maxBodySize caps inbound callback bodies. Viber events are small; a cap
// keeps a misbehaving sender from tying up memory.
const maxBodySize = 1 << 20

// Server hosts the webhook endpoint.
type Server struct {
	dispatcher *bot.Dispatcher
	httpServer *http.Server
	startedAt  time.Time
	log        zerolog.Logger
}

// New creates a server bound to addr that routes callback events through
// the given dispatcher.
func New(addr string, dispatcher *bot.Dispatcher, logger zerolog.Logger) *Server {
	s := &Server{
		dispatcher: dispatcher,
		log:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/viber/events", s.handleEvents)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpserver: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleEvents is the inbound callback endpoint. Recognized and unknown
// events answer 200 with the dispatcher's reply body; malformed payloads
// answer 400; a failed required write answers 500 so the platform retries
// delivery on its own schedule.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	defer func() {
		metrics.EventLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	reply, err := s.dispatcher.Dispatch(r.Context(), body)
	if err != nil {
		var decodeErr *viber.DecodeError
		if errors.As(err, &decodeErr) {
			s.log.Warn().Err(err).Msg("rejected malformed callback")
			s.writeError(w, http.StatusBadRequest, decodeErr.Reason)
			return
		}

		var storageErr *store.StorageError
		if errors.As(err, &storageErr) {
			s.log.Error().Err(err).Msg("storage write failed")
			s.writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}

		s.log.Error().Err(err).Msg("event handling failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(reply)
}

// handleHealth responds with the server's health status as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeError sends a JSON error body with the given status.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
