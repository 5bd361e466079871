// Package api implements the HTTP surface memoraid exposes over
// *manager.Manager: session lifecycle, memory retrieval, profile and
// export/import, and maintenance endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/memoraid/internal/manager"
	"github.com/nugget/memoraid/internal/memerr"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server wrapping one Manager.
type Server struct {
	address string
	port    int
	mgr     *manager.Manager
	logger  *slog.Logger
	server  *http.Server
}

// NewServer builds a Server. Call Start to begin serving.
func NewServer(address string, port int, mgr *manager.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		mgr:     mgr,
		logger:  logger.With("component", "api"),
	}
}

// Start begins serving HTTP requests. It blocks until the server stops
// (ListenAndServe's normal contract); call Shutdown from another
// goroutine to stop it gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session/start", s.handleSessionStart)
	mux.HandleFunc("POST /session/message", s.handleSessionMessage)
	mux.HandleFunc("POST /session/end", s.handleSessionEnd)
	mux.HandleFunc("POST /context", s.handleContext)
	mux.HandleFunc("GET /profile/{user_id}", s.handleProfileGet)
	mux.HandleFunc("PUT /profile", s.handleProfilePut)
	mux.HandleFunc("GET /stats/{user_id}", s.handleStats)
	mux.HandleFunc("GET /export/{user_id}", s.handleExport)
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("POST /maintenance/forget/{user_id}", s.handleMaintenanceForget)
	mux.HandleFunc("POST /maintenance/cleanup", s.handleMaintenanceCleanup)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

// errorResponse writes an error body with a status code derived from
// the error's memerr kind. Unrecognized errors default to 500.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	code := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"error": err.Error()}, s.logger)
}

// statusFor maps a Manager error's memerr kind to an HTTP status.
// Errors not wrapping a recognized kind map to 500, since they
// represent a bug rather than an expected failure mode.
func statusFor(err error) int {
	switch {
	case errors.Is(err, memerr.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, memerr.ErrSchema):
		return http.StatusBadGateway
	case errors.Is(err, memerr.ErrTransientLLM):
		return http.StatusServiceUnavailable
	case errors.Is(err, memerr.ErrCancelled):
		return 499 // client closed request, nginx convention; no stdlib constant exists
	default:
		return http.StatusInternalServerError
	}
}
