// Package http exposes the REST and WebSocket surface of the messaging
// server. All routes except /healthz and /metrics require a bearer token;
// the authenticated user is who the token's subject says it is.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/config"
	"github.com/Austin-rgb/messages/internal/runtime"
)

// Server serves the HTTP API on top of a runtime.
type Server struct {
	rt  *runtime.Runtime
	cfg *config.Config
	log *zap.Logger

	httpServer *http.Server
}

func NewServer(rt *runtime.Runtime, cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{rt: rt, cfg: cfg, log: log}
	s.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/conversations", s.handleCreateConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{name}", s.handleGetConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{name}/participants", s.handleAddParticipant).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{name}/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{name}/messages", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/messages/{msg}/receipts", s.handleReceipts).Methods(http.MethodGet)
	api.HandleFunc("/messages/{msg}/mark_as_read", s.handleMarkRead).Methods(http.MethodGet)
	api.HandleFunc("/messages/{msg}/react/{reaction}", s.handleReact).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests. WebSocket connections are closed by
// the registry teardown, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.rt.CheckHealth(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
