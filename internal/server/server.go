// Package server exposes the engine over HTTP for callers, operators, and
// the event stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wardenlimit/warden/internal/clock"
	"github.com/wardenlimit/warden/internal/config"
	"github.com/wardenlimit/warden/internal/engine"
	"github.com/wardenlimit/warden/internal/rule"
	"github.com/wardenlimit/warden/internal/store"
)

// Server is the warden HTTP front end.
type Server struct {
	httpServer *http.Server
	engine     *engine.Engine
	clock      clock.Clock
	logger     *slog.Logger
	hub        *Hub
}

// New creates a Server around an engine.
func New(addr string, eng *engine.Engine, clk clock.Clock, logger *slog.Logger) *Server {
	s := &Server{
		engine: eng,
		clock:  clk,
		logger: logger,
		hub:    NewHub(logger),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/check", s.handleCheck)
		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleAddRule)
		r.Delete("/rules/{id}", s.handleRemoveRule)
		r.Get("/blocked", s.handleListBlocked)
		r.Post("/blocked", s.handleBlock)
		r.Delete("/blocked/{identifier}", s.handleUnblock)
		r.Get("/stats", s.handleStats)
	})

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.clock.Now().Format(time.RFC3339),
	})
}

// checkRequest is the decision endpoint payload.
type checkRequest struct {
	Identifier string `json:"identifier"`
	UserID     string `json:"user_id,omitempty"`
	SourceIP   string `json:"source_ip,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if req.Identifier == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("identifier is required"))
		return
	}

	decision := s.engine.Check(r.Context(), req.Identifier, rule.RequestContext{
		UserID:    req.UserID,
		SourceIP:  req.SourceIP,
		SessionID: req.SessionID,
	})

	if r := s.engine.Rules().Get(decision.RuleID); r != nil {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", r.Config.MaxRequests))
	}
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
	if !decision.ResetTime.IsZero() {
		w.Header().Set("X-RateLimit-Reset", decision.ResetTime.Format(time.RFC3339))
	}

	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusTooManyRequests
		if until := decision.UnblockTime; until != nil {
			retry := int(until.Sub(s.clock.Now()).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
		}
	}
	s.writeJSON(w, status, decision)
}

func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Rules().List())
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var spec config.RuleSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding rule: %w", err))
		return
	}

	rl, err := spec.ToRule()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.AddRule(rl); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rl)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.RemoveRule(id); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (s *Server) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.BlockedIdentifiers(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// blockRequest is the manual block payload.
type blockRequest struct {
	Identifier string `json:"identifier"`
	Duration   string `json:"duration"`
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if req.Identifier == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("identifier is required"))
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil || d <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("duration must be a positive duration string"))
		return
	}

	unblockAt, err := s.engine.BlockIdentifier(r.Context(), req.Identifier, d)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"identifier": req.Identifier,
		"unblock_at": unblockAt,
	})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	if err := s.engine.UnblockIdentifier(r.Context(), identifier); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"unblocked": identifier})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Stats(r.Context()))
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is shut down. The hub
// starts bridging engine events to websocket clients.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener serves on the provided listener. Useful for tests that
// need an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.hub.Bridge(s.engine.Events())
	s.logger.Info("warden listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and stops the event bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.httpServer.Shutdown(ctx)
}
