package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/labflow/internal/logging"
	"github.com/aretw0/labflow/pkg/action"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/registry"
	"github.com/aretw0/labflow/pkg/scope"
	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
)

// Engine is the part of the labflow engine served over HTTP.
type Engine interface {
	Perform(ctx context.Context, e domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome
	AllowedTransitions(ctx context.Context, e domain.Entity) []domain.Transition
	States(ctx context.Context, e domain.Entity) domain.States
	History(ctx context.Context, e domain.Entity) []domain.HistoryEntry
	Registry() *registry.Registry
}

// AuditReader reads the audit trail of a UID. A ports.StateStore wrapped in
// middleware.HistoryPrivilege is the usual one.
type AuditReader interface {
	History(ctx context.Context, uid string) ([]domain.HistoryEntry, error)
}

// Server serves the engine as a JSON API.
type Server struct {
	Engine   Engine
	Resolver ports.EntityResolver
	Runner   *action.Runner
	Streams  *StreamManager
	Audit    AuditReader
	Version  string
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithRunner sets the action runner. Defaults to a local-only runner.
func WithRunner(r *action.Runner) Option {
	return func(s *Server) {
		s.Runner = r
	}
}

// WithStreams enables GET /events. The manager must also be installed as the
// engine lifecycle hooks for events to flow.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithAudit serves GET /entities/{uid}/history from the given reader instead of
// the engine. The actor query parameter names the reader.
func WithAudit(a AuditReader) Option {
	return func(s *Server) {
		s.Audit = a
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// PerformRequest is the body of POST /entities/{uid}/transitions/{id}.
type PerformRequest struct {
	Actor   string         `json:"actor"`
	Comment string         `json:"comment"`
	Options map[string]any `json:"options"`
}

// performFlags are the keys accepted in PerformRequest.Options.
type performFlags struct {
	IncludeInactive bool `mapstructure:"include_inactive"`
	SkipGuard       bool `mapstructure:"skip_guard"`
}

// OutcomeResponse reports the result of a transition request.
type OutcomeResponse struct {
	UID        string              `json:"uid"`
	Transition domain.TransitionID `json:"transition"`
	Performed  bool                `json:"performed"`
	Reason     domain.Reason       `json:"reason"`
	Message    string              `json:"message,omitempty"`
	States     domain.States       `json:"states"`
}

// EntityResponse is the body of GET /entities/{uid}.
type EntityResponse struct {
	UID    string            `json:"uid"`
	Type   domain.EntityType `json:"type"`
	Parent string            `json:"parent,omitempty"`
	States domain.States     `json:"states"`
}

// NewServer creates the server. The resolver turns path UIDs into entities.
func NewServer(engine Engine, resolver ports.EntityResolver, opts ...Option) *Server {
	s := &Server{
		Engine:   engine,
		Resolver: resolver,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Runner == nil {
		s.Runner = action.NewRunner(action.WithLogger(s.logger))
	}
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, resolver ports.EntityResolver, opts ...Option) http.Handler {
	return NewServer(engine, resolver, opts...).Routes()
}

// Routes mounts the API on a chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Route("/entities/{uid}", func(r chi.Router) {
		r.Get("/", s.GetEntity)
		r.Get("/transitions", s.ListTransitions)
		r.Post("/transitions/{id}", s.PerformTransition)
		r.Get("/history", s.GetHistory)
	})
	r.Get("/registry", s.ListTypes)
	r.Get("/registry/{type}", s.GetWorkflows)
	if s.Streams != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolve writes the error response itself and returns nil when uid is unknown.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) domain.Entity {
	uid := chi.URLParam(r, "uid")
	e, err := s.Resolver.Resolve(r.Context(), uid)
	if errors.Is(err, domain.ErrEntityNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		s.logger.Error("Resolve failed", "uid", uid, "err", err)
		return nil
	}
	return e
}

// GetEntity handles GET /entities/{uid}.
func (s *Server) GetEntity(w http.ResponseWriter, r *http.Request) {
	e := s.resolve(w, r)
	if e == nil {
		return
	}
	resp := EntityResponse{
		UID:    e.UID(),
		Type:   e.Type(),
		States: s.Engine.States(r.Context(), e),
	}
	if p := e.Parent(); p != nil {
		resp.Parent = p.UID()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ListTransitions handles GET /entities/{uid}/transitions.
func (s *Server) ListTransitions(w http.ResponseWriter, r *http.Request) {
	e := s.resolve(w, r)
	if e == nil {
		return
	}
	allowed := s.Engine.AllowedTransitions(r.Context(), e)
	if allowed == nil {
		allowed = []domain.Transition{}
	}
	s.writeJSON(w, http.StatusOK, allowed)
}

// GetHistory handles GET /entities/{uid}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	e := s.resolve(w, r)
	if e == nil {
		return
	}
	ctx := r.Context()
	if actor := r.URL.Query().Get("actor"); actor != "" {
		ctx = scope.WithScope(ctx, scope.New(actor))
	}
	var history []domain.HistoryEntry
	if s.Audit == nil {
		history = s.Engine.History(ctx, e)
	} else {
		var err error
		if history, err = s.Audit.History(ctx, e.UID()); err != nil {
			s.logger.Error("History read failed", "uid", e.UID(), "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

// PerformTransition handles POST /entities/{uid}/transitions/{id}.
func (s *Server) PerformTransition(w http.ResponseWriter, r *http.Request) {
	var body PerformRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			s.logger.Warn("Perform: Invalid request body", "err", err)
			return
		}
	}
	var flags performFlags
	if err := decodeFlags(body.Options, &flags); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid options: %v", err))
		return
	}

	e := s.resolve(w, r)
	if e == nil {
		return
	}
	id := domain.TransitionID(chi.URLParam(r, "id"))

	opts := []domain.PerformOption{domain.WithComment(body.Comment)}
	if flags.IncludeInactive {
		opts = append(opts, domain.IncludeInactive())
	}
	if flags.SkipGuard {
		opts = append(opts, domain.SkipGuard())
	}

	var outcome domain.Outcome
	err := s.Runner.Do(r.Context(), action.KeyOf(e), body.Actor, func(ctx context.Context) error {
		outcome = s.Engine.Perform(ctx, e, id, opts...)
		return nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		s.logger.Error("Perform: action not started", "uid", e.UID(), "transition", id, "err", err)
		return
	}

	s.writeJSON(w, statusOf(outcome), OutcomeResponse{
		UID:        e.UID(),
		Transition: id,
		Performed:  outcome.Performed,
		Reason:     outcome.Reason,
		Message:    outcome.Message,
		States:     s.Engine.States(r.Context(), e),
	})
}

// ListTypes handles GET /registry.
func (s *Server) ListTypes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Registry().Types())
}

// GetWorkflows handles GET /registry/{type}.
func (s *Server) GetWorkflows(w http.ResponseWriter, r *http.Request) {
	et := domain.EntityType(chi.URLParam(r, "type"))
	wfs := s.Engine.Registry().Workflows(et)
	if len(wfs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown entity type %q", et))
		return
	}
	s.writeJSON(w, http.StatusOK, wfs)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	version := s.Version
	if version == "" {
		version = "unknown"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "labflow-http",
		"version": version,
	})
}

func statusOf(o domain.Outcome) int {
	switch {
	case o.Performed:
		return http.StatusOK
	case o.Reason == domain.ReasonUnknownTransition:
		return http.StatusUnprocessableEntity
	case o.Reason == domain.ReasonNoEntity:
		return http.StatusNotFound
	case o.Failed():
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func decodeFlags(in map[string]any, out *performFlags) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
