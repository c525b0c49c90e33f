package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/labflow/internal/logging"
	"github.com/aretw0/labflow/pkg/action"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/registry"
	"github.com/aretw0/labflow/pkg/scope"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegistryURI is the resource holding every workflow definition.
const RegistryURI = "labflow://registry"

// Engine defines the interface required by the MCP server to drive workflows.
type Engine interface {
	Perform(ctx context.Context, e domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome
	AllowedTransitions(ctx context.Context, e domain.Entity) []domain.Transition
	States(ctx context.Context, e domain.Entity) domain.States
	History(ctx context.Context, e domain.Entity) []domain.HistoryEntry
	Registry() *registry.Registry
}

// TransitionsResponse lists what an entity may do next.
type TransitionsResponse struct {
	UID         string              `json:"uid" jsonschema_description:"The entity UID"`
	States      domain.States       `json:"states" jsonschema_description:"Current state per axis"`
	Transitions []domain.Transition `json:"transitions" jsonschema_description:"Transitions the guard currently allows"`
}

// OutcomeResponse reports a transition request.
type OutcomeResponse struct {
	UID        string              `json:"uid"`
	Transition domain.TransitionID `json:"transition"`
	Performed  bool                `json:"performed" jsonschema_description:"Whether the transition was committed"`
	Reason     domain.Reason       `json:"reason"`
	Message    string              `json:"message,omitempty"`
	States     domain.States       `json:"states"`
}

// HistoryResponse is the audit trail of an entity, newest first.
type HistoryResponse struct {
	UID     string                `json:"uid"`
	Entries []domain.HistoryEntry `json:"entries"`
}

// AuditReader reads the audit trail of a UID.
type AuditReader interface {
	History(ctx context.Context, uid string) ([]domain.HistoryEntry, error)
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	resolver  ports.EntityResolver
	runner    *action.Runner
	audit     AuditReader
	logger    *slog.Logger
	version   string
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithRunner sets the action runner used by perform_transition.
func WithRunner(r *action.Runner) Option {
	return func(s *Server) {
		s.runner = r
	}
}

// WithAudit makes get_history read from the given reader, on behalf of its
// actor argument.
func WithAudit(a AuditReader) Option {
	return func(s *Server) {
		s.audit = a
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, resolver ports.EntityResolver, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		resolver: resolver,
		logger:   logging.NewNop(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = action.NewRunner(action.WithLogger(s.logger))
	}
	s.mcpServer = server.NewMCPServer("labflow-mcp", s.version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_transitions",
		mcp.WithDescription("List the transitions an entity may perform now, with its current states."),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Entity UID, e.g. AR-0001")),
		mcp.WithOutputSchema[TransitionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListTransitions))

	s.mcpServer.AddTool(mcp.NewTool("perform_transition",
		mcp.WithDescription("Request a workflow transition on an entity. Cascades and escalations run as part of it."),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Entity UID")),
		mcp.WithString("transition", mcp.Required(), mcp.Description("Transition id, e.g. submit")),
		mcp.WithString("actor", mcp.Description("Acting user (defaults to system)")),
		mcp.WithString("comment", mcp.Description("Comment recorded in the audit trail")),
		mcp.WithOutputSchema[OutcomeResponse](),
	), mcp.NewStructuredToolHandler(s.handlePerform))

	s.mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Get the audit trail of an entity, newest first."),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Entity UID")),
		mcp.WithString("actor", mcp.Description("Reading user (defaults to system)")),
		mcp.WithOutputSchema[HistoryResponse](),
	), mcp.NewStructuredToolHandler(s.handleHistory))
}

func (s *Server) entity(ctx context.Context, args map[string]any) (domain.Entity, error) {
	uid, _ := args["uid"].(string)
	if uid == "" {
		return nil, errors.New("uid is required")
	}
	return s.resolver.Resolve(ctx, uid)
}

func (s *Server) handleListTransitions(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (TransitionsResponse, error) {
	e, err := s.entity(ctx, args)
	if err != nil {
		return TransitionsResponse{}, err
	}
	allowed := s.engine.AllowedTransitions(ctx, e)
	if allowed == nil {
		allowed = []domain.Transition{}
	}
	return TransitionsResponse{
		UID:         e.UID(),
		States:      s.engine.States(ctx, e),
		Transitions: allowed,
	}, nil
}

func (s *Server) handlePerform(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (OutcomeResponse, error) {
	e, err := s.entity(ctx, args)
	if err != nil {
		return OutcomeResponse{}, err
	}
	transition, _ := args["transition"].(string)
	actor, _ := args["actor"].(string)
	comment, _ := args["comment"].(string)
	id := domain.TransitionID(transition)

	var outcome domain.Outcome
	err = s.runner.Do(ctx, action.KeyOf(e), actor, func(ctx context.Context) error {
		outcome = s.engine.Perform(ctx, e, id, domain.WithComment(comment))
		return nil
	})
	if err != nil {
		return OutcomeResponse{}, err
	}
	if outcome.Failed() {
		s.logger.Error("MCP Perform failed", "uid", e.UID(), "transition", id, "err", outcome.Err)
	}
	return OutcomeResponse{
		UID:        e.UID(),
		Transition: id,
		Performed:  outcome.Performed,
		Reason:     outcome.Reason,
		Message:    outcome.Message,
		States:     s.engine.States(ctx, e),
	}, nil
}

func (s *Server) handleHistory(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (HistoryResponse, error) {
	e, err := s.entity(ctx, args)
	if err != nil {
		return HistoryResponse{}, err
	}
	if actor, _ := args["actor"].(string); actor != "" {
		ctx = scope.WithScope(ctx, scope.New(actor))
	}
	var entries []domain.HistoryEntry
	if s.audit == nil {
		entries = s.engine.History(ctx, e)
	} else if entries, err = s.audit.History(ctx, e.UID()); err != nil {
		return HistoryResponse{}, fmt.Errorf("history of %s: %w", e.UID(), err)
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return HistoryResponse{UID: e.UID(), Entries: entries}, nil
}

func (s *Server) registryJSON() ([]byte, error) {
	reg := s.engine.Registry()
	out := make(map[domain.EntityType][]registry.Workflow)
	for _, et := range reg.Types() {
		out[et] = reg.Workflows(et)
	}
	return json.Marshal(out)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(RegistryURI, "Workflow Definitions",
		mcp.WithResourceDescription("Every registered entity type with its axes and transitions."),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := s.registryJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode registry: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      RegistryURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
