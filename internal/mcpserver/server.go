// Package mcpserver exposes call context resolution and Laravel completion as
// Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
	"github.com/doITmagic/laravel-callctx/internal/completion"
	"github.com/doITmagic/laravel-callctx/internal/config"
	"github.com/doITmagic/laravel-callctx/internal/resolver"
	"github.com/doITmagic/laravel-callctx/internal/workspace"
)

const (
	ToolResolveCallContext = "resolve_call_context"
	ToolCompleteAtCursor   = "complete_at_cursor"
)

// ResolveInput defines the typed input for the resolve_call_context tool.
type ResolveInput struct {
	Source string `json:"source" jsonschema:"PHP source code up to the cursor"`
	Offset int    `json:"offset,omitempty" jsonschema:"byte offset of the cursor; defaults to the end of source"`
}

// ResolveOutput defines the typed output for the resolve_call_context tool.
type ResolveOutput struct {
	Found   bool           `json:"found"`
	Context map[string]any `json:"context,omitempty"`
}

// CompleteInput defines the typed input for the complete_at_cursor tool.
type CompleteInput struct {
	Project string `json:"project" jsonschema:"Laravel project root or any file inside it"`
	Source  string `json:"source" jsonschema:"PHP source code up to the cursor"`
	Offset  int    `json:"offset,omitempty" jsonschema:"byte offset of the cursor; defaults to the end of source"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of items"`
}

// CompleteOutput defines the typed output for the complete_at_cursor tool.
type CompleteOutput struct {
	Root     string            `json:"root"`
	Provider string            `json:"provider,omitempty"`
	Typed    string            `json:"typed"`
	Items    []completion.Item `json:"items"`
}

// Server wraps an MCP server with the call context tools registered
type Server struct {
	mcp      *mcp.Server
	cfg      *config.Config
	resolver *resolver.Resolver
	projects *workspace.Manager
	logger   *slog.Logger
}

// New creates a server and registers its tools
func New(cfg *config.Config, res *resolver.Resolver, projects *workspace.Manager, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if res == nil {
		res = resolver.New(cfg.Resolver, logger, nil)
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Server.Name,
			Version: cfg.Server.Version,
		}, nil),
		cfg:      cfg,
		resolver: res,
		projects: projects,
		logger:   logger.With("component", "mcp"),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolResolveCallContext,
		Description: "Describe the PHP call enclosing the cursor: function or method, class, " +
			"argument index, arguments typed so far and enclosing calls.",
	}, s.resolveCallContext)

	if projects != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name: ToolCompleteAtCursor,
			Description: "Suggest Laravel config keys, route names, views, translation keys and " +
				"Eloquent attributes or relations for the argument at the cursor.",
		}, s.completeAtCursor)
	}
	return s
}

// MCP returns the underlying server, for connecting custom transports
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Run serves over stdio until ctx is cancelled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server started (stdio mode)")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func prefixOf(source string, offset int) (string, error) {
	if offset == 0 {
		return source, nil
	}
	if offset < 0 || offset > len(source) {
		return "", fmt.Errorf("offset %d outside source of %d bytes", offset, len(source))
	}
	return source[:offset], nil
}

func (s *Server) resolveCallContext(ctx context.Context, _ *mcp.CallToolRequest, in ResolveInput) (*mcp.CallToolResult, ResolveOutput, error) {
	prefix, err := prefixOf(in.Source, in.Offset)
	if err != nil {
		return nil, ResolveOutput{}, err
	}
	cc, err := s.resolver.Resolve(ctx, prefix)
	if err != nil {
		return nil, ResolveOutput{}, fmt.Errorf("resolve call context: %w", err)
	}
	if cc == nil {
		return nil, ResolveOutput{}, nil
	}

	out, err := toMap(cc)
	if err != nil {
		return nil, ResolveOutput{}, err
	}
	return nil, ResolveOutput{Found: true, Context: out}, nil
}

func (s *Server) completeAtCursor(ctx context.Context, _ *mcp.CallToolRequest, in CompleteInput) (*mcp.CallToolResult, CompleteOutput, error) {
	if in.Project == "" {
		return nil, CompleteOutput{}, fmt.Errorf("project is required")
	}
	prefix, err := prefixOf(in.Source, in.Offset)
	if err != nil {
		return nil, CompleteOutput{}, err
	}

	p, err := s.projects.ProjectFor(in.Project)
	if err != nil {
		return nil, CompleteOutput{}, err
	}
	out := CompleteOutput{Root: p.Info.Root, Items: []completion.Item{}}

	cc, err := s.resolver.Resolve(ctx, prefix)
	if err != nil {
		return nil, CompleteOutput{}, fmt.Errorf("resolve call context: %w", err)
	}
	if cc == nil {
		return nil, out, nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = s.cfg.Server.CompletionLimit
	}
	engine := completion.New(completion.FromRegistry(p.Registry), completion.Options{Limit: limit}, s.logger)
	if provider := engine.Provider(cc); provider != nil {
		out.Provider = provider.Name()
	}
	out.Typed = completion.Typed(cc)
	if items := engine.Complete(ctx, cc, out.Typed); items != nil {
		out.Items = items
	}
	s.logger.Debug("Completed", "root", out.Root, "provider", out.Provider, "items", len(out.Items))
	return nil, out, nil
}

// toMap renders a call context as a JSON object for structured output
func toMap(cc *callctx.CallContext) (map[string]any, error) {
	raw, err := json.Marshal(cc)
	if err != nil {
		return nil, fmt.Errorf("marshal call context: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal call context: %w", err)
	}
	return out, nil
}
