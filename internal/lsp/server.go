// Package lsp serves Laravel-aware completion and hover over the Language
// Server Protocol.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/doITmagic/laravel-callctx/internal/completion"
	"github.com/doITmagic/laravel-callctx/internal/config"
	"github.com/doITmagic/laravel-callctx/internal/resolver"
	"github.com/doITmagic/laravel-callctx/internal/workspace"
)

// Server is a language server for one client connection
type Server struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	projects *workspace.Manager
	logger   *slog.Logger

	conn *jsonrpc2.Conn
	ctx  context.Context

	mu          sync.Mutex
	docs        map[DocumentURI]*document
	engines     map[string]*completion.Engine // project root -> engine
	inflight    map[jsonrpc2.ID]context.CancelCauseFunc
	initialized bool
	shutdown    bool
}

type document struct {
	path    string
	version int
	content []byte
}

var errCancelled = errors.New("request cancelled by client")

// NewServer creates a server. A nil res resolves with the default parser;
// a nil projects offers no completions.
func NewServer(cfg *config.Config, res *resolver.Resolver, projects *workspace.Manager, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if res == nil {
		res = resolver.New(cfg.Resolver, logger, nil)
	}
	return &Server{
		cfg:      cfg,
		resolver: res,
		projects: projects,
		logger:   logger.With("component", "lsp"),
		docs:     make(map[DocumentURI]*document),
		engines:  make(map[string]*completion.Engine),
		inflight: make(map[jsonrpc2.ID]context.CancelCauseFunc),
	}
}

// Run serves on a reader and writer pair such as stdin and stdout
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.Serve(ctx, &stdrwc{r: r, w: w})
}

// Serve blocks until the connection closes, the client sends exit or ctx is
// cancelled
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	s.ctx = ctx
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	s.conn = jsonrpc2.NewConn(ctx, stream,
		&handler{s: s, inner: jsonrpc2.HandlerWithError(s.handle).SuppressErrClosed()},
		jsonrpc2.SetLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug)),
	)
	s.logger.Info("Language server started")

	select {
	case <-s.conn.DisconnectNotify():
	case <-ctx.Done():
		s.conn.Close()
		return ctx.Err()
	}
	s.logger.Info("Language server stopped")
	return nil
}

// stdrwc wraps stdin and stdout without closing them
type stdrwc struct {
	r io.Reader
	w io.Writer
}

func (s *stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdrwc) Close() error                { return nil }

// handler runs notifications in arrival order so document edits are applied
// before later requests, and every request on its own goroutine so that
// $/cancelRequest can reach it
type handler struct {
	s     *Server
	inner jsonrpc2.Handler
}

func (h *handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Notif {
		h.inner.Handle(ctx, conn, req)
		return
	}

	ctx, cancel := context.WithCancelCause(ctx)
	h.s.mu.Lock()
	h.s.inflight[req.ID] = cancel
	h.s.mu.Unlock()

	go func() {
		defer func() {
			h.s.mu.Lock()
			delete(h.s.inflight, req.ID)
			h.s.mu.Unlock()
			cancel(nil)
		}()
		h.inner.Handle(ctx, conn, req)
	}()
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	logger := s.logger.With("method", req.Method)
	if !req.Notif {
		logger = logger.With("id", req.ID.String())
	}
	logger.Debug("Received message")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in handler", "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = &jsonrpc2.Error{Code: codeInternalError, Message: fmt.Sprintf("internal error in %s", req.Method)}
		}
	}()

	s.mu.Lock()
	initialized, shutdown := s.initialized, s.shutdown
	s.mu.Unlock()

	switch {
	case req.Method == "exit":
		logger.Info("Exit received", "clean", shutdown)
		go conn.Close()
		return nil, nil
	case !initialized && req.Method != "initialize":
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: codeServerNotInitialized, Message: "server not initialized"}
	case shutdown && !req.Notif:
		return nil, &jsonrpc2.Error{Code: codeInvalidRequest, Message: "server is shutting down"}
	}

	switch req.Method {
	case "initialize":
		var params InitializeParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.initialize(params), nil

	case "initialized":
		return nil, nil

	case "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return nil, nil

	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.didOpen(params)
		return nil, nil

	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.didChange(params)
		return nil, nil

	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		delete(s.docs, params.TextDocument.URI)
		s.mu.Unlock()
		return nil, nil

	case "textDocument/completion":
		var params CompletionParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.completion(ctx, params)

	case "textDocument/hover":
		var params HoverParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return s.hover(ctx, params)

	case "$/cancelRequest":
		var params CancelParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		cancel, ok := s.inflight[params.ID]
		s.mu.Unlock()
		if ok {
			logger.Debug("Cancelling request", "target", params.ID.String())
			cancel(errCancelled)
		}
		return nil, nil
	}

	if req.Notif {
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: codeMethodNotFound, Message: fmt.Sprintf("method not supported: %s", req.Method)}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: codeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func (s *Server) initialize(params InitializeParams) *InitializeResult {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	client := ""
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name
	}
	s.logger.Info("Initialized", "client", client, "root", params.RootURI)

	if params.RootURI != "" {
		if root, err := URIToPath(params.RootURI); err == nil {
			go s.warm(root)
		}
	}

	return &InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{OpenClose: true, Change: TextDocumentSyncKindFull},
			CompletionProvider: &CompletionOptions{
				TriggerCharacters: []string{"'", `"`, "."},
			},
			HoverProvider: true,
		},
		ServerInfo: &ServerInfo{Name: s.cfg.Server.Name, Version: s.cfg.Server.Version},
	}
}

func (s *Server) didOpen(params DidOpenTextDocumentParams) {
	item := params.TextDocument
	path, err := URIToPath(item.URI)
	if err != nil {
		s.logger.Debug("Document has no local path", "uri", item.URI, "error", err)
	}

	s.mu.Lock()
	s.docs[item.URI] = &document{path: path, version: item.Version, content: []byte(item.Text)}
	s.mu.Unlock()

	if path != "" {
		go s.warm(path)
	}
}

func (s *Server) didChange(params DidChangeTextDocumentParams) {
	if len(params.ContentChanges) == 0 {
		return
	}
	uri := params.TextDocument.URI

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		s.logger.Warn("Change for unopened document", "uri", uri)
		return
	}
	if params.TextDocument.Version <= doc.version {
		s.logger.Warn("Ignoring stale change", "uri", uri, "version", params.TextDocument.Version, "current", doc.version)
		return
	}
	// full sync: the last change holds the whole text
	doc.content = []byte(params.ContentChanges[len(params.ContentChanges)-1].Text)
	doc.version = params.TextDocument.Version
}

// snapshot copies the document so requests never observe a later edit
func (s *Server) snapshot(uri DocumentURI) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return document{}, false
	}
	return *doc, true
}

// warm opens the project enclosing path and, when configured, loads its
// repositories in the background
func (s *Server) warm(path string) {
	if s.projects == nil {
		return
	}
	p, err := s.projects.ProjectFor(path)
	if err != nil {
		s.logger.Debug("No Laravel project", "path", path, "error", err)
		return
	}
	if !s.cfg.Repository.LoadOnStartup {
		return
	}
	if err := p.Registry.LoadAll(s.ctx); err != nil {
		s.logger.Warn("Failed to load project facts", "root", p.Info.Root, "error", err)
	}
}

// engine returns the completion engine of the project enclosing path
func (s *Server) engine(path string) (*completion.Engine, error) {
	if s.projects == nil || path == "" {
		return nil, workspace.ErrNoProject
	}
	p, err := s.projects.ProjectFor(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines[p.Info.Root]; ok {
		return e, nil
	}
	e := completion.New(completion.FromRegistry(p.Registry), completion.Options{
		Limit: s.cfg.Server.CompletionLimit,
	}, s.logger)
	s.engines[p.Info.Root] = e
	return e, nil
}

func (s *Server) completion(ctx context.Context, params CompletionParams) (*CompletionList, error) {
	uri := params.TextDocument.URI
	doc, ok := s.snapshot(uri)
	if !ok {
		return nil, &jsonrpc2.Error{Code: codeInvalidParams, Message: fmt.Sprintf("document not open: %s", uri)}
	}
	offset, err := OffsetAt(doc.content, params.Position)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}

	list := &CompletionList{Items: []CompletionItem{}}
	cc, err := s.resolver.ResolveDebounced(ctx, string(uri), string(doc.content[:offset]))
	if err != nil {
		return s.resolveFailed(list, err)
	}
	if cc == nil {
		return list, nil
	}

	engine, err := s.engine(doc.path)
	if err != nil {
		s.logger.Debug("No completion engine", "uri", uri, "error", err)
		return list, nil
	}

	typed := completion.Typed(cc)
	items := engine.Complete(ctx, cc, typed)
	if ctx.Err() != nil {
		return nil, cancelledError(ctx)
	}

	start := offset - len(typed)
	if start < 0 || string(doc.content[start:offset]) != typed {
		start, _ = wordAt(doc.content, offset)
	}
	rng := Range{Start: PositionAt(doc.content, start), End: PositionAt(doc.content, offset)}

	for _, it := range items {
		list.Items = append(list.Items, CompletionItem{
			Label:         it.Label,
			Kind:          itemKind(it.Kind),
			Detail:        it.Detail,
			Documentation: it.Documentation,
			FilterText:    it.Label,
			TextEdit:      &TextEdit{Range: rng, NewText: it.Label},
		})
	}
	limit := s.cfg.Server.CompletionLimit
	list.IsIncomplete = limit > 0 && len(items) >= limit
	return list, nil
}

func (s *Server) hover(ctx context.Context, params HoverParams) (*Hover, error) {
	doc, ok := s.snapshot(params.TextDocument.URI)
	if !ok {
		return nil, &jsonrpc2.Error{Code: codeInvalidParams, Message: fmt.Sprintf("document not open: %s", params.TextDocument.URI)}
	}
	offset, err := OffsetAt(doc.content, params.Position)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}

	start, end := wordAt(doc.content, offset)
	if start == end {
		return nil, nil
	}
	cc, err := s.resolver.Resolve(ctx, string(doc.content[:end]))
	if err != nil {
		_, err = s.resolveFailed(nil, err)
		return nil, err
	}
	if cc == nil {
		return nil, nil
	}
	engine, err := s.engine(doc.path)
	if err != nil {
		return nil, nil
	}

	item, ok := engine.Hover(ctx, cc, string(doc.content[start:end]))
	if !ok {
		return nil, nil
	}
	return &Hover{
		Contents: MarkupContent{
			Kind:  "markdown",
			Value: hoverText(item.Label, string(item.Kind), item.Detail, item.Documentation),
		},
		Range: &Range{Start: PositionAt(doc.content, start), End: PositionAt(doc.content, end)},
	}, nil
}

// resolveFailed maps a resolver error to a response. Timeouts and parser
// panics answer with nothing; cancellation answers RequestCancelled.
func (s *Server) resolveFailed(list *CompletionList, err error) (*CompletionList, error) {
	switch {
	case errors.Is(err, resolver.ErrSuperseded), errors.Is(err, errCancelled), errors.Is(err, context.Canceled):
		return nil, &jsonrpc2.Error{Code: codeRequestCancelled, Message: err.Error()}
	case errors.Is(err, resolver.ErrTimeout), errors.Is(err, resolver.ErrPanic):
		s.logger.Warn("Call context unavailable", "error", err)
		return list, nil
	}
	return nil, &jsonrpc2.Error{Code: codeInternalError, Message: err.Error()}
}

func cancelledError(ctx context.Context) error {
	return &jsonrpc2.Error{Code: codeRequestCancelled, Message: context.Cause(ctx).Error()}
}

func itemKind(k completion.ItemKind) CompletionItemKind {
	switch k {
	case completion.KindConfig:
		return CompletionItemKindProperty
	case completion.KindRoute:
		return CompletionItemKindReference
	case completion.KindRouteParam:
		return CompletionItemKindVariable
	case completion.KindView:
		return CompletionItemKindFile
	case completion.KindColumn:
		return CompletionItemKindField
	case completion.KindRelation:
		return CompletionItemKindMethod
	}
	return CompletionItemKindText
}
