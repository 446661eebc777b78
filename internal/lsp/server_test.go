package lsp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doITmagic/laravel-callctx/internal/config"
	"github.com/doITmagic/laravel-callctx/internal/laravel"
	"github.com/doITmagic/laravel-callctx/internal/resolver"
	"github.com/doITmagic/laravel-callctx/internal/workspace"
)

type testClient struct {
	conn   *jsonrpc2.Conn
	served chan error
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Resolver.Debounce = 0
	cfg.Project.Watch = false
	cfg.Repository.LoadOnStartup = false
	return cfg
}

// startServer serves over an in-memory pipe and returns a connected client
func startServer(t *testing.T, cfg *config.Config) *testClient {
	t.Helper()
	logger := quietLogger()

	projects := workspace.NewManager(cfg, laravel.NewAnalyzer(logger, nil), nil, logger)
	res := resolver.New(cfg.Resolver, logger, nil)
	t.Cleanup(func() {
		projects.Close()
		res.Close()
	})

	srv := NewServer(cfg, res, projects, logger)
	serverSide, clientSide := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := &testClient{served: make(chan error, 1)}
	go func() { c.served <- srv.Serve(ctx, serverSide) }()

	c.conn = jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
			return nil, nil
		}),
	)
	t.Cleanup(func() { c.conn.Close() })
	return c
}

func (c *testClient) initialize(t *testing.T) InitializeResult {
	t.Helper()
	var result InitializeResult
	require.NoError(t, c.conn.Call(context.Background(), "initialize", InitializeParams{
		ClientInfo: &ClientInfo{Name: "test"},
	}, &result))
	require.NoError(t, c.conn.Notify(context.Background(), "initialized", struct{}{}))
	return result
}

func (c *testClient) open(t *testing.T, path, text string) DocumentURI {
	t.Helper()
	uri := DocumentURI("file://" + filepath.ToSlash(path))
	require.NoError(t, c.conn.Notify(context.Background(), "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "php", Version: 1, Text: text},
	}))
	return uri
}

func (c *testClient) complete(t *testing.T, uri DocumentURI, pos Position) CompletionList {
	t.Helper()
	var list CompletionList
	require.NoError(t, c.conn.Call(context.Background(), "textDocument/completion", CompletionParams{
		TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: pos},
	}, &list))
	return list
}

func rpcCode(t *testing.T, err error) int64 {
	t.Helper()
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr), "expected a JSON-RPC error, got %v", err)
	return rpcErr.Code
}

// laravelProject writes a minimal Laravel project and returns its root
func laravelProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"artisan":                           "",
		"config/app.php":                    "<?php\nreturn ['name' => 'Shop', 'debug' => false];\n",
		"resources/views/welcome.blade.php": "<h1>hi</h1>\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func labelsOf(list CompletionList) []string {
	var out []string
	for _, it := range list.Items {
		out = append(out, it.Label)
	}
	return out
}

func TestServer_Initialize(t *testing.T) {
	c := startServer(t, testConfig())
	result := c.initialize(t)

	require.NotNil(t, result.Capabilities.TextDocumentSync)
	assert.Equal(t, TextDocumentSyncKindFull, result.Capabilities.TextDocumentSync.Change)
	assert.True(t, result.Capabilities.HoverProvider)
	require.NotNil(t, result.Capabilities.CompletionProvider)
	assert.Contains(t, result.Capabilities.CompletionProvider.TriggerCharacters, "'")
	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "laravel-callctx", result.ServerInfo.Name)
}

func TestServer_RequiresInitialize(t *testing.T) {
	c := startServer(t, testConfig())
	err := c.conn.Call(context.Background(), "textDocument/completion", CompletionParams{}, nil)
	assert.Equal(t, codeServerNotInitialized, rpcCode(t, err))
}

func TestServer_Completion(t *testing.T) {
	root := laravelProject(t)
	c := startServer(t, testConfig())
	c.initialize(t)

	uri := c.open(t, filepath.Join(root, "app", "Http", "Controllers", "HomeController.php"),
		"<?php\nreturn config('app.")
	list := c.complete(t, uri, Position{Line: 1, Character: 19})

	assert.Equal(t, []string{"app.debug", "app.name"}, labelsOf(list))
	item := list.Items[1]
	assert.Equal(t, CompletionItemKindProperty, item.Kind)
	assert.Equal(t, "Shop", item.Detail)
	require.NotNil(t, item.TextEdit)
	assert.Equal(t, Range{Start: Position{1, 15}, End: Position{1, 19}}, item.TextEdit.Range)
	assert.Equal(t, "app.name", item.TextEdit.NewText)
}

func TestServer_CompletionFollowsChanges(t *testing.T) {
	root := laravelProject(t)
	c := startServer(t, testConfig())
	c.initialize(t)

	uri := c.open(t, filepath.Join(root, "routes", "web.php"), "<?php\n")
	assert.Empty(t, c.complete(t, uri, Position{Line: 1}).Items)

	require.NoError(t, c.conn.Notify(context.Background(), "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{TextDocumentIdentifier{URI: uri}, 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: "<?php\nRoute::view('/', 'w"}},
	}))
	list := c.complete(t, uri, Position{Line: 1, Character: 19})
	assert.Equal(t, []string{"welcome"}, labelsOf(list))
	assert.Equal(t, CompletionItemKindFile, list.Items[0].Kind)

	// a stale version is ignored
	require.NoError(t, c.conn.Notify(context.Background(), "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{TextDocumentIdentifier{URI: uri}, 1},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: "<?php\n"}},
	}))
	assert.Equal(t, []string{"welcome"}, labelsOf(c.complete(t, uri, Position{Line: 1, Character: 19})))
}

func TestServer_CompletionOutsideProject(t *testing.T) {
	c := startServer(t, testConfig())
	c.initialize(t)

	dir := t.TempDir()
	uri := c.open(t, filepath.Join(dir, "script.php"), "<?php\nconfig('")
	assert.Empty(t, c.complete(t, uri, Position{Line: 1, Character: 8}).Items)
}

func TestServer_CompletionUnknownDocument(t *testing.T) {
	c := startServer(t, testConfig())
	c.initialize(t)

	err := c.conn.Call(context.Background(), "textDocument/completion", CompletionParams{
		TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: "file:///nowhere.php"}},
	}, nil)
	assert.Equal(t, codeInvalidParams, rpcCode(t, err))
}

func TestServer_Hover(t *testing.T) {
	root := laravelProject(t)
	c := startServer(t, testConfig())
	c.initialize(t)

	uri := c.open(t, filepath.Join(root, "routes", "web.php"), "<?php\n$name = config('app.name');\n")

	var hover *Hover
	require.NoError(t, c.conn.Call(context.Background(), "textDocument/hover", HoverParams{
		TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: Position{Line: 1, Character: 20}},
	}, &hover))
	require.NotNil(t, hover)
	assert.Equal(t, "markdown", hover.Contents.Kind)
	assert.Contains(t, hover.Contents.Value, "**app.name**")
	assert.Contains(t, hover.Contents.Value, "`Shop`")
	require.NotNil(t, hover.Range)
	assert.Equal(t, Range{Start: Position{1, 16}, End: Position{1, 24}}, *hover.Range)

	// nothing to describe outside a string argument
	hover = nil
	require.NoError(t, c.conn.Call(context.Background(), "textDocument/hover", HoverParams{
		TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: Position{Line: 1, Character: 2}},
	}, &hover))
	assert.Nil(t, hover)
}

func TestServer_CancelRequest(t *testing.T) {
	root := laravelProject(t)
	cfg := testConfig()
	cfg.Resolver.Debounce = time.Minute
	c := startServer(t, cfg)
	c.initialize(t)

	uri := c.open(t, filepath.Join(root, "routes", "web.php"), "<?php\nconfig('")
	id := jsonrpc2.ID{Num: 4242}
	call, err := c.conn.DispatchCall(context.Background(), "textDocument/completion", CompletionParams{
		TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: Position{Line: 1, Character: 8}},
	}, jsonrpc2.PickID(id))
	require.NoError(t, err)
	require.NoError(t, c.conn.Notify(context.Background(), "$/cancelRequest", CancelParams{ID: id}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = call.Wait(ctx, nil)
	assert.Equal(t, codeRequestCancelled, rpcCode(t, err))
}

func TestServer_UnknownMethod(t *testing.T) {
	c := startServer(t, testConfig())
	c.initialize(t)

	err := c.conn.Call(context.Background(), "textDocument/definition", struct{}{}, nil)
	assert.Equal(t, codeMethodNotFound, rpcCode(t, err))

	// unknown notifications are ignored
	require.NoError(t, c.conn.Notify(context.Background(), "$/setTrace", struct{}{}))
}

func TestServer_ShutdownAndExit(t *testing.T) {
	c := startServer(t, testConfig())
	c.initialize(t)

	require.NoError(t, c.conn.Call(context.Background(), "shutdown", nil, nil))
	err := c.conn.Call(context.Background(), "textDocument/hover", HoverParams{}, nil)
	assert.Equal(t, codeInvalidRequest, rpcCode(t, err))

	require.NoError(t, c.conn.Notify(context.Background(), "exit", nil))
	select {
	case err := <-c.served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after exit")
	}
}
