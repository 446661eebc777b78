package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doITmagic/laravel-callctx/internal/config"
	"github.com/doITmagic/laravel-callctx/internal/laravel"
	"github.com/doITmagic/laravel-callctx/internal/workspace"
)

func newTestServer(t *testing.T, withProjects bool) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()
	cfg.Project.Watch = false

	var projects *workspace.Manager
	if withProjects {
		projects = workspace.NewManager(cfg, laravel.NewAnalyzer(logger, nil), nil, logger)
		t.Cleanup(projects.Close)
	}
	return New(cfg, nil, projects, logger)
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callTool[T any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool returned an error: %v", res.Content)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var out T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func toolError(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_ListTools(t *testing.T) {
	cs := connect(t, newTestServer(t, true))
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolResolveCallContext, ToolCompleteAtCursor}, names)
}

func TestServer_WithoutProjectsOnlyResolves(t *testing.T) {
	cs := connect(t, newTestServer(t, false))
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, ToolResolveCallContext, res.Tools[0].Name)
}

func TestResolveCallContext(t *testing.T) {
	cs := connect(t, newTestServer(t, false))

	out := callTool[ResolveOutput](t, cs, ToolResolveCallContext, map[string]any{
		"source": "<?php\nUser::where('name', '",
	})
	require.True(t, out.Found)
	assert.Equal(t, "static", out.Context["kind"])
	assert.Equal(t, "User", out.Context["class"])
	assert.Equal(t, "where", out.Context["function"])
	assert.Equal(t, float64(1), out.Context["paramIndex"])

	out = callTool[ResolveOutput](t, cs, ToolResolveCallContext, map[string]any{
		"source": "<?php config('app.name', 'x');",
		"offset": 20,
	})
	require.True(t, out.Found)
	assert.Equal(t, "config", out.Context["function"])
	assert.Equal(t, float64(0), out.Context["paramIndex"])

	out = callTool[ResolveOutput](t, cs, ToolResolveCallContext, map[string]any{
		"source": "<?php echo 1;",
	})
	assert.False(t, out.Found)
	assert.Nil(t, out.Context)
}

func TestResolveCallContext_BadOffset(t *testing.T) {
	cs := connect(t, newTestServer(t, false))
	msg := toolError(t, cs, ToolResolveCallContext, map[string]any{"source": "foo(", "offset": 99})
	assert.Contains(t, msg, "outside source")
}

func TestCompleteAtCursor(t *testing.T) {
	root := t.TempDir()
	for rel, content := range map[string]string{
		"artisan":        "",
		"config/app.php": "<?php\nreturn ['name' => 'Shop', 'debug' => false];\n",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cs := connect(t, newTestServer(t, true))
	out := callTool[CompleteOutput](t, cs, ToolCompleteAtCursor, map[string]any{
		"project": root,
		"source":  "<?php\n$name = config('app.",
	})
	assert.Equal(t, root, out.Root)
	assert.Equal(t, "config", out.Provider)
	assert.Equal(t, "app.", out.Typed)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "app.debug", out.Items[0].Label)
	assert.Equal(t, "app.name", out.Items[1].Label)
	assert.Equal(t, "Shop", out.Items[1].Detail)

	out = callTool[CompleteOutput](t, cs, ToolCompleteAtCursor, map[string]any{
		"project": root,
		"source":  "<?php\n$name = config('app.",
		"limit":   1,
	})
	assert.Len(t, out.Items, 1)

	out = callTool[CompleteOutput](t, cs, ToolCompleteAtCursor, map[string]any{
		"project": root,
		"source":  "<?php\n$x = 1;",
	})
	assert.Empty(t, out.Items)
	assert.Empty(t, out.Provider)
}

func TestCompleteAtCursor_NoProject(t *testing.T) {
	cs := connect(t, newTestServer(t, true))
	msg := toolError(t, cs, ToolCompleteAtCursor, map[string]any{
		"project": t.TempDir(),
		"source":  "config('",
	})
	assert.Contains(t, msg, "no laravel project")
}
