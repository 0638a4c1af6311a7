package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"McpAgent/internal/handlers"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInMemorySession(t *testing.T) *MCPSession {
	t.Helper()
	ctx := context.Background()

	server := handlers.NewToolHandlerRegistry(nil).NewServer("test-toolserver", "1.0.0")
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	return NewWithTransport(models.ServerConfig{Name: "math"}, clientTransport)
}

func toolNames(tools []models.ToolDescriptor) []string {
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	return names
}

func findTool(t *testing.T, tools []models.ToolDescriptor, name string) models.ToolDescriptor {
	t.Helper()
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	require.Failf(t, "tool not listed", "%s not in %v", name, toolNames(tools))
	return models.ToolDescriptor{}
}

func TestMCPSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newInMemorySession(t)
	assert.Equal(t, "math", s.Name())

	_, err := s.ListTools(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotConnected))

	_, err = s.CallTool(ctx, "echo", nil)
	assert.True(t, errors.Is(err, models.ErrNotConnected))

	require.NoError(t, s.Connect(ctx))
	// second connect is a no-op
	require.NoError(t, s.Connect(ctx))

	tools, err := s.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	// the server lists tools sorted by name
	assert.Equal(t, []string{"add_numbers", "echo"}, toolNames(tools))
	add := findTool(t, tools, "add_numbers")
	assert.Equal(t, "Add two numbers together", add.Description)
	assert.Equal(t, "object", add.InputSchema["type"])
	props, ok := add.InputSchema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")

	res, err := s.CallTool(ctx, "add_numbers", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, "Result: 5", res.Content)
	assert.False(t, res.IsError)

	res, err = s.CallTool(ctx, "echo", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Echo: hello", res.Content)

	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.CallTool(ctx, "echo", nil)
	assert.True(t, errors.Is(err, models.ErrNotConnected))
	assert.True(t, errors.Is(s.Ping(ctx), models.ErrNotConnected))

	err = s.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotConnected))
}

func TestMCPSessionUnknownTool(t *testing.T) {
	ctx := context.Background()
	s := newInMemorySession(t)
	require.NoError(t, s.Connect(ctx))
	defer s.Close()

	_, err := s.CallTool(ctx, "does_not_exist", map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrProtocol))
}

func TestCloseBeforeConnect(t *testing.T) {
	s := New(models.ServerConfig{Name: "idle", Command: "true"})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestDialerValidation(t *testing.T) {
	ctx := context.Background()
	d := NewDialer()

	_, err := d.Connect(ctx, models.ServerConfig{Name: "empty"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))

	_, err = d.Connect(ctx, models.ServerConfig{Name: "bad", Transport: "carrier-pigeon", Command: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}

func TestDialerConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewDialer().Connect(ctx, models.ServerConfig{
		Name:    "missing",
		Command: "/nonexistent/mcp-server-binary",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConnection))
}

func TestContentText(t *testing.T) {
	assert.Equal(t, "", ContentText(nil))
	assert.Equal(t, "a\nb", ContentText([]mcp.Content{
		&mcp.TextContent{Text: "a"},
		&mcp.TextContent{Text: "b"},
	}))
}

func TestHeaderRoundTripper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerRoundTripper{
		base:    http.DefaultTransport,
		headers: map[string]string{"X-API-Key": "secret"},
	}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDialerSSE(t *testing.T) {
	server := handlers.NewToolHandlerRegistry(nil).NewServer("sse-toolserver", "1.0.0")
	srv := httptest.NewServer(mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server }))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewDialer().Connect(ctx, models.ServerConfig{
		Name:      "remote",
		Transport: models.TransportSSE,
		URL:       srv.URL,
		Headers:   map[string]string{"X-API-Key": "secret"},
	})
	require.NoError(t, err)
	defer s.Close()

	res, err := s.CallTool(ctx, "add_numbers", map[string]any{"a": 4, "b": 5})
	require.NoError(t, err)
	assert.Equal(t, "Result: 9", res.Content)
}
