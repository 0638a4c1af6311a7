package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"McpAgent/internal/config"
	"McpAgent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGatewayToolCalls(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"add_numbers","arguments":{"a":2,"b":3}}}]},"done":true,"done_reason":"stop"}`))
	}))
	defer srv.Close()

	g := NewOllamaGateway(config.LLMConfig{BaseURL: srv.URL + "/", Model: "llama3.1", MaxTokens: 256, Timeout: 5 * time.Second})
	transcript := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "add 2 and 3"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_1", Name: "echo", Arguments: `{"message":"x"}`}}},
		{Role: models.RoleTool, Content: "Echo: x", ToolCallID: "call_1", ToolName: "echo"},
	}
	tools := []models.ToolDescriptor{{
		Name:        "add_numbers",
		Description: "Add two numbers together",
		InputSchema: map[string]any{"type": "object"},
	}}

	resp, err := g.Complete(context.Background(), transcript, tools)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "add_numbers", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"a":2,"b":3}`, resp.ToolCalls[0].Arguments)
	assert.Contains(t, resp.ToolCalls[0].ID, "call_")
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, "llama3.1", got.Model)
	assert.False(t, got.Stream)
	assert.EqualValues(t, 256, got.Options["num_predict"])
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "add_numbers", got.Tools[0].Function.Name)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "echo", got.Messages[1].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"message":"x"}`, string(got.Messages[1].ToolCalls[0].Function.Arguments))
	assert.Equal(t, "tool", got.Messages[2].Role)
	assert.Equal(t, "echo", got.Messages[2].ToolName)
}

func TestOllamaGatewayText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Hello there"},"done":true}`))
	}))
	defer srv.Close()

	g := NewOllamaGateway(config.LLMConfig{BaseURL: srv.URL, Model: "llama3.1"})
	resp, err := g.Complete(context.Background(), []models.ConversationTurn{{Role: models.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestOllamaGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer srv.Close()

	g := NewOllamaGateway(config.LLMConfig{BaseURL: srv.URL, Model: "nope"})
	_, err := g.Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	g = NewOllamaGateway(config.LLMConfig{BaseURL: broken.URL, Model: "x"})
	_, err = g.Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 502")
}
