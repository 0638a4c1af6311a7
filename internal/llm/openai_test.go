package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"McpAgent/internal/config"
	"McpAgent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGatewayComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"logprobs": null,
				"message": {
					"role": "assistant",
					"content": null,
					"refusal": null,
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "add_numbers", "arguments": "{\"a\":2,\"b\":3}"}
					}]
				}
			}]
		}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o", MaxTokens: 100})
	require.NoError(t, err)

	transcript := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "what is 2 + 3"},
	}
	tools := []models.ToolDescriptor{{
		Name:        "add_numbers",
		Description: "Add two numbers together",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "number"}}},
	}}

	resp, err := g.Complete(context.Background(), transcript, tools)
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, models.ToolCall{ID: "call_abc", Name: "add_numbers", Arguments: `{"a":2,"b":3}`}, resp.ToolCalls[0])

	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 100, body["max_completion_tokens"])
	toolsSent, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, toolsSent, 1)
	fn := toolsSent[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "add_numbers", fn["name"])
}

func TestToOpenAIMessages(t *testing.T) {
	messages := toOpenAIMessages([]models.ConversationTurn{
		{Role: models.RoleUser, Content: "add"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_1", Name: "add_numbers", Arguments: `{"a":1}`}}},
		{Role: models.RoleTool, Content: "Result: 1", ToolCallID: "call_1", ToolName: "add_numbers"},
		{Role: models.RoleAssistant, Content: "The answer is 1"},
	})
	require.Len(t, messages, 4)

	raw, err := json.Marshal(messages)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "user", decoded[0]["role"])
	assert.Equal(t, "assistant", decoded[1]["role"])
	calls := decoded[1]["tool_calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].(map[string]any)["id"])
	assert.Equal(t, "tool", decoded[2]["role"])
	assert.Equal(t, "call_1", decoded[2]["tool_call_id"])
	assert.Equal(t, "The answer is 1", decoded[3]["content"])
}
