package llm

import (
	"encoding/json"
	"testing"

	"McpAgent/internal/config"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]any{}},
		{name: "whitespace", raw: "  \n", want: map[string]any{}},
		{name: "object", raw: `{"a": 2, "b": 3}`, want: map[string]any{"a": json.Number("2"), "b": json.Number("3")}},
		{name: "nested", raw: `{"q":{"x":[1,"y"]}}`, want: map[string]any{"q": map[string]any{"x": []any{json.Number("1"), "y"}}}},
		{name: "empty object", raw: `{}`, want: map[string]any{}},
		{name: "invalid", raw: `{"a":`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "string", raw: `"hello"`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "trailing data", raw: `{"a":1} {"b":2}`, wantErr: true},
		{name: "not json", raw: `a=1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArguments(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrArgumentParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewGateway(t *testing.T) {
	g, err := NewGateway(config.LLMConfig{Provider: "ollama", Model: "llama3.1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", g.Name())

	g, err = NewGateway(config.LLMConfig{Provider: "OpenAI", Model: "gpt-4o", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", g.Name())

	_, err = NewGateway(config.LLMConfig{Provider: "openai"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))

	_, err = NewGateway(config.LLMConfig{Provider: "bard"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}

func TestNewToolCallID(t *testing.T) {
	a, b := NewToolCallID(), NewToolCallID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^call_[0-9a-f-]{36}$`, a)
}

func TestCompactJSON(t *testing.T) {
	assert.Equal(t, "", compactJSON(nil))
	assert.Equal(t, `{"a":1}`, compactJSON(json.RawMessage(`{ "a" : 1 }`)))
	assert.Equal(t, `{"a":1}`, compactJSON(json.RawMessage(`"{\"a\":1}"`)))
}
