package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"McpAgent/internal/config"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Response 一次补全的结果，ToolCalls 为空表示最终回答
type Response struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
}

// Gateway 语言模型网关
type Gateway interface {
	Name() string
	Complete(ctx context.Context, transcript []models.ConversationTurn, tools []models.ToolDescriptor) (*Response, error)
}

// NewGateway 根据配置创建网关
func NewGateway(cfg config.LLMConfig) (Gateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIGateway(cfg)
	case "ollama":
		return NewOllamaGateway(cfg), nil
	default:
		return nil, errors.Mark(errors.Newf("unsupported llm provider: %s", cfg.Provider), models.ErrInvalidConfig)
	}
}

// ParseArguments 将工具调用参数解析为 JSON 对象，空字符串视为空对象
func ParseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid tool arguments"), models.ErrArgumentParse)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Mark(errors.New("invalid tool arguments: trailing data"), models.ErrArgumentParse)
	}

	args, ok := value.(map[string]any)
	if !ok {
		return nil, errors.Mark(errors.Newf("tool arguments must be a JSON object, got %s", jsonKind(value)), models.ErrArgumentParse)
	}
	return args, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return "value"
	}
}

// NewToolCallID 为没有 id 的工具调用生成 id
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// compactJSON 将参数对象编码为紧凑的 JSON 文本，已编码为字符串的参数原样返回
func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
