package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"McpAgent/internal/config"
	"McpAgent/internal/logger"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaGateway 基于 Ollama /api/chat 接口的网关
type OllamaGateway struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

type ollamaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  map[string]any  `json:"parameters,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

type ollamaToolCall struct {
	ID       string         `json:"id,omitempty"`
	Function ollamaFunction `json:"function"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolName  string           `json:"tool_name,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
	Error      string        `json:"error,omitempty"`
}

// NewOllamaGateway 创建 Ollama 网关
func NewOllamaGateway(cfg config.LLMConfig) *OllamaGateway {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaGateway{
		baseURL:    baseURL,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name 网关名称
func (g *OllamaGateway) Name() string {
	return "ollama"
}

// Complete 发送对话和工具目录，返回文本或工具调用
func (g *OllamaGateway) Complete(ctx context.Context, transcript []models.ConversationTurn, tools []models.ToolDescriptor) (*Response, error) {
	reqBody := ollamaChatRequest{
		Model:    g.model,
		Messages: toOllamaMessages(transcript),
		Stream:   false,
	}
	if g.maxTokens > 0 {
		reqBody.Options = map[string]any{"num_predict": g.maxTokens}
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("Sending %d messages and %d tools to ollama model %s", len(transcript), len(tools), g.model)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Newf("unexpected status code: %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "failed to decode response")
	}
	if out.Error != "" {
		return nil, errors.Newf("ollama error: %s", out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status code: %d", resp.StatusCode)
	}

	result := &Response{
		Content:      out.Message.Content,
		FinishReason: out.DoneReason,
	}
	for _, tc := range out.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = NewToolCallID()
		}
		result.ToolCalls = append(result.ToolCalls, models.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: compactJSON(tc.Function.Arguments),
		})
	}
	return result, nil
}

func toOllamaMessages(transcript []models.ConversationTurn) []ollamaMessage {
	messages := make([]ollamaMessage, 0, len(transcript))
	for _, turn := range transcript {
		msg := ollamaMessage{Role: string(turn.Role), Content: turn.Content}
		if turn.Role == models.RoleTool {
			msg.ToolName = turn.ToolName
		}
		for _, tc := range turn.ToolCalls {
			args := json.RawMessage(tc.Arguments)
			if !json.Valid(args) {
				args = json.RawMessage("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, ollamaToolCall{
				ID:       tc.ID,
				Function: ollamaFunction{Name: tc.Name, Arguments: args},
			})
		}
		messages = append(messages, msg)
	}
	return messages
}
