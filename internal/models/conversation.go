package models

import "time"

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall LLM 请求的一次工具调用，Arguments 为原始 JSON 文本
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ConversationTurn 一轮对话
type ConversationTurn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolInvocationRecord 工具调用记录，只写不读
type ToolInvocationRecord struct {
	ToolName      string         `json:"name"`
	Arguments     map[string]any `json:"arguments"`
	Server        string         `json:"server"`
	ResultSummary string         `json:"result"`
	IsError       bool           `json:"is_error,omitempty"`
	Duration      time.Duration  `json:"duration"`
	// Err IsError 为 true 时带 ErrToolExecution 标记
	Err error `json:"-"`
}

// QueryResult 一次查询的最终结果
type QueryResult struct {
	Content         string                 `json:"content"`
	ToolInvocations []ToolInvocationRecord `json:"tool_executions"`
	Transcript      []ConversationTurn     `json:"-"`
	Iterations      int                    `json:"iterations"`
}

// ChatMessage 聊天历史中的一条消息
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// LogType 活动日志类型
type LogType string

const (
	LogSystem    LogType = "system"
	LogUser      LogType = "user"
	LogLLM       LogType = "llm"
	LogMCPClient LogType = "mcp_client"
	LogMCPServer LogType = "mcp_server"
	LogError     LogType = "error"
)

// LogEntry 活动日志条目
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      LogType   `json:"type"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}
