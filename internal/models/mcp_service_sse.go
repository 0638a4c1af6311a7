package models

// MCPServiceSSE 表示 mcp_service_sse 表的数据模型
type MCPServiceSSE struct {
	ServerID  string `json:"server_id" db:"server_id"`
	BaseURL   string `json:"base_url" db:"base_url"`
	Headers   JSONB  `json:"headers" db:"headers"`
	TimeoutMs int    `json:"timeout_ms" db:"timeout_ms"`
}
