package models

import "time"

// ServerInfo 服务器列表中的一项
type ServerInfo struct {
	Config    ServerConfig `json:"config"`
	Status    ServerStatus `json:"status"`
	Connected bool         `json:"connected"`
	ToolCount int          `json:"tool_count"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ConnectResult 单个服务器的连接结果
type ConnectResult struct {
	Server    string   `json:"server"`
	Success   bool     `json:"success"`
	ToolCount int      `json:"tool_count"`
	Shadowed  []string `json:"shadowed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ConnectAllResult connectAll 的汇总结果
type ConnectAllResult struct {
	Results          []ConnectResult `json:"results"`
	ConnectedServers []string        `json:"servers"`
	TotalTools       int             `json:"total_tools"`
}

// Failed 返回连接失败的服务器名
func (r *ConnectAllResult) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res.Server)
		}
	}
	return out
}

// StatusReport 引擎状态
type StatusReport struct {
	Connected        bool     `json:"connected"`
	ConnectedServers []string `json:"connected_servers"`
	TotalServers     int      `json:"total_servers"`
	ToolCount        int      `json:"tools_count"`
}
