package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// TransportKind 工具服务器的传输方式
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
)

// ServerStatus 工具服务器的连接状态
type ServerStatus string

const (
	StatusDisconnected ServerStatus = "disconnected"
	StatusConnecting   ServerStatus = "connecting"
	StatusConnected    ServerStatus = "connected"
	StatusFailed       ServerStatus = "failed"
)

// ServerConfig 用户注册的工具服务器配置
type ServerConfig struct {
	Name           string            `json:"name" yaml:"name"`
	Transport      TransportKind     `json:"transport,omitempty" yaml:"transport"`
	Command        string            `json:"command" yaml:"command"`
	Args           []string          `json:"args" yaml:"args"`
	Env            map[string]string `json:"env,omitempty" yaml:"env"`
	Workdir        string            `json:"workdir,omitempty" yaml:"workdir"`
	URL            string            `json:"url,omitempty" yaml:"url"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers"`
	StartupTimeout time.Duration     `json:"startup_timeout,omitempty" yaml:"startup_timeout"`
}

// Kind 返回传输方式，未设置时默认为 stdio
func (c ServerConfig) Kind() TransportKind {
	if c.Transport == "" {
		return TransportStdio
	}
	return c.Transport
}

// Validate 校验配置是否完整
func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.Mark(errors.New("server name is required"), ErrInvalidConfig)
	}
	switch c.Kind() {
	case TransportStdio:
		if strings.TrimSpace(c.Command) == "" {
			return errors.Mark(errors.Newf("server %s: command is required", c.Name), ErrInvalidConfig)
		}
	case TransportSSE:
		if strings.TrimSpace(c.URL) == "" {
			return errors.Mark(errors.Newf("server %s: url is required", c.Name), ErrInvalidConfig)
		}
	default:
		return errors.Mark(errors.Newf("server %s: unsupported transport %q", c.Name, c.Transport), ErrInvalidConfig)
	}
	return nil
}

// Clone 深拷贝配置，注册表中保存的配置不与调用方共享切片和映射
func (c ServerConfig) Clone() ServerConfig {
	out := c
	out.Args = append([]string(nil), c.Args...)
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// ToolDescriptor 工具描述，OwnerServer 仅在聚合视图中填写
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	OwnerServer string         `json:"server,omitempty"`
}

// ToolResult 一次工具调用的结果
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"isError"`
}

// JSONB 类型用于处理 PostgreSQL 的 JSONB 字段
type JSONB map[string]any

// Value 实现 driver.Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSONB) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.Newf("unsupported JSONB source type %T", value)
	}

	return json.Unmarshal(bytes, j)
}

// StringMap 将 JSONB 中的字符串值转换为 map[string]string
func (j JSONB) StringMap() map[string]string {
	if len(j) == 0 {
		return nil
	}
	out := make(map[string]string, len(j))
	for k, v := range j {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// JSONBFromStrings 将 map[string]string 转换为 JSONB
func JSONBFromStrings(m map[string]string) JSONB {
	if len(m) == 0 {
		return nil
	}
	out := make(JSONB, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
