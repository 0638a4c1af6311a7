package models

import (
	"time"

	"github.com/cockroachdb/errors"
)

// 适配器类型，对应 mcp_service.adapter
const (
	AdapterStdio = "stdio"
	AdapterSSE   = "sse"
)

// MCPService 表示 mcp_service 表的数据模型
type MCPService struct {
	ServerID    string    `json:"server_id" db:"server_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Enabled     bool      `json:"enabled" db:"enabled"`
	Adapter     string    `json:"adapter" db:"adapter"`
	Metadata    JSONB     `json:"metadata" db:"metadata"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ServiceRecord 一个服务器配置在数据库中的完整表示
type ServiceRecord struct {
	Service MCPService       `json:"service"`
	Stdio   *MCPServiceStdio `json:"stdio,omitempty"`
	SSE     *MCPServiceSSE   `json:"sse,omitempty"`
}

// NewServiceRecord 将服务器配置拆分为表记录
func NewServiceRecord(cfg ServerConfig) ServiceRecord {
	rec := ServiceRecord{
		Service: MCPService{
			ServerID:    cfg.Name,
			DisplayName: cfg.Name,
			Enabled:     true,
		},
	}

	switch cfg.Kind() {
	case TransportSSE:
		rec.Service.Adapter = AdapterSSE
		rec.SSE = &MCPServiceSSE{
			ServerID:  cfg.Name,
			BaseURL:   cfg.URL,
			Headers:   JSONBFromStrings(cfg.Headers),
			TimeoutMs: int(cfg.StartupTimeout / time.Millisecond),
		}
	default:
		rec.Service.Adapter = AdapterStdio
		var workdir *string
		if cfg.Workdir != "" {
			wd := cfg.Workdir
			workdir = &wd
		}
		rec.Stdio = &MCPServiceStdio{
			ServerID:         cfg.Name,
			Command:          cfg.Command,
			Args:             append([]string(nil), cfg.Args...),
			Workdir:          workdir,
			Env:              JSONBFromStrings(cfg.Env),
			StartupTimeoutMs: int(cfg.StartupTimeout / time.Millisecond),
		}
	}
	return rec
}

// ServerConfig 将表记录还原为服务器配置
func (r ServiceRecord) ServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{Name: r.Service.ServerID}

	switch r.Service.Adapter {
	case AdapterStdio:
		if r.Stdio == nil {
			return cfg, errors.Mark(errors.Newf("stdio config for server %s not found", cfg.Name), ErrInvalidConfig)
		}
		cfg.Transport = TransportStdio
		cfg.Command = r.Stdio.Command
		cfg.Args = append([]string(nil), r.Stdio.Args...)
		if r.Stdio.Workdir != nil {
			cfg.Workdir = *r.Stdio.Workdir
		}
		cfg.Env = r.Stdio.Env.StringMap()
		cfg.StartupTimeout = time.Duration(r.Stdio.StartupTimeoutMs) * time.Millisecond
	case AdapterSSE:
		if r.SSE == nil {
			return cfg, errors.Mark(errors.Newf("sse config for server %s not found", cfg.Name), ErrInvalidConfig)
		}
		cfg.Transport = TransportSSE
		cfg.URL = r.SSE.BaseURL
		cfg.Headers = r.SSE.Headers.StringMap()
		cfg.StartupTimeout = time.Duration(r.SSE.TimeoutMs) * time.Millisecond
	default:
		return cfg, errors.Mark(errors.Newf("server %s: unsupported adapter %q", cfg.Name, r.Service.Adapter), ErrInvalidConfig)
	}

	return cfg, cfg.Validate()
}
