package manager

import (
	"context"

	"McpAgent/internal/models"
	"McpAgent/internal/session"
)

// Connector 按配置建立工具服务器会话
type Connector interface {
	Connect(ctx context.Context, config models.ServerConfig) (session.Session, error)
}

// ConfigStore 服务器配置的持久化接口
type ConfigStore interface {
	LoadServerConfigs(ctx context.Context) ([]models.ServerConfig, error)
	SaveServerConfig(ctx context.Context, config models.ServerConfig) error
	DeleteServerConfig(ctx context.Context, name string) error
}

// ToolRouter 调度循环所需的注册表视图
type ToolRouter interface {
	Catalog() *Catalog
	Session(name string) (session.Session, error)
}
