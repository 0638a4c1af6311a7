package session

import (
	"context"

	"McpAgent/internal/models"
)

// Dialer 按配置创建并连接会话
type Dialer struct{}

// NewDialer 创建 Dialer
func NewDialer() *Dialer {
	return &Dialer{}
}

// Connect 创建会话并完成握手；失败时会话已被关闭
func (d *Dialer) Connect(ctx context.Context, config models.ServerConfig) (Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := New(config)
	if err := s.Connect(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
