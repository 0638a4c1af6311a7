// Package sessiontest 提供用于测试的内存会话和连接器
package sessiontest

import (
	"context"
	"sync"

	"McpAgent/internal/models"
	"McpAgent/internal/session"

	"github.com/cockroachdb/errors"
)

// CallFunc 工具调用的处理函数
type CallFunc func(ctx context.Context, name string, args map[string]any) (*models.ToolResult, error)

// Call 一次被记录的工具调用
type Call struct {
	Name string
	Args map[string]any
}

// FakeSession 内存会话
type FakeSession struct {
	ServerName string
	Tools      []models.ToolDescriptor
	Handler    CallFunc
	ListErr    error

	mu      sync.Mutex
	pingErr error
	calls   []Call
	closed  int
	open    bool
}

var _ session.Session = (*FakeSession)(nil)

// NewFakeSession 创建带指定工具的会话，工具只有名称和空 schema
func NewFakeSession(name string, toolNames ...string) *FakeSession {
	s := &FakeSession{ServerName: name, open: true}
	for _, tn := range toolNames {
		s.Tools = append(s.Tools, models.ToolDescriptor{
			Name:        tn,
			Description: tn + " tool",
			InputSchema: map[string]any{"type": "object"},
		})
	}
	return s
}

func (s *FakeSession) Name() string { return s.ServerName }

func (s *FakeSession) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return append([]models.ToolDescriptor(nil), s.Tools...), nil
}

func (s *FakeSession) CallTool(ctx context.Context, name string, args map[string]any) (*models.ToolResult, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, errors.Mark(errors.Newf("session %s closed", s.ServerName), models.ErrNotConnected)
	}
	s.calls = append(s.calls, Call{Name: name, Args: args})
	s.mu.Unlock()

	if s.Handler == nil {
		return &models.ToolResult{Content: name + " ok"}, nil
	}
	return s.Handler(ctx, name, args)
}

// SetPingError 设置 Ping 的返回值
func (s *FakeSession) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *FakeSession) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *FakeSession) reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
}

// Open 会话当前是否可用
func (s *FakeSession) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	s.open = false
	return nil
}

// Calls 返回已记录的调用
func (s *FakeSession) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Closed 返回 Close 被调用的次数
func (s *FakeSession) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeConnector 按服务器名返回预置会话
type FakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*FakeSession
	failures map[string]error
	hangs    map[string]bool
	dials    map[string]int
}

// NewFakeConnector 创建连接器
func NewFakeConnector(sessions ...*FakeSession) *FakeConnector {
	c := &FakeConnector{
		sessions: make(map[string]*FakeSession),
		failures: make(map[string]error),
		hangs:    make(map[string]bool),
		dials:    make(map[string]int),
	}
	for _, s := range sessions {
		c.sessions[s.ServerName] = s
	}
	return c
}

// Add 添加或替换会话
func (c *FakeConnector) Add(s *FakeSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ServerName] = s
}

// Fail 使指定服务器的连接失败
func (c *FakeConnector) Fail(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[name] = err
}

// Hang 使指定服务器的握手一直阻塞到 ctx 结束
func (c *FakeConnector) Hang(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hangs[name] = true
}

// Dials 返回连接次数
func (c *FakeConnector) Dials(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials[name]
}

func (c *FakeConnector) Connect(ctx context.Context, config models.ServerConfig) (session.Session, error) {
	c.mu.Lock()
	c.dials[config.Name]++
	hang := c.hangs[config.Name]
	c.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, errors.Mark(errors.Wrapf(ctx.Err(), "handshake with %s", config.Name), models.ErrConnection)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := c.failures[config.Name]; ok {
		return nil, errors.Mark(err, models.ErrConnection)
	}
	s, ok := c.sessions[config.Name]
	if !ok {
		return nil, errors.Mark(errors.Newf("no fake session for %s", config.Name), models.ErrConnection)
	}
	s.reopen()
	return s, nil
}
