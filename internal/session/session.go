// Package session wraps one MCP client connection to one tool-providing server.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	"McpAgent/internal/logger"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	clientName    = "mcp-agent-client"
	clientVersion = "1.0.0"
)

// Session 工具服务器会话
type Session interface {
	Name() string
	ListTools(ctx context.Context) ([]models.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*models.ToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// MCPSession 基于 go-sdk 的会话实现
type MCPSession struct {
	config    models.ServerConfig
	transport mcp.Transport

	mu      sync.Mutex
	session *mcp.ClientSession
	release context.CancelFunc
	closed  bool
}

var _ Session = (*MCPSession)(nil)

// New 根据配置创建会话，传输在 Connect 时建立
func New(config models.ServerConfig) *MCPSession {
	return &MCPSession{config: config.Clone()}
}

// NewWithTransport 使用外部提供的传输创建会话
func NewWithTransport(config models.ServerConfig, transport mcp.Transport) *MCPSession {
	return &MCPSession{config: config.Clone(), transport: transport}
}

// Name 返回服务器名称
func (s *MCPSession) Name() string {
	return s.config.Name
}

// Connect 建立传输并完成 initialize 握手。
// 握手失败时已获取的资源（子进程等）会被释放。
func (s *MCPSession) Connect(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Mark(errors.Newf("server %s: session is closed", s.config.Name), models.ErrNotConnected)
	}
	if s.session != nil {
		return nil
	}

	transport, release, err := s.buildTransport()
	if err != nil {
		return errors.Mark(err, models.ErrConnection)
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	if s.config.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.StartupTimeout)
		defer cancel()
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}, nil)

	cs, err := client.Connect(ctx, transport)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "server %s: failed to connect", s.config.Name), models.ErrConnection)
	}

	s.session = cs
	s.release = release
	logger.Info("Connected to tool server %s (%s)", s.config.Name, s.config.Kind())
	return nil
}

// buildTransport 根据传输方式创建传输，返回的 release 负责回收子进程
func (s *MCPSession) buildTransport() (mcp.Transport, context.CancelFunc, error) {
	if s.transport != nil {
		return s.transport, func() {}, nil
	}

	switch s.config.Kind() {
	case models.TransportStdio:
		procCtx, cancel := context.WithCancel(context.Background())
		cmd := exec.CommandContext(procCtx, s.config.Command, s.config.Args...)
		if s.config.Workdir != "" {
			cmd.Dir = s.config.Workdir
		}
		if len(s.config.Env) > 0 {
			cmd.Env = os.Environ()
			for key, value := range s.config.Env {
				cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
			}
		}
		cmd.Stderr = os.Stderr

		logger.Info("Launching tool server %s: %s %v", s.config.Name, s.config.Command, s.config.Args)
		return mcp.NewCommandTransport(cmd), cancel, nil

	case models.TransportSSE:
		options := &mcp.SSEClientTransportOptions{}
		if len(s.config.Headers) > 0 {
			options.HTTPClient = &http.Client{
				Transport: &headerRoundTripper{
					base:    http.DefaultTransport,
					headers: s.config.Headers,
				},
			}
		}
		logger.Info("Connecting to SSE tool server %s: %s", s.config.Name, s.config.URL)
		return mcp.NewSSEClientTransport(s.config.URL, options), func() {}, nil

	default:
		return nil, nil, errors.Newf("server %s: unsupported transport %q", s.config.Name, s.config.Transport)
	}
}

func (s *MCPSession) active() (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.closed {
		return nil, errors.Mark(errors.Newf("server %s is not connected", s.config.Name), models.ErrNotConnected)
	}
	return s.session, nil
}

// ListTools 获取完整的工具目录，按服务器返回的顺序
func (s *MCPSession) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	cs, err := s.active()
	if err != nil {
		return nil, err
	}

	var tools []models.ToolDescriptor
	params := &mcp.ListToolsParams{}
	for {
		res, err := cs.ListTools(ctx, params)
		if err != nil {
			return nil, markCallError(ctx, errors.Wrapf(err, "server %s: failed to list tools", s.config.Name))
		}
		for _, tool := range res.Tools {
			if tool == nil {
				continue
			}
			desc, err := toDescriptor(tool)
			if err != nil {
				return nil, errors.Mark(errors.WithMessagef(err, "server %s", s.config.Name), models.ErrProtocol)
			}
			tools = append(tools, desc)
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
	return tools, nil
}

// CallTool 调用指定工具；工具自身返回的错误体现在 ToolResult.IsError 中
func (s *MCPSession) CallTool(ctx context.Context, name string, args map[string]any) (*models.ToolResult, error) {
	cs, err := s.active()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, markCallError(ctx, errors.Wrapf(err, "server %s: failed to call tool %s", s.config.Name, name))
	}

	return &models.ToolResult{
		Content: ContentText(res.Content),
		IsError: res.IsError,
	}, nil
}

// Ping 检查会话是否仍然可用
func (s *MCPSession) Ping(ctx context.Context) error {
	cs, err := s.active()
	if err != nil {
		return err
	}
	if err := cs.Ping(ctx, &mcp.PingParams{}); err != nil {
		return errors.Mark(errors.Wrapf(err, "server %s: ping failed", s.config.Name), models.ErrConnection)
	}
	return nil
}

// Close 释放通道，可重复调用
func (s *MCPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.session != nil {
		err = s.session.Close()
		s.session = nil
	}
	if s.release != nil {
		s.release()
		s.release = nil
	}
	if err != nil {
		return errors.Wrapf(err, "server %s: failed to close session", s.config.Name)
	}
	logger.Info("Closed session for tool server %s", s.config.Name)
	return nil
}

// markCallError 上下文错误保持原样，其余归为协议错误
func markCallError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.WithSecondaryError(ctxErr, err)
	}
	return errors.Mark(err, models.ErrProtocol)
}

// toDescriptor 将 go-sdk 的工具定义转换为内部描述
func toDescriptor(tool *mcp.Tool) (models.ToolDescriptor, error) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	if tool.InputSchema != nil {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return models.ToolDescriptor{}, errors.Wrapf(err, "tool %s: invalid input schema", tool.Name)
		}
		schema = map[string]any{}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return models.ToolDescriptor{}, errors.Wrapf(err, "tool %s: invalid input schema", tool.Name)
		}
	}
	return models.ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schema,
	}, nil
}

// ContentText 将工具返回的内容块转换为文本
func ContentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				parts = append(parts, fmt.Sprintf("%v", v))
				continue
			}
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}

// headerRoundTripper 为 SSE 请求添加自定义头部
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (hrt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, value := range hrt.headers {
		req.Header.Set(key, value)
	}
	return hrt.base.RoundTrip(req)
}
