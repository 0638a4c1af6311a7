package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"McpAgent/internal/agent"
	"McpAgent/internal/config"
	"McpAgent/internal/history"
	"McpAgent/internal/llm"
	"McpAgent/internal/logger"
	"McpAgent/internal/manager"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
)

// ErrClosed 引擎已关闭
var ErrClosed = errors.New("engine is shut down")

// ErrEmptyQuery 查询内容为空
var ErrEmptyQuery = errors.New("query is required")

// Options 引擎运行参数
type Options struct {
	MaxIterations       int
	QueryTimeout        time.Duration
	ConnectTimeout      time.Duration
	ConnectAllTimeout   time.Duration
	DisconnectTimeout   time.Duration
	HealthCheckInterval time.Duration
	LogLimit            int
	DefaultServer       *models.ServerConfig
	Store               manager.ConfigStore
}

// OptionsFromConfig 从配置文件构建运行参数
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		MaxIterations:       cfg.Agent.MaxIterations,
		QueryTimeout:        cfg.Agent.QueryTimeout,
		ConnectTimeout:      cfg.Agent.ConnectTimeout,
		ConnectAllTimeout:   cfg.Agent.ConnectAllTimeout,
		DisconnectTimeout:   cfg.Agent.DisconnectTimeout,
		HealthCheckInterval: cfg.Agent.HealthCheckInterval,
		LogLimit:            cfg.Agent.LogLimit,
	}
	if cfg.DefaultServer != nil {
		def := cfg.DefaultServer.Clone()
		opts.DefaultServer = &def
	}
	return opts
}

// Engine 持有注册表和调度器，所有变更操作都在同一个 worker 协程中执行
type Engine struct {
	opts       Options
	registry   *manager.ServerRegistry
	dispatcher *agent.Dispatcher
	logs       *history.ActivityLog
	chat       *history.ChatHistory

	tasks     chan func()
	stopChan  chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建引擎并启动 worker 和健康检查协程
func New(gateway llm.Gateway, connector manager.Connector, opts Options) *Engine {
	e := &Engine{
		opts:     opts,
		registry: manager.NewServerRegistry(connector, manager.WithConnectTimeout(opts.ConnectTimeout)),
		logs:     history.NewActivityLog(opts.LogLimit),
		chat:     history.NewChatHistory(),
		tasks:    make(chan func()),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.dispatcher = agent.NewDispatcher(gateway, e.registry,
		agent.WithMaxIterations(opts.MaxIterations),
		agent.WithRecorder(e.record),
	)

	go e.run()
	if opts.HealthCheckInterval > 0 {
		e.wg.Add(1)
		go e.healthRoutine()
	}

	e.record(models.LogSystem, "Engine started", map[string]any{"llm": gateway.Name()})
	return e
}

func (e *Engine) record(logType models.LogType, message string, data any) {
	e.logs.Add(logType, message, data)
}

// run worker 主循环，退出前执行完已提交的任务
func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case task := <-e.tasks:
			task()
		case <-e.stopChan:
			for {
				select {
				case task := <-e.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit 将任务交给 worker 并等待其完成或 ctx 结束
func (e *Engine) submit(ctx context.Context, fn func()) error {
	finished, err := e.enqueue(ctx, fn)
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue 将任务交给 worker，返回任务完成时关闭的 channel
func (e *Engine) enqueue(ctx context.Context, fn func()) (<-chan struct{}, error) {
	select {
	case <-e.stopChan:
		return nil, ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.tasks <- task:
		return finished, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stopChan:
		return nil, ErrClosed
	}
}

// healthRoutine 定期检查已连接会话
func (e *Engine) healthRoutine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.checkHealth()
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.HealthCheckInterval)
	defer cancel()

	var failed []string
	err := e.submit(ctx, func() {
		failed = e.registry.CheckHealth(ctx)
	})
	if err != nil {
		if !errors.Is(err, ErrClosed) {
			logger.Warn("Health check skipped: %v", err)
		}
		return
	}
	for _, name := range failed {
		e.record(models.LogError, fmt.Sprintf("Server %s failed health check", name), nil)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// LoadStoredConfigs 从持久化存储加载服务器配置
func (e *Engine) LoadStoredConfigs(ctx context.Context) error {
	if e.opts.Store == nil {
		return nil
	}
	configs, err := e.opts.Store.LoadServerConfigs(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to load server configs")
	}

	var loadErr error
	submitErr := e.submit(ctx, func() {
		for _, cfg := range configs {
			if err := e.registry.AddConfig(cfg); err != nil {
				if errors.Is(err, models.ErrDuplicateName) {
					continue
				}
				loadErr = errors.CombineErrors(loadErr, err)
				continue
			}
			e.record(models.LogSystem, fmt.Sprintf("Loaded server configuration: %s", cfg.Name), nil)
		}
	})
	if submitErr != nil {
		return submitErr
	}
	return loadErr
}

// AddServer 注册服务器配置，配置了存储时同时持久化
func (e *Engine) AddServer(ctx context.Context, cfg models.ServerConfig) error {
	var opErr error
	err := e.submit(ctx, func() {
		if opErr = e.registry.AddConfig(cfg); opErr != nil {
			return
		}
		if e.opts.Store != nil {
			if err := e.opts.Store.SaveServerConfig(ctx, cfg); err != nil {
				opErr = errors.WithMessage(err, "failed to persist server config")
				_ = e.registry.RemoveConfig(ctx, cfg.Name)
				return
			}
		}
		e.record(models.LogSystem, fmt.Sprintf("Added server: %s", cfg.Name), cfg)
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		e.record(models.LogError, fmt.Sprintf("Failed to add server %s: %v", cfg.Name, opErr), nil)
	}
	return opErr
}

// RemoveServer 删除服务器配置，已连接时先断开
func (e *Engine) RemoveServer(ctx context.Context, name string) error {
	ctx, cancel := withTimeout(ctx, e.opts.DisconnectTimeout)
	defer cancel()

	var opErr error
	err := e.submit(ctx, func() {
		if opErr = e.registry.RemoveConfig(ctx, name); opErr != nil {
			return
		}
		if e.opts.Store != nil {
			if err := e.opts.Store.DeleteServerConfig(ctx, name); err != nil {
				logger.Warn("Failed to delete stored config for %s: %v", name, err)
			}
		}
		e.record(models.LogSystem, fmt.Sprintf("Removed server: %s", name), nil)
	})
	if err != nil {
		return err
	}
	return opErr
}

// Connect 连接单个服务器
func (e *Engine) Connect(ctx context.Context, name string) (*models.ConnectResult, error) {
	ctx, cancel := withTimeout(ctx, e.opts.ConnectTimeout)
	defer cancel()

	var (
		result *models.ConnectResult
		opErr  error
	)
	err := e.submit(ctx, func() {
		e.record(models.LogMCPClient, fmt.Sprintf("Connecting to server: %s", name), nil)
		result, opErr = e.registry.Connect(ctx, name)
		e.recordConnect(result, opErr)
	})
	if err != nil {
		return nil, err
	}
	return result, opErr
}

func (e *Engine) recordConnect(result *models.ConnectResult, err error) {
	if err != nil {
		e.record(models.LogError, fmt.Sprintf("Failed to connect to %s: %v", result.Server, err), nil)
		return
	}
	e.record(models.LogMCPClient, fmt.Sprintf("Connected to %s", result.Server), map[string]any{
		"tools":    result.ToolCount,
		"shadowed": result.Shadowed,
	})
}

// ConnectAll 连接所有已注册的服务器；没有任何配置时先注册默认服务器。
// 任务开始后总是等待其结束并返回逐个服务器的结果，整体时限由注册表在任务内执行。
func (e *Engine) ConnectAll(ctx context.Context) (*models.ConnectAllResult, error) {
	ctx, cancel := withTimeout(ctx, e.opts.ConnectAllTimeout)
	defer cancel()

	var result *models.ConnectAllResult
	finished, err := e.enqueue(ctx, func() {
		if e.registry.Len() == 0 && e.opts.DefaultServer != nil {
			if err := e.registry.AddConfig(*e.opts.DefaultServer); err != nil {
				e.record(models.LogError, fmt.Sprintf("Failed to add default server: %v", err), nil)
			} else {
				e.record(models.LogSystem, fmt.Sprintf("Added default server: %s", e.opts.DefaultServer.Name), nil)
			}
		}

		e.record(models.LogSystem, "Connecting to all servers", nil)
		result = e.registry.ConnectAll(ctx)
		for i := range result.Results {
			res := &result.Results[i]
			var err error
			if !res.Success {
				err = errors.New(res.Error)
			}
			e.recordConnect(res, err)
		}
		e.record(models.LogSystem, fmt.Sprintf("Connected to %d servers", len(result.ConnectedServers)), map[string]any{
			"servers":     result.ConnectedServers,
			"total_tools": result.TotalTools,
		})
	})
	if err != nil {
		return e.notAttempted(err), err
	}

	<-finished
	return result, nil
}

// notAttempted worker 未接手任务时，为每个未连接的服务器生成失败结果
func (e *Engine) notAttempted(cause error) *models.ConnectAllResult {
	out := &models.ConnectAllResult{}
	for _, info := range e.registry.Servers() {
		if info.Connected {
			out.ConnectedServers = append(out.ConnectedServers, info.Config.Name)
			continue
		}
		out.Results = append(out.Results, models.ConnectResult{
			Server: info.Config.Name,
			Error:  cause.Error(),
		})
	}
	out.TotalTools = e.registry.Catalog().Len()
	return out
}

// Disconnect 断开单个服务器
func (e *Engine) Disconnect(ctx context.Context, name string) error {
	ctx, cancel := withTimeout(ctx, e.opts.DisconnectTimeout)
	defer cancel()

	var opErr error
	err := e.submit(ctx, func() {
		if opErr = e.registry.Disconnect(ctx, name); opErr == nil {
			e.record(models.LogMCPClient, fmt.Sprintf("Disconnected from %s", name), nil)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// SubmitQuery 执行一次查询并写入聊天记录
func (e *Engine) SubmitQuery(ctx context.Context, query string) (*models.QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	ctx, cancel := withTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	var (
		result *models.QueryResult
		opErr  error
	)
	err := e.submit(ctx, func() {
		if len(e.registry.ConnectedServers()) == 0 {
			opErr = errors.Mark(errors.New("no servers connected"), models.ErrNotConnected)
			return
		}

		e.chat.Append(models.RoleUser, query)
		e.record(models.LogUser, fmt.Sprintf("User query: %s", query), nil)

		result, opErr = e.dispatcher.Run(ctx, query)
		if opErr != nil {
			e.record(models.LogError, fmt.Sprintf("Error in query processing: %v", opErr), nil)
			return
		}

		e.chat.Append(models.RoleAssistant, result.Content)
		e.record(models.LogSystem, "Query processing completed", map[string]any{
			"iterations":      result.Iterations,
			"tool_executions": len(result.ToolInvocations),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, opErr
}

// Status 返回当前连接状态
func (e *Engine) Status() models.StatusReport {
	connected := e.registry.ConnectedServers()
	if connected == nil {
		connected = []string{}
	}
	return models.StatusReport{
		Connected:        len(connected) > 0,
		ConnectedServers: connected,
		TotalServers:     e.registry.Len(),
		ToolCount:        e.registry.Catalog().Len(),
	}
}

// Servers 返回所有服务器信息
func (e *Engine) Servers() []models.ServerInfo {
	return e.registry.Servers()
}

// Tools 返回当前工具目录
func (e *Engine) Tools() []models.ToolDescriptor {
	return e.registry.Catalog().FlatToolList()
}

// History 返回聊天记录
func (e *Engine) History() []models.ChatMessage {
	return e.chat.Messages()
}

// Logs 返回活动日志
func (e *Engine) Logs() []models.LogEntry {
	return e.logs.Entries()
}

// ClearLogs 清空活动日志
func (e *Engine) ClearLogs() {
	e.logs.Clear()
}

// Shutdown 停止健康检查、等待 worker 退出并关闭所有会话
func (e *Engine) Shutdown(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		close(e.stopChan)
		e.wg.Wait()

		select {
		case <-e.done:
		case <-ctx.Done():
			err = errors.WithMessage(ctx.Err(), "engine worker did not stop in time")
		}

		e.registry.CloseAll()
		logger.Info("Engine shut down")
	})
	return err
}
