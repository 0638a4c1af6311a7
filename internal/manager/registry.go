package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"McpAgent/internal/logger"
	"McpAgent/internal/models"
	"McpAgent/internal/session"

	"github.com/cockroachdb/errors"
)

// serverEntry 注册表中的单个服务器
type serverEntry struct {
	config    models.ServerConfig
	status    models.ServerStatus
	session   session.Session
	tools     []models.ToolDescriptor
	lastError string
	updatedAt time.Time
}

func (e *serverEntry) info() models.ServerInfo {
	return models.ServerInfo{
		Config:    e.config.Clone(),
		Status:    e.status,
		Connected: e.status == models.StatusConnected,
		ToolCount: len(e.tools),
		LastError: e.lastError,
		UpdatedAt: e.updatedAt,
	}
}

// ServerRegistry 管理服务器配置、会话和工具目录。
// connect/disconnect/remove/health 由 opMutex 串行化，状态读写由 mutex 保护。
type ServerRegistry struct {
	connector      Connector
	connectTimeout time.Duration

	opMutex sync.Mutex
	mutex   sync.RWMutex
	order   []string
	entries map[string]*serverEntry

	catalog atomic.Pointer[Catalog]
}

var _ ToolRouter = (*ServerRegistry)(nil)

// RegistryOption 注册表选项
type RegistryOption func(*ServerRegistry)

// WithConnectTimeout ConnectAll 中每个服务器单独的连接时限，0 表示只受外层 ctx 约束
func WithConnectTimeout(d time.Duration) RegistryOption {
	return func(r *ServerRegistry) {
		r.connectTimeout = d
	}
}

// NewServerRegistry 创建注册表
func NewServerRegistry(connector Connector, opts ...RegistryOption) *ServerRegistry {
	r := &ServerRegistry{
		connector: connector,
		entries:   make(map[string]*serverEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.catalog.Store(EmptyCatalog())
	return r
}

// AddConfig 注册服务器配置
func (r *ServerRegistry) AddConfig(config models.ServerConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[config.Name]; exists {
		return errors.Mark(errors.Newf("server with name %s already exists", config.Name), models.ErrDuplicateName)
	}

	r.entries[config.Name] = &serverEntry{
		config:    config.Clone(),
		status:    models.StatusDisconnected,
		updatedAt: time.Now(),
	}
	r.order = append(r.order, config.Name)

	logger.Info("Added server configuration: %s", config.Name)
	return nil
}

// RemoveConfig 删除服务器配置，已连接时先断开
func (r *ServerRegistry) RemoveConfig(ctx context.Context, name string) error {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()

	r.mutex.RLock()
	entry, exists := r.entries[name]
	connected := exists && entry.session != nil
	r.mutex.RUnlock()

	if !exists {
		return errors.Mark(errors.Newf("server %s not found", name), models.ErrNotFound)
	}
	if connected {
		r.disconnectLocked(name, models.StatusDisconnected, "")
	}

	r.mutex.Lock()
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.mutex.Unlock()

	logger.Info("Removed server configuration: %s", name)
	return nil
}

// Connect 连接服务器、获取工具目录并重建聚合视图。
// 已连接时直接返回当前结果。
func (r *ServerRegistry) Connect(ctx context.Context, name string) (*models.ConnectResult, error) {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()

	return r.connectLocked(ctx, name)
}

func (r *ServerRegistry) connectLocked(ctx context.Context, name string) (*models.ConnectResult, error) {
	result := &models.ConnectResult{Server: name}

	r.mutex.Lock()
	entry, exists := r.entries[name]
	if !exists {
		r.mutex.Unlock()
		err := errors.Mark(errors.Newf("server %s not found", name), models.ErrNotFound)
		result.Error = err.Error()
		return result, err
	}
	if entry.session != nil && entry.status == models.StatusConnected {
		result.Success = true
		result.ToolCount = len(entry.tools)
		result.Shadowed = r.catalog.Load().ShadowedBy(name)
		r.mutex.Unlock()
		return result, nil
	}
	config := entry.config.Clone()
	entry.status = models.StatusConnecting
	entry.updatedAt = time.Now()
	r.mutex.Unlock()

	logger.Info("Connecting to server: %s", name)

	sess, err := r.connector.Connect(ctx, config)
	if err != nil {
		if !errors.Is(err, models.ErrConnection) && !errors.Is(err, models.ErrInvalidConfig) {
			err = errors.Mark(err, models.ErrConnection)
		}
		err = errors.WithMessagef(err, "failed to connect to %s", name)
		r.markFailed(name, err)
		result.Error = err.Error()
		return result, err
	}

	tools, err := sess.ListTools(ctx)
	if err != nil {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Warn("Failed to close session for %s: %v", name, closeErr)
		}
		err = errors.WithMessagef(err, "failed to list tools of %s", name)
		r.markFailed(name, err)
		result.Error = err.Error()
		return result, err
	}

	r.mutex.Lock()
	entry.session = sess
	entry.tools = tools
	entry.status = models.StatusConnected
	entry.lastError = ""
	entry.updatedAt = time.Now()
	catalog := r.rebuildLocked()
	r.mutex.Unlock()

	result.Success = true
	result.ToolCount = len(tools)
	result.Shadowed = catalog.ShadowedBy(name)

	logger.InfoWithFields("Connected to server", map[string]any{
		"server":      name,
		"tools":       len(tools),
		"total_tools": catalog.Len(),
	})
	return result, nil
}

func (r *ServerRegistry) markFailed(name string, cause error) {
	r.mutex.Lock()
	if entry, exists := r.entries[name]; exists {
		entry.status = models.StatusFailed
		entry.lastError = cause.Error()
		entry.updatedAt = time.Now()
	}
	r.mutex.Unlock()

	logger.Error("Failed to connect to %s: %v", name, cause)
}

// Disconnect 关闭会话并重建聚合视图
func (r *ServerRegistry) Disconnect(ctx context.Context, name string) error {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()

	r.mutex.RLock()
	entry, exists := r.entries[name]
	connected := exists && entry.session != nil
	r.mutex.RUnlock()

	if !exists {
		return errors.Mark(errors.Newf("server %s not found", name), models.ErrNotFound)
	}
	if !connected {
		return errors.Mark(errors.Newf("server %s not connected", name), models.ErrNotConnected)
	}

	r.disconnectLocked(name, models.StatusDisconnected, "")
	return nil
}

// disconnectLocked 先从路由中移除再关闭会话，调用方持有 opMutex
func (r *ServerRegistry) disconnectLocked(name string, status models.ServerStatus, reason string) {
	r.mutex.Lock()
	entry, exists := r.entries[name]
	if !exists {
		r.mutex.Unlock()
		return
	}
	sess := entry.session
	entry.session = nil
	entry.tools = nil
	entry.status = status
	entry.lastError = reason
	entry.updatedAt = time.Now()
	r.rebuildLocked()
	r.mutex.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			logger.Warn("Failed to close session for %s: %v", name, err)
		}
	}
	logger.Info("Disconnected from %s", name)
}

// ConnectAll 依次连接所有未连接的服务器，单个失败不影响其他服务器。
// 每个服务器使用独立的子 ctx，ctx 本身只作为整体时限；
// 整体时限耗尽后剩余服务器直接记为失败，结果总是包含每个服务器。
func (r *ServerRegistry) ConnectAll(ctx context.Context) *models.ConnectAllResult {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()

	r.mutex.RLock()
	var pending []string
	for _, name := range r.order {
		if r.entries[name].status != models.StatusConnected {
			pending = append(pending, name)
		}
	}
	r.mutex.RUnlock()

	out := &models.ConnectAllResult{}
	for _, name := range pending {
		if err := ctx.Err(); err != nil {
			err = errors.WithMessagef(err, "connect to %s not attempted", name)
			r.markFailed(name, err)
			out.Results = append(out.Results, models.ConnectResult{Server: name, Error: err.Error()})
			continue
		}

		res, err := r.connectOne(ctx, name)
		if err != nil {
			logger.Warn("Server %s failed to connect: %v", name, err)
		}
		out.Results = append(out.Results, *res)
	}

	out.ConnectedServers = r.ConnectedServers()
	out.TotalTools = r.Catalog().Len()
	logger.Info("Connected to %d servers", len(out.ConnectedServers))
	return out
}

func (r *ServerRegistry) connectOne(ctx context.Context, name string) (*models.ConnectResult, error) {
	if r.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.connectTimeout)
		defer cancel()
	}
	return r.connectLocked(ctx, name)
}

// CheckHealth ping 所有已连接会话，失败的会话被关闭并标记为 Failed
func (r *ServerRegistry) CheckHealth(ctx context.Context) []string {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()

	type target struct {
		name string
		sess session.Session
	}
	r.mutex.RLock()
	var targets []target
	for _, name := range r.order {
		if e := r.entries[name]; e.session != nil {
			targets = append(targets, target{name: name, sess: e.session})
		}
	}
	r.mutex.RUnlock()

	var failed []string
	for _, t := range targets {
		if err := t.sess.Ping(ctx); err != nil {
			logger.Error("Health check failed for %s: %v", t.name, err)
			r.disconnectLocked(t.name, models.StatusFailed, err.Error())
			failed = append(failed, t.name)
		}
	}
	return failed
}

// CloseAll 关闭所有会话，用于进程退出
func (r *ServerRegistry) CloseAll() {
	r.opMutex.Lock()
	defer r.opMutex.Unlock()

	r.mutex.RLock()
	var names []string
	for _, name := range r.order {
		if r.entries[name].session != nil {
			names = append(names, name)
		}
	}
	r.mutex.RUnlock()

	for _, name := range names {
		r.disconnectLocked(name, models.StatusDisconnected, "")
	}
}

// rebuildLocked 按注册顺序从已连接会话重建目录，调用方持有 mutex 写锁
func (r *ServerRegistry) rebuildLocked() *Catalog {
	sources := make([]CatalogSource, 0, len(r.order))
	for _, name := range r.order {
		entry := r.entries[name]
		if entry.status != models.StatusConnected || entry.session == nil {
			continue
		}
		sources = append(sources, CatalogSource{Server: name, Tools: entry.tools})
	}

	catalog := BuildCatalog(sources)
	for _, s := range catalog.Shadowed() {
		logger.WarnWithFields("Duplicate tool name ignored", map[string]any{
			"tool":   s.Name,
			"server": s.Server,
			"owner":  s.Owner,
		})
	}
	r.catalog.Store(catalog)
	return catalog
}

// Catalog 返回当前目录快照
func (r *ServerRegistry) Catalog() *Catalog {
	return r.catalog.Load()
}

// Session 返回已连接服务器的会话
func (r *ServerRegistry) Session(name string) (session.Session, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[name]
	if !exists || entry.session == nil || entry.status != models.StatusConnected {
		return nil, errors.Mark(errors.Newf("server %s not connected", name), models.ErrNotConnected)
	}
	return entry.session, nil
}

// Get 返回单个服务器的信息
func (r *ServerRegistry) Get(name string) (models.ServerInfo, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return models.ServerInfo{}, errors.Mark(errors.Newf("server %s not found", name), models.ErrNotFound)
	}
	return entry.info(), nil
}

// Servers 按注册顺序返回所有服务器信息
func (r *ServerRegistry) Servers() []models.ServerInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]models.ServerInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].info())
	}
	return out
}

// ConnectedServers 按注册顺序返回已连接的服务器名
func (r *ServerRegistry) ConnectedServers() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []string
	for _, name := range r.order {
		if r.entries[name].status == models.StatusConnected {
			out = append(out, name)
		}
	}
	return out
}

// Len 已注册的服务器数量
func (r *ServerRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.order)
}
