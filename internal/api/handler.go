package api

import (
	"context"
	"encoding/json"
	"net/http"

	"McpAgent/internal/auth"
	"McpAgent/internal/engine"
	"McpAgent/internal/logger"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
)

const maxBodyBytes = 1 << 20

// Backend HTTP 接口依赖的引擎操作
type Backend interface {
	AddServer(ctx context.Context, cfg models.ServerConfig) error
	RemoveServer(ctx context.Context, name string) error
	Connect(ctx context.Context, name string) (*models.ConnectResult, error)
	ConnectAll(ctx context.Context) (*models.ConnectAllResult, error)
	Disconnect(ctx context.Context, name string) error
	SubmitQuery(ctx context.Context, query string) (*models.QueryResult, error)
	Status() models.StatusReport
	Servers() []models.ServerInfo
	Tools() []models.ToolDescriptor
	History() []models.ChatMessage
	Logs() []models.LogEntry
	ClearLogs()
}

var _ Backend = (*engine.Engine)(nil)

// Handler JSON 接口
type Handler struct {
	backend Backend
	auth    *auth.AuthMiddleware
}

// NewHandler 创建 HTTP 处理器
func NewHandler(backend Backend, authMiddleware *auth.AuthMiddleware) *Handler {
	return &Handler{backend: backend, auth: authMiddleware}
}

// Routes 注册路由，/health 不需要认证
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("GET /servers", h.auth.Middleware(h.listServers))
	mux.Handle("POST /servers/add", h.auth.Middleware(h.addServer))
	mux.Handle("POST /servers/remove", h.auth.Middleware(h.removeServer))
	mux.Handle("POST /servers/connect", h.auth.Middleware(h.connectServer))
	mux.Handle("POST /servers/disconnect", h.auth.Middleware(h.disconnectServer))
	mux.Handle("POST /connect", h.auth.Middleware(h.connectAll))
	mux.Handle("POST /send", h.auth.Middleware(h.send))
	mux.Handle("GET /tools", h.auth.Middleware(h.listTools))
	mux.Handle("GET /history", h.auth.Middleware(h.history))
	mux.Handle("GET /status", h.auth.Middleware(h.status))
	mux.Handle("GET /logs", h.auth.Middleware(h.logs))
	mux.Handle("POST /logs/clear", h.auth.Middleware(h.clearLogs))

	return mux
}

type nameRequest struct {
	Name string `json:"name"`
}

type sendRequest struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": "success"}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(err), map[string]any{
		"status":  "error",
		"message": err.Error(),
	})
}

// statusCode 按错误分类映射 HTTP 状态码
func statusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidConfig), errors.Is(err, engine.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, models.ErrConnection), errors.Is(err, models.ErrProtocol), errors.Is(err, models.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrNotConnected), errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid request body"), models.ErrInvalidConfig)
	}
	return nil
}

func decodeName(w http.ResponseWriter, r *http.Request) (string, error) {
	var req nameRequest
	if err := decode(w, r, &req); err != nil {
		return "", err
	}
	if req.Name == "" {
		return "", errors.Mark(errors.New("server name is required"), models.ErrInvalidConfig)
	}
	return req.Name, nil
}

func (h *Handler) listServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": h.backend.Servers()})
}

func (h *Handler) addServer(w http.ResponseWriter, r *http.Request) {
	var cfg models.ServerConfig
	if err := decode(w, r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := h.backend.AddServer(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"message": "Server " + cfg.Name + " added"})
}

func (h *Handler) removeServer(w http.ResponseWriter, r *http.Request) {
	name, err := decodeName(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.backend.RemoveServer(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"message": "Server " + name + " removed"})
}

func (h *Handler) connectServer(w http.ResponseWriter, r *http.Request) {
	name, err := decodeName(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.backend.Connect(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{
		"message":  "Connected to " + name,
		"tools":    result.ToolCount,
		"shadowed": result.Shadowed,
	})
}

func (h *Handler) disconnectServer(w http.ResponseWriter, r *http.Request) {
	name, err := decodeName(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.backend.Disconnect(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"message": "Disconnected from " + name})
}

func (h *Handler) connectAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.backend.ConnectAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{
		"servers":     result.ConnectedServers,
		"total_tools": result.TotalTools,
		"results":     result.Results,
		"failed":      result.Failed(),
	})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.backend.SubmitQuery(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{
		"response":        result.Content,
		"tool_executions": result.ToolInvocations,
		"iterations":      result.Iterations,
	})
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.backend.Tools()})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": h.backend.History()})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backend.Status())
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"logs": h.backend.Logs()})
}

func (h *Handler) clearLogs(w http.ResponseWriter, r *http.Request) {
	h.backend.ClearLogs()
	writeSuccess(w, map[string]any{"message": "Logs cleared"})
}
