package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"McpAgent/internal/config"
	"McpAgent/internal/logger"
)

const defaultHeaderName = "X-API-Key"

// AuthMiddleware API 密钥认证中间件
type AuthMiddleware struct {
	config *config.AuthConfig
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(authConfig *config.AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{
		config: authConfig,
	}
}

// ValidateAPIKey 验证API密钥
func (am *AuthMiddleware) ValidateAPIKey(apiKey string) bool {
	if !am.config.Enabled {
		return true
	}
	if apiKey == "" {
		return false
	}

	for _, validKey := range am.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return true
		}
	}
	return false
}

// Middleware HTTP中间件函数
func (am *AuthMiddleware) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !am.config.Enabled {
			next(w, r)
			return
		}

		if !am.ValidateAPIKey(am.ExtractAPIKey(r)) {
			logger.Warn("Authentication failed for request %s %s from %s",
				r.Method, r.URL.Path, r.RemoteAddr)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":  "error",
				"message": "Unauthorized: Invalid API Key",
			})
			return
		}

		logger.Debug("Authentication successful for request %s %s", r.Method, r.URL.Path)
		next(w, r)
	}
}

// ExtractAPIKey 依次从指定头、Bearer token 和查询参数中提取API密钥
func (am *AuthMiddleware) ExtractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get(am.GetHeaderName()); apiKey != "" {
		return apiKey
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("api_key")
}

// IsEnabled 检查认证是否启用
func (am *AuthMiddleware) IsEnabled() bool {
	return am.config.Enabled
}

// GetHeaderName 获取API密钥头名称
func (am *AuthMiddleware) GetHeaderName() string {
	if am.config.HeaderName == "" {
		return defaultHeaderName
	}
	return am.config.HeaderName
}
