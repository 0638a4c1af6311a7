package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server        ServerConfig          `yaml:"server"`
	Auth          AuthConfig            `yaml:"auth"`
	Database      DatabaseConfig        `yaml:"database"`
	Logging       LoggingConfig         `yaml:"logging"`
	LLM           LLMConfig             `yaml:"llm"`
	Agent         AgentConfig           `yaml:"agent"`
	DefaultServer *models.ServerConfig  `yaml:"default_server"`
	Servers       []models.ServerConfig `yaml:"servers"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	HeaderName string   `yaml:"header_name"`
	APIKeys    []string `yaml:"api_keys"`
}

// DatabaseConfig 数据库配置，用于持久化服务器配置
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LLMConfig LLM 网关配置
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AgentConfig 调度循环和前端超时配置
type AgentConfig struct {
	MaxIterations       int           `yaml:"max_iterations"`
	QueryTimeout        time.Duration `yaml:"query_timeout"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	ConnectAllTimeout   time.Duration `yaml:"connect_all_timeout"`
	DisconnectTimeout   time.Duration `yaml:"disconnect_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	LogLimit            int           `yaml:"log_limit"`
}

// GetDSN 获取数据库连接字符串
func (db *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetServerAddr 获取服务器监听地址
func (s *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig 加载配置文件，路径为空时只使用默认值
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", configPath)
		}
	}

	setDefaults(&config)

	return &config, nil
}

// setDefaults 设置默认值
func setDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 5001
	}

	if config.Auth.HeaderName == "" {
		config.Auth.HeaderName = "X-API-Key"
	}

	if config.Database.Host == "" {
		config.Database.Host = "localhost"
	}
	if config.Database.Port == 0 {
		config.Database.Port = 5432
	}
	if config.Database.SSLMode == "" {
		config.Database.SSLMode = "disable"
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 10
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = 5
	}
	if config.Database.ConnMaxLifetime == 0 {
		config.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.Model = "llama3.1"
		default:
			config.LLM.Model = "gpt-4-turbo-preview"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 4096
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 2 * time.Minute
	}

	if config.Agent.MaxIterations == 0 {
		config.Agent.MaxIterations = 10
	}
	if config.Agent.QueryTimeout == 0 {
		config.Agent.QueryTimeout = 60 * time.Second
	}
	if config.Agent.ConnectTimeout == 0 {
		config.Agent.ConnectTimeout = 10 * time.Second
	}
	if config.Agent.ConnectAllTimeout == 0 {
		config.Agent.ConnectAllTimeout = 30 * time.Second
	}
	if config.Agent.DisconnectTimeout == 0 {
		config.Agent.DisconnectTimeout = 5 * time.Second
	}
	if config.Agent.HealthCheckInterval == 0 {
		config.Agent.HealthCheckInterval = 30 * time.Second
	}
	if config.Agent.LogLimit == 0 {
		config.Agent.LogLimit = 1000
	}

	if config.DefaultServer != nil && config.DefaultServer.Name == "" {
		config.DefaultServer.Name = "default"
	}
}

// LoadConfigFromEnv 从环境变量加载配置（优先级高于配置文件）
func LoadConfigFromEnv(config *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Database.Port)
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		config.Database.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if database := os.Getenv("DB_DATABASE"); database != "" {
		config.Database.Database = database
		config.Database.Enabled = true
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Server.Port)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}

	// MCP_SERVER_COMMAND 优先，其次兼容 MCP_SERVER_SCRIPT（python3 脚本）
	if command := os.Getenv("MCP_SERVER_COMMAND"); command != "" {
		fields := strings.Fields(command)
		config.DefaultServer = &models.ServerConfig{
			Name:    "default",
			Command: fields[0],
			Args:    fields[1:],
		}
	} else if script := os.Getenv("MCP_SERVER_SCRIPT"); script != "" {
		config.DefaultServer = &models.ServerConfig{
			Name:    "default",
			Command: "python3",
			Args:    []string{script},
		}
	}
}

// Validate 在构建引擎之前校验外部输入
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return errors.Mark(errors.New("OPENAI_API_KEY environment variable is required"), models.ErrInvalidConfig)
		}
	case "ollama":
	default:
		return errors.Mark(errors.Newf("unsupported llm provider: %s", c.LLM.Provider), models.ErrInvalidConfig)
	}

	if c.DefaultServer != nil {
		if err := c.DefaultServer.Validate(); err != nil {
			return errors.WithMessage(err, "invalid default server")
		}
	}

	seen := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return errors.Mark(errors.Newf("duplicate server name in config: %s", s.Name), models.ErrDuplicateName)
		}
		seen[s.Name] = true
	}

	if c.Agent.MaxIterations < 1 {
		return errors.Mark(errors.New("agent.max_iterations must be positive"), models.ErrInvalidConfig)
	}
	return nil
}
