package cli

import (
	"context"
	"time"

	"McpAgent/internal/config"
	"McpAgent/internal/database"
	"McpAgent/internal/engine"
	"McpAgent/internal/llm"
	"McpAgent/internal/logger"
	"McpAgent/internal/models"
	"McpAgent/internal/session"

	"github.com/cockroachdb/errors"
)

const shutdownTimeout = 10 * time.Second

// app 命令运行时依赖
type app struct {
	cfg    *config.Config
	engine *engine.Engine
	db     *database.DatabaseService
}

// loadConfig 读取配置文件、环境变量和命令行覆盖项
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.Config)
	if err != nil {
		return nil, err
	}
	config.LoadConfigFromEnv(cfg)
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger.SetLevelFromString(cfg.Logging.Level)
	return cfg, nil
}

// newApp 构建引擎并注册配置中的服务器
func newApp(ctx context.Context, opts *Options) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gateway, err := llm.NewGateway(cfg.LLM)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	engineOpts := engine.OptionsFromConfig(cfg)
	if cfg.Database.Enabled {
		a.db, err = database.NewDatabaseService(ctx, &cfg.Database)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create database service")
		}
		engineOpts.Store = a.db
	}

	a.engine = engine.New(gateway, session.NewDialer(), engineOpts)

	if err := a.engine.LoadStoredConfigs(ctx); err != nil {
		logger.Warn("Some stored server configs could not be loaded: %v", err)
	}
	for _, s := range cfg.Servers {
		if err := a.engine.AddServer(ctx, s); err != nil {
			if errors.Is(err, models.ErrDuplicateName) {
				logger.Debug("Server %s already loaded from store", s.Name)
				continue
			}
			logger.Warn("Skipping configured server %s: %v", s.Name, err)
		}
	}

	logger.Info("Using %s gateway with model %s", gateway.Name(), cfg.LLM.Model)
	return a, nil
}

// close 关闭引擎和数据库
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.engine.Shutdown(ctx); err != nil {
		logger.Error("Engine shutdown: %v", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Error("Failed to close database: %v", err)
		}
	}
}
