package database

import (
	"context"
	"database/sql"
	"time"

	"McpAgent/internal/config"
	"McpAgent/internal/logger"
	"McpAgent/internal/manager"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

// schema 服务器配置表，子表随 mcp_service 级联删除
const schema = `
CREATE TABLE IF NOT EXISTS mcp_service (
	server_id    TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	enabled      BOOLEAN NOT NULL DEFAULT TRUE,
	adapter      TEXT NOT NULL,
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS mcp_service_stdio (
	server_id          TEXT PRIMARY KEY REFERENCES mcp_service(server_id) ON DELETE CASCADE,
	command            TEXT NOT NULL,
	args               TEXT[] NOT NULL DEFAULT '{}',
	workdir            TEXT,
	env                JSONB,
	startup_timeout_ms INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS mcp_service_sse (
	server_id  TEXT PRIMARY KEY REFERENCES mcp_service(server_id) ON DELETE CASCADE,
	base_url   TEXT NOT NULL,
	headers    JSONB,
	timeout_ms INTEGER NOT NULL DEFAULT 0
);
`

// DatabaseService 基于 PostgreSQL 的服务器配置存储
type DatabaseService struct {
	db *sql.DB
}

var _ manager.ConfigStore = (*DatabaseService)(nil)

// NewDatabaseService 创建数据库服务并确保表结构存在
func NewDatabaseService(ctx context.Context, cfg *config.DatabaseConfig) (*DatabaseService, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	ds := &DatabaseService{db: db}
	if err := ds.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Database connected successfully to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return ds, nil
}

// Close 关闭数据库连接
func (ds *DatabaseService) Close() error {
	return ds.db.Close()
}

// EnsureSchema 创建缺失的表
func (ds *DatabaseService) EnsureSchema(ctx context.Context) error {
	if _, err := ds.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}
	return nil
}

// LoadServerConfigs 按创建顺序加载所有启用的服务器配置
func (ds *DatabaseService) LoadServerConfigs(ctx context.Context) ([]models.ServerConfig, error) {
	query := `
		SELECT s.server_id, s.display_name, s.enabled, s.adapter, s.metadata, s.created_at, s.updated_at,
		       st.command, st.args, st.workdir, st.env, st.startup_timeout_ms,
		       se.base_url, se.headers, se.timeout_ms
		FROM mcp_service s
		LEFT JOIN mcp_service_stdio st ON st.server_id = s.server_id
		LEFT JOIN mcp_service_sse se ON se.server_id = s.server_id
		WHERE s.enabled = true
		ORDER BY s.created_at, s.server_id
	`

	rows, err := ds.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query services")
	}
	defer rows.Close()

	var configs []models.ServerConfig
	for rows.Next() {
		rec, err := scanServiceRecord(rows)
		if err != nil {
			return nil, err
		}
		cfg, err := rec.ServerConfig()
		if err != nil {
			logger.Warn("Skipping stored server %s: %v", rec.Service.ServerID, err)
			continue
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate services")
	}
	return configs, nil
}

func scanServiceRecord(rows *sql.Rows) (models.ServiceRecord, error) {
	var (
		rec        models.ServiceRecord
		command    sql.NullString
		args       []string
		workdir    sql.NullString
		env        models.JSONB
		startupMs  sql.NullInt64
		baseURL    sql.NullString
		headers    models.JSONB
		sseTimeout sql.NullInt64
	)

	err := rows.Scan(
		&rec.Service.ServerID,
		&rec.Service.DisplayName,
		&rec.Service.Enabled,
		&rec.Service.Adapter,
		&rec.Service.Metadata,
		&rec.Service.CreatedAt,
		&rec.Service.UpdatedAt,
		&command,
		pq.Array(&args),
		&workdir,
		&env,
		&startupMs,
		&baseURL,
		&headers,
		&sseTimeout,
	)
	if err != nil {
		return rec, errors.Wrap(err, "failed to scan service")
	}

	if command.Valid {
		rec.Stdio = &models.MCPServiceStdio{
			ServerID:         rec.Service.ServerID,
			Command:          command.String,
			Args:             args,
			Env:              env,
			StartupTimeoutMs: int(startupMs.Int64),
		}
		if workdir.Valid {
			wd := workdir.String
			rec.Stdio.Workdir = &wd
		}
	}
	if baseURL.Valid {
		rec.SSE = &models.MCPServiceSSE{
			ServerID:  rec.Service.ServerID,
			BaseURL:   baseURL.String,
			Headers:   headers,
			TimeoutMs: int(sseTimeout.Int64),
		}
	}
	return rec, nil
}

// SaveServerConfig 新增或更新服务器配置
func (ds *DatabaseService) SaveServerConfig(ctx context.Context, cfg models.ServerConfig) error {
	rec := models.NewServiceRecord(cfg)

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mcp_service (server_id, display_name, enabled, adapter, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (server_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, enabled = EXCLUDED.enabled,
		    adapter = EXCLUDED.adapter, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
	`, rec.Service.ServerID, rec.Service.DisplayName, rec.Service.Enabled, rec.Service.Adapter, rec.Service.Metadata, time.Now())
	if err != nil {
		return errors.Wrapf(err, "failed to save service %s", cfg.Name)
	}

	for _, table := range []string{"mcp_service_stdio", "mcp_service_sse"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE server_id = $1", cfg.Name); err != nil {
			return errors.Wrapf(err, "failed to clear %s for %s", table, cfg.Name)
		}
	}

	if rec.Stdio != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mcp_service_stdio (server_id, command, args, workdir, env, startup_timeout_ms)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.Stdio.ServerID, rec.Stdio.Command, pq.Array(rec.Stdio.Args), rec.Stdio.Workdir, rec.Stdio.Env, rec.Stdio.StartupTimeoutMs)
		if err != nil {
			return errors.Wrapf(err, "failed to save stdio config for %s", cfg.Name)
		}
	}
	if rec.SSE != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mcp_service_sse (server_id, base_url, headers, timeout_ms)
			VALUES ($1, $2, $3, $4)
		`, rec.SSE.ServerID, rec.SSE.BaseURL, rec.SSE.Headers, rec.SSE.TimeoutMs)
		if err != nil {
			return errors.Wrapf(err, "failed to save sse config for %s", cfg.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// DeleteServerConfig 删除服务器配置，不存在时返回 ErrNotFound
func (ds *DatabaseService) DeleteServerConfig(ctx context.Context, name string) error {
	res, err := ds.db.ExecContext(ctx, "DELETE FROM mcp_service WHERE server_id = $1", name)
	if err != nil {
		return errors.Wrapf(err, "failed to delete service %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Mark(errors.Newf("service with id %s not found", name), models.ErrNotFound)
	}
	return nil
}
