package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/warehouse"
)

type Engine struct {
	db *sql.DB
}

func Open(ctx context.Context, cfg config.WarehouseConfig) (*Engine, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return &Engine{db: db}, nil
}

// NewEngine wraps an existing handle; used by tests.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Execute(ctx context.Context, sqlText string) (warehouse.Result, error) {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return warehouse.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, trimmed)
	if err != nil {
		return warehouse.Result{}, &warehouse.ExecutionError{SQL: trimmed, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, collected, err := warehouse.CollectRows(rows)
	if err != nil {
		return warehouse.Result{}, &warehouse.ExecutionError{SQL: trimmed, Err: err}
	}

	return warehouse.Result{
		Columns:  columns,
		Rows:     collected,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping warehouse: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}
