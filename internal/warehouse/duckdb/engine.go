package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/warehouse"
)

// Engine runs statements against a local DuckDB database file. An empty path
// opens an in-memory database, which is what the dev and test profiles use.
type Engine struct {
	db *sql.DB
}

func Open(ctx context.Context, cfg config.WarehouseConfig) (*Engine, error) {
	db, err := sql.Open("duckdb", strings.TrimSpace(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Execute(ctx context.Context, sqlText string) (warehouse.Result, error) {
	trimmed := stripTrailingSemicolons(sqlText)
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
		return fmt.Errorf("ping duckdb: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
