package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Row maps a column alias to its scalar value.
type Row map[string]any

type Result struct {
	Columns  []string      `json:"columns"`
	Rows     []Row         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Engine executes an approved statement verbatim against the analytics store.
type Engine interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
	HealthCheck(ctx context.Context) error
}

// ExecutionError wraps any store-level failure while running a statement.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute statement: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CollectRows drains a result set into column-keyed rows. Byte slices are
// normalized to strings so drivers that return raw bytes for text columns
// produce comparable values.
func CollectRows(rows *sql.Rows) ([]string, []Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	collected := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			switch typed := values[i].(type) {
			case []byte:
				row[column] = string(typed)
			default:
				row[column] = typed
			}
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, collected, nil
}
