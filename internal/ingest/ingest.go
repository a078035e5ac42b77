// Package ingest drives the end-to-end sync: parse the [SYNC: ...]
// directive, materialize each requested table in order, report progress,
// and honor cooperative cancellation.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/bmsoft/zecao/internal/directive"
	"github.com/bmsoft/zecao/internal/materializer"
	"github.com/bmsoft/zecao/internal/schema"
)

// DirectiveMissing is returned when the SQL carries no [SYNC: ...] tasks.
var DirectiveMissing = errors.New("ingest: [SYNC: ...] directive not found")

// Cancelled is returned when cancellation is observed at a task boundary or
// inside a materializer's row loop.
var Cancelled = materializer.Cancelled

// SchemaMissing is returned when a directive references a table the schema
// registry doesn't know about.
type SchemaMissing struct {
	Table string
}

func (e *SchemaMissing) Error() string { return fmt.Sprintf("ingest: table %q not mapped in schema", e.Table) }

// TableResult summarizes one materialized table.
type TableResult struct {
	Table string
	Rows  int64
}

// Summary is returned alongside a nil error on a fully successful run.
type Summary struct {
	Tables   []TableResult
	Duration time.Duration
}

// Process runs the full ingest pipeline against user SQL: parse the
// directive, materialize each task's table in order via db, and call
// onProgress after each completed task with (completed/total)*100. It
// short-circuits on the first failed task — tables already committed stay in
// db, since the next run re-drops them.
func Process(ctx context.Context, db *sql.DB, reg *schema.Registry, basePath string, userSQL string, cancel *atomic.Bool, onProgress func(float32)) (Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	runLog := log.With("run", runID)

	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = OFF"); err != nil {
		runLog.Warn("failed to set synchronous pragma", "err", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = MEMORY"); err != nil {
		runLog.Warn("failed to set journal_mode pragma", "err", err)
	}

	tasks := directive.Parse(userSQL)
	if len(tasks) == 0 {
		return Summary{}, DirectiveMissing
	}

	summary := Summary{Tables: make([]TableResult, 0, len(tasks))}

	for idx, task := range tasks {
		if cancel != nil && cancel.Load() {
			return summary, Cancelled
		}

		cfg, ok := reg.Lookup(task.Table)
		if !ok {
			return summary, &SchemaMissing{Table: task.Table}
		}

		selected := schema.ColumnsByName(cfg, task.Columns, task.Star)

		runLog.Info("materializing table", "table", task.Table, "columns", len(selected))

		if err := materializer.Materialize(ctx, db, basePath, task.Table, cfg, selected, cancel); err != nil {
			return summary, err
		}

		var rows int64
		_ = db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, task.Table)).Scan(&rows)
		summary.Tables = append(summary.Tables, TableResult{Table: task.Table, Rows: rows})

		pct := (float32(idx+1) / float32(len(tasks))) * 100.0
		if onProgress != nil {
			onProgress(pct)
		}
	}

	summary.Duration = time.Since(start)
	return summary, nil
}
