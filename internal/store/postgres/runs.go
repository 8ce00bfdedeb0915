package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/classifieds/internal/restore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS admin_restore_runs (
	id             uuid PRIMARY KEY,
	actor          text NOT NULL DEFAULT '',
	ip_address     text NOT NULL DEFAULT '',
	started_at     timestamptz NOT NULL,
	duration_ms    bigint NOT NULL,
	success        boolean NOT NULL,
	resumed        boolean NOT NULL DEFAULT false,
	tables         integer NOT NULL,
	total_inserted integer NOT NULL,
	failed_tables  text[] NOT NULL DEFAULT '{}',
	error          text NOT NULL DEFAULT ''
)`

// RunRecorder stores restore run history in admin_restore_runs.
type RunRecorder struct {
	db DBTX
}

// NewRunRecorder creates a recorder on db.
func NewRunRecorder(db DBTX) *RunRecorder {
	return &RunRecorder{db: db}
}

// EnsureSchema creates the history table if it does not exist.
func (r *RunRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create admin_restore_runs: %w", err)
	}
	return nil
}

// RecordRun inserts one history row. Runs without an ID get a fresh one.
func (r *RunRecorder) RecordRun(ctx context.Context, rec restore.RunRecord) error {
	id := uuid.New()
	if rec.ID != "" {
		parsed, err := uuid.Parse(rec.ID)
		if err != nil {
			return fmt.Errorf("invalid run ID: %w", err)
		}
		id = parsed
	}

	failed := make([]string, len(rec.FailedTables))
	for i, t := range rec.FailedTables {
		failed[i] = string(t)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO admin_restore_runs
			(id, actor, ip_address, started_at, duration_ms, success, resumed, tables, total_inserted, failed_tables, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pgtype.UUID{Bytes: id, Valid: true},
		rec.Actor,
		rec.IPAddress,
		rec.StartedAt,
		rec.DurationMs,
		rec.Success,
		rec.Resumed,
		rec.Tables,
		rec.TotalInserted,
		failed,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert restore run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRecorder) ListRuns(ctx context.Context, limit int) ([]restore.RunRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, actor, ip_address, started_at, duration_ms, success, resumed, tables, total_inserted, failed_tables, error
		FROM admin_restore_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query restore runs: %w", err)
	}
	defer rows.Close()

	runs := make([]restore.RunRecord, 0)
	for rows.Next() {
		var (
			id     pgtype.UUID
			failed []string
			rec    restore.RunRecord
		)
		if err := rows.Scan(&id, &rec.Actor, &rec.IPAddress, &rec.StartedAt, &rec.DurationMs,
			&rec.Success, &rec.Resumed, &rec.Tables, &rec.TotalInserted, &failed, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan restore run: %w", err)
		}
		rec.ID = uuid.UUID(id.Bytes).String()
		for _, t := range failed {
			rec.FailedTables = append(rec.FailedTables, restore.TableName(t))
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}
