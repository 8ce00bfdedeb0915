package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/classifieds/internal/restore"
	"github.com/google/uuid"
)

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const createRunsTable = `
CREATE TABLE IF NOT EXISTS admin_restore_runs (
	id             TEXT PRIMARY KEY,
	actor          TEXT NOT NULL DEFAULT '',
	ip_address     TEXT NOT NULL DEFAULT '',
	started_at     TEXT NOT NULL,
	duration_ms    INTEGER NOT NULL,
	success        INTEGER NOT NULL,
	resumed        INTEGER NOT NULL DEFAULT 0,
	tables         INTEGER NOT NULL,
	total_inserted INTEGER NOT NULL,
	failed_tables  TEXT NOT NULL DEFAULT '[]',
	error          TEXT NOT NULL DEFAULT ''
)`

// EnsureRunsSchema creates the run history table if it does not exist.
func (s *Store) EnsureRunsSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRunsTable); err != nil {
		return fmt.Errorf("sqlite: create admin_restore_runs: %w", err)
	}
	return nil
}

// RecordRun implements restore.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, rec restore.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	failed := rec.FailedTables
	if failed == nil {
		failed = []restore.TableName{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("sqlite: marshal failed tables: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admin_restore_runs
			(id, actor, ip_address, started_at, duration_ms, success, resumed, tables, total_inserted, failed_tables, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Actor,
		rec.IPAddress,
		rec.StartedAt.UTC().Format(timeFormat),
		rec.DurationMs,
		rec.Success,
		rec.Resumed,
		rec.Tables,
		rec.TotalInserted,
		string(failedJSON),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert restore run: %w", err)
	}
	return nil
}

// ListRuns implements restore.RunRecorder.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]restore.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, ip_address, started_at, duration_ms, success, resumed, tables, total_inserted, failed_tables, error
		FROM admin_restore_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query restore runs: %w", err)
	}
	defer rows.Close()

	runs := make([]restore.RunRecord, 0)
	for rows.Next() {
		var (
			rec        restore.RunRecord
			startedAt  string
			failedJSON string
		)
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.IPAddress, &startedAt, &rec.DurationMs,
			&rec.Success, &rec.Resumed, &rec.Tables, &rec.TotalInserted, &failedJSON, &rec.Error); err != nil {
			return nil, fmt.Errorf("sqlite: scan restore run: %w", err)
		}
		if rec.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse started_at: %w", err)
		}
		if err := json.Unmarshal([]byte(failedJSON), &rec.FailedTables); err != nil {
			return nil, fmt.Errorf("sqlite: parse failed tables: %w", err)
		}
		if len(rec.FailedTables) == 0 {
			rec.FailedTables = nil
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}
