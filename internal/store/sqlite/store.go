// Package sqlite implements the restore store on SQLite using database/sql
// and the pure Go modernc.org/sqlite driver. It backs local development and
// the integration tests of the restore engine.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/classifieds/internal/restore"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// Options tunes insert behavior.
type Options struct {
	// SkipDuplicates uses INSERT OR IGNORE; ignored rows are not counted.
	SkipDuplicates bool
}

// Store writes restore batches into SQLite.
type Store struct {
	db   *sql.DB
	opts Options
}

// New opens a SQLite database and returns a Store plus a close function.
//
// DSN is passed directly to database/sql, for example:
//
//	"file:classifieds.db"
//	"file::memory:"
//
// Foreign keys are enabled on the connection.
func New(ctx context.Context, dsn string, opts Options) (*Store, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One connection: SQLite has a single writer, an in-memory database
	// exists per connection, and PRAGMAs are per connection too.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Store{db: db, opts: opts}, closeFn, nil
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Exec runs an arbitrary statement, typically DDL.
func (s *Store) Exec(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("sqlite: Exec: empty statement")
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// CreateTables runs DDL statements in one transaction.
func (s *Store) CreateTables(ctx context.Context, stmts []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: create tables: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// DeleteAll removes every row of a table.
func (s *Store) DeleteAll(ctx context.Context, table restore.TableName) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+quoteIdentifier(string(table))); err != nil {
		return fmt.Errorf("sqlite: delete all from %s: %w", table, err)
	}
	return nil
}

// InsertBatch inserts records in one transaction, one statement per record
// so each row only names the columns it carries. Any failure rolls the whole
// batch back and reports zero rows.
func (s *Store) InsertBatch(ctx context.Context, table restore.TableName, records []restore.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}

	verb := "INSERT"
	if s.opts.SkipDuplicates {
		verb = "INSERT OR IGNORE"
	}

	inserted := 0
	for i, rec := range records {
		query, args, err := buildInsert(verb, string(table), rec)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: record %d: %w", i, err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// buildInsert renders an INSERT for one record. A record without columns
// inserts a row of defaults.
func buildInsert(verb, table string, rec restore.Record) (string, []any, error) {
	if len(rec) == 0 {
		return verb + " INTO " + quoteIdentifier(table) + " DEFAULT VALUES", nil, nil
	}

	cols := make([]string, 0, len(rec))
	for c := range rec {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		v, err := sqlValue(rec[c])
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", c, err)
		}
		quoted[i] = quoteIdentifier(c)
		placeholders[i] = "?"
		args[i] = v
	}

	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb,
		quoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args, nil
}

// sqlValue converts a decoded JSON value into a driver argument.
// Objects and arrays are stored as JSON text.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		if f, err := x.Float64(); err == nil {
			return f, nil
		}
		return x.String(), nil
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return v, nil
	}
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
