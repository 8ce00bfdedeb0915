// Package postgres implements the restore store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/classifieds/internal/restore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Options tunes insert behavior.
type Options struct {
	// SkipDuplicates adds ON CONFLICT DO NOTHING; skipped rows are not counted
	// as inserted.
	SkipDuplicates bool
}

// Store writes restore batches into PostgreSQL.
type Store struct {
	db   DBTX
	opts Options
}

// New creates a Store on db.
func New(db DBTX, opts Options) *Store {
	return &Store{db: db, opts: opts}
}

// DeleteAll removes every row of a table.
// DELETE rather than TRUNCATE so foreign keys from tables outside the plan
// are still enforced.
func (s *Store) DeleteAll(ctx context.Context, table restore.TableName) error {
	query := "DELETE FROM " + quoteIdentifier(string(table))
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("delete all from %s: %w", table, err)
	}
	return nil
}

// InsertBatch inserts records with a single multi-row INSERT and returns the
// number of rows written. The statement is atomic: on error nothing from the
// batch was written.
func (s *Store) InsertBatch(ctx context.Context, table restore.TableName, records []restore.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query, args, err := buildInsert(string(table), records, s.opts.SkipDuplicates)
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return int(tag.RowsAffected()), nil
}

// buildInsert renders a multi-row INSERT over the union of the records'
// columns. A column missing from a record is sent as DEFAULT, so stripped
// identities and omitted columns get the table's defaults.
func buildInsert(table string, records []restore.Record, skipDuplicates bool) (string, []any, error) {
	cols := unionColumns(records)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("insert into %s: records have no columns", table)
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentifier(c)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdentifier(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(cols))
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			v, ok := rec[c]
			if !ok {
				b.WriteString("DEFAULT")
				continue
			}
			arg, err := pgValue(v)
			if err != nil {
				return "", nil, fmt.Errorf("column %s: %w", c, err)
			}
			args = append(args, arg)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}

	if skipDuplicates {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}
	return b.String(), args, nil
}

// unionColumns returns every column used by any record, sorted.
func unionColumns(records []restore.Record) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// pgValue converts a decoded JSON value into a pgx query argument.
// Objects and arrays are sent as JSON text, which suits json/jsonb columns.
func pgValue(v any) (any, error) {
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

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
