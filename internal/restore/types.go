package restore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TableName identifies a restorable table.
type TableName string

// Record is one row of a backup: column name to value.
// Values are whatever the JSON decoder produced (string, json.Number,
// bool, nil, map[string]any, []any).
type Record map[string]any

// BackupDocument is the snapshot handed to a restore run.
type BackupDocument struct {
	Metadata json.RawMessage        `json:"metadata,omitempty"`
	Data     map[TableName][]Record `json:"data"`
}

// Options controls a single restore run.
type Options struct {
	// ClearExisting deletes current rows of every planned table before inserting.
	ClearExisting bool `json:"clearExisting"`

	// RestoreTables limits the run to these tables. Nil means every table in the
	// document; an empty, non-nil list restores nothing.
	RestoreTables []TableName `json:"restoreTables,omitempty"`

	// Resume continues a previous run of the same document from its checkpoint.
	Resume bool `json:"resume,omitempty"`
}

// Store is the persistent store a restore writes into.
type Store interface {
	// DeleteAll removes every row of a table.
	DeleteAll(ctx context.Context, table TableName) error

	// InsertBatch writes records and returns the number of rows actually written.
	InsertBatch(ctx context.Context, table TableName, records []Record) (int, error)
}

// IDPolicy decides what happens to a row's identity field before insert.
type IDPolicy int

const (
	// Regenerate strips the identity so the store assigns a new one.
	Regenerate IDPolicy = iota
	// Preserve keeps the identity as it appears in the backup.
	Preserve
)

func (p IDPolicy) String() string {
	if p == Preserve {
		return "preserve"
	}
	return "regenerate"
}

// MarshalText renders the policy as "preserve" or "regenerate".
func (p IDPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses "preserve" or "regenerate".
func (p *IDPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "preserve":
		*p = Preserve
	case "regenerate":
		*p = Regenerate
	default:
		return fmt.Errorf("unknown id policy %q", text)
	}
	return nil
}

// TableStatus is the per-table state of a run.
type TableStatus string

const (
	StatusPending   TableStatus = "pending"
	StatusRestoring TableStatus = "restoring"
	StatusSuccess   TableStatus = "success"
	StatusPartial   TableStatus = "partial"
	StatusFailed    TableStatus = "failed"
)

// TableRestoreResult is the outcome of restoring one table.
type TableRestoreResult struct {
	Table     TableName   `json:"table"`
	Status    TableStatus `json:"status"`
	Records   int         `json:"records"`
	Attempted int         `json:"attempted"` // records sent to the store by this run
	Inserted  int         `json:"inserted"`
	Rejected  int         `json:"rejected,omitempty"`
	Batches   int         `json:"batches"`
	Failed    int         `json:"failedBatches,omitempty"`
	Resumed   bool        `json:"resumed,omitempty"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
}

// ClearResult reports the delete-all of one table during the clearing phase.
type ClearResult struct {
	Table TableName `json:"table"`
	Error string    `json:"error,omitempty"`
}

// RestoreSummary is the result of one restore run.
type RestoreSummary struct {
	RunID          string                            `json:"runId"`
	OverallSuccess bool                              `json:"overallSuccess"`
	TotalInserted  int                               `json:"totalInserted"`
	Plan           []TableName                       `json:"plan"`
	Cleared        []ClearResult                     `json:"cleared,omitempty"`
	PerTable       map[TableName]*TableRestoreResult `json:"perTable"`
	FailedTables   []TableName                       `json:"failedTables,omitempty"`
	Resumed        bool                              `json:"resumed,omitempty"`
	StartedAt      time.Time                         `json:"startedAt"`
	Duration       time.Duration                     `json:"duration"`
}
