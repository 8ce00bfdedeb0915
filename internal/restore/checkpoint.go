package restore

// checkpoint.go persists per-table progress so an interrupted or partly
// failed run can be resumed instead of restarted.
//
// A checkpoint is keyed by the fingerprint of the backup data. It records,
// per table, the offset after the last processed batch, the rows inserted so
// far and the offsets of batches that failed. Resuming skips the clearing
// phase, retries failed batches and continues from the saved offset.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// ErrNoCheckpoint is returned when no checkpoint exists for a fingerprint.
var ErrNoCheckpoint = errors.New("no checkpoint for this backup")

// TableProgress is the saved progress of one table.
type TableProgress struct {
	Done          bool  `json:"done"`
	Offset        int   `json:"offset"`
	Inserted      int   `json:"inserted"`
	FailedOffsets []int `json:"failed_offsets,omitempty"`
}

// Checkpoint tracks the progress of a restore run.
type Checkpoint struct {
	mu sync.RWMutex

	Fingerprint string                       `json:"fingerprint"`
	RunID       string                       `json:"run_id"`
	BatchSize   int                          `json:"batch_size"`
	StartTime   time.Time                    `json:"start_time"`
	LastUpdate  time.Time                    `json:"last_update"`
	Tables      map[TableName]*TableProgress `json:"tables"`
}

// NewCheckpoint creates an empty checkpoint for a run.
func NewCheckpoint(fingerprint, runID string, batchSize int) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		Fingerprint: fingerprint,
		RunID:       runID,
		BatchSize:   batchSize,
		StartTime:   now,
		LastUpdate:  now,
		Tables:      make(map[TableName]*TableProgress),
	}
}

// Progress returns a copy of the saved progress of a table.
func (cp *Checkpoint) Progress(table TableName) (TableProgress, bool) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	p, ok := cp.Tables[table]
	if !ok {
		return TableProgress{}, false
	}
	out := *p
	out.FailedOffsets = append([]int(nil), p.FailedOffsets...)
	return out, true
}

// Reset discards any saved progress of a table.
func (cp *Checkpoint) Reset(table TableName) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.Tables[table] = &TableProgress{}
	cp.LastUpdate = time.Now()
}

// RecordBatch folds one batch outcome into the table's progress.
func (cp *Checkpoint) RecordBatch(table TableName, b BatchOutcome) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	p := cp.table(table)
	p.Inserted += b.Inserted

	// A retried batch is no longer failed unless it failed again.
	p.FailedOffsets = removeOffset(p.FailedOffsets, b.Offset)
	if b.Err != nil {
		p.FailedOffsets = append(p.FailedOffsets, b.Offset)
		sort.Ints(p.FailedOffsets)
	}

	if end := b.Offset + b.Size; end > p.Offset {
		p.Offset = end
	}
	cp.LastUpdate = time.Now()
}

// MarkDone marks a table as fully processed.
func (cp *Checkpoint) MarkDone(table TableName) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.table(table).Done = true
	cp.LastUpdate = time.Now()
}

// Complete reports whether every table in the checkpoint is done with no
// failed batch left, so nothing remains to resume.
func (cp *Checkpoint) Complete() bool {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	for _, p := range cp.Tables {
		if !p.Done || len(p.FailedOffsets) > 0 {
			return false
		}
	}
	return true
}

// setProgress sets the progress of a table from another checkpoint.
func (cp *Checkpoint) setProgress(table TableName, p TableProgress) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.Tables[table] = &p
}

func (cp *Checkpoint) table(name TableName) *TableProgress {
	p, ok := cp.Tables[name]
	if !ok {
		p = &TableProgress{}
		cp.Tables[name] = p
	}
	return p
}

func removeOffset(offsets []int, off int) []int {
	out := offsets[:0]
	for _, o := range offsets {
		if o != off {
			out = append(out, o)
		}
	}
	return out
}

// resumeSpans returns the spans still to insert for a table with n records:
// every failed batch first, then the unprocessed tail.
func (p TableProgress) resumeSpans(n, size int) []span {
	var spans []span
	for _, off := range p.FailedOffsets {
		if off >= n {
			continue
		}
		end := off + size
		if end > n {
			end = n
		}
		spans = append(spans, span{Start: off, End: end})
	}
	return append(spans, chunkSpans(p.Offset, n, size)...)
}

// CheckpointStore saves and loads checkpoints.
type CheckpointStore interface {
	Load(fingerprint string) (*Checkpoint, error)
	Save(cp *Checkpoint) error
	Delete(fingerprint string) error
}

// FileCheckpointStore keeps one JSON file per fingerprint in a directory.
type FileCheckpointStore struct {
	Dir string
}

// NewFileCheckpointStore creates the directory if needed.
func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "classifieds-restore")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileCheckpointStore{Dir: dir}, nil
}

func (s *FileCheckpointStore) path(fingerprint string) string {
	return filepath.Join(s.Dir, ".restore-checkpoint-"+fingerprint+".json")
}

// Load reads the checkpoint for a fingerprint.
// Returns ErrNoCheckpoint if none was saved.
func (s *FileCheckpointStore) Load(fingerprint string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(fingerprint))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCheckpoint
		}
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("invalid checkpoint file: %w", err)
	}
	if cp.Tables == nil {
		cp.Tables = make(map[TableName]*TableProgress)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically (temp file, then rename).
func (s *FileCheckpointStore) Save(cp *Checkpoint) error {
	cp.mu.RLock()
	data, err := json.MarshalIndent(cp, "", "  ")
	cp.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := s.path(cp.Fingerprint)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Delete removes the checkpoint for a fingerprint. Missing files are ignored.
func (s *FileCheckpointStore) Delete(fingerprint string) error {
	err := os.Remove(s.path(fingerprint))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Fingerprint identifies the data of a backup document. encoding/json sorts
// map keys, so equal data always hashes the same.
func Fingerprint(doc *BackupDocument) (string, error) {
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return "", fmt.Errorf("fingerprint backup: %w", err)
	}
	return fmt.Sprintf("%016x", xxh3.Hash(data)), nil
}
