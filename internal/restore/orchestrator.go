package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings of an Orchestrator. Zero values get defaults.
type Config struct {
	// BatchSize is the largest number of records per insert call (default: 100).
	BatchSize int

	// Dangling decides what happens to rows referencing absent parents (default: keep).
	Dangling DanglingPolicy

	// LockKey names the target environment for the concurrency guard (default: "default").
	LockKey string

	// Locker guards against concurrent runs (default: in-process LocalLocker).
	Locker Locker

	// Checkpoints persists progress for resume. Nil disables checkpointing.
	Checkpoints CheckpointStore

	Logger *slog.Logger
}

// Orchestrator runs restores: plan, optional clearing phase, then per-table
// sanitize and batch insert, strictly one table and one batch at a time.
type Orchestrator struct {
	catalog *Catalog
	store   Store
	cfg     Config
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator writing into store.
func NewOrchestrator(catalog *Catalog, store Store, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Dangling == "" {
		cfg.Dangling = DanglingKeep
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "default"
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker(DefaultLockWait)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		catalog: catalog,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}
}

// Catalog returns the catalog the orchestrator plans against.
func (o *Orchestrator) Catalog() *Catalog {
	return o.catalog
}

// run carries the state of one restore invocation.
type run struct {
	resume     bool
	checkpoint *Checkpoint
	sanitizer  *Sanitizer
	inserter   *BatchInserter
	logger     *slog.Logger
}

// Run restores doc into the store.
//
// A *ValidationError is returned before anything is written. Once the lock is
// held the run cannot be cancelled: ctx cancellation is ignored and the run
// goes to completion. Per-batch and per-table failures are reported in the
// summary, not as errors. Anything unexpected, including a panic, is returned
// wrapped in ErrUnexpected with a nil summary.
func (o *Orchestrator) Run(ctx context.Context, doc *BackupDocument, opts Options) (sum *RestoreSummary, err error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	if opts.Resume && o.cfg.Checkpoints == nil {
		return nil, &ValidationError{Field: "options.resume", Reason: "checkpoints are not enabled"}
	}

	master, err := o.catalog.Order()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}

	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("restore panicked", "panic", r, "stack", string(debug.Stack()))
			sum = nil
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
	}()

	var fingerprint string
	if o.cfg.Checkpoints != nil {
		if fingerprint, err = Fingerprint(doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
		}
	}

	release, err := o.cfg.Locker.Acquire(ctx, o.cfg.LockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	// From here on the run is not cancellable.
	ctx = context.WithoutCancel(ctx)

	st := &run{resume: opts.Resume, logger: logger}
	batchSize := o.cfg.BatchSize
	switch {
	case opts.Resume:
		cp, err := o.cfg.Checkpoints.Load(fingerprint)
		if err != nil {
			return nil, err
		}
		if cp.BatchSize > 0 {
			batchSize = cp.BatchSize
		}
		logger.Info("resuming restore", "previous_run_id", cp.RunID, "started", cp.StartTime)
		st.checkpoint = cp
	case o.cfg.Checkpoints != nil:
		st.checkpoint = NewCheckpoint(fingerprint, runID, batchSize)
	}

	plan := BuildPlan(master, doc, opts.RestoreTables)
	if st.checkpoint != nil && !opts.Resume {
		o.carryOver(st.checkpoint, plan, logger)
	}
	sum = &RestoreSummary{
		RunID:     runID,
		Plan:      plan,
		PerTable:  make(map[TableName]*TableRestoreResult, len(plan)),
		Resumed:   opts.Resume,
		StartedAt: time.Now(),
	}
	for _, table := range plan {
		sum.PerTable[table] = newTableResult(table)
	}

	if unknown := UnknownTables(master, doc); len(unknown) > 0 {
		logger.Warn("ignoring tables unknown to the catalog", "tables", unknown)
	}
	logger.Info("restore started",
		"tables", len(plan),
		"clear_existing", opts.ClearExisting,
		"resume", opts.Resume,
		"batch_size", batchSize,
	)

	// The clearing phase finishes for every table before any insert starts.
	if opts.ClearExisting {
		if opts.Resume {
			logger.Info("skipping clearing phase on resume")
		} else {
			sum.Cleared = clearTables(ctx, o.store, plan, logger)
		}
	}
	o.saveCheckpoint(st)

	st.sanitizer = NewSanitizer(o.catalog, doc, plan, o.cfg.Dangling)
	st.inserter = NewBatchInserter(o.store, batchSize, logger)

	for _, table := range plan {
		o.restoreTable(ctx, st, table, doc.Data[table], sum.PerTable[table])
	}

	summarize(sum)
	sum.Duration = time.Since(sum.StartedAt)

	if st.checkpoint != nil && st.checkpoint.Complete() {
		if err := o.cfg.Checkpoints.Delete(st.checkpoint.Fingerprint); err != nil {
			logger.Warn("failed to delete checkpoint", "error", err)
		}
	}

	logger.Info("restore finished",
		"success", sum.OverallSuccess,
		"total_inserted", sum.TotalInserted,
		"failed_tables", sum.FailedTables,
		"duration_ms", sum.Duration.Milliseconds(),
	)
	return sum, nil
}

// restoreTable sanitizes and inserts one table, then records its outcome.
func (o *Orchestrator) restoreTable(ctx context.Context, st *run, table TableName, records []Record, res *TableRestoreResult) {
	def, _ := o.catalog.Get(table)
	logger := st.logger.With("table", table)
	res.Status = StatusRestoring
	res.Records = len(records)

	clean, rejected := st.sanitizer.Sanitize(def, records)
	res.Rejected = rejected
	if rejected > 0 {
		logger.Warn("rows rejected for dangling references", "rejected", rejected, "policy", o.cfg.Dangling)
	}

	size := st.inserter.Size()
	spans := chunkSpans(0, len(clean), size)
	previous := 0

	if st.checkpoint != nil {
		p, ok := st.checkpoint.Progress(table)
		switch {
		case st.resume && ok && p.Done && len(p.FailedOffsets) == 0:
			res.complete(p.Inserted, 0, 0, nil)
			res.Resumed = true
			logger.Info("table already restored by previous run", "inserted", p.Inserted)
			return
		case st.resume && ok:
			spans = p.resumeSpans(len(clean), size)
			previous = p.Inserted
			res.Resumed = true
		default:
			st.checkpoint.Reset(table)
		}
	}

	var onBatch func(BatchOutcome)
	if st.checkpoint != nil {
		onBatch = func(b BatchOutcome) {
			st.checkpoint.RecordBatch(table, b)
			o.saveCheckpoint(st)
		}
	}

	out := st.inserter.insertSpans(ctx, table, clean, spans, onBatch)
	res.complete(previous+out.Inserted, out.Batches, out.Attempted, out.Errors)

	if st.checkpoint != nil {
		st.checkpoint.MarkDone(table)
		o.saveCheckpoint(st)
	}

	attrs := []any{
		"status", res.Status,
		"attempted", res.Attempted,
		"inserted", res.Inserted,
		"failed_batches", res.Failed,
	}
	if res.Status == StatusFailed {
		logger.Error("table restore failed", append(attrs, "error", res.Error)...)
	} else {
		logger.Info("table restored", attrs...)
	}
}

func (o *Orchestrator) saveCheckpoint(st *run) {
	if st.checkpoint == nil {
		return
	}
	if err := o.cfg.Checkpoints.Save(st.checkpoint); err != nil {
		st.logger.Warn("failed to save checkpoint", "error", err)
	}
}

// carryOver copies saved progress of tables outside plan into a fresh
// checkpoint, so a subset run does not discard what is left to resume.
// Progress saved with another batch size cannot be replayed and is dropped.
func (o *Orchestrator) carryOver(cp *Checkpoint, plan []TableName, logger *slog.Logger) {
	prev, err := o.cfg.Checkpoints.Load(cp.Fingerprint)
	if err != nil {
		if !errors.Is(err, ErrNoCheckpoint) {
			logger.Warn("ignoring unreadable checkpoint", "error", err)
		}
		return
	}
	if prev.BatchSize != cp.BatchSize {
		logger.Warn("discarding checkpoint saved with another batch size",
			"previous_batch_size", prev.BatchSize,
			"batch_size", cp.BatchSize,
		)
		return
	}

	inPlan := make(map[TableName]bool, len(plan))
	for _, table := range plan {
		inPlan[table] = true
	}
	for table := range prev.Tables {
		if inPlan[table] {
			continue
		}
		if p, ok := prev.Progress(table); ok {
			cp.setProgress(table, p)
		}
	}
}

// TablePreview describes how one planned table would be restored.
type TablePreview struct {
	Table      TableName   `json:"table"`
	Records    int         `json:"records"`
	Batches    int         `json:"batches"`
	IDPolicy   IDPolicy    `json:"idPolicy"`
	References []TableName `json:"references,omitempty"`
}

// PlanPreview is what a restore would do, computed without touching the store.
type PlanPreview struct {
	Tables       []TablePreview `json:"tables"`
	ClearOrder   []TableName    `json:"clearOrder,omitempty"`
	Ignored      []TableName    `json:"ignored,omitempty"`
	TotalRecords int            `json:"totalRecords"`
	BatchSize    int            `json:"batchSize"`
}

// Preview validates doc and returns the plan a Run with the same options
// would follow.
func (o *Orchestrator) Preview(doc *BackupDocument, opts Options) (*PlanPreview, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	master, err := o.catalog.Order()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}

	plan := BuildPlan(master, doc, opts.RestoreTables)
	preview := &PlanPreview{BatchSize: o.cfg.BatchSize}
	inPlan := make(map[TableName]bool, len(plan))

	for _, table := range plan {
		inPlan[table] = true
		def, _ := o.catalog.Get(table)
		n := len(doc.Data[table])

		tp := TablePreview{
			Table:    table,
			Records:  n,
			Batches:  len(chunkSpans(0, n, o.cfg.BatchSize)),
			IDPolicy: def.IDPolicy,
		}
		for _, ref := range def.References {
			if ref.Table != table {
				tp.References = append(tp.References, ref.Table)
			}
		}
		preview.Tables = append(preview.Tables, tp)
		preview.TotalRecords += n
	}

	if opts.ClearExisting && !opts.Resume {
		preview.ClearOrder = ClearOrder(plan)
	}

	for table := range doc.Data {
		if !inPlan[table] {
			preview.Ignored = append(preview.Ignored, table)
		}
	}
	sortTableNames(preview.Ignored)

	return preview, nil
}
