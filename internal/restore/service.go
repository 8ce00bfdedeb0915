package restore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Caller identifies who started a restore, for run history.
type Caller struct {
	Actor     string
	IPAddress string
	UserAgent string
}

// RunRecord is one entry of the restore run history.
type RunRecord struct {
	ID            string      `json:"id"`
	Actor         string      `json:"actor,omitempty"`
	IPAddress     string      `json:"ipAddress,omitempty"`
	StartedAt     time.Time   `json:"startedAt"`
	DurationMs    int64       `json:"durationMs"`
	Success       bool        `json:"success"`
	Resumed       bool        `json:"resumed,omitempty"`
	Tables        int         `json:"tables"`
	TotalInserted int         `json:"totalInserted"`
	FailedTables  []TableName `json:"failedTables,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// RunRecorder stores restore run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Service is the entry point used by transports. It adds a caller-side
// timeout, run history and shutdown draining around the Orchestrator.
type Service struct {
	orch     *Orchestrator
	recorder RunRecorder
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	active int
}

// NewService creates a Service. recorder may be nil. A non-positive timeout
// waits for every run to finish.
func NewService(orch *Orchestrator, recorder RunRecorder, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orch:     orch,
		recorder: recorder,
		timeout:  timeout,
		logger:   logger,
	}
}

type runOutcome struct {
	sum *RestoreSummary
	err error
}

// Restore runs a restore and waits for it at most the configured timeout.
//
// On timeout ErrRestoreTimeout is returned while the run continues in the
// background, still holding the lock, until it completes. Its state is
// unknown to the caller, who must re-verify row counts before retrying.
func (s *Service) Restore(ctx context.Context, caller Caller, doc *BackupDocument, opts Options) (*RestoreSummary, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	done := make(chan runOutcome, 1)
	started := time.Now()

	s.track(1)
	go func() {
		defer s.track(-1)
		sum, err := s.orch.Run(runCtx, doc, opts)
		s.record(runCtx, caller, started, sum, err)
		done <- runOutcome{sum: sum, err: err}
	}()

	if s.timeout <= 0 {
		out := <-done
		return out.sum, out.err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.sum, out.err
	case <-timer.C:
		s.logger.Warn("restore still running after timeout; state unknown until it finishes",
			"timeout", s.timeout,
			"actor", caller.Actor,
		)
		return nil, ErrRestoreTimeout
	}
}

// Preview returns the plan a restore would follow without touching the store.
func (s *Service) Preview(doc *BackupDocument, opts Options) (*PlanPreview, error) {
	return s.orch.Preview(doc, opts)
}

// TableInfo describes one restorable table.
type TableInfo struct {
	Name       TableName   `json:"name"`
	Tier       string      `json:"tier"`
	IDPolicy   IDPolicy    `json:"idPolicy"`
	IDField    string      `json:"idField"`
	References []Reference `json:"references,omitempty"`
}

// Tables lists the catalog in master order.
func (s *Service) Tables() ([]TableInfo, error) {
	defs, err := s.orch.Catalog().Definitions()
	if err != nil {
		return nil, err
	}

	infos := make([]TableInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, TableInfo{
			Name:       def.Name,
			Tier:       def.Tier.String(),
			IDPolicy:   def.IDPolicy,
			IDField:    def.Identity(),
			References: def.References,
		})
	}
	return infos, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.recorder == nil {
		return []RunRecord{}, nil
	}
	return s.recorder.ListRuns(ctx, limit)
}

// record writes a run to history. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, caller Caller, started time.Time, sum *RestoreSummary, runErr error) {
	var verr *ValidationError
	switch {
	case errors.As(runErr, &verr),
		errors.Is(runErr, ErrRestoreInProgress),
		errors.Is(runErr, ErrNoCheckpoint):
		// Rejected before anything ran.
		return
	}

	rec := RunRecord{
		Actor:      caller.Actor,
		IPAddress:  caller.IPAddress,
		StartedAt:  started,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if sum != nil {
		rec.ID = sum.RunID
		rec.Success = sum.OverallSuccess
		rec.Resumed = sum.Resumed
		rec.Tables = len(sum.Plan)
		rec.TotalInserted = sum.TotalInserted
		rec.FailedTables = sum.FailedTables
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	s.logger.Info("restore run recorded",
		"run_id", rec.ID,
		"actor", rec.Actor,
		"success", rec.Success,
		"total_inserted", rec.TotalInserted,
		"failed_tables", rec.FailedTables,
	)

	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRun(ctx, rec); err != nil {
		s.logger.Error("failed to record restore run", "run_id", rec.ID, "error", err)
	}
}

func (s *Service) track(delta int) {
	s.mu.Lock()
	s.active += delta
	s.mu.Unlock()
}

// ActiveRuns returns the number of restores currently running.
func (s *Service) ActiveRuns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// WaitForDrain blocks until all running restores complete or ctx is done.
// Used for graceful shutdown so a restore is not cut off mid-table.
func (s *Service) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.ActiveRuns() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
