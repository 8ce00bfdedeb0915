package restore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memRecorder struct {
	mu   sync.Mutex
	runs []RunRecord
	err  error
}

func (m *memRecorder) RecordRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, rec)
	return nil
}

func (m *memRecorder) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunRecord, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// slowStore blocks every insert until gate is closed.
type slowStore struct {
	*fakeStore
	gate chan struct{}
}

func (s *slowStore) InsertBatch(ctx context.Context, table TableName, records []Record) (int, error) {
	<-s.gate
	return s.fakeStore.InsertBatch(ctx, table, records)
}

func TestService_RestoreRecordsRun(t *testing.T) {
	rec := &memRecorder{}
	svc := NewService(newTestOrchestrator(t, newFakeStore(), Config{}), rec, time.Second, discardLogger())

	doc := &BackupDocument{Data: map[TableName][]Record{"categories": makeRecords(3, nil)}}
	caller := Caller{Actor: "key:abcd****", IPAddress: "10.0.0.1"}
	sum, err := svc.Restore(context.Background(), caller, doc, Options{})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	runs, _ := svc.ListRuns(context.Background(), 10)
	if len(runs) != 1 {
		t.Fatalf("ListRuns() returned %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != sum.RunID || got.Actor != caller.Actor || got.IPAddress != caller.IPAddress {
		t.Errorf("run = %+v", got)
	}
	if !got.Success || got.TotalInserted != 3 || got.Tables != 1 {
		t.Errorf("run Success = %v, TotalInserted = %d, Tables = %d", got.Success, got.TotalInserted, got.Tables)
	}
}

func TestService_RejectedRunsNotRecorded(t *testing.T) {
	rec := &memRecorder{}
	locker := NewLocalLocker(10 * time.Millisecond)
	svc := NewService(newTestOrchestrator(t, newFakeStore(), Config{Locker: locker}), rec, time.Second, discardLogger())

	if _, err := svc.Restore(context.Background(), Caller{}, nil, Options{}); err == nil {
		t.Error("Restore(nil) error = nil")
	}

	release, _ := locker.Acquire(context.Background(), "default")
	doc := &BackupDocument{Data: map[TableName][]Record{"categories": makeRecords(1, nil)}}
	if _, err := svc.Restore(context.Background(), Caller{}, doc, Options{}); !errors.Is(err, ErrRestoreInProgress) {
		t.Errorf("Restore() error = %v, want ErrRestoreInProgress", err)
	}
	release()

	if n := rec.count(); n != 0 {
		t.Errorf("recorded %d runs, want 0", n)
	}
}

func TestService_RecorderFailureIsNotFatal(t *testing.T) {
	rec := &memRecorder{err: errors.New("history table missing")}
	svc := NewService(newTestOrchestrator(t, newFakeStore(), Config{}), rec, time.Second, discardLogger())

	doc := &BackupDocument{Data: map[TableName][]Record{"categories": makeRecords(1, nil)}}
	if _, err := svc.Restore(context.Background(), Caller{}, doc, Options{}); err != nil {
		t.Errorf("Restore() error = %v, want nil", err)
	}
}

func TestService_Timeout(t *testing.T) {
	store := &slowStore{fakeStore: newFakeStore(), gate: make(chan struct{})}
	locker := NewLocalLocker(10 * time.Millisecond)
	rec := &memRecorder{}
	svc := NewService(newTestOrchestrator(t, store, Config{Locker: locker}), rec, 20*time.Millisecond, discardLogger())

	doc := &BackupDocument{Data: map[TableName][]Record{"categories": makeRecords(2, nil)}}
	sum, err := svc.Restore(context.Background(), Caller{Actor: "ops"}, doc, Options{})
	if !errors.Is(err, ErrRestoreTimeout) {
		t.Fatalf("Restore() error = %v, want ErrRestoreTimeout", err)
	}
	if sum != nil {
		t.Error("summary returned on timeout")
	}

	if svc.ActiveRuns() != 1 {
		t.Errorf("ActiveRuns() = %d, want 1 while the run continues", svc.ActiveRuns())
	}
	if !locker.Held("default") {
		t.Error("lock released before the run finished")
	}

	close(store.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}

	if store.rows["categories"] != 2 {
		t.Errorf("categories rows = %d, want 2 after the run completed", store.rows["categories"])
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d runs, want 1", rec.count())
	}
	if locker.Held("default") {
		t.Error("lock still held after the run finished")
	}
}

func TestService_WaitForDrainHonorsContext(t *testing.T) {
	store := &slowStore{fakeStore: newFakeStore(), gate: make(chan struct{})}
	defer close(store.gate)
	svc := NewService(newTestOrchestrator(t, store, Config{}), nil, 10*time.Millisecond, discardLogger())

	doc := &BackupDocument{Data: map[TableName][]Record{"categories": makeRecords(1, nil)}}
	_, _ = svc.Restore(context.Background(), Caller{}, doc, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := svc.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestService_ListRunsWithoutRecorder(t *testing.T) {
	svc := NewService(newTestOrchestrator(t, newFakeStore(), Config{}), nil, 0, discardLogger())

	runs, err := svc.ListRuns(context.Background(), 5)
	if err != nil || runs == nil || len(runs) != 0 {
		t.Errorf("ListRuns() = %v, %v; want empty, nil", runs, err)
	}
}

func TestService_Tables(t *testing.T) {
	svc := NewService(newTestOrchestrator(t, newFakeStore(), Config{}), nil, 0, discardLogger())

	infos, err := svc.Tables()
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	var names []TableName
	for _, info := range infos {
		names = append(names, info.Name)
	}
	want := tableNames("categories", "profiles", "products", "favorites", "site_settings")
	if !equalNames(names, want) {
		t.Errorf("Tables() = %v, want %v", names, want)
	}
	if last := infos[len(infos)-1]; last.IDField != "key" || last.IDPolicy != Preserve {
		t.Errorf("site_settings = %+v", last)
	}
}
