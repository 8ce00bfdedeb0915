package restore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpoint_RecordBatch(t *testing.T) {
	cp := NewCheckpoint("fp", "run-1", 10)

	cp.RecordBatch("products", BatchOutcome{Offset: 0, Size: 10, Inserted: 10})
	cp.RecordBatch("products", BatchOutcome{Offset: 10, Size: 10, Err: errBatch})
	cp.RecordBatch("products", BatchOutcome{Offset: 20, Size: 4, Inserted: 4})

	p, ok := cp.Progress("products")
	if !ok {
		t.Fatal("Progress() found nothing")
	}
	if p.Offset != 24 || p.Inserted != 14 {
		t.Errorf("Offset = %d, Inserted = %d; want 24, 14", p.Offset, p.Inserted)
	}
	if len(p.FailedOffsets) != 1 || p.FailedOffsets[0] != 10 {
		t.Errorf("FailedOffsets = %v, want [10]", p.FailedOffsets)
	}

	// Retrying the failed batch clears it and does not move the offset back.
	cp.RecordBatch("products", BatchOutcome{Offset: 10, Size: 10, Inserted: 10})
	p, _ = cp.Progress("products")
	if len(p.FailedOffsets) != 0 || p.Offset != 24 || p.Inserted != 24 {
		t.Errorf("after retry = %+v", p)
	}
}

func TestCheckpoint_ProgressIsACopy(t *testing.T) {
	cp := NewCheckpoint("fp", "run-1", 10)
	cp.RecordBatch("products", BatchOutcome{Offset: 0, Size: 10, Err: errBatch})

	p, _ := cp.Progress("products")
	p.FailedOffsets[0] = 99

	again, _ := cp.Progress("products")
	if again.FailedOffsets[0] != 0 {
		t.Errorf("FailedOffsets mutated through a copy: %v", again.FailedOffsets)
	}
}

func TestCheckpoint_ResetAndDone(t *testing.T) {
	cp := NewCheckpoint("fp", "run-1", 10)
	cp.RecordBatch("categories", BatchOutcome{Offset: 0, Size: 5, Inserted: 5})
	cp.MarkDone("categories")

	p, _ := cp.Progress("categories")
	if !p.Done {
		t.Error("Done = false after MarkDone")
	}

	cp.Reset("categories")
	p, _ = cp.Progress("categories")
	if p.Done || p.Offset != 0 || p.Inserted != 0 {
		t.Errorf("after Reset = %+v", p)
	}

	if _, ok := cp.Progress("unknown"); ok {
		t.Error("Progress() found an unknown table")
	}
}

func TestCheckpoint_Complete(t *testing.T) {
	cp := NewCheckpoint("fp", "run-1", 10)
	if !cp.Complete() {
		t.Error("Complete() = false for an empty checkpoint")
	}

	cp.RecordBatch("categories", BatchOutcome{Offset: 0, Size: 5, Inserted: 5})
	if cp.Complete() {
		t.Error("Complete() = true with an unfinished table")
	}
	cp.MarkDone("categories")
	if !cp.Complete() {
		t.Error("Complete() = false with every table done")
	}

	cp.setProgress("products", TableProgress{Done: true, Offset: 20, Inserted: 10, FailedOffsets: []int{10}})
	if cp.Complete() {
		t.Error("Complete() = true with a failed batch left")
	}
}

func TestTableProgress_ResumeSpans(t *testing.T) {
	p := TableProgress{Offset: 30, FailedOffsets: []int{0, 20}}

	got := p.resumeSpans(45, 10)
	want := []span{{0, 10}, {20, 30}, {30, 40}, {40, 45}}
	if len(got) != len(want) {
		t.Fatalf("resumeSpans() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("span[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Offsets beyond the records are dropped and the last span is clipped.
	p = TableProgress{Offset: 8, FailedOffsets: []int{5, 12}}
	got = p.resumeSpans(8, 5)
	if len(got) != 1 || got[0] != (span{5, 8}) {
		t.Errorf("resumeSpans() = %v, want [{5 8}]", got)
	}
}

func TestFileCheckpointStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileCheckpointStore(dir)
	if err != nil {
		t.Fatalf("NewFileCheckpointStore() error = %v", err)
	}

	if _, err := store.Load("abc"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load() error = %v, want ErrNoCheckpoint", err)
	}

	cp := NewCheckpoint("abc", "run-1", 50)
	cp.RecordBatch("products", BatchOutcome{Offset: 0, Size: 50, Err: errBatch})
	cp.MarkDone("categories")
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".restore-checkpoint-abc.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after Save")
	}

	loaded, err := store.Load("abc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.RunID != "run-1" || loaded.BatchSize != 50 {
		t.Errorf("loaded RunID = %q, BatchSize = %d", loaded.RunID, loaded.BatchSize)
	}
	p, _ := loaded.Progress("products")
	if len(p.FailedOffsets) != 1 || p.Offset != 50 {
		t.Errorf("loaded products = %+v", p)
	}
	if c, _ := loaded.Progress("categories"); !c.Done {
		t.Error("loaded categories not done")
	}

	if err := store.Delete("abc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("abc"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := store.Load("abc"); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load() after Delete error = %v", err)
	}
}

func TestFileCheckpointStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileCheckpointStore(dir)
	if err := os.WriteFile(filepath.Join(dir, ".restore-checkpoint-bad.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := store.Load("bad")
	if err == nil || errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load() error = %v, want a decode error", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := &BackupDocument{Data: map[TableName][]Record{
		"categories": {{"id": "c1", "name": "Books"}},
		"products":   {{"title": "Lamp", "price": 12.5}},
	}}
	b := &BackupDocument{
		Metadata: []byte(`{"exportedAt":"2024-05-01"}`),
		Data: map[TableName][]Record{
			"products":   {{"price": 12.5, "title": "Lamp"}},
			"categories": {{"name": "Books", "id": "c1"}},
		},
	}

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	fb, _ := Fingerprint(b)
	if fa != fb {
		t.Errorf("Fingerprint differs for equal data: %s vs %s", fa, fb)
	}
	if len(fa) != 16 {
		t.Errorf("Fingerprint length = %d, want 16", len(fa))
	}

	b.Data["products"][0]["price"] = 13
	if fc, _ := Fingerprint(b); fc == fa {
		t.Error("Fingerprint unchanged after data changed")
	}
}
