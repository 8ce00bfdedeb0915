package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// insertCall is one InsertBatch invocation seen by fakeStore.
type insertCall struct {
	Table   TableName
	Records []Record
}

// fakeStore records every call. failBatch decides per call whether the
// insert errors; failDelete does the same for DeleteAll.
type fakeStore struct {
	mu      sync.Mutex
	ops     []string // "delete:<table>" and "insert:<table>" in call order
	inserts []insertCall
	rows    map[TableName]int

	failBatch  func(table TableName, call int, records []Record) error
	failDelete func(table TableName) error
	panicOn    TableName
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[TableName]int)}
}

func (f *fakeStore) DeleteAll(_ context.Context, table TableName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete:"+string(table))
	if f.failDelete != nil {
		if err := f.failDelete(table); err != nil {
			return err
		}
	}
	f.rows[table] = 0
	return nil
}

func (f *fakeStore) InsertBatch(_ context.Context, table TableName, records []Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if table == f.panicOn {
		panic("store exploded")
	}

	call := 0
	for _, c := range f.inserts {
		if c.Table == table {
			call++
		}
	}
	f.ops = append(f.ops, "insert:"+string(table))
	f.inserts = append(f.inserts, insertCall{Table: table, Records: records})

	if f.failBatch != nil {
		if err := f.failBatch(table, call, records); err != nil {
			return 0, err
		}
	}
	f.rows[table] += len(records)
	return len(records), nil
}

// insertsFor returns the calls made for one table.
func (f *fakeStore) insertsFor(table TableName) []insertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []insertCall
	for _, c := range f.inserts {
		if c.Table == table {
			out = append(out, c)
		}
	}
	return out
}

// tableOrder returns the distinct tables of ops with the given prefix, in
// first-seen order.
func (f *fakeStore) tableOrder(prefix string) []TableName {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []TableName
	for _, op := range f.ops {
		if len(op) <= len(prefix) || op[:len(prefix)] != prefix {
			continue
		}
		name := op[len(prefix):]
		if !seen[name] {
			seen[name] = true
			out = append(out, TableName(name))
		}
	}
	return out
}

func (f *fakeStore) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

var errBatch = errors.New("insert or update violates foreign key constraint")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// marketCatalog is a small slice of the marketplace schema.
func marketCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(
		TableDefinition{Name: "categories", Tier: TierReference, IDPolicy: Preserve,
			References: []Reference{{Column: "parent_id", Table: "categories"}}},
		TableDefinition{Name: "profiles", Tier: TierOwner, IDPolicy: Preserve},
		TableDefinition{Name: "products", Tier: TierEntity, IDPolicy: Regenerate,
			References: []Reference{{Column: "category_id", Table: "categories"}, {Column: "seller_id", Table: "profiles"}}},
		TableDefinition{Name: "favorites", Tier: TierDependent, IDPolicy: Regenerate,
			References: []Reference{{Column: "user_id", Table: "profiles"}, {Column: "product_id", Table: "products"}}},
		TableDefinition{Name: "site_settings", Tier: TierSingleton, IDPolicy: Preserve, IDField: "key"},
	)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c
}

// makeRecords builds n records with sequential ids.
func makeRecords(n int, extra func(i int, r Record)) []Record {
	out := make([]Record, n)
	for i := range out {
		r := Record{"id": fmt.Sprintf("r%d", i), "n": i}
		if extra != nil {
			extra(i, r)
		}
		out[i] = r
	}
	return out
}

func newTestOrchestrator(t *testing.T, store Store, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	return NewOrchestrator(marketCatalog(t), store, cfg)
}

func tableNames(names ...string) []TableName {
	out := make([]TableName, len(names))
	for i, n := range names {
		out[i] = TableName(n)
	}
	return out
}

func equalNames(a, b []TableName) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
