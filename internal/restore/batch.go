package restore

import (
	"context"
	"log/slog"
)

// DefaultBatchSize is the largest number of records sent in one insert call.
const DefaultBatchSize = 100

// span is a half-open range [Start, End) of a table's sanitized records.
type span struct {
	Start int
	End   int
}

// chunkSpans splits [from, n) into consecutive spans of at most size records.
func chunkSpans(from, n, size int) []span {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var spans []span
	for start := from; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, span{Start: start, End: end})
	}
	return spans
}

// BatchOutcome is the result of one insert call.
type BatchOutcome struct {
	Offset   int
	Size     int
	Inserted int
	Err      error
}

// tableOutcome accumulates the batches of one table.
type tableOutcome struct {
	Attempted int
	Inserted  int
	Batches   int
	Errors    []error
}

// BatchInserter sends records to the store in bounded chunks.
//
// Chunks are inserted one at a time, each awaited before the next. A failed
// chunk is recorded and skipped; the remaining chunks of the table still run.
type BatchInserter struct {
	store  Store
	size   int
	logger *slog.Logger
}

// NewBatchInserter creates an inserter with the given batch size.
// A non-positive size falls back to DefaultBatchSize.
func NewBatchInserter(store Store, size int, logger *slog.Logger) *BatchInserter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchInserter{store: store, size: size, logger: logger}
}

// Size returns the batch size.
func (b *BatchInserter) Size() int {
	return b.size
}

// Insert inserts every record of a table.
func (b *BatchInserter) Insert(ctx context.Context, table TableName, records []Record) tableOutcome {
	return b.insertSpans(ctx, table, records, chunkSpans(0, len(records), b.size), nil)
}

// insertSpans inserts the given spans of records in order. onBatch, if set,
// is called after every chunk.
func (b *BatchInserter) insertSpans(ctx context.Context, table TableName, records []Record, spans []span, onBatch func(BatchOutcome)) tableOutcome {
	var out tableOutcome

	for _, sp := range spans {
		chunk := records[sp.Start:sp.End]
		res := BatchOutcome{Offset: sp.Start, Size: len(chunk)}

		n, err := b.store.InsertBatch(ctx, table, chunk)
		out.Batches++
		out.Attempted += len(chunk)

		// A store may write part of a chunk before failing; count what it reports.
		res.Inserted = n
		out.Inserted += n
		if err != nil {
			res.Err = err
			out.Errors = append(out.Errors, err)
			b.logger.Warn("batch insert failed",
				"table", table,
				"offset", sp.Start,
				"size", len(chunk),
				"inserted", n,
				"error", err,
			)
		}

		if onBatch != nil {
			onBatch(res)
		}
	}

	return out
}
