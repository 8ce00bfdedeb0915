package restore

import (
	"fmt"
	"sort"
)

// newTableResult creates a result in the pending state.
func newTableResult(table TableName) *TableRestoreResult {
	return &TableRestoreResult{Table: table, Status: StatusPending}
}

// complete moves a result out of the restoring state.
//
//	errors == 0                  -> success
//	inserted > 0 and errors > 0  -> partial (still reported as success)
//	inserted == 0 and errors > 0 -> failed
func (r *TableRestoreResult) complete(inserted, batches, attempted int, errs []error) {
	r.Inserted = inserted
	r.Batches = batches
	r.Attempted = attempted
	r.Failed = len(errs)

	switch {
	case len(errs) == 0:
		r.Status = StatusSuccess
		r.Success = true
		r.Error = ""
	case inserted > 0:
		r.Status = StatusPartial
		r.Success = true
		r.Error = fmt.Sprintf("partial restore: %d of %d batches failed (first error: %v)",
			len(errs), batches, errs[0])
	default:
		r.Status = StatusFailed
		r.Success = false
		r.Error = errs[0].Error()
	}
}

// summarize fills the aggregate fields of a summary from its per-table results.
func summarize(sum *RestoreSummary) {
	sum.TotalInserted = 0
	sum.FailedTables = nil

	for _, table := range sum.Plan {
		res, ok := sum.PerTable[table]
		if !ok {
			continue
		}
		sum.TotalInserted += res.Inserted
		if res.Status == StatusFailed {
			sum.FailedTables = append(sum.FailedTables, table)
		}
	}

	sum.OverallSuccess = len(sum.FailedTables) == 0
}

// Message returns a one-line description of the run for API responses.
func (s *RestoreSummary) Message() string {
	if s.OverallSuccess {
		return fmt.Sprintf("Restore completed: %d rows across %d tables", s.TotalInserted, len(s.Plan))
	}
	return fmt.Sprintf("Restore completed with failures in %d of %d tables: %d rows restored",
		len(s.FailedTables), len(s.Plan), s.TotalInserted)
}

func sortTableNames(names []TableName) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}
