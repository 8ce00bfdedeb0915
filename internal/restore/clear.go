package restore

import (
	"context"
	"log/slog"
)

// clearTables runs the clearing phase: delete-all on every planned table in
// reverse plan order. A failed delete is logged and recorded; the remaining
// tables are still cleared and the run goes on.
func clearTables(ctx context.Context, store Store, plan []TableName, logger *slog.Logger) []ClearResult {
	order := ClearOrder(plan)
	results := make([]ClearResult, 0, len(order))

	for _, table := range order {
		res := ClearResult{Table: table}
		if err := store.DeleteAll(ctx, table); err != nil {
			logger.Warn("clear table failed", "table", table, "error", err)
			res.Error = err.Error()
		} else {
			logger.Debug("table cleared", "table", table)
		}
		results = append(results, res)
	}

	return results
}
