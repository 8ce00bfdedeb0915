// Package restore replays a backup snapshot of the marketplace tables into a
// live store.
//
// # Flow
//
//	BackupDocument -> BuildPlan -> [clearing phase] -> per table:
//	    Sanitizer -> BatchInserter -> TableRestoreResult -> RestoreSummary
//
// Tables are processed strictly one after another in master dependency order,
// and within a table one batch at a time, so child rows are never written
// before the parent rows they reference.
//
// # Table Catalog
//
// Tables register at init time with [Register]. Each [TableDefinition] names
// its tier, identity policy and foreign-key edges; the master order is a
// topological sort of those edges ([Catalog.Order]):
//
//	restore.Register(restore.TableDefinition{
//	    Name:     "products",
//	    Tier:     restore.TierEntity,
//	    IDPolicy: restore.Regenerate,
//	    References: []restore.Reference{
//	        {Column: "category_id", Table: "categories"},
//	        {Column: "seller_id", Table: "profiles"},
//	    },
//	})
//
// # Failure Model
//
//   - Validation errors abort before any write.
//   - A failed delete during clearing is logged and ignored.
//   - A failed batch is recorded; the table's other batches still run.
//   - A table with zero inserted rows and at least one failed batch is failed;
//     the run goes on with the next table.
//   - Anything unexpected is returned wrapped in [ErrUnexpected].
//
// The engine does not authorize callers. It serializes runs per environment
// through a [Locker] and can persist progress through a [CheckpointStore] so a
// failed run is resumed rather than restarted.
package restore
