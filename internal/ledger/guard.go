package ledger

import "gorm.io/gorm"

// installWriteGuard registers gorm callbacks that reject any UPDATE or
// DELETE against the append-only journal and line tables. Balances and
// accounts remain mutable (they are materialized views and reference
// registries respectively); journals and lines are not, per §4.2's
// "append-only" contract for C6. This mirrors the teacher's pattern of
// enforcing storage-layer invariants through callbacks rather than trusting
// every call site to behave.
func installWriteGuard(db *gorm.DB) error {
	guard := func(db *gorm.DB) {
		if db.Statement == nil || db.Statement.Schema == nil {
			return
		}
		switch db.Statement.Schema.Table {
		case "ledger_journals", "ledger_lines":
			_ = db.AddError(ErrWriteGuard)
		}
	}
	if err := db.Callback().Update().Before("gorm:update").Register("ledger:guard_update", guard); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("ledger:guard_delete", guard); err != nil {
		return err
	}
	return nil
}
