package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"caricash/internal/statemachine"
)

// journalStateRow tracks a Journal's lifecycle state (POSTED ->
// VOID_REQUESTED -> REVERSED) separately from the Journal row itself.
// The Journal row's financial content (amounts, hash, prev_hash) is
// write-guarded as permanently immutable; lifecycle state is bookkeeping
// metadata layered on top, so it lives in its own mutable table instead of
// requiring an exception to the append-only guard.
type journalStateRow struct {
	JournalID string       `gorm:"primaryKey;column:journal_id"`
	State     JournalState `gorm:"column:state"`
}

func (journalStateRow) TableName() string { return "ledger_journal_states" }

// JournalState returns a journal's current lifecycle state, defaulting to
// POSTED if no transition has ever been recorded for it.
func (s *Store) JournalState(ctx context.Context, journalID string) (JournalState, error) {
	var row journalStateRow
	err := s.db.WithContext(ctx).First(&row, "journal_id = ?", journalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return JournalPosted, nil
	}
	if err != nil {
		return "", err
	}
	return row.State, nil
}

// TransitionJournalState validates from->to against the shared
// state-machine kernel and records the new state. The caller supplies
// `from` (typically just read via JournalState) so a stale-read race loses
// to a CHECK-style guard rather than silently clobbering a concurrent
// transition.
func (s *Store) TransitionJournalState(ctx context.Context, kernel *statemachine.Kernel, journalID string, from, to JournalState) error {
	if err := kernel.Validate(statemachine.EntityLedgerJournal, string(from), string(to)); err != nil {
		return err
	}
	row := journalStateRow{JournalID: journalID, State: to}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "journal_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state"}),
		}).
		Create(&row).Error
}
