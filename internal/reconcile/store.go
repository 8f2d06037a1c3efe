package reconcile

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Store is the gorm-backed persistence layer for reconciliation runs,
// findings, cases, and the statement/transfer population they match over.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the reconciliation schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Run{}, &Finding{}, &Case{}, &StatementEntry{}, &ExternalTransfer{}); err != nil {
		return nil, fmt.Errorf("reconcile: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) createRun(ctx context.Context, run Run) error {
	return s.db.WithContext(ctx).Create(&run).Error
}

func (s *Store) updateRun(ctx context.Context, run Run) error {
	return s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":         run.Status,
		"findings_count": run.FindingsCount,
		"archive_path":   run.ArchivePath,
	}).Error
}

func (s *Store) recordFinding(ctx context.Context, f Finding) error {
	return s.db.WithContext(ctx).Create(&f).Error
}

func (s *Store) openCase(ctx context.Context, c Case) error {
	return s.db.WithContext(ctx).Create(&c).Error
}

// PendingStatementEntries returns every entry not yet in a terminal state,
// the population the matcher sweeps each run.
func (s *Store) PendingStatementEntries(ctx context.Context) ([]StatementEntry, error) {
	var entries []StatementEntry
	err := s.db.WithContext(ctx).
		Where("state NOT IN ?", []StatementEntryState{StatementSettled, StatementResolved}).
		Find(&entries).Error
	return entries, err
}

// CandidateTransfers returns every ExternalTransfer not yet SETTLED or
// terminally anomalous, the population a StatementEntry can match against.
func (s *Store) CandidateTransfers(ctx context.Context) ([]ExternalTransfer, error) {
	var transfers []ExternalTransfer
	err := s.db.WithContext(ctx).
		Where("state NOT IN ?", []ExternalTransferState{TransferSettled, TransferAnomalyCurrency}).
		Find(&transfers).Error
	return transfers, err
}

func (s *Store) updateStatementState(ctx context.Context, id string, state StatementEntryState) error {
	return s.db.WithContext(ctx).Model(&StatementEntry{}).Where("id = ?", id).Update("state", state).Error
}

func (s *Store) updateTransferState(ctx context.Context, id string, state ExternalTransferState) error {
	return s.db.WithContext(ctx).Model(&ExternalTransfer{}).Where("id = ?", id).Update("state", state).Error
}

// Findings lists every finding recorded for a run.
func (s *Store) Findings(ctx context.Context, runID string) ([]Finding, error) {
	var findings []Finding
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at").Find(&findings).Error
	return findings, err
}
