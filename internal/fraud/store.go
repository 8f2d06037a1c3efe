package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrMakerEqualsChecker guards the governance invariant that a rules
// version's approver must differ from its creator (§4.11).
var ErrMakerEqualsChecker = errors.New("fraud: approved_by must differ from created_by")

// Store is the gorm-backed persistence layer for fraud rules versions,
// rules, and the cases a rule evaluation spawns.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the fraud schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&RulesVersion{}, &Rule{}, &Case{}); err != nil {
		return nil, fmt.Errorf("fraud: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

// ActiveVersion returns the single ACTIVE rules version, or
// gorm.ErrRecordNotFound if none has ever been activated.
func (s *Store) ActiveVersion(ctx context.Context) (*RulesVersion, error) {
	var v RulesVersion
	if err := s.db.WithContext(ctx).First(&v, "state = ?", VersionActive).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// RulesForVersion returns a version's rules ordered by ascending priority,
// the order §4.11 evaluates them in.
func (s *Store) RulesForVersion(ctx context.Context, versionID string) ([]Rule, error) {
	var rules []Rule
	err := s.db.WithContext(ctx).Where("version_id = ?", versionID).Order("priority asc").Find(&rules).Error
	return rules, err
}

// CreateVersion inserts a DRAFT rules version together with its rules.
func (s *Store) CreateVersion(ctx context.Context, v RulesVersion, rules []Rule) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&v).Error; err != nil {
			return err
		}
		for i := range rules {
			rules[i].VersionID = v.ID
		}
		if len(rules) > 0 {
			if err := tx.Create(&rules).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ActivateVersion atomically demotes the current ACTIVE version (if any) to
// INACTIVE and promotes versionID to ACTIVE, recording approvedBy. It
// refuses when approvedBy equals the version's createdBy (§4.11's
// maker-checker invariant); the approval engine already enforces
// maker != checker at the request level, this is the storage-layer
// backstop for callers that bypass it (e.g. direct ops tooling).
func (s *Store) ActivateVersion(ctx context.Context, versionID, approvedBy string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var next RulesVersion
		if err := tx.First(&next, "id = ?", versionID).Error; err != nil {
			return err
		}
		if next.CreatedBy != "" && next.CreatedBy == approvedBy {
			return ErrMakerEqualsChecker
		}
		if err := tx.Model(&RulesVersion{}).Where("state = ?", VersionActive).Update("state", VersionInactive).Error; err != nil {
			return err
		}
		return tx.Model(&RulesVersion{}).Where("id = ?", versionID).Updates(map[string]interface{}{
			"state":        VersionActive,
			"approved_by":  approvedBy,
			"activated_at": now,
		}).Error
	})
}

// RecordCase persists a fraud case spawned by a matched create_case=true
// rule.
func (s *Store) RecordCase(ctx context.Context, c Case) error {
	return s.db.WithContext(ctx).Create(&c).Error
}
