// Package idempotency implements the scope+key dedup and conflict-detection
// store backing C3: Idempotency & Conflict Store.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"caricash/internal/canonical"
)

// Category selects the TTL bucket a committed record expires under.
type Category string

const (
	CategoryMoneyTx       Category = "MONEY_TX"
	CategoryBankTransfer  Category = "BANK_TRANSFER"
	CategoryWebhookDedupe Category = "WEBHOOK_DEDUPE"
	CategoryOpsConfig     Category = "OPS_CONFIG"
)

// ttlByCategory encodes the per-category TTLs from §3.
var ttlByCategory = map[Category]time.Duration{
	CategoryMoneyTx:       30 * 24 * time.Hour,
	CategoryBankTransfer:  90 * 24 * time.Hour,
	CategoryWebhookDedupe: 180 * 24 * time.Hour,
	CategoryOpsConfig:     365 * 24 * time.Hour,
}

// Status describes the outcome of a Lookup.
type Status string

const (
	StatusMiss       Status = "MISS"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCommitted  Status = "COMMITTED"
)

// ErrConflict is returned by ConflictCheck (and surfaced by PutCommitted's
// caller) when the same (scope, key) is reused with a different payload.
var ErrConflict = errors.New("idempotency: DUPLICATE_IDEMPOTENCY_CONFLICT")

// ErrAlreadyExists is returned by PutInProgress when any record -- in
// flight or committed -- already exists for the (scope, key) pair.
var ErrAlreadyExists = errors.New("idempotency: record already exists")

// Record is the persisted row backing IdempotencyRecord in §3. State is
// tracked via InProgress/ResultJSON rather than a separate column so a
// single unique index on (scope, key) enforces the dedup invariant.
type Record struct {
	Scope       string `gorm:"primaryKey;column:scope"`
	Key         string `gorm:"primaryKey;column:idempotency_key"`
	PayloadHash string `gorm:"column:payload_hash"`
	InProgress  bool   `gorm:"column:in_progress"`
	ResultJSON  string `gorm:"column:result_json"`
	Category    string `gorm:"column:category"`
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (Record) TableName() string { return "idempotency_records" }

// LookupResult is returned by Lookup.
type LookupResult struct {
	Status      Status
	PayloadHash string
	ResultJSON  string
}

// Store is the gorm-backed idempotency store. It also holds an in-memory
// blake3 fast-path cache (fastpath.go) that FastPreCheck consults; Lookup
// always queries the database, since a cache miss is never authoritative.
type Store struct {
	db   *gorm.DB
	fast *fastPathCache
}

// NewStore constructs a Store. The schema is migrated eagerly so callers
// never race a missing table on first use.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Store{db: db, fast: newFastPathCache(4096)}, nil
}

// WithTx returns a shallow copy of Store bound to tx, so a caller can fold
// idempotency marker writes into a transaction it already holds open
// elsewhere (e.g. the posting engine's journal write).
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, fast: s.fast}
}

// Lookup implements §4.3's Lookup(scope, key).
func (s *Store) Lookup(ctx context.Context, scope, key string) (LookupResult, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "scope = ? AND idempotency_key = ?", scope, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LookupResult{Status: StatusMiss}, nil
	}
	if err != nil {
		return LookupResult{}, err
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		return LookupResult{Status: StatusMiss}, nil
	}
	if rec.InProgress {
		return LookupResult{Status: StatusInProgress, PayloadHash: rec.PayloadHash}, nil
	}
	return LookupResult{Status: StatusCommitted, PayloadHash: rec.PayloadHash, ResultJSON: rec.ResultJSON}, nil
}

// PutInProgress writes the in-flight marker (§4.1 step 2). It fails with
// ErrAlreadyExists if any record -- in-flight or committed -- exists.
func (s *Store) PutInProgress(ctx context.Context, scope, key, payloadHash string) error {
	s.fast.markSeen(scope, key, payloadHash)
	rec := Record{
		Scope:       scope,
		Key:         key,
		PayloadHash: payloadHash,
		InProgress:  true,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// PutCommitted upgrades an IN_PROGRESS marker to COMMITTED with the
// category's TTL (§4.3 PutCommitted).
func (s *Store) PutCommitted(ctx context.Context, scope, key, payloadHash, resultJSON string, category Category) error {
	ttl, ok := ttlByCategory[category]
	if !ok {
		return errors.New("idempotency: unknown TTL category")
	}
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("scope = ? AND idempotency_key = ?", scope, key).
		Updates(map[string]interface{}{
			"in_progress": false,
			"result_json": resultJSON,
			"category":    string(category),
			"expires_at":  now.Add(ttl),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("idempotency: no in-progress record to commit")
	}
	return nil
}

// ClearInProgress removes an in-flight marker, used when a posting attempt
// fails between §4.1 steps 2 and 9 or is cancelled (§5 Cancellation).
func (s *Store) ClearInProgress(ctx context.Context, scope, key string) error {
	s.fast.forget(scope, key)
	return s.db.WithContext(ctx).
		Where("scope = ? AND idempotency_key = ? AND in_progress = ?", scope, key, true).
		Delete(&Record{}).Error
}

// ConflictCheck implements §4.3's ConflictCheck: equal hashes mean replay,
// unequal hashes mean ErrConflict.
func ConflictCheck(existingPayloadHash, newPayloadHash string) error {
	if existingPayloadHash == newPayloadHash {
		return nil
	}
	return ErrConflict
}

// FastPreCheck consults the in-memory blake3 digest cache before a DB
// round trip; a hit with a mismatching digest lets callers fail fast on
// an in-flight replay storm without touching the database at all. A miss
// here is not authoritative -- callers must still perform Lookup.
func (s *Store) FastPreCheck(scope, key, payloadHash string) (hit bool, matches bool) {
	return s.fast.check(scope, key, payloadHash)
}

// ScopeHash computes the §4.1 scope_hash: SHA256(actor_type|actor_id|txn_type|idempotency_key).
func ScopeHash(actorType, actorID, txnType, idempotencyKey string) string {
	return canonical.SHA256HexStrings(actorType, actorID, txnType, idempotencyKey)
}

// PayloadHash computes the SHA-256 hex digest of command's canonical JSON.
func PayloadHash(command interface{}) (string, error) {
	return canonical.HashJSON(command)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite (glebarez/sqlite, used for dev/test dialects) does not map
	// onto gorm.ErrDuplicatedKey; fall back to the driver's message.
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}
