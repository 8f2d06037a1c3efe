package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"caricash/internal/canonical"
	"caricash/internal/money"
)

// Store is the gorm-backed hash-chained Journal Store (C6). AppendJournal
// is only ever called from the posting engine (C5) while holding a domain
// key's serialized section; every other method here is safe to call from
// any number of concurrent readers.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the ledger schema and installs the append-only guard.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Account{}, &Journal{}, &Line{}, &Balance{}, &OverdraftFacility{}, &journalStateRow{}); err != nil {
		return nil, fmt.Errorf("ledger: automigrate: %w", err)
	}
	if err := installWriteGuard(db); err != nil {
		return nil, fmt.Errorf("ledger: install write guard: %w", err)
	}
	return &Store{db: db}, nil
}

// WithTx returns a shallow copy of Store bound to tx, so a caller already
// holding a transaction open (e.g. the posting engine folding the
// idempotency markers and the journal write into one boundary) can reuse
// the same Store methods against it.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// EnsureAccount resolves the account for key, creating it on first
// reference. Creation is idempotent: the id is derived deterministically
// from the key, so two concurrent EnsureAccount calls for the same tuple
// converge on one row.
func (s *Store) EnsureAccount(ctx context.Context, key AccountKey) (*Account, error) {
	acct := Account{
		ID:          key.ID(),
		OwnerType:   key.OwnerType,
		OwnerID:     key.OwnerID,
		AccountType: key.AccountType,
		Currency:    key.Currency,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		FirstOrCreate(&acct, "id = ?", acct.ID).Error
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// GetBalance returns the materialized balance for accountID, creating a
// zeroed row on first reference.
func (s *Store) GetBalance(ctx context.Context, accountID string, currency money.Currency) (*Balance, error) {
	bal := Balance{AccountID: accountID, Currency: currency}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		FirstOrCreate(&bal, "account_id = ?", accountID).Error
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// TestOnlySetActualCents overwrites a materialized balance directly,
// bypassing the posting engine. It exists so reconciliation tests can
// simulate the materialized-view drift the engine is meant to detect; no
// production code path calls it.
func (s *Store) TestOnlySetActualCents(ctx context.Context, accountID string, cents int64) error {
	return s.db.WithContext(ctx).Model(&Balance{}).Where("account_id = ?", accountID).Update("actual_cents", cents).Error
}

// GetLastHash returns the journal_hash of the most recently posted journal
// for domainKey, or "" if none exists yet (genesis), per §4.1 step 5.
func (s *Store) GetLastHash(ctx context.Context, domainKey string) (string, error) {
	var j Journal
	err := s.db.WithContext(ctx).
		Where("domain_key = ?", domainKey).
		Order("created_at DESC, id DESC").
		First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return j.JournalHash, nil
}

// GetAccount fetches an account row by id, used by callers (e.g. the
// reversal pipeline) that only hold a Line's account_id and need to
// reconstruct the owning AccountKey.
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	var acct Account
	if err := s.db.WithContext(ctx).First(&acct, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// ListAccounts returns every account touched by a journal line posted in
// [from, to], used by the reconciliation engine (C12) to scope its
// authoritative-balance recomputation to the run's window.
func (s *Store) ListAccounts(ctx context.Context, from, to time.Time) ([]Account, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Line{}).
		Joins("JOIN ledger_journals ON ledger_journals.id = ledger_lines.journal_id").
		Where("ledger_journals.created_at >= ? AND ledger_journals.created_at <= ?", from, to).
		Distinct().
		Pluck("ledger_lines.account_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var accounts []Account
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAccountsByType returns every account of the given type, used to scope
// the reconciliation engine's suspense-balance sweep (§4.10 step 4).
func (s *Store) ListAccountsByType(ctx context.Context, accountType AccountType) ([]Account, error) {
	var accounts []Account
	if err := s.db.WithContext(ctx).Where("account_type = ?", accountType).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// AuthoritativeBalance recomputes an account's balance directly from
// ledger_lines (Sigma CR - Sigma DR), independent of the materialized
// account_balances view, per §4.10 step 1.
func (s *Store) AuthoritativeBalance(ctx context.Context, accountID string) (int64, error) {
	var lines []Line
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&lines).Error; err != nil {
		return 0, err
	}
	var total int64
	for _, l := range lines {
		if l.EntryType == Credit {
			total += l.AmountCents
		} else {
			total -= l.AmountCents
		}
	}
	return total, nil
}

// GetJournal fetches a journal and its lines by id.
func (s *Store) GetJournal(ctx context.Context, id string) (*Journal, []Line, error) {
	var j Journal
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, nil, err
	}
	var lines []Line
	if err := s.db.WithContext(ctx).Where("journal_id = ?", id).Order("account_id, entry_type").Find(&lines).Error; err != nil {
		return nil, nil, err
	}
	return &j, lines, nil
}

// hashableBody is the canonical-JSON shape hashed into journal_hash (§3):
// {id, currency, txn_type, ledger_lines_sorted}.
type hashableBody struct {
	ID       string       `json:"id"`
	Currency string       `json:"currency"`
	TxnType  string       `json:"txn_type"`
	Lines    []hashedLine `json:"ledger_lines_sorted"`
}

type hashedLine struct {
	AccountID string `json:"account_id"`
	EntryType string `json:"entry_type"`
	Amount    int64  `json:"amount_cents"`
}

// sortLines orders lines by (account_id asc, entry_type asc) as required
// for journal_hash determinism (§4.1 "Ordering and tie-breaks").
func sortLines(lines []Line) []Line {
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].AccountID != sorted[j].AccountID {
			return sorted[i].AccountID < sorted[j].AccountID
		}
		return sorted[i].EntryType < sorted[j].EntryType
	})
	return sorted
}

func computeJournalHash(prevHash string, id string, currency string, txnType string, lines []Line) (string, error) {
	sorted := sortLines(lines)
	body := hashableBody{ID: id, Currency: currency, TxnType: txnType}
	for _, l := range sorted {
		body.Lines = append(body.Lines, hashedLine{AccountID: l.AccountID, EntryType: string(l.EntryType), Amount: l.AmountCents})
	}
	return canonical.ChainHash(prevHash, body)
}

// AppendJournal writes a journal and its lines in one transaction and
// updates the affected accounts' materialized balances. It must only be
// called while the caller holds the domain key's serialized section (C5's
// actor model); it performs no locking of its own beyond the DB
// transaction that makes the write atomic.
func (s *Store) AppendJournal(ctx context.Context, j Journal, lines []Line) (*Journal, error) {
	if len(lines) < 2 {
		return nil, ErrEmptyJournal
	}
	hash, err := computeJournalHash(j.PrevHash, j.ID, string(j.Currency), j.TxnType, lines)
	if err != nil {
		return nil, err
	}
	j.JournalHash = hash
	if j.State == "" {
		j.State = JournalPosted
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&j).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].JournalID = j.ID
			if err := tx.Create(&lines[i]).Error; err != nil {
				return err
			}
		}
		for _, l := range lines {
			delta := l.AmountCents
			if l.EntryType == Debit {
				delta = -delta
			}
			res := tx.Model(&Balance{}).Where("account_id = ?", l.AccountID).
				Updates(map[string]interface{}{
					"actual_cents":    gorm.Expr("actual_cents + ?", delta),
					"last_journal_id": j.ID,
					"updated_at":      time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				bal := Balance{AccountID: l.AccountID, ActualCents: delta, LastJournalID: j.ID, Currency: j.Currency, UpdatedAt: time.Now().UTC()}
				if err := tx.Create(&bal).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ChainFault describes a single hash-chain defect found by VerifyChain.
type ChainFault struct {
	JournalID string
	Kind      string // "content_mismatch" or "prev_hash_mismatch"
}

// VerifyChain recomputes journal_hash for every journal in [from, to] (by
// created_at) and checks prev_hash linkage, per §4.2.
func (s *Store) VerifyChain(ctx context.Context, from, to time.Time) (ok bool, faults []ChainFault, err error) {
	var journals []Journal
	if err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Order("created_at ASC, id ASC").
		Find(&journals).Error; err != nil {
		return false, nil, err
	}
	lastHashByDomain := map[string]string{}
	seeded := map[string]bool{}
	for _, j := range journals {
		if !seeded[j.DomainKey] {
			seeded[j.DomainKey] = true
			var prior Journal
			err := s.db.WithContext(ctx).
				Where("domain_key = ? AND created_at < ?", j.DomainKey, from).
				Order("created_at DESC, id DESC").
				First(&prior).Error
			if err == nil {
				lastHashByDomain[j.DomainKey] = prior.JournalHash
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil, err
			}
		}
		var lines []Line
		if err := s.db.WithContext(ctx).Where("journal_id = ?", j.ID).Find(&lines).Error; err != nil {
			return false, nil, err
		}
		expectedPrev := lastHashByDomain[j.DomainKey]
		if j.PrevHash != expectedPrev {
			faults = append(faults, ChainFault{JournalID: j.ID, Kind: "prev_hash_mismatch"})
		}
		recomputed, herr := computeJournalHash(j.PrevHash, j.ID, string(j.Currency), j.TxnType, lines)
		if herr != nil {
			return false, nil, herr
		}
		if recomputed != j.JournalHash {
			faults = append(faults, ChainFault{JournalID: j.ID, Kind: "content_mismatch"})
		}
		lastHashByDomain[j.DomainKey] = j.JournalHash
	}
	return len(faults) == 0, faults, nil
}

