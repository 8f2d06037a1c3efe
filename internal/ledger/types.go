// Package ledger implements the Posting Engine (C5), the hash-chained
// Journal Store (C6), and the self-balancing Journal Templates (C7).
package ledger

import (
	"time"

	"caricash/internal/money"
)

// OwnerType is the closed set of ledger account owner kinds (§3).
type OwnerType string

const (
	OwnerCustomer OwnerType = "CUSTOMER"
	OwnerAgent    OwnerType = "AGENT"
	OwnerMerchant OwnerType = "MERCHANT"
	OwnerStaff    OwnerType = "STAFF"
	OwnerStore    OwnerType = "STORE"
	OwnerSystem   OwnerType = "SYSTEM"
	OwnerTreasury OwnerType = "TREASURY"
)

// AccountType is the closed set of ledger account kinds (§3).
type AccountType string

const (
	AccountWallet              AccountType = "WALLET"
	AccountFee                 AccountType = "FEE"
	AccountSuspense            AccountType = "SUSPENSE"
	AccountCommissionsPayable  AccountType = "COMMISSIONS_PAYABLE"
	AccountTaxPayable          AccountType = "TAX_PAYABLE"
	AccountHoldbackReserve     AccountType = "HOLDBACK_RESERVE"
	AccountClearing            AccountType = "CLEARING"
	AccountBankPool            AccountType = "BANK_POOL"
)

// EntryType is DR or CR.
type EntryType string

const (
	Debit  EntryType = "DR"
	Credit EntryType = "CR"
)

// JournalState is the C5/C6 journal lifecycle (§3, §4.1 state machine).
type JournalState string

const (
	JournalPosted        JournalState = "POSTED"
	JournalVoidRequested  JournalState = "VOID_REQUESTED"
	JournalReversed       JournalState = "REVERSED"
)

// Account is the unique (owner_type, owner_id, account_type, currency)
// ledger account tuple, created lazily on first reference and never deleted.
type Account struct {
	ID          string `gorm:"primaryKey;column:id"`
	OwnerType   OwnerType
	OwnerID     string
	AccountType AccountType
	Currency    money.Currency
	CreatedAt   time.Time
}

func (Account) TableName() string { return "ledger_accounts" }

// AccountKey canonically identifies an Account before it is created.
type AccountKey struct {
	OwnerType   OwnerType
	OwnerID     string
	AccountType AccountType
	Currency    money.Currency
}

// ID derives the deterministic account id for a key so lazy creation is
// idempotent: the same tuple always resolves to the same row.
func (k AccountKey) ID() string {
	return string(k.OwnerType) + ":" + k.OwnerID + ":" + string(k.AccountType) + ":" + string(k.Currency)
}

// Journal is the immutable-after-insert LedgerJournal row (§3).
type Journal struct {
	ID             string `gorm:"primaryKey;column:id"`
	TxnType        string
	Currency       money.Currency
	CorrelationID  string
	IdempotencyKey string
	ScopeHash      string
	PayloadHash    string
	State          JournalState
	PrevHash       string
	JournalHash    string
	Description    string
	DomainKey      string
	TraceID        string // supplement: OTel trace correlation, observability-only.
	CreatedAt      time.Time
}

func (Journal) TableName() string { return "ledger_journals" }

// Line is one immutable DR/CR leg of a Journal.
type Line struct {
	ID          string `gorm:"primaryKey;column:id"`
	JournalID   string `gorm:"column:journal_id;index"`
	AccountID   string `gorm:"column:account_id;index"`
	EntryType   EntryType
	AmountCents int64
	Description string
}

func (Line) TableName() string { return "ledger_lines" }

// Amount returns the line's amount as a money.Amount.
func (l Line) Amount() money.Amount {
	a, _ := money.FromCents(l.AmountCents)
	return a
}

// Balance is the materialized AccountBalance view; never authoritative.
type Balance struct {
	AccountID       string `gorm:"primaryKey;column:account_id"`
	ActualCents     int64
	HoldCents       int64
	PendingCredits  int64
	LastJournalID   string
	Currency        money.Currency
	CheckpointHash  string // supplement: local actor warm-start cache, never authoritative.
	UpdatedAt       time.Time
}

func (Balance) TableName() string { return "ledger_balances" }

// Actual returns the actual_balance as a money.Amount.
func (b Balance) Actual() money.Amount {
	a, _ := money.FromCents(b.ActualCents)
	return a
}

// Available returns available_balance = actual_balance - hold_amount.
func (b Balance) Available() money.Amount {
	a, _ := money.FromCents(b.ActualCents - b.HoldCents)
	return a
}

// OverdraftState is the §3 OverdraftFacility lifecycle.
type OverdraftState string

const (
	OverdraftPending  OverdraftState = "PENDING"
	OverdraftApproved OverdraftState = "APPROVED"
	OverdraftActive   OverdraftState = "ACTIVE"
	OverdraftRejected OverdraftState = "REJECTED"
	OverdraftClosed   OverdraftState = "CLOSED"
)

// OverdraftFacility permits available_balance >= -limit_amount while ACTIVE.
type OverdraftFacility struct {
	ID          string `gorm:"primaryKey;column:id"`
	AccountID   string `gorm:"column:account_id;index"`
	LimitCents  int64
	State       OverdraftState
	ApproverID  string
	ApprovedAt  *time.Time
	CreatedAt   time.Time
}

func (OverdraftFacility) TableName() string { return "overdraft_facilities" }
