// Package reversal implements the Reversal/Adjustment Pipeline (C11):
// approval-gated handlers that post compensating journal entries and
// retire the original journal's lifecycle state through the shared
// state-machine kernel.
package reversal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"caricash/internal/approval"
	"caricash/internal/ledger"
	"caricash/internal/money"
	"caricash/internal/statemachine"
)

// ErrAlreadyReversed is returned when the requested journal is not in
// POSTED state at the time the reversal handler runs.
var ErrAlreadyReversed = errors.New("reversal: original journal is not POSTED")

// Handlers wires the Reversal and ManualSuspenseFunding side effects onto
// an approval.Registry, grounded on C5's Engine/Store and the shared
// statemachine.Kernel.
type Handlers struct {
	Ledger *ledger.Store
	Poster *ledger.Engine
	Kernel *statemachine.Kernel
}

// NewHandlers constructs the C11 handler set.
func NewHandlers(store *ledger.Store, poster *ledger.Engine, kernel *statemachine.Kernel) *Handlers {
	return &Handlers{Ledger: store, Poster: poster, Kernel: kernel}
}

// Register adds the reversal and manual-suspense-funding handlers to reg
// under the approval_types the §4.8 endpoint bindings route to.
func (h *Handlers) Register(reg *approval.Registry) {
	reg.Register("REVERSAL_REQUESTED", approval.Handler{
		Label:               "reversal",
		AllowedCheckerRoles: []string{"FINANCE_CONTROLLER", "COMPLIANCE_OFFICER"},
		OnApprove:           h.Reverse,
		EventNames:          []string{"journal.reversed"},
		AuditActions:        []string{"REVERSAL_POSTED"},
	})
	reg.Register("MANUAL_SUSPENSE_FUNDING", approval.Handler{
		Label:               "manual_suspense_funding",
		AllowedCheckerRoles: []string{"FINANCE_CONTROLLER"},
		OnApprove:           h.FundSuspense,
		EventNames:          []string{"suspense.funded"},
		AuditActions:        []string{"SUSPENSE_FUNDED"},
	})
}

type reversalPayload struct {
	OriginalJournalID string `json:"original_journal_id"`
	Reason            string `json:"reason"`
}

// Reverse implements §4.9's Reversal handler: given original_journal_id,
// fetch its lines, swap DR<->CR per line at identical amounts, inherit
// the original currency, and post the compensating journal under the
// same domain key with idempotency_key "reversal:{original_idempotency_key}"
// so the reversal itself is idempotent. On success the original journal's
// lifecycle state advances POSTED -> VOID_REQUESTED -> REVERSED.
func (h *Handlers) Reverse(ctx approval.Context) error {
	var payload reversalPayload
	if err := json.Unmarshal([]byte(ctx.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("reversal: decode payload: %w", err)
	}
	if payload.OriginalJournalID == "" {
		return errors.New("reversal: original_journal_id is required")
	}

	background := context.Background()

	state, err := h.Ledger.JournalState(background, payload.OriginalJournalID)
	if err != nil {
		return fmt.Errorf("reversal: read journal state: %w", err)
	}
	if state != ledger.JournalPosted {
		return ErrAlreadyReversed
	}

	original, lines, err := h.Ledger.GetJournal(background, payload.OriginalJournalID)
	if err != nil {
		return fmt.Errorf("reversal: fetch original journal: %w", err)
	}

	compensating := make([]ledger.CommandLine, 0, len(lines))
	for _, l := range lines {
		acct, err := h.Ledger.GetAccount(background, l.AccountID)
		if err != nil {
			return fmt.Errorf("reversal: resolve account %s: %w", l.AccountID, err)
		}
		entry := ledger.Credit
		if l.EntryType == ledger.Credit {
			entry = ledger.Debit
		}
		compensating = append(compensating, ledger.CommandLine{
			Account: ledger.AccountKey{
				OwnerType:   acct.OwnerType,
				OwnerID:     acct.OwnerID,
				AccountType: acct.AccountType,
				Currency:    acct.Currency,
			},
			EntryType:   entry,
			Amount:      l.Amount(),
			Description: "reversal of " + original.ID,
		})
	}

	cmd := ledger.Command{
		DomainKey:      original.DomainKey,
		TxnType:        "REVERSAL",
		Currency:       original.Currency,
		ActorType:      ctx.Request.MakerRole,
		ActorID:        ctx.Request.MakerID,
		CorrelationID:  ctx.Request.CorrelationID,
		IdempotencyKey: "reversal:" + original.IdempotencyKey,
		Description:    payload.Reason,
		Lines:          compensating,
	}
	if _, err := h.Poster.Post(background, cmd); err != nil {
		return fmt.Errorf("reversal: post compensating journal: %w", err)
	}

	if err := h.Ledger.TransitionJournalState(background, h.Kernel, original.ID, ledger.JournalPosted, ledger.JournalVoidRequested); err != nil {
		return fmt.Errorf("reversal: transition to VOID_REQUESTED: %w", err)
	}
	if err := h.Ledger.TransitionJournalState(background, h.Kernel, original.ID, ledger.JournalVoidRequested, ledger.JournalReversed); err != nil {
		return fmt.Errorf("reversal: transition to REVERSED: %w", err)
	}
	return nil
}

type suspenseFundingPayload struct {
	DomainKey   string `json:"domain_key"`
	Currency    string `json:"currency"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// FundSuspense implements §4.9's manual suspense funding handler: DR
// Treasury-Suspense / CR System-Suspense for the requested currency and
// amount.
func (h *Handlers) FundSuspense(ctx approval.Context) error {
	var payload suspenseFundingPayload
	if err := json.Unmarshal([]byte(ctx.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("suspense funding: decode payload: %w", err)
	}
	currency := money.Currency(payload.Currency)
	if !currency.Valid() {
		return fmt.Errorf("suspense funding: invalid currency %q", payload.Currency)
	}
	amount, err := money.FromCents(payload.AmountCents)
	if err != nil {
		return fmt.Errorf("suspense funding: invalid amount: %w", err)
	}
	if !amount.IsPositive() {
		return errors.New("suspense funding: amount must be positive")
	}
	domainKey := payload.DomainKey
	if domainKey == "" {
		domainKey = "SYSTEM:SUSPENSE:" + payload.Currency
	}

	cmd := ledger.Command{
		DomainKey:      domainKey,
		TxnType:        "MANUAL_SUSPENSE_FUNDING",
		Currency:       currency,
		ActorType:      ctx.Request.MakerRole,
		ActorID:        ctx.Request.MakerID,
		CorrelationID:  ctx.Request.CorrelationID,
		IdempotencyKey: "suspense_funding:" + ctx.Request.ID,
		Description:    payload.Reason,
		Lines: []ledger.CommandLine{
			{
				Account:     ledger.AccountKey{OwnerType: ledger.OwnerTreasury, OwnerID: "treasury_suspense", AccountType: ledger.AccountSuspense, Currency: currency},
				EntryType:   ledger.Debit,
				Amount:      amount,
				Description: "manual suspense funding",
			},
			{
				Account:     ledger.AccountKey{OwnerType: ledger.OwnerSystem, OwnerID: "system_suspense", AccountType: ledger.AccountSuspense, Currency: currency},
				EntryType:   ledger.Credit,
				Amount:      amount,
				Description: "manual suspense funding offset",
			},
		},
	}
	_, err = h.Poster.Post(context.Background(), cmd)
	if err != nil {
		return fmt.Errorf("suspense funding: post: %w", err)
	}
	return nil
}
