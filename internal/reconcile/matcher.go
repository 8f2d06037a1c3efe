package reconcile

import (
	"strings"
	"time"
)

// amountTimeWindow is the ±15 minute tolerance for priority-3 matching.
const amountTimeWindow = 15 * time.Minute

// staleAfter is the age at which an unmatched entry escalates (§4.10).
const staleAfter = 24 * time.Hour

// MatchEntry matches one StatementEntry against the pool of candidate
// ExternalTransfers per §4.10's three line-level priorities and batch
// matching, falling back to age-based escalation. A batch (two or more
// transfers whose client reference appears in the description) is tried
// right after the provider-id match, before the single client-reference
// match, which would otherwise claim the first of those transfers. now is
// the wall-clock time the run executes at.
func MatchEntry(entry StatementEntry, candidates []ExternalTransfer, now time.Time) MatchResult {
	sameCurrency := make([]ExternalTransfer, 0, len(candidates))
	for _, t := range candidates {
		if !strings.EqualFold(t.Currency, entry.Currency) {
			continue
		}
		sameCurrency = append(sameCurrency, t)
	}

	if t, ok := matchProviderID(entry, sameCurrency); ok {
		return MatchResult{Entry: entry, Transfers: []ExternalTransfer{t}, Method: MatchProviderID, Confidence: ConfidenceHigh, ResultingState: StatementMatched}
	}
	if batch, state, ok := matchBatch(entry, sameCurrency); ok {
		return MatchResult{Entry: entry, Transfers: batch, Method: MatchBatch, Confidence: ConfidenceHigh, ResultingState: state}
	}
	if t, ok := matchClientRef(entry, sameCurrency); ok {
		return MatchResult{Entry: entry, Transfers: []ExternalTransfer{t}, Method: MatchClientRef, Confidence: ConfidenceMediumHigh, ResultingState: StatementMatched}
	}
	if t, ok := matchAmountTime(entry, sameCurrency, now); ok {
		return MatchResult{Entry: entry, Transfers: []ExternalTransfer{t}, Method: MatchAmountTime, Confidence: ConfidenceMedium, ResultingState: StatementMatched}
	}

	state := StatementUnmatched
	if now.Sub(entry.PostedAt) > staleAfter {
		state = StatementEscalated
	}
	return MatchResult{Entry: entry, ResultingState: state}
}

// matchProviderID is priority 1: provider_transfer_id == entry_reference.
func matchProviderID(entry StatementEntry, candidates []ExternalTransfer) (ExternalTransfer, bool) {
	for _, t := range candidates {
		if t.ProviderTransferID != "" && t.ProviderTransferID == entry.Reference {
			return t, true
		}
	}
	return ExternalTransfer{}, false
}

// matchClientRef is priority 2: client_reference substring in the entry
// description.
func matchClientRef(entry StatementEntry, candidates []ExternalTransfer) (ExternalTransfer, bool) {
	description := strings.ToLower(entry.Description)
	for _, t := range candidates {
		ref := strings.ToLower(strings.TrimSpace(t.ClientReference))
		if ref != "" && strings.Contains(description, ref) {
			return t, true
		}
	}
	return ExternalTransfer{}, false
}

// matchAmountTime is priority 3: amount exact AND timestamp within ±15
// minutes AND same currency (the currency filter already applied by the
// caller).
func matchAmountTime(entry StatementEntry, candidates []ExternalTransfer, now time.Time) (ExternalTransfer, bool) {
	for _, t := range candidates {
		if t.AmountCents != entry.AmountCents {
			continue
		}
		delta := t.InitiatedAt.Sub(entry.PostedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= amountTimeWindow {
			return t, true
		}
	}
	_ = now
	return ExternalTransfer{}, false
}

// matchBatch looks for a subset of candidates whose amount-sum relates to
// the entry amount: exact sum -> BATCH/MATCHED, sum < entry ->
// PARTIAL_MATCHED, sum > entry -> DISPUTED. It sums every transfer whose
// client reference appears in the entry description (at least two are
// needed) rather than enumerating subsets, which is sufficient for the
// common "one statement line funds many small transfers" case.
func matchBatch(entry StatementEntry, candidates []ExternalTransfer) ([]ExternalTransfer, StatementEntryState, bool) {
	if len(candidates) < 2 {
		return nil, "", false
	}
	description := strings.ToLower(entry.Description)
	var batch []ExternalTransfer
	var sum int64
	for _, t := range candidates {
		ref := strings.ToLower(strings.TrimSpace(t.ClientReference))
		if ref == "" || !strings.Contains(description, ref) {
			continue
		}
		batch = append(batch, t)
		sum += t.AmountCents
	}
	if len(batch) < 2 {
		return nil, "", false
	}
	switch {
	case sum == entry.AmountCents:
		return batch, StatementMatched, true
	case sum < entry.AmountCents:
		return batch, StatementPartialMatched, true
	default:
		return batch, StatementDisputed, true
	}
}
