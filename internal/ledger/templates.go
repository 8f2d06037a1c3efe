package ledger

import "caricash/internal/money"

// Template well-known system account ids. These are singleton system/
// treasury accounts shared across all domain keys; wallet-side accounts
// are parameterized per owner.
const (
	systemBankPoolID           = "bank_pool"
	systemFeeRevenueID         = "fee_revenue"
	systemTaxAuthorityID       = "tax_authority"
	systemClearingOutboundID   = "clearing_outbound"
	systemCommissionsPayableID = "commissions_payable"
	systemPlatformPoolID       = "platform_pool"
)

func wallet(ownerType OwnerType, ownerID string, currency money.Currency) AccountKey {
	return AccountKey{OwnerType: ownerType, OwnerID: ownerID, AccountType: AccountWallet, Currency: currency}
}

func holdbackReserve(ownerType OwnerType, ownerID string, currency money.Currency) AccountKey {
	return AccountKey{OwnerType: ownerType, OwnerID: ownerID, AccountType: AccountHoldbackReserve, Currency: currency}
}

func systemAccount(id string, accountType AccountType, currency money.Currency) AccountKey {
	return AccountKey{OwnerType: OwnerSystem, OwnerID: id, AccountType: accountType, Currency: currency}
}

func treasuryAccount(id string, accountType AccountType, currency money.Currency) AccountKey {
	return AccountKey{OwnerType: OwnerTreasury, OwnerID: id, AccountType: accountType, Currency: currency}
}

// DepositWithFee builds the C7 DEPOSIT_WITH_FEE template: DR BankPool(gross),
// CR CustomerWallet(gross-fee-tax), CR FeeRevenue(fee), CR TaxPayable(tax).
func DepositWithFee(customerOwnerID string, currency money.Currency, gross, fee, tax money.Amount) ([]CommandLine, error) {
	net, err := gross.Sub(fee)
	if err == nil {
		net, err = net.Sub(tax)
	}
	if err != nil {
		return nil, err
	}
	lines := []CommandLine{
		{Account: treasuryAccount(systemBankPoolID, AccountBankPool, currency), EntryType: Debit, Amount: gross, Description: "deposit gross"},
	}
	if net.IsPositive() {
		lines = append(lines, CommandLine{Account: wallet(OwnerCustomer, customerOwnerID, currency), EntryType: Credit, Amount: net, Description: "deposit net"})
	}
	if fee.IsPositive() {
		lines = append(lines, CommandLine{Account: systemAccount(systemFeeRevenueID, AccountFee, currency), EntryType: Credit, Amount: fee, Description: "deposit fee"})
	}
	if tax.IsPositive() {
		lines = append(lines, CommandLine{Account: systemAccount(systemTaxAuthorityID, AccountTaxPayable, currency), EntryType: Credit, Amount: tax, Description: "deposit tax withheld"})
	}
	return validateBalanced(lines)
}

// SettlementFee builds the C7 SETTLEMENT_FEE template: DR MerchantWallet(gross),
// CR ClearingOutbound(gross-fee), CR FeeRevenue(fee).
func SettlementFee(merchantOwnerID string, currency money.Currency, gross, fee money.Amount) ([]CommandLine, error) {
	net, err := gross.Sub(fee)
	if err != nil {
		return nil, err
	}
	lines := []CommandLine{
		{Account: wallet(OwnerMerchant, merchantOwnerID, currency), EntryType: Debit, Amount: gross, Description: "settlement gross"},
	}
	if net.IsPositive() {
		lines = append(lines, CommandLine{Account: systemAccount(systemClearingOutboundID, AccountClearing, currency), EntryType: Credit, Amount: net, Description: "settlement net to clearing"})
	}
	if fee.IsPositive() {
		lines = append(lines, CommandLine{Account: systemAccount(systemFeeRevenueID, AccountFee, currency), EntryType: Credit, Amount: fee, Description: "settlement fee"})
	}
	return validateBalanced(lines)
}

// CommissionSplit builds the C7 COMMISSION_SPLIT template: DR
// CommissionsPayable(total), CR AgentWallet(agentShare), CR
// PlatformPool(platformShare), where the split comes from money.AllocateBps
// so the two shares always sum exactly to total.
func CommissionSplit(agentOwnerID string, currency money.Currency, total money.Amount, agentBps, platformBps uint32) ([]CommandLine, error) {
	shares, err := money.AllocateBps(total, []uint32{agentBps, platformBps})
	if err != nil {
		return nil, err
	}
	agentShare, platformShare := shares[0], shares[1]
	lines := []CommandLine{
		{Account: systemAccount(systemCommissionsPayableID, AccountCommissionsPayable, currency), EntryType: Debit, Amount: total, Description: "commission payable"},
	}
	if agentShare.IsPositive() {
		lines = append(lines, CommandLine{Account: wallet(OwnerAgent, agentOwnerID, currency), EntryType: Credit, Amount: agentShare, Description: "agent commission share"})
	}
	if platformShare.IsPositive() {
		lines = append(lines, CommandLine{Account: treasuryAccount(systemPlatformPoolID, AccountWallet, currency), EntryType: Credit, Amount: platformShare, Description: "platform commission share"})
	}
	return validateBalanced(lines)
}

// TaxWithholding builds the C7 TAX_WITHHOLDING template: DR
// MerchantWallet(tax), CR TaxPayable(tax).
func TaxWithholding(merchantOwnerID string, currency money.Currency, tax money.Amount) ([]CommandLine, error) {
	lines := []CommandLine{
		{Account: wallet(OwnerMerchant, merchantOwnerID, currency), EntryType: Debit, Amount: tax, Description: "tax withheld"},
		{Account: systemAccount(systemTaxAuthorityID, AccountTaxPayable, currency), EntryType: Credit, Amount: tax, Description: "tax payable"},
	}
	return validateBalanced(lines)
}

// HoldbackReserve builds the C7 HOLDBACK_RESERVE template: DR wallet(amount),
// CR holdback reserve(amount).
func HoldbackReserve(ownerType OwnerType, ownerID string, currency money.Currency, amount money.Amount) ([]CommandLine, error) {
	lines := []CommandLine{
		{Account: wallet(ownerType, ownerID, currency), EntryType: Debit, Amount: amount, Description: "holdback reserve funded"},
		{Account: holdbackReserve(ownerType, ownerID, currency), EntryType: Credit, Amount: amount, Description: "holdback reserve held"},
	}
	return validateBalanced(lines)
}

// HoldbackRelease is HoldbackReserve's symmetric inverse: DR holdback
// reserve(amount), CR wallet(amount).
func HoldbackRelease(ownerType OwnerType, ownerID string, currency money.Currency, amount money.Amount) ([]CommandLine, error) {
	lines := []CommandLine{
		{Account: holdbackReserve(ownerType, ownerID, currency), EntryType: Debit, Amount: amount, Description: "holdback reserve released"},
		{Account: wallet(ownerType, ownerID, currency), EntryType: Credit, Amount: amount, Description: "holdback release credited"},
	}
	return validateBalanced(lines)
}

// RoundingAdjustment builds the C7 ROUNDING_ADJUSTMENT template. A zero
// amount returns no entries (nothing to post); otherwise a single DR/CR
// pair between the wallet and the rounding suspense account, signed by
// whichever side the discrepancy favors.
func RoundingAdjustment(ownerType OwnerType, ownerID string, currency money.Currency, delta money.Amount) ([]CommandLine, error) {
	if delta.IsZero() {
		return nil, nil
	}
	amount := delta
	walletEntry, suspenseEntry := Credit, Debit
	if delta.Sign() < 0 {
		amount = delta.Neg()
		walletEntry, suspenseEntry = Debit, Credit
	}
	lines := []CommandLine{
		{Account: wallet(ownerType, ownerID, currency), EntryType: walletEntry, Amount: amount, Description: "rounding adjustment"},
		{Account: systemAccount("rounding_suspense", AccountSuspense, currency), EntryType: suspenseEntry, Amount: amount, Description: "rounding adjustment offset"},
	}
	return validateBalanced(lines)
}

// validateBalanced enforces the template-level invariant from §4.5:
// every template MUST validate balance and single-currency before
// returning, rather than trusting construction alone.
func validateBalanced(lines []CommandLine) ([]CommandLine, error) {
	if len(lines) == 0 {
		return lines, nil
	}
	currency := lines[0].Account.Currency
	var sumDebit, sumCredit int64
	for _, l := range lines {
		if l.Account.Currency != currency {
			return nil, ErrCurrencyMismatch
		}
		if !l.Amount.IsPositive() {
			return nil, ErrNotPositiveLine
		}
		if l.EntryType == Debit {
			sumDebit += l.Amount.Cents()
		} else {
			sumCredit += l.Amount.Cents()
		}
	}
	if sumDebit != sumCredit {
		return nil, ErrUnbalancedJournal
	}
	return lines, nil
}
