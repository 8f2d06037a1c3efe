package ledger

import "errors"

var (
	// ErrAccountNotFound is returned when a referenced account does not exist
	// and the caller did not request lazy creation.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrCurrencyMismatch is returned when a command mixes currencies across
	// its lines, violating the single-currency-per-journal invariant (§4.1
	// precondition 1).
	ErrCurrencyMismatch = errors.New("ledger: CURRENCY_MISMATCH")

	// ErrUnbalancedJournal is returned when the sum of debits does not equal
	// the sum of credits (§4.1 precondition 2).
	ErrUnbalancedJournal = errors.New("ledger: UNBALANCED_JOURNAL")

	// ErrInsufficientFunds is returned when a debit would take an account's
	// available balance below its overdraft-adjusted floor (§4.1
	// precondition 3).
	ErrInsufficientFunds = errors.New("ledger: INSUFFICIENT_FUNDS")

	// ErrUnknownAccount is returned when a line references an account key
	// the caller did not declare as lazily-creatable.
	ErrUnknownAccount = errors.New("ledger: UNKNOWN_ACCOUNT")

	// ErrEmptyJournal is returned when a command has fewer than two lines.
	ErrEmptyJournal = errors.New("ledger: EMPTY_JOURNAL")

	// ErrNotPositiveLine is returned when a command line's amount is not
	// strictly positive (§4.1 precondition 3).
	ErrNotPositiveLine = errors.New("ledger: AMOUNT_NOT_POSITIVE")

	// ErrWriteGuard is returned by the append-only guard when an UPDATE or
	// DELETE is attempted against ledger_journals or ledger_lines.
	ErrWriteGuard = errors.New("ledger: journals and lines are append-only")

	// ErrChainBroken is returned by VerifyChain when a hash mismatch is
	// found; callers should inspect the returned ChainFault list for detail.
	ErrChainBroken = errors.New("ledger: hash chain verification failed")

	// ErrDomainKeyRequired is returned when a command omits the domain key
	// used to select its serialized posting actor.
	ErrDomainKeyRequired = errors.New("ledger: domain key required")

	// ErrActorShutdown is returned when a command is submitted to an actor
	// that has already drained and stopped.
	ErrActorShutdown = errors.New("ledger: posting actor shut down")
)
