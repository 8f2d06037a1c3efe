package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"caricash/internal/idempotency"
	"caricash/internal/idgen"
	"caricash/internal/money"
)

// CommandLine is one DR/CR leg of a posting Command.
type CommandLine struct {
	Account     AccountKey
	EntryType   EntryType
	Amount      money.Amount
	Description string
}

// Command is the input to Engine.Post: a fully-resolved, not-yet-validated
// transaction (§4.1's "command").
type Command struct {
	DomainKey      string
	TxnType        string
	Currency       money.Currency
	ActorType      string
	ActorID        string
	CorrelationID  string
	IdempotencyKey string
	Description    string
	Lines          []CommandLine
}

// Result is the outcome of a successful Post, matching §4.1's result shape.
type Result struct {
	JournalID     string                     `json:"journal_id"`
	JournalHash   string                     `json:"journal_hash"`
	CreatedAt     time.Time                  `json:"created_at"`
	PostBalances  map[string]money.Amount    `json:"post_balances"`
	Replayed      bool                       `json:"-"`
}

// ErrIdempotencyInProgress mirrors §4.1 precondition 4's IDEMPOTENCY_IN_PROGRESS.
var ErrIdempotencyInProgress = errors.New("ledger: IDEMPOTENCY_IN_PROGRESS")

// Engine is the Posting Engine (C5): it dedups via the idempotency store,
// validates preconditions, and writes through the hash-chained journal
// store, all under the serialized section of the command's domain key.
type Engine struct {
	store    *Store
	idem     *idempotency.Store
	actors   *actorPool
	metrics  *Metrics
	tracer   Tracer
	limiters *domainLimiters
}

// NewEngine wires the posting engine. checkpoints may be nil, in which case
// the actors keep their last-committed hashes in an in-memory cache. The
// per-key post rate is unlimited until SetDomainKeyRateLimit is called; a
// post to a domain key whose actor inbox is full fails with ErrBackpressure.
func NewEngine(store *Store, idem *idempotency.Store, checkpoints CheckpointCache, metrics *Metrics, tracer Tracer) *Engine {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if tracer == nil {
		tracer = noopTracer{}
	}
	return &Engine{
		store:    store,
		idem:     idem,
		actors:   newActorPool(checkpoints),
		metrics:  metrics,
		tracer:   tracer,
		limiters: newDomainLimiters(),
	}
}

// SetDomainKeyRateLimit caps each domain key's post rate to a token bucket
// of ratePerSecond tokens refilling continuously, up to burst tokens
// banked. Posts beyond the limit fail fast with ErrBackpressure instead of
// queuing indefinitely behind a hot key (§5 Backpressure).
func (e *Engine) SetDomainKeyRateLimit(ratePerSecond float64, burst int) {
	e.limiters.configure(ratePerSecond, burst)
}

// Post submits cmd to its domain key's serialized actor and blocks for the
// result. Concurrent Post calls on different domain keys run fully in
// parallel; calls on the same domain key are strictly ordered (§4.1: "one
// logical actor per domain key").
func (e *Engine) Post(ctx context.Context, cmd Command) (Result, error) {
	if cmd.DomainKey == "" {
		return Result{}, ErrDomainKeyRequired
	}
	if !e.limiters.allow(cmd.DomainKey) {
		return Result{}, ErrBackpressure
	}
	ctx, span := e.tracer.StartSpan(ctx, "ledger.Post")
	defer span.End()

	work := postWork{cmd: cmd, reply: make(chan postReply, 1)}
	actor := e.actors.actorFor(cmd.DomainKey, e)
	select {
	case actor.inbox <- work:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
		return Result{}, ErrBackpressure
	}
	select {
	case reply := <-work.reply:
		if reply.err != nil {
			e.metrics.postFailures.WithLabelValues(cmd.TxnType).Inc()
			span.RecordError(reply.err)
		} else {
			e.metrics.postsTotal.WithLabelValues(cmd.TxnType).Inc()
		}
		return reply.result, reply.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// execute runs the full §4.1 posting sequence for cmd. It is only ever
// invoked from a domain key's single actor goroutine, so it never races
// with another execute call for the same domain key.
func (e *Engine) execute(ctx context.Context, cmd Command) (Result, error) {
	scopeHash := idempotency.ScopeHash(cmd.ActorType, cmd.ActorID, cmd.TxnType, cmd.IdempotencyKey)
	payloadHash, err := idempotency.PayloadHash(payloadForHash(cmd))
	if err != nil {
		return Result{}, fmt.Errorf("ledger: payload hash: %w", err)
	}

	lookup, err := e.idem.Lookup(ctx, scopeHash, cmd.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}
	switch lookup.Status {
	case idempotency.StatusInProgress:
		return Result{}, ErrIdempotencyInProgress
	case idempotency.StatusCommitted:
		if conflictErr := idempotency.ConflictCheck(lookup.PayloadHash, payloadHash); conflictErr != nil {
			return Result{}, conflictErr
		}
		var replayed Result
		if err := json.Unmarshal([]byte(lookup.ResultJSON), &replayed); err != nil {
			return Result{}, fmt.Errorf("ledger: decode replayed result: %w", err)
		}
		replayed.Replayed = true
		return replayed, nil
	}

	// Steps 2 (in-progress marker), 3-8 (journal write), and 9 (committed
	// marker) share one transaction boundary: a crash between the journal
	// write and the commit marker rolls the whole attempt back instead of
	// leaving a posted journal behind a stuck IN_PROGRESS record.
	var result Result
	txErr := e.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := e.store.WithTx(tx)
		txIdem := e.idem.WithTx(tx)

		if err := txIdem.PutInProgress(ctx, scopeHash, cmd.IdempotencyKey, payloadHash); err != nil {
			return err
		}

		r, err := e.postLocked(ctx, txStore, cmd)
		if err != nil {
			return err
		}

		resultJSONBytes, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("ledger: encode result: %w", err)
		}
		if err := txIdem.PutCommitted(ctx, scopeHash, cmd.IdempotencyKey, payloadHash, string(resultJSONBytes), idempotency.CategoryMoneyTx); err != nil {
			return err
		}
		result = r
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, idempotency.ErrAlreadyExists) {
			// Lost the race against a concurrent identical submission;
			// re-lookup rather than fail outright.
			return e.execute(ctx, cmd)
		}
		return Result{}, txErr
	}
	return result, nil
}

// postLocked performs steps 3-8 of §4.1: resolve accounts, validate
// preconditions, read prev_hash, assign the journal id, and append the
// journal, all against store (which may be a transaction-bound view of
// e.store -- see execute). Steps 9-10 (idempotency commit, event emission)
// happen around this call in execute and in the caller's event pipeline.
func (e *Engine) postLocked(ctx context.Context, store *Store, cmd Command) (Result, error) {
	if len(cmd.Lines) < 2 {
		return Result{}, ErrEmptyJournal
	}

	var sumDebit, sumCredit int64
	accountIDs := make([]string, 0, len(cmd.Lines))
	lines := make([]Line, 0, len(cmd.Lines))
	netDeltaByAccount := make(map[string]int64, len(cmd.Lines))

	for _, cl := range cmd.Lines {
		if !cl.Amount.IsPositive() {
			return Result{}, ErrNotPositiveLine
		}
		if cl.Account.Currency != cmd.Currency {
			return Result{}, ErrCurrencyMismatch
		}
		acct, err := store.EnsureAccount(ctx, cl.Account)
		if err != nil {
			return Result{}, err
		}
		lines = append(lines, Line{
			ID:          newULID(),
			AccountID:   acct.ID,
			EntryType:   cl.EntryType,
			AmountCents: cl.Amount.Cents(),
			Description: cl.Description,
		})
		accountIDs = append(accountIDs, acct.ID)
		delta := cl.Amount.Cents()
		if cl.EntryType == Debit {
			sumDebit += cl.Amount.Cents()
			delta = -delta
		} else {
			sumCredit += cl.Amount.Cents()
		}
		// Only wallet accounts are funds-checked; treasury, fee and other
		// system accounts may be debited below zero.
		if cl.Account.AccountType == AccountWallet {
			netDeltaByAccount[acct.ID] += delta
		}
	}
	if sumDebit != sumCredit {
		return Result{}, ErrUnbalancedJournal
	}

	for accountID, delta := range netDeltaByAccount {
		if delta >= 0 {
			continue
		}
		bal, err := store.GetBalance(ctx, accountID, cmd.Currency)
		if err != nil {
			return Result{}, err
		}
		floor, err := e.overdraftFloor(ctx, store, accountID)
		if err != nil {
			return Result{}, err
		}
		projectedAvailable := bal.ActualCents + delta - bal.HoldCents
		if projectedAvailable < floor {
			return Result{}, ErrInsufficientFunds
		}
	}

	prevHash, err := e.prevHashFor(ctx, store, cmd.DomainKey)
	if err != nil {
		return Result{}, err
	}

	journal := Journal{
		ID:             newULID(),
		TxnType:        cmd.TxnType,
		Currency:       cmd.Currency,
		CorrelationID:  cmd.CorrelationID,
		IdempotencyKey: cmd.IdempotencyKey,
		ScopeHash:      idempotency.ScopeHash(cmd.ActorType, cmd.ActorID, cmd.TxnType, cmd.IdempotencyKey),
		Description:    cmd.Description,
		DomainKey:      cmd.DomainKey,
		PrevHash:       prevHash,
	}
	payloadHash, err := idempotency.PayloadHash(payloadForHash(cmd))
	if err == nil {
		journal.PayloadHash = payloadHash
	}

	saved, err := store.AppendJournal(ctx, journal, lines)
	if err != nil {
		return Result{}, err
	}
	e.actors.updateCheckpoint(cmd.DomainKey, saved.JournalHash)

	postBalances := make(map[string]money.Amount, len(accountIDs))
	for _, accountID := range dedupe(accountIDs) {
		bal, err := store.GetBalance(ctx, accountID, cmd.Currency)
		if err != nil {
			return Result{}, err
		}
		postBalances[accountID] = bal.Actual()
	}

	return Result{
		JournalID:    saved.ID,
		JournalHash:  saved.JournalHash,
		CreatedAt:    saved.CreatedAt,
		PostBalances: postBalances,
	}, nil
}

// prevHashFor consults the actor's in-memory checkpoint before falling
// back to the database, so a hot domain key does not pay a round trip on
// every post merely to learn its own last hash.
func (e *Engine) prevHashFor(ctx context.Context, store *Store, domainKey string) (string, error) {
	if cached, ok := e.actors.checkpointHash(domainKey); ok {
		return cached, nil
	}
	hash, err := store.GetLastHash(ctx, domainKey)
	if err != nil {
		return "", err
	}
	e.actors.updateCheckpoint(domainKey, hash)
	return hash, nil
}

func (e *Engine) overdraftFloor(ctx context.Context, store *Store, accountID string) (int64, error) {
	var facility OverdraftFacility
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND state = ?", accountID, OverdraftActive).
		Order("created_at DESC").
		First(&facility).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return -facility.LimitCents, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// payloadForHash strips the correlation id before hashing, per §4.1 step 1
// ("canonical_json(command_minus_correlation)") so tracing metadata never
// affects idempotency conflict detection.
func payloadForHash(cmd Command) interface{} {
	type line struct {
		AccountID   string `json:"account_id"`
		OwnerType   string `json:"owner_type"`
		OwnerID     string `json:"owner_id"`
		AccountType string `json:"account_type"`
		EntryType   string `json:"entry_type"`
		AmountCents int64  `json:"amount_cents"`
	}
	lines := make([]line, 0, len(cmd.Lines))
	for _, cl := range cmd.Lines {
		lines = append(lines, line{
			AccountID:   cl.Account.ID(),
			OwnerType:   string(cl.Account.OwnerType),
			OwnerID:     cl.Account.OwnerID,
			AccountType: string(cl.Account.AccountType),
			EntryType:   string(cl.EntryType),
			AmountCents: cl.Amount.Cents(),
		})
	}
	return struct {
		TxnType        string `json:"txn_type"`
		Currency       string `json:"currency"`
		ActorType      string `json:"actor_type"`
		ActorID        string `json:"actor_id"`
		IdempotencyKey string `json:"idempotency_key"`
		Description    string `json:"description"`
		Lines          []line `json:"lines"`
	}{
		TxnType:        cmd.TxnType,
		Currency:       string(cmd.Currency),
		ActorType:      cmd.ActorType,
		ActorID:        cmd.ActorID,
		IdempotencyKey: cmd.IdempotencyKey,
		Description:    cmd.Description,
		Lines:          lines,
	}
}

func newULID() string { return idgen.New() }
