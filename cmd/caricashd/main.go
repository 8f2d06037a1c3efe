// Command caricashd is the thin HTTP bootstrap for the CariCash ledger and
// governance platform: it wires the posting engine, approval workflow,
// reconciliation, and fraud evaluator behind a chi router, following the
// gateway's bootstrap shape (flag-configured path, slog setup, graceful
// shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"caricash/internal/approval"
	"caricash/internal/audit"
	"caricash/internal/auth"
	"caricash/internal/config"
	"caricash/internal/fraud"
	"caricash/internal/idempotency"
	"caricash/internal/intercept"
	"caricash/internal/ledger"
	"caricash/internal/money"
	"caricash/internal/observability/logging"
	obsmetrics "caricash/internal/observability/metrics"
	"caricash/internal/observability/tracing"
	"caricash/internal/policy"
	"caricash/internal/reconcile"
	"caricash/internal/reversal"
	"caricash/internal/statemachine"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to caricashd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CARICASH_ENV"))
	slogger := logging.Setup("caricashd", env)
	logger := log.New(os.Stdout, "caricashd ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if cfg.Observability.Tracing {
		_, shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{
			ServiceName: cfg.Observability.ServiceName,
			Environment: cfg.Observability.Env,
		})
		if err != nil {
			logger.Fatalf("init tracing: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}

	app, err := wireApplication(db, cfg, slogger)
	if err != nil {
		logger.Fatalf("wire application: %v", err)
	}
	if app.checkpoints != nil {
		defer app.checkpoints.Close()
	}

	handler := app.router()

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopSweeps := app.startBackgroundSweeps(ctx, cfg, slogger)
	defer stopSweeps()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	go func() {
		logger.Printf("listening on http://%s", listener.Addr())
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatalf("serve: %v", serveErr)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// application bundles every wired component main needs to build routes and
// background sweeps.
type application struct {
	cfg           config.Config
	metrics       *obsmetrics.Registry
	ledgerStore   *ledger.Store
	poster        *ledger.Engine
	approvals     *approval.Engine
	approvalReg   *approval.Registry
	policies      *policy.Engine
	policySet     []policy.Policy
	reconcile     *reconcile.Engine
	fraud         *fraud.Evaluator
	authenticator *auth.Authenticator
	bindings      *intercept.Registry
	opener        *approval.InterceptOpener
	tailMirror    *audit.TailMirror
	checkpoints   ledger.CheckpointCache
}

func wireApplication(db *gorm.DB, cfg config.Config, logger *slog.Logger) (*application, error) {
	ledgerStore, err := ledger.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("ledger store: %w", err)
	}
	idem, err := idempotency.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}

	reg := obsmetrics.New()
	ledgerMetrics := ledger.NewMetrics(reg)
	tracer := ledger.NewOtelTracer("caricash/ledger")

	var checkpoints ledger.CheckpointCache
	if dir := strings.TrimSpace(cfg.Ledger.CheckpointDir); dir != "" {
		checkpoints, err = ledger.NewLevelDBCheckpointCache(dir)
		if err != nil {
			return nil, fmt.Errorf("ledger checkpoint cache: %w", err)
		}
	}
	poster := ledger.NewEngine(ledgerStore, idem, checkpoints, ledgerMetrics, tracer)
	if cfg.RateLimit.RatePerSecond > 0 {
		poster.SetDomainKeyRateLimit(cfg.RateLimit.RatePerSecond, cfg.RateLimit.Burst)
	}

	var tailMirror *audit.TailMirror
	mirrors := make([]audit.Mirror, 0, 2)
	if path := strings.TrimSpace(cfg.Audit.MirrorFilePath); path != "" {
		mirrors = append(mirrors, audit.NewFileMirror(path, cfg.Audit.MirrorMaxSizeMB, cfg.Audit.MirrorMaxBackups, cfg.Audit.MirrorMaxAgeDays))
	}
	if cfg.Audit.TailEnabled {
		tailMirror = audit.NewTailMirror()
		mirrors = append(mirrors, tailMirror)
	}
	var auditMirror audit.Mirror
	if len(mirrors) > 0 {
		auditMirror = audit.NewFanoutMirror(mirrors...)
	}
	auditSink, err := audit.NewSink(db, auditMirror)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}

	approvalStore, err := approval.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("approval store: %w", err)
	}
	approvalRegistry := approval.NewRegistry()
	approvalEngine := approval.NewEngine(approvalStore, approvalRegistry, auditSink)

	kernel := statemachine.NewKernel(statemachine.DefaultTables())
	reversal.NewHandlers(ledgerStore, poster, kernel).Register(approvalRegistry)

	authenticator := auth.NewAuthenticator(cfg.Auth, logger)

	fraudStore, err := fraud.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("fraud store: %w", err)
	}
	fraud.NewHandlers(fraudStore).Register(approvalRegistry)
	fraudEvaluator := fraud.NewEvaluator(fraudStore, fraud.NoopScoringProvider{})

	var policySet []policy.Policy
	if dir := strings.TrimSpace(cfg.Approval.PolicyFixtureDir); dir != "" {
		policySet, err = policy.LoadFixtureDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load policy fixtures: %w", err)
		}
	}
	policyEngine := policy.NewEngine()

	opener := &approval.InterceptOpener{
		Engine: approvalEngine,
		Matcher: func(ctx context.Context, approvalType, payloadJSON string) policy.MatchResult {
			var payload map[string]interface{}
			_ = json.Unmarshal([]byte(payloadJSON), &payload)
			return policyEngine.Match(policySet, policy.MatchContext{
				ApprovalType: approvalType,
				Payload:      payload,
				Now:          time.Now().UTC(),
			})
		},
	}
	// The binding registry starts empty, so no route is intercepted; rows in
	// the endpoint_bindings table are not loaded into it.
	bindingRegistry := intercept.NewRegistry(nil)

	reconcileStore, err := reconcile.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("reconcile store: %w", err)
	}
	var archiver *reconcile.Archiver
	if dir := strings.TrimSpace(cfg.Reconciliation.ArchiveDir); dir != "" {
		archiver, err = reconcile.NewArchiver(dir)
		if err != nil {
			return nil, fmt.Errorf("reconcile archiver: %w", err)
		}
	}
	reconcileEngine := reconcile.NewEngine(reconcileStore, ledgerStore, kernel, 10_000_00, archiver)

	return &application{
		cfg:           cfg,
		metrics:       reg,
		ledgerStore:   ledgerStore,
		poster:        poster,
		approvals:     approvalEngine,
		approvalReg:   approvalRegistry,
		policies:      policyEngine,
		policySet:     policySet,
		reconcile:     reconcileEngine,
		fraud:         fraudEvaluator,
		authenticator: authenticator,
		bindings:      bindingRegistry,
		opener:        opener,
		tailMirror:    tailMirror,
		checkpoints:   checkpoints,
	}, nil
}

func (a *application) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"}}))
	r.Use(a.authenticator.Middleware)
	r.Use(intercept.Middleware(a.bindings, a.opener, auth.ActorFromContext, correlationIDFor))

	r.Get("/healthz", a.handleHealth)
	r.Mount("/metrics", a.metrics.Handler())

	r.Route("/tx", func(r chi.Router) {
		for _, txnType := range []string{"deposit", "withdrawal", "p2p", "payment", "b2b"} {
			r.Post("/"+txnType, a.handlePost(txnType))
		}
	})
	r.Get("/wallets/{ownerType}/{ownerID}/{currency}/balance", a.handleBalance)
	r.Post("/approvals/{id}/approve", a.handleApprovalDecision(approval.DecisionApprove))
	r.Post("/approvals/{id}/reject", a.handleApprovalDecision(approval.DecisionReject))
	r.Get("/ops/ledger/verify", a.handleVerifyChain)
	r.Post("/ops/reconciliation/run", a.handleReconciliationRun)
	if a.tailMirror != nil {
		r.Get("/ops/events/tail", a.tailMirror.ServeHTTP)
	}

	return r
}

func (a *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type postRequest struct {
	DomainKey      string `json:"domain_key"`
	Currency       string `json:"currency"`
	ActorType      string `json:"actor_type"`
	ActorID        string `json:"actor_id"`
	IdempotencyKey string `json:"idempotency_key"`
	AmountCents    int64  `json:"amount_cents"`
	FeeCents       int64  `json:"fee_cents"`
	CustomerID     string `json:"customer_id"`
}

// handlePost invokes C5 for txnType; only DEPOSIT is wired against a
// ledger template end to end, the remaining transaction types share the
// same envelope but are stubbed pending their own templates.
func (a *application) handlePost(txnType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		correlationID := correlationIDFor(r)

		if strings.ToUpper(txnType) != "DEPOSIT" {
			writeError(w, http.StatusNotImplemented, "VALIDATION_ERROR", fmt.Sprintf("txn type %s not yet wired", txnType))
			return
		}

		currency := money.Currency(strings.ToUpper(req.Currency))
		gross := money.MustFromCents(req.AmountCents)
		fee := money.MustFromCents(req.FeeCents)
		lines, err := ledger.DepositWithFee(req.CustomerID, currency, gross, fee, money.Zero)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}

		result, err := a.poster.Post(r.Context(), ledger.Command{
			DomainKey: req.DomainKey, TxnType: "DEPOSIT", Currency: currency,
			ActorType: req.ActorType, ActorID: req.ActorID, IdempotencyKey: req.IdempotencyKey,
			CorrelationID: correlationID, Lines: lines,
		})
		if err != nil {
			writePostError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"journal_id":     result.JournalID,
			"journal_hash":   result.JournalHash,
			"correlation_id": correlationID,
		})
	}
}

func (a *application) handleBalance(w http.ResponseWriter, r *http.Request) {
	ownerType := chi.URLParam(r, "ownerType")
	ownerID := chi.URLParam(r, "ownerID")
	currency := money.Currency(strings.ToUpper(chi.URLParam(r, "currency")))
	key := ledger.AccountKey{OwnerType: ledger.OwnerType(strings.ToUpper(ownerType)), OwnerID: ownerID, AccountType: ledger.AccountWallet, Currency: currency}
	bal, err := a.ledgerStore.GetBalance(r.Context(), key.ID(), currency)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actual_cents":    bal.ActualCents,
		"hold_cents":      bal.HoldCents,
		"available_cents": bal.ActualCents - bal.HoldCents,
	})
}

type decisionRequest struct {
	DeciderID   string   `json:"decider_id"`
	DeciderRole string   `json:"decider_role"`
	Reason      string   `json:"reason"`
	PreviousIDs []string `json:"previous_approver_ids"`
}

func (a *application) handleApprovalDecision(decision approval.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		result, err := a.approvals.Decide(r.Context(), id, decision, req.DeciderID, req.DeciderRole, req.Reason, req.PreviousIDs, nil)
		if err != nil {
			writeError(w, http.StatusBadRequest, "MAKER_CHECKER_REQUIRED", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"request_id": result.ID, "state": result.State})
	}
}

func (a *application) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	ok, faults, err := a.ledgerStore.VerifyChain(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": ok, "faults": faults})
}

func (a *application) handleReconciliationRun(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	run, err := a.reconcile.Run(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse from: %w", err)
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse to: %w", err)
		}
		to = parsed
	}
	return from, to, nil
}

// startBackgroundSweeps launches the approval-expiry sweep and the
// reconciliation scheduler, both driven off cfg's intervals, and returns a
// stop func that waits for them to exit.
func (a *application) startBackgroundSweeps(ctx context.Context, cfg config.Config, logger interface {
	Error(msg string, args ...interface{})
}) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		expiryTicker := time.NewTicker(cfg.Approval.ExpirySweepInterval)
		defer expiryTicker.Stop()
		reconcileTicker := time.NewTicker(cfg.Reconciliation.RunInterval)
		defer reconcileTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-expiryTicker.C:
				if _, err := a.approvals.ExpireOverdue(ctx); err != nil {
					logger.Error("approval expiry sweep failed", "error", err)
				}
			case <-reconcileTicker.C:
				to := time.Now().UTC()
				from := to.Add(-cfg.Reconciliation.RunInterval - cfg.Reconciliation.WindowOverlap)
				if _, err := a.reconcile.Run(ctx, from, to); err != nil {
					logger.Error("reconciliation run failed", "error", err)
				}
			}
		}
	}()
	return func() { <-done }
}

func correlationIDFor(r *http.Request) string {
	if v := r.Header.Get("X-Correlation-ID"); v != "" {
		return v
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func writePostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, ledger.ErrCurrencyMismatch):
		writeError(w, http.StatusBadRequest, "CURRENCY_MISMATCH", err.Error())
	case errors.Is(err, idempotency.ErrConflict):
		writeError(w, http.StatusConflict, "DUPLICATE_IDEMPOTENCY_CONFLICT", err.Error())
	case errors.Is(err, ledger.ErrIdempotencyInProgress):
		writeError(w, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", err.Error())
	case errors.Is(err, ledger.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "BACKPRESSURE", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
