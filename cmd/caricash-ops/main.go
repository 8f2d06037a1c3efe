// Command caricash-ops is the governed maintenance CLI: a small set of
// operator actions (reconciliation run, fraud rules-version activation,
// idempotency repair, hash-chain verification) that bypass the HTTP API
// but still go through the same engines. Every state-changing action is
// gated by an interactive confirmation prompt so a mistyped flag doesn't
// silently mutate production state; the read-only chain verification runs
// without one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"caricash/internal/config"
	"caricash/internal/fraud"
	"caricash/internal/idempotency"
	"caricash/internal/ledger"
	"caricash/internal/reconcile"
	"caricash/internal/statemachine"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var cfgPath string
	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	fs.StringVar(&cfgPath, "config", "", "path to caricashd configuration")

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "reconcile-run":
		var from, to string
		fs.StringVar(&from, "from", "", "RFC3339 window start")
		fs.StringVar(&to, "to", "", "RFC3339 window end")
		mustParse(fs, args)
		runReconcile(cfgPath, from, to)
	case "fraud-activate-version":
		var versionID, approvedBy string
		fs.StringVar(&versionID, "version", "", "rules version id to activate")
		fs.StringVar(&approvedBy, "approved-by", "", "checker id approving activation")
		mustParse(fs, args)
		activateFraudVersion(cfgPath, versionID, approvedBy)
	case "idempotency-clear-in-progress":
		var scope, key string
		fs.StringVar(&scope, "scope", "", "idempotency scope")
		fs.StringVar(&key, "key", "", "idempotency key")
		mustParse(fs, args)
		clearInProgress(cfgPath, scope, key)
	case "ledger-verify-chain":
		var from, to string
		fs.StringVar(&from, "from", "", "RFC3339 window start")
		fs.StringVar(&to, "to", "", "RFC3339 window end")
		mustParse(fs, args)
		verifyChain(cfgPath, from, to)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `caricash-ops <command> [flags]

Commands:
  reconcile-run               -from RFC3339 -to RFC3339
  fraud-activate-version      -version ID -approved-by CHECKER_ID
  idempotency-clear-in-progress -scope SCOPE -key KEY
  ledger-verify-chain         -from RFC3339 -to RFC3339`)
}

func mustParse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// confirm prompts the operator to type back the exact phrase before a
// governed action proceeds. It refuses to run unattended: a non-terminal
// stdin means there is nobody to confirm, so the action is aborted rather
// than silently skipped or silently approved.
func confirm(action string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("refusing to %s: stdin is not a terminal, run interactively to confirm", action)
	}
	fmt.Fprintf(os.Stderr, "About to %s. Type CONFIRM to proceed: ", action)
	var response string
	if _, err := fmt.Fscanln(os.Stdin, &response); err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if response != "CONFIRM" {
		return fmt.Errorf("confirmation not given, aborting")
	}
	return nil
}

func openDB(cfgPath string) (*gorm.DB, config.Config) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		fatalf("connect database: %v", err)
	}
	return db, cfg
}

func parseWindowArgs(fromStr, toStr string) (time.Time, time.Time) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			fatalf("parse -from: %v", err)
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			fatalf("parse -to: %v", err)
		}
		to = parsed
	}
	return from, to
}

func runReconcile(cfgPath, fromStr, toStr string) {
	if err := confirm("run a reconciliation sweep"); err != nil {
		fatalf("%v", err)
	}
	db, _ := openDB(cfgPath)
	ledgerStore, err := ledger.NewStore(db)
	if err != nil {
		fatalf("ledger store: %v", err)
	}
	reconcileStore, err := reconcile.NewStore(db)
	if err != nil {
		fatalf("reconcile store: %v", err)
	}
	kernel := statemachine.NewKernel(statemachine.DefaultTables())
	engine := reconcile.NewEngine(reconcileStore, ledgerStore, kernel, 10_000_00, nil)

	from, to := parseWindowArgs(fromStr, toStr)
	run, err := engine.Run(context.Background(), from, to)
	if err != nil {
		fatalf("run reconciliation: %v", err)
	}
	fmt.Printf("reconciliation run %s: status=%s findings=%d\n", run.ID, run.Status, run.FindingsCount)
}

func activateFraudVersion(cfgPath, versionID, approvedBy string) {
	if versionID == "" || approvedBy == "" {
		fatalf("-version and -approved-by are required")
	}
	if err := confirm(fmt.Sprintf("activate fraud rules version %s", versionID)); err != nil {
		fatalf("%v", err)
	}
	db, _ := openDB(cfgPath)
	store, err := fraud.NewStore(db)
	if err != nil {
		fatalf("fraud store: %v", err)
	}
	if err := store.ActivateVersion(context.Background(), versionID, approvedBy, time.Now().UTC()); err != nil {
		fatalf("activate version: %v", err)
	}
	fmt.Printf("fraud rules version %s activated by %s\n", versionID, approvedBy)
}

func clearInProgress(cfgPath, scope, key string) {
	if scope == "" || key == "" {
		fatalf("-scope and -key are required")
	}
	if err := confirm(fmt.Sprintf("clear the in-progress idempotency marker for %s/%s", scope, key)); err != nil {
		fatalf("%v", err)
	}
	db, _ := openDB(cfgPath)
	store, err := idempotency.NewStore(db)
	if err != nil {
		fatalf("idempotency store: %v", err)
	}
	if err := store.ClearInProgress(context.Background(), scope, key); err != nil {
		fatalf("clear in-progress: %v", err)
	}
	fmt.Printf("cleared in-progress marker for %s/%s\n", scope, key)
}

func verifyChain(cfgPath, fromStr, toStr string) {
	db, _ := openDB(cfgPath)
	ledgerStore, err := ledger.NewStore(db)
	if err != nil {
		fatalf("ledger store: %v", err)
	}
	from, to := parseWindowArgs(fromStr, toStr)
	ok, faults, err := ledgerStore.VerifyChain(context.Background(), from, to)
	if err != nil {
		fatalf("verify chain: %v", err)
	}
	if ok {
		fmt.Println("hash chain intact")
		return
	}
	fmt.Printf("hash chain broken: %d fault(s)\n", len(faults))
	for _, f := range faults {
		fmt.Printf("  journal=%s: %s\n", f.JournalID, f.Kind)
	}
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
