// Command billing-jobs runs the billing sweep steps once, synchronously, for
// one account or every active account. It is meant for cron or manual runs
// when the server's built-in scheduler is disabled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/edubill/backend/internal/bootstrap"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	var (
		accountFlag string
		asOfFlag    string
		logLevel    string
	)
	flag.StringVar(&accountFlag, "account", "", "Account ID (default: every active account)")
	flag.StringVar(&asOfFlag, "as-of", "", "Business date YYYY-MM-DD (default: today, UTC)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		printUsage()
		os.Exit(1)
	}
	kinds, err := commandKinds(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(1)
	}

	asOf := time.Now().UTC()
	if asOfFlag != "" {
		if asOf, err = time.Parse("2006-01-02", asOfFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -as-of date %q: %v\n", asOfFlag, err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	base, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     cfg.Log.Format,
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = base.Sync() }()

	ctx := context.Background()
	rt, err := bootstrap.Open(ctx, cfg, base)
	if err != nil {
		base.Fatal("Failed to initialize runtime", zap.Error(err))
	}
	log := rt.Logger
	services := rt.Services(nil)

	accounts, err := resolveAccounts(ctx, accountFlag, services)
	if err != nil {
		_ = rt.Close(ctx)
		log.Fatal("Failed to resolve accounts", zap.Error(err))
	}
	log.Info("Billing jobs started",
		zap.String("command", args[0]),
		zap.Int("accounts", len(accounts)),
		zap.String("as_of", asOf.Format("2006-01-02")),
	)

	exec := scheduler.NewSweepExecutor(services.SweepSteps(), log.Named("sweep"))
	failed := 0
	for _, id := range accounts {
		job := scheduler.NewJob(id, kinds, asOf, 0)
		job.Start()
		if err := exec.Execute(ctx, job); err != nil {
			job.Fail(err.Error())
			failed++
			continue
		}
		job.Complete()
	}

	if err := rt.Close(ctx); err != nil {
		log.Error("Error releasing runtime", zap.Error(err))
	}
	if failed > 0 {
		log.Error("Billing jobs finished with failures", zap.Int("failed_accounts", failed))
		os.Exit(2)
	}
	log.Info("Billing jobs finished")
}

func commandKinds(command string) ([]scheduler.JobKind, error) {
	switch command {
	case "expand-recurring":
		return []scheduler.JobKind{scheduler.JobKindExpandRecurring}, nil
	case "generate-transactions":
		return []scheduler.JobKind{scheduler.JobKindGenerateTransactions}, nil
	case "flag-overdue":
		return []scheduler.JobKind{scheduler.JobKindFlagOverdue}, nil
	case "sweep":
		return scheduler.AllJobKinds(), nil
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

func resolveAccounts(ctx context.Context, flagValue string, services *bootstrap.Services) ([]uuid.UUID, error) {
	if flagValue == "" {
		return services.Accounts.ListActiveAccountIDs(ctx)
	}
	id, err := uuid.Parse(flagValue)
	if err != nil {
		return nil, errors.New("-account must be a UUID")
	}
	return []uuid.UUID{id}, nil
}

func printUsage() {
	fmt.Println(`Billing job runner

Usage:
  billing-jobs [flags] <command>

Commands:
  expand-recurring        Expand recurring schedule items that have no children yet
  generate-transactions   Bill every active schedule item due by the business date
  flag-overdue            Move outstanding transactions past their due date to overdue
  sweep                   All three, in that order

Flags:
  -account string         Account ID (default: every active account)
  -as-of string           Business date YYYY-MM-DD (default: today, UTC)
  -log-level string       Log level: debug, info, warn, error (default: info)`)
}
