// Command sessions-cleanup deletes sessions that have been inactive for too
// long and then collapses every user's duplicate device sessions.
//
// Usage:
//
//	sessions-cleanup [--days N]
//
// The session backend comes from the environment (SESSIONS_DRIVER,
// SESSIONS_DSN); see internal/setup.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aadithya-v/sessiondedup"
	"github.com/aadithya-v/sessiondedup/internal/setup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "sessions-cleanup:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := setup.Load()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("sessions-cleanup", pflag.ContinueOnError)
	days := flags.Int("days", cfg.RetentionDays, "delete sessions inactive for more than this many days")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *days < 0 {
		return fmt.Errorf("--days must not be negative, got %d", *days)
	}

	logger, err := setup.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sessions, err := setup.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	m, err := sessiondedup.New(sessiondedup.Config{
		SessionStore:       sessions,
		RetentionDays:      cfg.RetentionDays,
		CleanupConcurrency: cfg.CleanupConcurrency,
		Logger:             logger,
	})
	if err != nil {
		sessions.Close()
		return err
	}
	defer m.Close()

	fmt.Fprintf(out, "Cleaning up sessions older than %d days...\n", *days)

	res, err := m.Cleanup(ctx, *days)
	if res != nil {
		fmt.Fprintf(out, "Deleted %d old sessions.\n", res.Expired)
		fmt.Fprintf(out, "Deleted %d duplicate sessions.\n", res.Duplicates)
		for _, f := range res.Failures {
			logger.Error("user left with duplicates", zap.String("user_id", f.UserID), zap.Error(f.Err))
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Session cleanup completed.")
	return nil
}
