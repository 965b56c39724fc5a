// Command reconcile repairs drift between organization records and their
// tenant collections, such as a rename interrupted between steps.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/upb/org-control-plane/app"
	"github.com/upb/org-control-plane/config"
	"github.com/upb/org-control-plane/internal/observability"
	"github.com/upb/org-control-plane/services/reconcile"
	"go.uber.org/zap"
)

func main() {
	purge := flag.Bool("purge", false, "drop prefixed collections that no organization references")
	flag.Parse()

	// stdout carries the report, so logs go to stderr in console form
	logger, err := observability.NewLogger(envOrDefault("LOG_LEVEL", "info"), "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	// The CLI writes audit entries nowhere and never logs in
	cfg.Audit.Enabled = false
	cfg.RateLimit.Enabled = false

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close(context.Background())

	if err := run(ctx, deps.Reconciler, reconcile.Options{PurgeOrphans: *purge}, os.Stdout); err != nil {
		logger.Error("reconciliation failed", zap.Error(err))
		_ = deps.Close(context.Background())
		os.Exit(1)
	}
}

// Reconciler runs one reconciliation pass
type Reconciler interface {
	Run(ctx context.Context, opts reconcile.Options) (*reconcile.Report, error)
}

func run(ctx context.Context, r Reconciler, opts reconcile.Options, out io.Writer) error {
	report, err := r.Run(ctx, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
