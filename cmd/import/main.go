// Command import bulk-creates draft work items from a JSON-lines file
// into the configured store backend. Existing items are skipped.
//
// Usage:
//
//	import --file=items.jsonl [--batch=100]
//
// Each line: {"group_key":"g","id":"1","text":"...","labels":[],"references":[]}
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/heartmarshall/curation-backend/internal/app"
	"github.com/heartmarshall/curation-backend/internal/config"
	"github.com/heartmarshall/curation-backend/internal/importer"
	"github.com/heartmarshall/curation-backend/internal/store"
)

func main() {
	file := flag.String("file", "", "JSON-lines input, - for stdin")
	batch := flag.Int("batch", 100, "items per write batch")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: import --file=items.jsonl [--batch=100]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *file, *batch); err != nil {
		logger.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, path string, batch int) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	backends, err := app.OpenBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	st, err := store.New(logger, backends.Items, store.Options{
		ReadAttempts:   cfg.Store.ReadAttempts,
		ReadRetryDelay: cfg.Store.ReadRetryDelay,
		CallTimeout:    cfg.Store.CallTimeout,
	})
	if err != nil {
		return err
	}

	res, err := importer.New(logger, st, batch).Import(ctx, in)
	logger.Info("import finished",
		slog.Int("read", res.Read),
		slog.Int("created", res.Created),
		slog.Int("duplicates", res.Duplicates),
	)
	return err
}
