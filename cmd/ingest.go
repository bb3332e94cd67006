package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lorein/lore/internal/app"
	"github.com/lorein/lore/internal/config"
	"github.com/lorein/lore/internal/database"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/tracker"
)

// runIngest feeds a file or directory into the corpus.
func runIngest(logger log.Logger) error {
	args := argsAfterCommand()
	if len(args) < 1 {
		return fmt.Errorf("%w: usage: lore ingest <path>", errUsage)
	}
	path := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Ingestor.Ingest(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d files (%d chunks) in %s; skipped %d, failed %d.\n",
		result.FilesAdded, result.Chunks, result.Duration.Round(time.Millisecond),
		result.FilesSkipped, result.FilesFailed)
	return nil
}

// runFiles lists tracked files. Like the sessions command it only touches
// the local SQLite store.
func runFiles(logger log.Logger) error {
	filesFlags := flag.NewFlagSet("files", flag.ContinueOnError)
	indexedFlag := filesFlags.String("indexed", "", "Filter by indexed state: true or false")
	if err := filesFlags.Parse(argsAfterCommand()); err != nil {
		return fmt.Errorf("parsing files flags: %w", err)
	}

	var indexed *bool
	switch *indexedFlag {
	case "":
	case "true", "false":
		v := *indexedFlag == "true"
		indexed = &v
	default:
		return fmt.Errorf("%w: --indexed must be true or false", errUsage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	files, err := tracker.New(db, logger).ListFiles(ctx, indexed)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No tracked files. Add some with: lore ingest <path>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tINDEXED\tINGESTED")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%t\t%s\n", f.Path, f.Indexed, f.IngestedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}
