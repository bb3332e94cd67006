package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lorein/lore/internal/config"
	"github.com/lorein/lore/internal/database"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/session"
)

// runSessions dispatches the sessions subcommands. Transcript management
// only needs the local SQLite store, so no AI provider or corpus connection
// is set up here.
func runSessions(logger log.Logger) error {
	args := argsAfterCommand()
	if len(args) == 0 {
		return fmt.Errorf("%w: usage: lore sessions list|show|export|rename|delete|prune", errUsage)
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
	store := session.NewStore(db, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return sessionsList(ctx, store)
	case "show":
		return sessionsShow(ctx, store, rest)
	case "export":
		return sessionsExport(ctx, store, rest)
	case "rename":
		return sessionsRename(ctx, store, rest)
	case "delete":
		return sessionsDelete(ctx, store, rest)
	case "prune":
		return sessionsPrune(ctx, store, rest)
	default:
		return fmt.Errorf("%w: unknown sessions subcommand %q", errUsage, sub)
	}
}

func sessionsList(ctx context.Context, store *session.Store) error {
	sessions, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Start one with: lore chat")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, title, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func sessionsShow(ctx context.Context, store *session.Store, args []string) error {
	id, err := parseIDArg(args, "show")
	if err != nil {
		return err
	}
	data, err := store.Export(ctx, id, session.FormatText)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func sessionsExport(ctx context.Context, store *session.Store, args []string) error {
	exportFlags := flag.NewFlagSet("sessions export", flag.ContinueOnError)
	format := exportFlags.String("format", session.FormatJSON, "Export format: json or text")

	var positional []string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = args[:1]
		args = args[1:]
	}
	if err := exportFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing export flags: %w", err)
	}

	id, err := parseIDArg(positional, "export")
	if err != nil {
		return err
	}
	data, err := store.Export(ctx, id, *format)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func sessionsRename(ctx context.Context, store *session.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: usage: lore sessions rename <id> <title>", errUsage)
	}
	id, err := parseIDArg(args[:1], "rename")
	if err != nil {
		return err
	}
	title := strings.Join(args[1:], " ")
	if err := store.Rename(ctx, id, title); err != nil {
		return err
	}
	fmt.Printf("Session %d renamed.\n", id)
	return nil
}

func sessionsDelete(ctx context.Context, store *session.Store, args []string) error {
	id, err := parseIDArg(args, "delete")
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		return err
	}

	// Drop the current-session pointer when it referenced the deleted
	// session, so the next chat does not resurrect a dead ID.
	if dir, dirErr := config.Dir(); dirErr == nil {
		if saved, ok, _ := session.LoadCurrentID(dir); ok && saved == id {
			_ = session.ClearCurrentID(dir)
		}
	}

	fmt.Printf("Session %d deleted.\n", id)
	return nil
}

func sessionsPrune(ctx context.Context, store *session.Store, args []string) error {
	pruneFlags := flag.NewFlagSet("sessions prune", flag.ContinueOnError)
	confirm := pruneFlags.Bool("confirm", false, "Confirm deleting ALL sessions")
	if err := pruneFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing prune flags: %w", err)
	}
	if !*confirm {
		return fmt.Errorf("%w: prune deletes every session; re-run with --confirm", errUsage)
	}

	deleted, err := store.DeleteAll(ctx)
	if err != nil {
		return err
	}
	if dir, dirErr := config.Dir(); dirErr == nil {
		_ = session.ClearCurrentID(dir)
	}
	fmt.Printf("Deleted %d sessions.\n", deleted)
	return nil
}

func parseIDArg(args []string, sub string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%w: usage: lore sessions %s <id>", errUsage, sub)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: session id must be a positive integer", errUsage)
	}
	return id, nil
}
