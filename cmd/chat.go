package cmd

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lorein/lore/internal/app"
	"github.com/lorein/lore/internal/chat"
	"github.com/lorein/lore/internal/config"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/session"
)

// runChat starts the interactive REPL.
func runChat(logger log.Logger) error {
	chatFlags := flag.NewFlagSet("chat", flag.ContinueOnError)
	sessionID := chatFlags.Int64("session", 0, "Continue an existing session")
	if err := chatFlags.Parse(argsAfterCommand()); err != nil {
		return fmt.Errorf("parsing chat flags: %w", err)
	}

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

	stateDir, err := config.Dir()
	if err != nil {
		return err
	}

	current, err := resolveSession(ctx, a, stateDir, *sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("Session %d. Type /help for commands, Ctrl+D to leave.\n", current)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			fmt.Println()
			return nil
		}
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/exit", "/quit":
			return nil
		case "/help":
			fmt.Println("/new starts a fresh session, /exit leaves. Anything else is a question.")
			continue
		case "/new":
			current, err = newSession(ctx, a, stateDir)
			if err != nil {
				return err
			}
			fmt.Printf("Session %d.\n", current)
			continue
		}

		turn, err := a.Orchestrator.Ask(ctx, current, line, func(e chat.Event) error {
			if e.Type == chat.EventChunk {
				fmt.Print(e.Chunk)
			}
			return nil
		})
		fmt.Println()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printSources(turn)
	}
}

// resolveSession picks the session for this chat: the --session flag, then
// the saved current session, then a fresh one.
func resolveSession(ctx context.Context, a *app.App, stateDir string, requested int64) (int64, error) {
	if requested > 0 {
		if _, err := a.Sessions.Get(ctx, requested); err != nil {
			return 0, err
		}
		if err := session.SaveCurrentID(stateDir, requested); err != nil {
			return 0, err
		}
		return requested, nil
	}

	saved, ok, err := session.LoadCurrentID(stateDir)
	if err != nil {
		a.Logger.Warn("ignoring unreadable session state", "error", err)
	} else if ok {
		if _, err := a.Sessions.Get(ctx, saved); err == nil {
			return saved, nil
		}
		// Saved session was deleted; fall through to a fresh one.
	}
	return newSession(ctx, a, stateDir)
}

func newSession(ctx context.Context, a *app.App, stateDir string) (int64, error) {
	sess, err := a.Sessions.Create(ctx, "")
	if err != nil {
		return 0, err
	}
	if err := session.SaveCurrentID(stateDir, sess.ID); err != nil {
		return 0, err
	}
	return sess.ID, nil
}

func printSources(turn *chat.Turn) {
	if turn == nil || len(turn.Sources) == 0 {
		return
	}
	fmt.Println("Sources:")
	for i, src := range turn.Sources {
		name := src.Metadata["file_name"]
		if name == "" {
			name = "(unknown)"
		}
		fmt.Printf("  [%d] %.2f %s\n", i+1, src.Score, name)
	}
}

// argsAfterCommand returns os.Args past the subcommand name.
func argsAfterCommand() []string {
	if len(os.Args) > 2 {
		return os.Args[2:]
	}
	return nil
}

// errUsage marks argument mistakes that should show usage help.
var errUsage = errors.New("invalid arguments")
