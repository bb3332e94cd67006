// Package cmd provides the lore CLI commands.
//
// Commands:
//   - chat: interactive REPL with streamed answers
//   - sessions: transcript management (list, show, export, rename, delete, prune)
//   - ingest: feed files or directories into the corpus
//   - files: list tracked files
//   - serve: HTTP API server
//
// All long-running commands shut down gracefully on SIGINT/SIGTERM via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lorein/lore/internal/log"
)

// Execute is the entry point for the lore CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "chat":
		return runChat(logger)
	case "sessions":
		return runSessions(logger)
	case "ingest":
		return runIngest(logger)
	case "files":
		return runFiles(logger)
	case "serve":
		return runServe(logger)
	case "config":
		return runConfig(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Lore - retrieval-augmented chat over your own documents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lore chat [--session N]        Start an interactive chat")
	fmt.Println("  lore sessions list             List sessions")
	fmt.Println("  lore sessions show <id>        Show a session transcript")
	fmt.Println("  lore sessions export <id>      Export a transcript (--format json|text)")
	fmt.Println("  lore sessions rename <id> <t>  Rename a session")
	fmt.Println("  lore sessions delete <id>      Delete a session and its messages")
	fmt.Println("  lore sessions prune --confirm  Delete ALL sessions")
	fmt.Println("  lore ingest <path>             Ingest a file or directory")
	fmt.Println("  lore files [--indexed=bool]    List tracked files")
	fmt.Println("  lore serve [addr]              Start the HTTP API server")
	fmt.Println("  lore config [show]             Print the active configuration")
	fmt.Println("  lore config init [--force]     Write a default config.yaml")
	fmt.Println("  lore version                   Show version information")
	fmt.Println()
	fmt.Println("Chat commands:")
	fmt.Println("  /new               Start a fresh session")
	fmt.Println("  /exit, /quit       Leave the chat (Ctrl+D works too)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  LORE_OLLAMA_HOST   Ollama server address")
	fmt.Println("  GEMINI_API_KEY     Required for the gemini provider")
	fmt.Println("  DATABASE_URL       PostgreSQL connection for the corpus")
	fmt.Println("  DEBUG              Enable debug logging")
}
