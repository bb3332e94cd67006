package cmd

import (
	"fmt"

	"github.com/lorein/lore/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// runVersion prints version and active configuration.
func runVersion() {
	fmt.Printf("Lore %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("\nConfiguration unavailable: %v\n", err)
		return
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Model: %s\n", cfg.FullModelName())
	fmt.Printf("  Embedder: %s\n", cfg.FullEmbedderName())
	fmt.Printf("  Retrieval: top_k=%d min_score=%.2f\n", cfg.TopK, cfg.MinScore)
	fmt.Printf("  Transcripts: %s\n", cfg.SQLitePath)
}
