package cmd

import (
	"flag"
	"fmt"

	"github.com/lorein/lore/internal/config"
	"github.com/lorein/lore/internal/log"
)

// runConfig dispatches the config subcommands. show prints the active
// configuration with secrets masked; init writes a default config.yaml.
func runConfig(_ log.Logger) error {
	args := argsAfterCommand()
	sub, rest := "show", args
	if len(args) > 0 {
		sub, rest = args[0], args[1:]
	}

	switch sub {
	case "show":
		return configShow()
	case "init":
		return configInit(rest)
	default:
		return fmt.Errorf("%w: unknown config subcommand %q", errUsage, sub)
	}
}

func configShow() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	fmt.Println(cfg)
	return nil
}

func configInit(args []string) error {
	initFlags := flag.NewFlagSet("config init", flag.ContinueOnError)
	force := initFlags.Bool("force", false, "Overwrite an existing config.yaml (backs it up first)")
	if err := initFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing init flags: %w", err)
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	path, backup, err := config.WriteDefault(dir, *force)
	if err != nil {
		return err
	}
	if backup != "" {
		fmt.Printf("Existing config backed up as %s\n", backup)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
