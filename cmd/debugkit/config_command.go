package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/ongoingai/debugkit/internal/config"
	"github.com/ongoingai/debugkit/internal/debug"
	"github.com/ongoingai/debugkit/internal/logstore"
)

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printConfigUsage(errOut)
		return 2
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], out, errOut)
	default:
		printConfigUsage(errOut)
		return 2
	}
}

func runConfigValidate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("config validate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}

	cfg, _, err := loadAndValidateConfig(*configPath)
	if err == nil {
		err = checkRuntimeSettings(cfg)
	}
	if err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "config is valid: %s\n", *configPath)
	return 0
}

// checkRuntimeSettings builds the exception handler and a debugger from cfg
// without opening storage, catching errors that static validation cannot.
func checkRuntimeSettings(cfg config.Config) error {
	discard := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := newExceptionHandler(cfg, logstore.NewMemoryStore(), discard); err != nil {
		return err
	}
	if err := debug.NewDebugger().SetOptions(cfg.Debugbar.Options()); err != nil {
		return fmt.Errorf("debugbar: %w", err)
	}
	return nil
}

func printConfigUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  debugkit config validate [--config path/to/debugkit.yaml]")
}
