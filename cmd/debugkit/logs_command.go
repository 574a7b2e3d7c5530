package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ongoingai/debugkit/internal/logstore"
)

const logsCommandTimeout = 10 * time.Second

func runLogs(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printLogsUsage(errOut)
		return 2
	}

	switch args[0] {
	case "list":
		return runLogsList(args[1:], out, errOut)
	case "show":
		return runLogsShow(args[1:], out, errOut)
	default:
		printLogsUsage(errOut)
		return 2
	}
}

func runLogsList(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("logs list", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	correlationID := flagSet.String("correlation-id", "", "Only show records of this request")
	limit := flagSet.Int("limit", 20, "Maximum number of records")
	formatRaw := flagSet.String("format", "text", "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "logs list does not accept positional arguments")
		return 2
	}
	format, err := normalizeTextJSONFormat("logs", *formatRaw, "text")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(errOut, "--limit must be > 0")
		return 2
	}

	return withLogStore(*configPath, errOut, func(ctx context.Context, store logstore.Store) (int, error) {
		records, err := store.ListRecords(ctx, strings.TrimSpace(*correlationID), *limit)
		if err != nil {
			return 1, fmt.Errorf("list log records: %w", err)
		}
		return 0, writeRecords(out, format, records)
	})
}

func runLogsShow(args []string, out io.Writer, errOut io.Writer) int {
	id := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = strings.TrimSpace(args[0]), args[1:]
	}

	flagSet := flag.NewFlagSet("logs show", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	formatRaw := flagSet.String("format", "text", "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if id == "" && flagSet.NArg() == 1 {
		id = strings.TrimSpace(flagSet.Arg(0))
	} else if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "logs show accepts exactly one log id")
		return 2
	}
	if id == "" {
		fmt.Fprintln(errOut, "usage: debugkit logs show ID [--config path/to/debugkit.yaml] [--format text|json]")
		return 2
	}
	format, err := normalizeTextJSONFormat("logs", *formatRaw, "text")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	return withLogStore(*configPath, errOut, func(ctx context.Context, store logstore.Store) (int, error) {
		record, err := store.GetRecord(ctx, id)
		if errors.Is(err, logstore.ErrNotFound) {
			fmt.Fprintf(errOut, "log record not found: %s\n", id)
			return 1, nil
		}
		if err != nil {
			return 1, fmt.Errorf("get log record: %w", err)
		}
		return 0, writeRecords(out, format, []logstore.Record{*record})
	})
}

// withLogStore opens the configured store and runs fn under the exception
// handler, so unexpected failures are reported like any other CLI error.
func withLogStore(configPath string, errOut io.Writer, fn func(context.Context, logstore.Store) (int, error)) int {
	cfg, stage, err := loadAndValidateConfig(configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		}
		return 1
	}

	store, _, err := openLogStore(cfg.Storage)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize %s storage: %v\n", cfg.Storage.Driver, err)
		return 1
	}
	defer store.Close()

	handler, err := newExceptionHandler(cfg, store, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(errOut, "failed to configure exception handler: %v\n", err)
		return 1
	}
	handler.SetOutput(errOut)
	handler.SetExitFunc(func(int) {})

	code := 0
	status := handler.Guard(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), logsCommandTimeout)
		defer cancel()
		var err error
		code, err = fn(ctx, store)
		return err
	})
	if status != 0 {
		return status
	}
	return code
}

func writeRecords(out io.Writer, format string, records []logstore.Record) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Items []logstore.Record `json:"items"`
		}{Items: nonNilRecords(records)})
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No log records.")
		return err
	}
	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tTIME\tLEVEL\tCORRELATION\tMESSAGE")
	for _, record := range records {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n",
			record.ID,
			record.Time.UTC().Format(time.RFC3339),
			record.Level,
			valueOr(record.CorrelationID, "-"),
			firstLine(record.Message),
		)
	}
	return table.Flush()
}

func nonNilRecords(records []logstore.Record) []logstore.Record {
	if records == nil {
		return []logstore.Record{}
	}
	return records
}

func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return message[:idx]
	}
	return message
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func printLogsUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  debugkit logs list [--config path/to/debugkit.yaml] [--correlation-id ID] [--limit N] [--format text|json]")
	fmt.Fprintln(out, "  debugkit logs show ID [--config path/to/debugkit.yaml] [--format text|json]")
}
