package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ongoingai/debugkit/internal/config"
	"github.com/ongoingai/debugkit/internal/correlation"
	"github.com/ongoingai/debugkit/internal/exceptions"
	"github.com/ongoingai/debugkit/internal/logstore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "debugkit.yaml")
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func sqliteConfig(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "logs.db")
	configPath := writeConfig(t, "storage:\n  driver: sqlite\n  path: "+dbPath+"\n")
	return configPath, dbPath
}

func seedLogs(t *testing.T, dbPath string, records ...logstore.Record) {
	t.Helper()
	store, err := logstore.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	defer store.Close()
	for i := range records {
		if err := store.WriteRecord(context.Background(), &records[i]); err != nil {
			t.Fatalf("WriteRecord(%q) error: %v", records[i].ID, err)
		}
	}
}

func TestRunConfigValidateValidConfig(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t, "storage:\n  driver: memory\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runConfigValidate([]string{"--config", configPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runConfigValidate() code=%d, want 0 (stderr=%q)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "config is valid: "+configPath) {
		t.Fatalf("stdout=%q, want success message with config path", stdout.String())
	}
}

func TestRunConfigValidateReportsInvalidConfig(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t, "storage:\n  driver: postgres\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runConfigValidate([]string{"--config", configPath}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("runConfigValidate() code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "config is invalid: storage.dsn is required") {
		t.Fatalf("stderr=%q, want validation error message", stderr.String())
	}
}

func TestRunConfigValidateReportsUnsupportedLocale(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t, "storage:\n  driver: memory\nlanguage:\n  default: en\n  supported: [en, fr]\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runConfigValidate([]string{"--config", configPath}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("runConfigValidate() code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "language.supported[1]") {
		t.Fatalf("stderr=%q, want unsupported locale error", stderr.String())
	}
}

func TestRunConfigValidateReportsUnknownSearchEngine(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t, "storage:\n  driver: memory\nexceptions:\n  search_engine: altavista\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runConfigValidate([]string{"--config", configPath}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("runConfigValidate() code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "exceptions.search_engine") {
		t.Fatalf("stderr=%q, want search engine error", stderr.String())
	}
}

func TestRunConfigValidateRejectsPositionalArguments(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runConfigValidate([]string{"extra"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("runConfigValidate() code=%d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "does not accept positional arguments") {
		t.Fatalf("stderr=%q, want positional argument error", stderr.String())
	}
}

func TestRunConfigUnknownSubcommand(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runConfig([]string{"unknown"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("runConfig() code=%d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "debugkit config validate") {
		t.Fatalf("stderr=%q, want config usage", stderr.String())
	}
}

func TestRunLogsListJSON(t *testing.T) {
	t.Parallel()

	configPath, dbPath := sqliteConfig(t)
	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	seedLogs(t, dbPath,
		logstore.Record{ID: "log-1", Time: base, Level: "CRITICAL", Message: "first", CorrelationID: "req-a"},
		logstore.Record{ID: "log-2", Time: base.Add(time.Minute), Level: "CRITICAL", Message: "second", CorrelationID: "req-b"},
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runLogs([]string{"list", "--config", configPath, "--format", "json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runLogs(list) code=%d, want 0 (stderr=%q)", code, stderr.String())
	}

	var payload struct {
		Items []logstore.Record `json:"items"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[0].ID != "log-2" {
		t.Fatalf("items=%+v, want log-2 first", payload.Items)
	}
}

func TestRunLogsListFiltersByCorrelationID(t *testing.T) {
	t.Parallel()

	configPath, dbPath := sqliteConfig(t)
	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	seedLogs(t, dbPath,
		logstore.Record{ID: "log-1", Time: base, Level: "CRITICAL", Message: "first", CorrelationID: "req-a"},
		logstore.Record{ID: "log-2", Time: base.Add(time.Minute), Level: "CRITICAL", Message: "second\nmore", CorrelationID: "req-b"},
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runLogs([]string{"list", "--config", configPath, "--correlation-id", "req-b"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runLogs(list) code=%d, want 0 (stderr=%q)", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "log-2") || strings.Contains(out, "log-1") {
		t.Fatalf("stdout=%q, want only log-2", out)
	}
	if strings.Contains(out, "more") {
		t.Fatalf("stdout=%q, want first message line only", out)
	}
}

func TestRunLogsListRejectsBadFlags(t *testing.T) {
	t.Parallel()

	tests := [][]string{
		{"list", "--format", "yaml"},
		{"list", "--limit", "0"},
		{"list", "extra"},
	}
	for _, args := range tests {
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		if code := runLogs(args, &stdout, &stderr); code != 2 {
			t.Fatalf("runLogs(%v) code=%d, want 2", args, code)
		}
	}
}

func TestRunLogsShow(t *testing.T) {
	t.Parallel()

	configPath, dbPath := sqliteConfig(t)
	seedLogs(t, dbPath, logstore.Record{
		ID:            "log-7",
		Time:          time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
		Level:         "CRITICAL",
		Message:       "database unreachable",
		CorrelationID: "req-7",
	})

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runLogs([]string{"show", "log-7", "--config", configPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runLogs(show) code=%d, want 0 (stderr=%q)", code, stderr.String())
	}
	for _, want := range []string{"log-7", "2026-04-02T09:00:00Z", "req-7", "database unreachable"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("stdout=%q, want %q", stdout.String(), want)
		}
	}
}

func TestRunLogsShowMissingRecord(t *testing.T) {
	t.Parallel()

	configPath, _ := sqliteConfig(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runLogs([]string{"show", "--config", configPath, "nope"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("runLogs(show) code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "log record not found: nope") {
		t.Fatalf("stderr=%q, want not found message", stderr.String())
	}
}

func TestRunLogsShowRequiresID(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	if code := runLogs([]string{"show"}, &stdout, &stderr); code != 2 {
		t.Fatalf("runLogs(show) code=%d, want 2", code)
	}
	if code := runLogs([]string{"show", "a", "b"}, &stdout, &stderr); code != 2 {
		t.Fatalf("runLogs(show a b) code=%d, want 2", code)
	}
}

func TestWithLogStoreReportsFailuresThroughExceptionHandler(t *testing.T) {
	t.Parallel()

	configPath, dbPath := sqliteConfig(t)

	var stderr bytes.Buffer
	code := withLogStore(configPath, &stderr, func(context.Context, logstore.Store) (int, error) {
		return 1, errors.New("store exploded")
	})
	if code != 1 {
		t.Fatalf("withLogStore() code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "store exploded") {
		t.Fatalf("stderr=%q, want exception report", stderr.String())
	}

	store, err := logstore.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	defer store.Close()
	records, err := store.ListRecords(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if len(records) != 1 || !strings.Contains(records[0].Message, "store exploded") {
		t.Fatalf("records=%+v, want one critical record", records)
	}
}

func TestNewExceptionHandlerAppliesConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Environment = config.EnvironmentDevelopment
	cfg.Exceptions.ShowLogID = false
	cfg.Exceptions.HiddenInputs = []string{"COOKIE", "ENV"}
	cfg.Exceptions.SearchEngine = "duckduckgo"
	cfg.Exceptions.JSONPretty = true
	cfg.Language.Default = "es"

	handler, err := newExceptionHandler(cfg, logstore.NewMemoryStore(), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	if err != nil {
		t.Fatalf("newExceptionHandler() error: %v", err)
	}
	if handler.Environment() != exceptions.Development {
		t.Fatalf("Environment()=%q, want development", handler.Environment())
	}
	if handler.IsShowingLogID() {
		t.Fatal("IsShowingLogID()=true, want false")
	}
	if got := strings.Join(handler.HiddenInputs(), ","); got != "COOKIE,ENV" {
		t.Fatalf("HiddenInputs()=%q, want COOKIE,ENV", got)
	}
	if got := handler.SearchEngines().Current(); got != "duckduckgo" {
		t.Fatalf("search engine=%q, want duckduckgo", got)
	}
	if handler.JSONFlags()&exceptions.JSONPretty == 0 {
		t.Fatal("JSONFlags() missing JSONPretty")
	}
	if got := handler.Language().Locale(); got != "es" {
		t.Fatalf("Locale()=%q, want es", got)
	}
}

func TestNewExceptionHandlerRejectsUnknownHiddenInput(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Exceptions.HiddenInputs = []string{"SESSION"}
	_, err := newExceptionHandler(cfg, logstore.NewMemoryStore(), slog.Default())
	if !errors.Is(err, exceptions.ErrInvalidInput) {
		t.Fatalf("newExceptionHandler() error=%v, want ErrInvalidInput", err)
	}
}

func TestPromoteWarningsWritesCriticalRecords(t *testing.T) {
	t.Parallel()

	store := logstore.NewMemoryStore()
	var out bytes.Buffer
	base := newLogger(&out)
	handler, err := newExceptionHandler(config.Default(), store, base)
	if err != nil {
		t.Fatalf("newExceptionHandler() error: %v", err)
	}
	logger := promoteWarnings(base, handler)

	ctx := correlation.WithContext(context.Background(), "req-warn")
	logger.InfoContext(ctx, "cache warmed")
	logger.WarnContext(ctx, "disk almost full", "free_mb", 12)

	records, err := store.ListRecords(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records=%d, want 1 promoted warning", len(records))
	}
	record := records[0]
	if !strings.HasPrefix(record.Message, "User Warning: disk almost full in ") || !strings.Contains(record.Message, "main_test.go:") {
		t.Fatalf("message=%q, want promoted warning with source", record.Message)
	}
	if record.CorrelationID != "req-warn" {
		t.Fatalf("correlation_id=%q, want req-warn", record.CorrelationID)
	}
	if !strings.Contains(out.String(), `"msg":"disk almost full"`) || !strings.Contains(out.String(), `"level":"CRITICAL"`) {
		t.Fatalf("log output=%s, want the warning and its critical record", out.String())
	}
}

func TestNewLoggerRendersCriticalLevel(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger := newLogger(&out)
	logger.Log(context.Background(), logstore.LevelCritical, "fatal thing")
	if !strings.Contains(out.String(), `"level":"CRITICAL"`) {
		t.Fatalf("log=%q, want CRITICAL level", out.String())
	}
}

func TestOpenLogStoreMemoryHasNoDB(t *testing.T) {
	t.Parallel()

	store, db, err := openLogStore(config.StorageConfig{Driver: config.StorageMemory})
	if err != nil {
		t.Fatalf("openLogStore() error: %v", err)
	}
	defer store.Close()
	if db != nil {
		t.Fatal("memory store returned a *sql.DB")
	}

	if _, _, err := openLogStore(config.StorageConfig{Driver: "redis"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestOpenLogStoreSQLiteExposesDB(t *testing.T) {
	t.Parallel()

	store, db, err := openLogStore(config.StorageConfig{Driver: config.StorageSQLite, Path: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("openLogStore() error: %v", err)
	}
	defer store.Close()
	if db == nil {
		t.Fatal("sqlite store returned nil *sql.DB")
	}
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("PingContext() error: %v", err)
	}
}

func TestSelfProbeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		port int
		want string
	}{
		{host: "0.0.0.0", port: 8080, want: "http://127.0.0.1:8080/api/health"},
		{host: "", port: 9000, want: "http://127.0.0.1:9000/api/health"},
		{host: "localhost", port: 8081, want: "http://localhost:8081/api/health"},
		{host: "::1", port: 8082, want: "http://[::1]:8082/api/health"},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.Server.Host = tt.host
		cfg.Server.Port = tt.port
		if got := selfProbeURL(cfg); got != tt.want {
			t.Fatalf("selfProbeURL(%q, %d)=%q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestNormalizeTextJSONFormat(t *testing.T) {
	t.Parallel()

	if got, err := normalizeTextJSONFormat("logs", " JSON ", "text"); err != nil || got != "json" {
		t.Fatalf("normalizeTextJSONFormat(JSON)=%q,%v want json,nil", got, err)
	}
	if got, err := normalizeTextJSONFormat("logs", "", "text"); err != nil || got != "text" {
		t.Fatalf("normalizeTextJSONFormat(empty)=%q,%v want text,nil", got, err)
	}
	if _, err := normalizeTextJSONFormat("logs", "xml", "text"); err == nil || !strings.Contains(err.Error(), "expected text or json") {
		t.Fatalf("normalizeTextJSONFormat(xml) error=%v", err)
	}
}
