package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ongoingai/debugkit/internal/config"
	"github.com/ongoingai/debugkit/internal/exceptions"
	"github.com/ongoingai/debugkit/internal/language"
	"github.com/ongoingai/debugkit/internal/logstore"
	"github.com/ongoingai/debugkit/internal/observability"
)

const (
	configStageLoad     = "load"
	configStageValidate = "validate"
)

// normalizeTextJSONFormat validates command output format flags with shared semantics.
func normalizeTextJSONFormat(command, rawValue, defaultValue string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	if normalized == "" {
		normalized = strings.TrimSpace(defaultValue)
	}
	switch normalized {
	case "text", "json":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid %s format %q: expected text or json", strings.TrimSpace(command), rawValue)
	}
}

// loadAndValidateConfig resolves config and reports which stage failed.
func loadAndValidateConfig(configPath string) (config.Config, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, configStageLoad, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, configStageValidate, err
	}
	return cfg, "", nil
}

func newLogger(out io.Writer) *slog.Logger {
	return slog.New(observability.NewTraceLogHandler(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: logstore.ReplaceLevelName,
	})))
}

// openLogStore opens the configured store. The returned *sql.DB is nil for
// the memory driver.
func openLogStore(cfg config.StorageConfig) (logstore.Store, *sql.DB, error) {
	var store logstore.Store
	switch strings.TrimSpace(cfg.Driver) {
	case config.StorageMemory:
		store = logstore.NewMemoryStore()
	case config.StorageSQLite:
		sqliteStore, err := logstore.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		store = sqliteStore
	case config.StoragePostgres:
		postgresStore, err := logstore.NewPostgresStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store = postgresStore
	default:
		return nil, nil, fmt.Errorf("unsupported storage.driver %q", cfg.Driver)
	}

	var db *sql.DB
	if handle, ok := store.(sqlHandle); ok {
		db = handle.DB()
	}
	return store, db, nil
}

// newExceptionHandler builds the dispatcher described by cfg. Critical logs
// go to store and are mirrored to logger.
func newExceptionHandler(cfg config.Config, store logstore.Store, logger *slog.Logger) (*exceptions.Handler, error) {
	lang, err := newLanguage(cfg.Language)
	if err != nil {
		return nil, err
	}
	criticalLogger, err := logstore.NewLogger(store, logstore.LoggerOptions{Logger: logger})
	if err != nil {
		return nil, err
	}

	handler, err := exceptions.New(cfg.Environment, criticalLogger, lang)
	if err != nil {
		return nil, err
	}
	handler.SetShowLogID(cfg.Exceptions.ShowLogID)
	handler.SetNegotiateLanguage(cfg.Language.Negotiate)
	if cfg.Exceptions.JSONPretty {
		handler.SetJSONFlags(handler.JSONFlags() | exceptions.JSONPretty)
	}
	if len(cfg.Exceptions.HiddenInputs) > 0 {
		if err := handler.SetHiddenInputs(cfg.Exceptions.HiddenInputs[0], cfg.Exceptions.HiddenInputs[1:]...); err != nil {
			return nil, fmt.Errorf("exceptions.hidden_inputs: %w", err)
		}
	}
	if err := handler.SearchEngines().SetCurrent(cfg.Exceptions.SearchEngine); err != nil {
		return nil, fmt.Errorf("exceptions.search_engine: %w", err)
	}
	if path := strings.TrimSpace(cfg.Exceptions.DevelopmentView); path != "" {
		if err := handler.SetDevelopmentView(path); err != nil {
			return nil, fmt.Errorf("exceptions.development_view: %w", err)
		}
	}
	if path := strings.TrimSpace(cfg.Exceptions.ProductionView); path != "" {
		if err := handler.SetProductionView(path); err != nil {
			return nil, fmt.Errorf("exceptions.production_view: %w", err)
		}
	}
	return handler, nil
}

// promoteWarnings returns logger with WARN records also written as critical
// log entries through handler's logger.
func promoteWarnings(logger *slog.Logger, handler *exceptions.Handler) *slog.Logger {
	return slog.New(handler.PromotingLogHandler(logger.Handler(), func(ctx context.Context, promoted *exceptions.PromotedError) {
		critical := handler.Logger()
		if critical == nil {
			return
		}
		message := promoted.Error()
		if promoted.File != "" {
			message = fmt.Sprintf("%s in %s:%d", message, promoted.File, promoted.Line)
		}
		if err := critical.LogCritical(ctx, message); err != nil {
			logger.ErrorContext(ctx, "failed to record promoted warning", "error", err)
		}
	}))
}

// newLanguage selects the default locale and checks every supported locale
// has a catalog.
func newLanguage(cfg config.LanguageConfig) (*language.Language, error) {
	lang, err := language.New(cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("language.default: %w", err)
	}
	for i, locale := range cfg.Supported {
		probe := *lang
		if err := probe.SetLocale(locale); err != nil {
			return nil, fmt.Errorf("language.supported[%d]: %w", i, err)
		}
	}
	return lang, nil
}
