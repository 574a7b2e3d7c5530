package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ongoingai/debugkit/internal/api"
	"github.com/ongoingai/debugkit/internal/collectors"
	"github.com/ongoingai/debugkit/internal/config"
	"github.com/ongoingai/debugkit/internal/observability"
	"github.com/ongoingai/debugkit/internal/version"
)

const defaultConfigPath = "debugkit.yaml"

const otelShutdownTimeout = 5 * time.Second
const serverShutdownTimeout = 5 * time.Second
const serverReadHeaderTimeout = 10 * time.Second
const serverReadTimeout = 30 * time.Second
const serverIdleTimeout = 2 * time.Minute

var signalNotifyContext = signal.NotifyContext

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		return runServe(nil)
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "serve":
		return runServe(args[1:])
	case "config":
		return runConfig(args[1:], os.Stdout, os.Stderr)
	case "logs":
		return runLogs(args[1:], os.Stdout, os.Stderr)
	default:
		printUsage(os.Stderr)
		return 2
	}
}

func runServe(args []string) int {
	flagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "config is invalid: %v\n", err)
		}
		return 1
	}

	logger := newLogger(os.Stdout)
	otelRuntime, otelErr := observability.Setup(context.Background(), cfg.Observability.OTel, version.String(), logger)
	if otelErr != nil {
		logger.Error("failed to initialize opentelemetry; continuing with instrumentation disabled", "error", otelErr)
	}
	if otelRuntime != nil {
		defer shutdownOpenTelemetry(logger, otelRuntime, otelShutdownTimeout)
	}

	store, db, err := openLogStore(cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize %s storage: %v\n", cfg.Storage.Driver, err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close log storage", "error", err)
		}
	}()

	handler, err := newExceptionHandler(cfg, store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure exception handler: %v\n", err)
		return 1
	}
	if otelRuntime != nil {
		handler.SetRecorder(otelRuntime)
	}
	if cfg.Exceptions.PromoteWarnings {
		logger = promoteWarnings(logger, handler)
	}

	apiHandler := api.NewRouter(api.RouterOptions{
		AppVersion:      version.String(),
		Environment:     cfg.Environment,
		StorageDriver:   cfg.Storage.Driver,
		StoragePath:     cfg.Storage.Path,
		LogStore:        store,
		DB:              db,
		Logger:          logger,
		Exceptions:      handler,
		Runtime:         otelRuntime,
		ProbeURL:        selfProbeURL(cfg),
		Registry:        collectors.DefaultRegistry(),
		DebugbarEnabled: cfg.Debugbar.Enabled,
		DebugbarOptions: cfg.Debugbar.Options(),
	})

	serverHandler := apiHandler
	if otelRuntime != nil {
		serverHandler = otelRuntime.WrapHTTPHandler(otelRuntime.SpanEnrichmentMiddleware(serverHandler))
	}
	server := newServer(cfg, logger, serverHandler)

	logger.Info(
		"startup banner",
		"version", version.String(),
		"addr", server.Addr,
		"environment", cfg.Environment,
		"storage_driver", cfg.Storage.Driver,
		"debugbar_enabled", cfg.Debugbar.Enabled,
		"language", handler.Language().Locale(),
		"config_path", *configPath,
	)

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown", "error", err)
			return 1
		}
		logger.Info("debugkit stopped")
		return 0
	case err := <-errCh:
		if err != nil {
			logger.Error("debugkit failed", "error", err)
			return 1
		}
		return 0
	}
}

func newServer(cfg config.Config, logger *slog.Logger, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.LoggingMiddleware(logger, handler),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		IdleTimeout:       serverIdleTimeout,
	}
}

// selfProbeURL points the demo outbound call at this server's health
// endpoint so the HTTP collector has something to record.
func selfProbeURL(cfg config.Config) string {
	host := strings.TrimSpace(cfg.Server.Host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return "http://" + host + ":" + strconv.Itoa(cfg.Server.Port) + "/api/health"
}

func shutdownOpenTelemetry(logger *slog.Logger, runtime *observability.Runtime, timeout time.Duration) {
	if runtime == nil || !runtime.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := runtime.Shutdown(ctx); err != nil {
		if logger != nil {
			logger.Error("failed to shutdown opentelemetry providers", "error", err, "timeout", timeout.String())
		}
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  debugkit serve [--config path/to/debugkit.yaml]")
	fmt.Fprintln(out, "  debugkit version")
	fmt.Fprintln(out, "  debugkit config validate [--config path/to/debugkit.yaml]")
	fmt.Fprintln(out, "  debugkit logs list [--config path/to/debugkit.yaml] [--correlation-id ID] [--limit N] [--format text|json]")
	fmt.Fprintln(out, "  debugkit logs show ID [--config path/to/debugkit.yaml] [--format text|json]")
}

// sqlHandle is implemented by stores backed by database/sql.
type sqlHandle interface {
	DB() *sql.DB
}
