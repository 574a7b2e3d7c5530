package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type Config struct {
	Environment   string              `yaml:"environment"`
	Server        ServerConfig        `yaml:"server"`
	Debugbar      DebugbarConfig      `yaml:"debugbar"`
	Exceptions    ExceptionsConfig    `yaml:"exceptions"`
	Language      LanguageConfig      `yaml:"language"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DebugbarConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Color        string         `yaml:"color"`
	IconPath     string         `yaml:"icon_path"`
	InfoLink     InfoLinkConfig `yaml:"info_link"`
	InfoContents string         `yaml:"info_contents"`
}

type InfoLinkConfig struct {
	Href string `yaml:"href"`
	Text string `yaml:"text"`
}

// Options returns the debug bar options that are set, keyed the way
// Debugger.SetOptions expects them.
func (c DebugbarConfig) Options() map[string]any {
	options := map[string]any{}
	if color := strings.TrimSpace(c.Color); color != "" {
		options["color"] = color
	}
	if path := strings.TrimSpace(c.IconPath); path != "" {
		options["icon_path"] = path
	}
	if c.InfoLink.Href != "" || c.InfoLink.Text != "" {
		options["info_link"] = map[string]any{
			"href": c.InfoLink.Href,
			"text": c.InfoLink.Text,
		}
	}
	if c.InfoContents != "" {
		options["info_contents"] = c.InfoContents
	}
	return options
}

type ExceptionsConfig struct {
	ShowLogID       bool     `yaml:"show_log_id"`
	HiddenInputs    []string `yaml:"hidden_inputs"`
	SearchEngine    string   `yaml:"search_engine"`
	JSONPretty      bool     `yaml:"json_pretty"`
	DevelopmentView string   `yaml:"development_view"`
	ProductionView  string   `yaml:"production_view"`
	// PromoteWarnings records WARN log lines of the host as critical log
	// entries.
	PromoteWarnings bool `yaml:"promote_warnings"`
}

type LanguageConfig struct {
	Default   string   `yaml:"default"`
	Supported []string `yaml:"supported"`
	// Negotiate picks the response locale from Accept-Language.
	Negotiate bool `yaml:"negotiate"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
}

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "debugkit"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Environment: EnvironmentProduction,
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Debugbar: DebugbarConfig{
			Enabled: true,
		},
		Exceptions: ExceptionsConfig{
			ShowLogID:    true,
			SearchEngine: "google",
		},
		Language: LanguageConfig{
			Default:   "en",
			Supported: []string{"en", "es", "pt-BR"},
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Path:   "./data/debugkit.db",
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			// A trailing document would silently override nothing; reject it.
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	switch cfg.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		return fmt.Errorf("environment must be one of development, production (got %q)", cfg.Environment)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)
	}

	if err := validateDebugbar(cfg.Debugbar); err != nil {
		return err
	}
	if err := validateExceptions(cfg.Exceptions); err != nil {
		return err
	}
	if err := validateLanguage(cfg.Language); err != nil {
		return err
	}

	driver := strings.TrimSpace(cfg.Storage.Driver)
	switch driver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required when storage.driver=sqlite")
		}
	case StoragePostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, sqlite, postgres (got %q)", cfg.Storage.Driver)
	}

	return validateOTelConfig(cfg.Observability.OTel)
}

func validateDebugbar(cfg DebugbarConfig) error {
	link := cfg.InfoLink
	if (link.Href == "") != (link.Text == "") {
		return errors.New("debugbar.info_link must set both href and text")
	}
	if path := strings.TrimSpace(cfg.IconPath); path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("debugbar.icon_path must be a readable file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("debugbar.icon_path must be a file (got directory %q)", path)
		}
	}
	return nil
}

func validateExceptions(cfg ExceptionsConfig) error {
	if strings.TrimSpace(cfg.SearchEngine) == "" {
		return errors.New("exceptions.search_engine must not be empty")
	}
	for i, name := range cfg.HiddenInputs {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("exceptions.hidden_inputs[%d] must not be empty", i)
		}
	}
	for field, path := range map[string]string{
		"exceptions.development_view": cfg.DevelopmentView,
		"exceptions.production_view":  cfg.ProductionView,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s must point to a readable file: %w", field, err)
		}
	}
	return nil
}

func validateLanguage(cfg LanguageConfig) error {
	if _, err := language.Parse(cfg.Default); err != nil {
		return fmt.Errorf("language.default must be a BCP 47 tag (got %q): %w", cfg.Default, err)
	}
	for i, tag := range cfg.Supported {
		if _, err := language.Parse(tag); err != nil {
			return fmt.Errorf("language.supported[%d] must be a BCP 47 tag (got %q): %w", i, tag, err)
		}
	}
	return nil
}

func validateOTelConfig(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint is required when observability.otel.enabled=true")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("observability.otel.service_name is required when observability.otel.enabled=true")
	}
	if !cfg.TracesEnabled && !cfg.MetricsEnabled {
		return errors.New("observability.otel requires traces_enabled and/or metrics_enabled when enabled")
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %f)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be > 0 (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricsEnabled && cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be > 0 (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if environment := os.Getenv("DEBUGKIT_ENVIRONMENT"); environment != "" {
		cfg.Environment = environment
	}

	if host := os.Getenv("DEBUGKIT_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("DEBUGKIT_PORT"); port != "" {
		v, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid DEBUGKIT_PORT: %w", err)
		}
		cfg.Server.Port = v
	}

	if enabled := os.Getenv("DEBUGKIT_DEBUGBAR_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid DEBUGKIT_DEBUGBAR_ENABLED: %w", err)
		}
		cfg.Debugbar.Enabled = v
	}
	if color := os.Getenv("DEBUGKIT_DEBUGBAR_COLOR"); color != "" {
		cfg.Debugbar.Color = color
	}

	if showLogID := os.Getenv("DEBUGKIT_SHOW_LOG_ID"); showLogID != "" {
		v, err := strconv.ParseBool(showLogID)
		if err != nil {
			return fmt.Errorf("invalid DEBUGKIT_SHOW_LOG_ID: %w", err)
		}
		cfg.Exceptions.ShowLogID = v
	}
	if promote := os.Getenv("DEBUGKIT_PROMOTE_WARNINGS"); promote != "" {
		v, err := strconv.ParseBool(promote)
		if err != nil {
			return fmt.Errorf("invalid DEBUGKIT_PROMOTE_WARNINGS: %w", err)
		}
		cfg.Exceptions.PromoteWarnings = v
	}
	if hidden, ok := os.LookupEnv("DEBUGKIT_HIDDEN_INPUTS"); ok {
		cfg.Exceptions.HiddenInputs = splitList(hidden)
	}
	if engine := os.Getenv("DEBUGKIT_SEARCH_ENGINE"); engine != "" {
		cfg.Exceptions.SearchEngine = engine
	}

	if locale := os.Getenv("DEBUGKIT_LANGUAGE"); locale != "" {
		cfg.Language.Default = locale
	}

	if storageDriver := os.Getenv("DEBUGKIT_STORAGE_DRIVER"); storageDriver != "" {
		cfg.Storage.Driver = storageDriver
	}
	if storagePath := os.Getenv("DEBUGKIT_STORAGE_PATH"); storagePath != "" {
		cfg.Storage.Path = storagePath
	}
	if storageDSN := os.Getenv("DEBUGKIT_STORAGE_DSN"); storageDSN != "" {
		cfg.Storage.DSN = storageDSN
	}

	otelConfigured := false
	otelSDKDisabledSet := false
	if sdkDisabled := strings.TrimSpace(os.Getenv("OTEL_SDK_DISABLED")); sdkDisabled != "" {
		v, err := strconv.ParseBool(sdkDisabled)
		if err != nil {
			return fmt.Errorf("invalid OTEL_SDK_DISABLED: %w", err)
		}
		cfg.Observability.OTel.Enabled = !v
		otelSDKDisabledSet = true
		otelConfigured = true
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		cfg.Observability.OTel.Endpoint = endpoint
		otelConfigured = true
	}
	if insecure := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); insecure != "" {
		v, err := strconv.ParseBool(insecure)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
		}
		cfg.Observability.OTel.Insecure = v
		otelConfigured = true
	}
	if serviceName := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); serviceName != "" {
		cfg.Observability.OTel.ServiceName = serviceName
		otelConfigured = true
	}
	if tracesExporter := strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER")); tracesExporter != "" {
		enabled, err := otelExporterEnabled(tracesExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_EXPORTER: %w", err)
		}
		cfg.Observability.OTel.TracesEnabled = enabled
		otelConfigured = true
	}
	if metricsExporter := strings.TrimSpace(os.Getenv("OTEL_METRICS_EXPORTER")); metricsExporter != "" {
		enabled, err := otelExporterEnabled(metricsExporter)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRICS_EXPORTER: %w", err)
		}
		cfg.Observability.OTel.MetricsEnabled = enabled
		otelConfigured = true
	}
	if samplingRatio := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); samplingRatio != "" {
		v, err := strconv.ParseFloat(samplingRatio, 64)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		cfg.Observability.OTel.SamplingRatio = v
		otelConfigured = true
	}
	if exportTimeout := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TIMEOUT")); exportTimeout != "" {
		v, err := strconv.Atoi(exportTimeout)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_TIMEOUT: %w", err)
		}
		cfg.Observability.OTel.ExportTimeoutMS = v
		otelConfigured = true
	}
	if metricExportInterval := strings.TrimSpace(os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")); metricExportInterval != "" {
		v, err := strconv.Atoi(metricExportInterval)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRIC_EXPORT_INTERVAL: %w", err)
		}
		cfg.Observability.OTel.MetricExportIntervalMS = v
		otelConfigured = true
	}
	if otelConfigured && !otelSDKDisabledSet {
		cfg.Observability.OTel.Enabled = true
	}

	return nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func otelExporterEnabled(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "otlp":
		return true, nil
	case "none":
		return false, nil
	default:
		return false, fmt.Errorf("must be one of otlp, none (got %q)", value)
	}
}
