package exceptions

import (
	"context"
	"log/slog"
	"runtime"
)

// Severity is a bit flag classifying non-fatal diagnostics. Values match the
// classic error-reporting constants so existing masks keep their meaning.
type Severity int

const (
	SeverityError            Severity = 1
	SeverityWarning          Severity = 2
	SeverityParse            Severity = 4
	SeverityNotice           Severity = 8
	SeverityCoreError        Severity = 16
	SeverityCoreWarning      Severity = 32
	SeverityCompileError     Severity = 64
	SeverityCompileWarning   Severity = 128
	SeverityUserError        Severity = 256
	SeverityUserWarning      Severity = 512
	SeverityUserNotice       Severity = 1024
	SeverityRecoverableError Severity = 4096
	SeverityDeprecated       Severity = 8192
	SeverityUserDeprecated   Severity = 16384
	SeverityAll              Severity = 32767
)

var severityLabels = map[Severity]string{
	SeverityError:            "Error",
	SeverityWarning:          "Warning",
	SeverityParse:            "Parse",
	SeverityNotice:           "Notice",
	SeverityCoreError:        "Core Error",
	SeverityCoreWarning:      "Core Warning",
	SeverityCompileError:     "Compile Error",
	SeverityCompileWarning:   "Compile Warning",
	SeverityUserError:        "User Error",
	SeverityUserWarning:      "User Warning",
	SeverityUserNotice:       "User Notice",
	SeverityRecoverableError: "Recoverable Error",
	SeverityDeprecated:       "Deprecated",
	SeverityUserDeprecated:   "User Deprecated",
	SeverityAll:              "All",
}

// Label returns the human-readable name, or "" for combined or unknown
// values.
func (s Severity) Label() string {
	return severityLabels[s]
}

// PromotedError is a diagnostic promoted to an error by HandleError.
type PromotedError struct {
	Severity Severity
	Label    string
	Message  string
	File     string
	Line     int
}

func (e *PromotedError) Error() string {
	if e.Label == "" {
		return e.Message
	}
	return e.Label + ": " + e.Message
}

// HandleError promotes a diagnostic to *PromotedError unless severity is
// masked by the handler's reporting level, in which case it returns nil.
func (h *Handler) HandleError(severity Severity, message, file string, line int) error {
	if severity&h.reporting == 0 {
		return nil
	}
	return &PromotedError{
		Severity: severity,
		Label:    severity.Label(),
		Message:  message,
		File:     file,
		Line:     line,
	}
}

// PromotingLogHandler wraps inner so WARN records are promoted through
// HandleError as SeverityUserWarning. Promoted errors go to onError, and
// records inner accepts are passed on unchanged.
func (h *Handler) PromotingLogHandler(inner slog.Handler, onError func(context.Context, *PromotedError)) slog.Handler {
	return &promotingHandler{inner: inner, handler: h, onError: onError}
}

type promotingHandler struct {
	inner   slog.Handler
	handler *Handler
	onError func(context.Context, *PromotedError)
}

func (p *promotingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level == slog.LevelWarn && p.onError != nil {
		return true
	}
	return p.inner.Enabled(ctx, level)
}

func (p *promotingHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level == slog.LevelWarn && p.onError != nil {
		file, line := recordSource(record)
		if err := p.handler.HandleError(SeverityUserWarning, record.Message, file, line); err != nil {
			p.onError(ctx, err.(*PromotedError))
		}
	}
	if !p.inner.Enabled(ctx, record.Level) {
		return nil
	}
	return p.inner.Handle(ctx, record)
}

func (p *promotingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &promotingHandler{inner: p.inner.WithAttrs(attrs), handler: p.handler, onError: p.onError}
}

func (p *promotingHandler) WithGroup(name string) slog.Handler {
	return &promotingHandler{inner: p.inner.WithGroup(name), handler: p.handler, onError: p.onError}
}

func recordSource(record slog.Record) (string, int) {
	if record.PC == 0 {
		return "", 0
	}
	frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
	return frame.File, frame.Line
}
