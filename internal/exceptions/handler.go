// Package exceptions turns uncaught errors and panics into a logged,
// content-negotiated response: a plain-text block on the terminal, a JSON
// document, or an HTML page whose detail depends on the environment.
package exceptions

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ongoingai/debugkit/internal/language"
	"github.com/ongoingai/debugkit/internal/observability"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

var (
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidInput       = errors.New("invalid input name")
	ErrInvalidView        = errors.New("invalid exceptions view file")
)

// Request input sources that can be left out of the development page.
const (
	InputENV    = "ENV"
	InputSERVER = "SERVER"
	InputGET    = "GET"
	InputPOST   = "POST"
	InputFILES  = "FILES"
	InputCOOKIE = "COOKIE"
)

var inputNames = []string{InputENV, InputSERVER, InputGET, InputPOST, InputFILES, InputCOOKIE}

// JSONFlags tune the JSON encoder used for error responses.
type JSONFlags int

const (
	JSONPretty JSONFlags = 1 << iota
	JSONEscapeHTML
)

// Logger is the critical-severity logging capability. LastLogID reports the
// latest record written for the request in ctx.
type Logger interface {
	LogCritical(ctx context.Context, message string) error
	LastLogID(ctx context.Context) (string, bool)
}

// Recorder receives one call per dispatched exception.
type Recorder interface {
	RecordException(ctx context.Context, event observability.ExceptionEvent)
}

type view struct {
	path     string
	template *template.Template
}

// Handler dispatches exceptions. Configure it during setup; it is not safe
// to change settings while exceptions are being dispatched.
type Handler struct {
	environment   Environment
	logger        Logger
	language      *language.Language
	searchEngines *SearchEngines
	hiddenInputs  []string
	showLogID     bool
	jsonFlags     JSONFlags
	reporting     Severity
	negotiate     bool
	recorder      Recorder

	developmentView view
	productionView  view

	testing bool
	stderr  io.Writer
	exit    func(code int)
}

// New returns a handler for environment. logger and lang may be nil; lang
// defaults to English.
func New(environment string, logger Logger, lang *language.Language) (*Handler, error) {
	h := &Handler{
		environment:     Production,
		logger:          logger,
		language:        lang,
		searchEngines:   NewSearchEngines(),
		showLogID:       true,
		reporting:       SeverityAll,
		developmentView: view{path: "views/development.html", template: developmentTemplate},
		productionView:  view{path: "views/production.html", template: productionTemplate},
		stderr:          os.Stderr,
		exit:            os.Exit,
	}
	if err := h.SetEnvironment(environment); err != nil {
		return nil, err
	}
	if h.language == nil {
		h.language = language.MustNew("en")
	}
	return h, nil
}

func (h *Handler) SetEnvironment(environment string) error {
	switch env := Environment(environment); env {
	case Development, Production:
		h.environment = env
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidEnvironment, environment)
	}
}

func (h *Handler) Environment() Environment {
	return h.environment
}

func (h *Handler) Logger() Logger {
	return h.logger
}

func (h *Handler) SetLogger(logger Logger) {
	h.logger = logger
}

// SetLanguage replaces the language; nil restores English.
func (h *Handler) SetLanguage(lang *language.Language) {
	if lang == nil {
		lang = language.MustNew("en")
	}
	h.language = lang
}

func (h *Handler) Language() *language.Language {
	return h.language
}

// SetNegotiateLanguage makes HTTP responses use the best locale for the
// request's Accept-Language header.
func (h *Handler) SetNegotiateLanguage(negotiate bool) {
	h.negotiate = negotiate
}

func (h *Handler) SetShowLogID(show bool) {
	h.showLogID = show
}

func (h *Handler) IsShowingLogID() bool {
	return h.showLogID
}

func (h *Handler) SetJSONFlags(flags JSONFlags) {
	h.jsonFlags = flags
}

func (h *Handler) JSONFlags() JSONFlags {
	return h.jsonFlags
}

// SetReporting sets the mask HandleError checks severities against.
func (h *Handler) SetReporting(mask Severity) {
	h.reporting = mask
}

func (h *Handler) Reporting() Severity {
	return h.reporting
}

func (h *Handler) SetSearchEngines(engines *SearchEngines) {
	if engines == nil {
		engines = NewSearchEngines()
	}
	h.searchEngines = engines
}

func (h *Handler) SearchEngines() *SearchEngines {
	return h.searchEngines
}

func (h *Handler) SetRecorder(recorder Recorder) {
	h.recorder = recorder
}

// SetTesting keeps the CLI path from exiting the process.
func (h *Handler) SetTesting(testing bool) {
	h.testing = testing
}

// SetOutput changes where CLI reports are written. nil restores stderr.
func (h *Handler) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	h.stderr = w
}

// SetExitFunc replaces os.Exit on the CLI path.
func (h *Handler) SetExitFunc(exit func(code int)) {
	if exit == nil {
		exit = os.Exit
	}
	h.exit = exit
}

func (h *Handler) SetDevelopmentView(path string) error {
	v, err := loadView(path)
	if err != nil {
		return err
	}
	h.developmentView = v
	return nil
}

func (h *Handler) DevelopmentView() string {
	return h.developmentView.path
}

func (h *Handler) SetProductionView(path string) error {
	v, err := loadView(path)
	if err != nil {
		return err
	}
	h.productionView = v
	return nil
}

func (h *Handler) ProductionView() string {
	return h.productionView.path
}

func loadView(path string) (view, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return view{}, fmt.Errorf("%w: %s", ErrInvalidView, path)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return view{}, fmt.Errorf("%w: %s", ErrInvalidView, path)
	}
	tmpl, err := template.New(filepath.Base(abs)).Funcs(viewFuncs).ParseFiles(abs)
	if err != nil {
		return view{}, fmt.Errorf("%w: %s: %v", ErrInvalidView, path, err)
	}
	return view{path: abs, template: tmpl}, nil
}

func validateInputName(name string) error {
	for _, known := range inputNames {
		if name == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, name)
}

func makeHiddenInputs(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if err := validateInputName(name); err != nil {
			return nil, err
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (h *Handler) SetHiddenInputs(name string, names ...string) error {
	hidden, err := makeHiddenInputs(append([]string{name}, names...))
	if err != nil {
		return err
	}
	h.hiddenInputs = hidden
	return nil
}

func (h *Handler) AddHiddenInputs(name string, names ...string) error {
	added, err := makeHiddenInputs(append([]string{name}, names...))
	if err != nil {
		return err
	}
	merged, _ := makeHiddenInputs(append(h.HiddenInputs(), added...))
	h.hiddenInputs = merged
	return nil
}

func (h *Handler) RemoveHiddenInputs(name string, names ...string) error {
	removed, err := makeHiddenInputs(append([]string{name}, names...))
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(removed))
	for _, n := range removed {
		drop[n] = true
	}
	kept := h.hiddenInputs[:0:0]
	for _, n := range h.hiddenInputs {
		if !drop[n] {
			kept = append(kept, n)
		}
	}
	h.hiddenInputs = kept
	return nil
}

func (h *Handler) IsHiddenInput(name string) (bool, error) {
	if err := validateInputName(name); err != nil {
		return false, err
	}
	for _, hidden := range h.hiddenInputs {
		if hidden == name {
			return true, nil
		}
	}
	return false, nil
}

func (h *Handler) HiddenInputs() []string {
	out := make([]string, len(h.hiddenInputs))
	copy(out, h.hiddenInputs)
	return out
}

// InputNames lists every recognized input source.
func InputNames() []string {
	out := make([]string, len(inputNames))
	copy(out, inputNames)
	return out
}

func (h *Handler) lastLogID(ctx context.Context) string {
	if !h.showLogID || h.logger == nil {
		return ""
	}
	id, ok := h.logger.LastLogID(ctx)
	if !ok {
		return ""
	}
	return strings.TrimSpace(id)
}
