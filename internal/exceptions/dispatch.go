package exceptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ongoingai/debugkit/internal/language"
	"github.com/ongoingai/debugkit/internal/observability"
)

const (
	formatCLI  = "cli"
	formatJSON = "json"
	formatHTML = "html"
)

// Invocation is where an exception surfaced. A nil Request means the
// terminal; Writer is required otherwise.
type Invocation struct {
	Writer  http.ResponseWriter
	Request *http.Request
}

func (inv Invocation) context() context.Context {
	if inv.Request != nil {
		return inv.Request.Context()
	}
	return context.Background()
}

// discarder is implemented by writers that can drop output not yet sent.
type discarder interface {
	Discard()
}

// headerSender reports whether status and headers already reached the client.
type headerSender interface {
	HeadersSent() bool
}

// Dispatch logs exc and writes the report for inv. Only a logging failure is
// returned; rendering problems degrade inside the report instead.
func (h *Handler) Dispatch(inv Invocation, exc *Exception) error {
	if exc == nil {
		return nil
	}
	if d, ok := inv.Writer.(discarder); ok {
		d.Discard()
	}

	ctx := inv.context()
	if h.logger != nil {
		if err := h.logger.LogCritical(ctx, exc.String()); err != nil {
			return fmt.Errorf("log exception: %w", err)
		}
	}

	if inv.Request == nil {
		h.record(ctx, formatCLI, exc)
		h.writeCLI(ctx, exc)
		if !h.testing {
			h.exit(1)
		}
		return nil
	}

	lang := h.language
	if h.negotiate {
		lang = lang.Negotiate(inv.Request.Header.Get("Accept-Language"))
	}
	asJSON := wantsJSON(inv.Request)
	w := inv.Writer

	if sent, ok := w.(headerSender); !ok || !sent.HeadersSent() {
		contentType := "text/html"
		if asJSON {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType+"; charset=UTF-8")
		w.Header().Set("Content-Language", lang.Locale())
		w.Header().Del("Content-Length")
	}
	w.WriteHeader(http.StatusInternalServerError)

	if asJSON {
		h.record(ctx, formatJSON, exc)
		h.writeJSON(ctx, w, lang, exc)
		return nil
	}
	h.record(ctx, formatHTML, exc)
	h.writeHTML(ctx, w, lang, inv.Request, exc)
	return nil
}

func (h *Handler) record(ctx context.Context, format string, exc *Exception) {
	if h.recorder == nil {
		return
	}
	h.recorder.RecordException(ctx, observability.ExceptionEvent{
		Format:      format,
		Environment: string(h.environment),
		Type:        exc.Type,
		Message:     exc.Message,
	})
}

func wantsJSON(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(req.Header.Get("Accept"), "application/json")
}

var (
	cliLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	cliValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func (h *Handler) writeCLI(ctx context.Context, exc *Exception) {
	renderer := lipgloss.NewRenderer(h.stderr)
	label := cliLabelStyle.Renderer(renderer)
	value := cliValueStyle.Renderer(renderer)
	line := func(key, text string) string {
		return label.Render(h.language.Render(key)+":") + " " + value.Render(text)
	}

	lines := []string{
		line("exception", exc.Type),
		line("message", exc.Message),
		line("file", exc.File),
		line("line", strconv.Itoa(exc.Line)),
		label.Render(h.language.Render("trace") + ":"),
	}
	for _, frame := range strings.Split(exc.TraceString(), "\n") {
		lines = append(lines, value.Render(frame))
	}
	if id := h.lastLogID(ctx); id != "" {
		lines = append(lines, "", line("logId", id))
	}
	_, _ = io.WriteString(h.stderr, strings.Join(lines, "\n")+"\n")
}

type jsonStatus struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type jsonBody struct {
	Status jsonStatus     `json:"status"`
	Data   map[string]any `json:"data"`
}

func (h *Handler) writeJSON(ctx context.Context, w io.Writer, lang *language.Language, exc *Exception) {
	data := map[string]any{}
	if h.environment == Development {
		trace := exc.Trace
		if trace == nil {
			trace = []Frame{}
		}
		data["exception"] = exc.Type
		data["message"] = exc.Message
		data["file"] = exc.File
		data["line"] = exc.Line
		data["trace"] = trace
	} else {
		data["message"] = lang.Render("exceptionDescription")
	}
	if id := h.lastLogID(ctx); id != "" {
		data["log_id"] = id
	}

	var out bytes.Buffer
	encoder := json.NewEncoder(&out)
	encoder.SetEscapeHTML(h.jsonFlags&JSONEscapeHTML != 0)
	if h.jsonFlags&JSONPretty != 0 {
		encoder.SetIndent("", "    ")
	}
	err := encoder.Encode(jsonBody{
		Status: jsonStatus{Code: http.StatusInternalServerError, Reason: lang.Render("internalServerError")},
		Data:   data,
	})
	if err != nil {
		// Only an unencodable trace can get here; the generic body always encodes.
		out.Reset()
		_ = json.NewEncoder(&out).Encode(jsonBody{
			Status: jsonStatus{Code: http.StatusInternalServerError, Reason: lang.Render("internalServerError")},
			Data:   map[string]any{"message": lang.Render("exceptionDescription")},
		})
	}
	_, _ = w.Write(bytes.TrimRight(out.Bytes(), "\n"))
}

func (h *Handler) writeHTML(ctx context.Context, w io.Writer, lang *language.Language, req *http.Request, exc *Exception) {
	v := h.productionView
	if h.environment == Development {
		v = h.developmentView
	}
	data := h.newViewData(ctx, lang, req, exc)

	var out bytes.Buffer
	if err := v.template.Execute(&out, data); err != nil {
		out.Reset()
		_ = productionTemplate.Execute(&out, data)
	}
	_, _ = w.Write(out.Bytes())
}
