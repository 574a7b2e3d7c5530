package exceptions

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/ongoingai/debugkit/internal/language"
	"github.com/ongoingai/debugkit/internal/observability"
)

//go:embed views/*.html
var viewFiles embed.FS

// sourceRadius is how far from the current line a snippet reaches, exclusive.
const sourceRadius = 10

var viewFuncs = template.FuncMap{
	"join": strings.Join,
}

var (
	developmentTemplate = template.Must(template.New("development.html").Funcs(viewFuncs).ParseFS(viewFiles, "views/development.html"))
	productionTemplate  = template.Must(template.New("production.html").Funcs(viewFuncs).ParseFS(viewFiles, "views/production.html"))
)

// ViewData is passed to exception page templates, including custom ones.
type ViewData struct {
	Lang        *language.Language
	Environment Environment
	Exception   *Exception
	Frames      []SourceFrame
	Inputs      []InputTable
	// HiddenNotice lists hidden sources that had data, already localized.
	HiddenNotice string
	SearchURL    string
	SearchEngine string
	LogID        string
}

type SourceFrame struct {
	Number   int
	Function string
	File     string
	Line     int
	// Unreadable holds the localized placeholder when File could not be read.
	Unreadable string
	Lines      []SourceLine
}

type SourceLine struct {
	Number  int
	Code    string
	Current bool
}

// InputTable is one request input source, rows sorted by key.
type InputTable struct {
	Name string
	Rows []InputRow
}

type InputRow struct {
	Key   string
	Value string
}

func (h *Handler) newViewData(ctx context.Context, lang *language.Language, req *http.Request, exc *Exception) ViewData {
	data := ViewData{
		Lang:        lang,
		Environment: h.environment,
		Exception:   exc,
		LogID:       h.lastLogID(ctx),
	}
	if h.environment != Development {
		return data
	}

	data.Frames = sourceFrames(lang, exc)
	data.SearchEngine = h.searchEngines.Current()
	if link, err := h.searchEngines.MakeLink(exc.Type + ": " + exc.Message); err == nil {
		data.SearchURL = link
	}

	var hiddenWithData []string
	for _, table := range collectInputs(req) {
		if hidden, _ := h.IsHiddenInput(table.Name); hidden {
			if len(table.Rows) > 0 {
				hiddenWithData = append(hiddenWithData, table.Name)
			}
			continue
		}
		if len(table.Rows) > 0 {
			data.Inputs = append(data.Inputs, table)
		}
	}
	if len(hiddenWithData) > 0 {
		data.HiddenNotice = lang.Render("inputVarsHidden", strings.Join(hiddenWithData, ", "))
	}
	return data
}

func sourceFrames(lang *language.Language, exc *Exception) []SourceFrame {
	trace := exc.Trace
	if len(trace) == 0 && exc.File != "" {
		trace = []Frame{{File: exc.File, Line: exc.Line}}
	}

	out := make([]SourceFrame, 0, len(trace))
	for i, frame := range trace {
		sf := SourceFrame{
			Number:   len(trace) - i,
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		}
		lines, err := readSnippet(frame.File, frame.Line)
		if err != nil {
			sf.Unreadable = lang.Render("fileNotReadable", frame.File)
		} else {
			sf.Lines = lines
		}
		out = append(out, sf)
	}
	return out
}

// readSnippet returns the lines strictly within sourceRadius of line.
func readSnippet(path string, line int) ([]SourceLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []SourceLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for number := 1; scanner.Scan(); number++ {
		if number <= line-sourceRadius {
			continue
		}
		if number >= line+sourceRadius {
			break
		}
		out = append(out, SourceLine{
			Number:  number,
			Code:    strings.TrimRight(scanner.Text(), " \t\r"),
			Current: number == line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// collectInputs gathers every input source from req in enum order. Values
// are scrubbed of credentials.
func collectInputs(req *http.Request) []InputTable {
	tables := make([]InputTable, 0, len(inputNames))
	for _, name := range inputNames {
		values := map[string]string{}
		switch name {
		case InputENV:
			for _, kv := range os.Environ() {
				if key, value, ok := strings.Cut(kv, "="); ok {
					values[key] = value
				}
			}
		case InputSERVER:
			if req != nil {
				serverValues(req, values)
			}
		case InputGET:
			if req != nil && req.URL != nil {
				flatten(req.URL.Query(), values)
			}
		case InputPOST:
			// Only what the handler already parsed; the body may be gone.
			if req != nil {
				flatten(req.PostForm, values)
				if req.MultipartForm != nil {
					flatten(req.MultipartForm.Value, values)
				}
			}
		case InputFILES:
			if req != nil && req.MultipartForm != nil {
				for field, headers := range req.MultipartForm.File {
					names := make([]string, 0, len(headers))
					for _, header := range headers {
						names = append(names, fmt.Sprintf("%s (%d B)", header.Filename, header.Size))
					}
					values[field] = strings.Join(names, ", ")
				}
			}
		case InputCOOKIE:
			if req != nil {
				for _, cookie := range req.Cookies() {
					values[cookie.Name] = cookie.Value
				}
			}
		}
		tables = append(tables, InputTable{Name: name, Rows: sortedRows(values)})
	}
	return tables
}

func serverValues(req *http.Request, values map[string]string) {
	values["REQUEST_METHOD"] = req.Method
	values["REQUEST_URI"] = req.RequestURI
	values["SERVER_PROTOCOL"] = req.Proto
	values["REMOTE_ADDR"] = req.RemoteAddr
	values["HTTP_HOST"] = req.Host
	for key, vals := range req.Header {
		name := "HTTP_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		values[name] = strings.Join(vals, ", ")
	}
}

func flatten(src map[string][]string, dst map[string]string) {
	for key, vals := range src {
		dst[key] = strings.Join(vals, ", ")
	}
}

func sortedRows(values map[string]string) []InputRow {
	rows := make([]InputRow, 0, len(values))
	for key, value := range values {
		rows = append(rows, InputRow{Key: key, Value: observability.ScrubCredentials(value)})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Key < rows[j].Key
	})
	return rows
}
