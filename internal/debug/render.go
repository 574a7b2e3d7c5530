package debug

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

//go:embed views/*
var views embed.FS

const defaultAccentColor = "magenta"

var debugbarTemplate = template.Must(template.New("debugbar.html").Funcs(template.FuncMap{
	"ms": func(seconds float64) string {
		return formatNumber(RoundSecondsToMilliseconds(seconds, 3))
	},
	"num": formatNumber,
	"round6": func(value float64) string {
		return formatNumber(roundTo(value, 6))
	},
	"add": func(a, b float64) string {
		return formatNumber(roundTo(a+b, 3))
	},
	"inc": func(i int) int {
		return i + 1
	},
}).ParseFS(views, "views/debugbar.html"))

type debugbarView struct {
	Styles       template.CSS
	Scripts      template.JS
	InfoIcon     template.HTML
	IconSource   template.URL
	Runtime      string
	InfoLink     *InfoLink
	InfoContents template.HTML
	Summary      string
	Activities   ActivityReport
	Panels       []debugbarPanel
}

type debugbarPanel struct {
	Name       string
	SafeName   string
	Icon       template.HTML
	Actions    template.HTML
	Collectors []debugbarCollector
}

type debugbarCollector struct {
	Name     string
	SafeName string
	Contents template.HTML
}

// RenderDebugbar renders the toolbar markup for injection before </body>.
// A disabled debug bar renders as an empty string.
func (d *Debugger) RenderDebugbar() (string, error) {
	if !d.debugbarEnabled {
		return "", nil
	}

	styles, err := views.ReadFile("views/styles.css")
	if err != nil {
		return "", fmt.Errorf("read debugbar styles: %w", err)
	}
	scripts, err := views.ReadFile("views/scripts.js")
	if err != nil {
		return "", fmt.Errorf("read debugbar scripts: %w", err)
	}
	infoIcon, err := views.ReadFile("views/info.svg")
	if err != nil {
		return "", fmt.Errorf("read debugbar info icon: %w", err)
	}
	iconSource, err := d.iconSource()
	if err != nil {
		return "", err
	}

	color := defaultAccentColor
	if value, ok := d.options[OptionColor].(string); ok {
		color = value
	}

	view := debugbarView{
		Styles:     template.CSS(strings.ReplaceAll(string(styles), defaultAccentColor, color)),
		Scripts:    template.JS(scripts),
		InfoIcon:   template.HTML(infoIcon),
		IconSource: iconSource,
		Runtime:    fmt.Sprintf("Running on %s with Go %s.", runtime.GOOS, RoundVersion(strings.TrimPrefix(runtime.Version(), "go"))),
		Activities: d.Activities(),
	}
	if link, ok := d.options[OptionInfoLink].(InfoLink); ok {
		view.InfoLink = &link
	}
	if contents, ok := d.options[OptionInfoContents].(string); ok {
		view.InfoContents = template.HTML(contents)
	}
	view.Summary = activitySummary(view.Activities)

	for _, collection := range d.collections {
		if !collection.HasCollectors() {
			continue
		}
		panel := debugbarPanel{
			Name:     collection.Name(),
			SafeName: collection.SafeName(),
			Icon:     template.HTML(collection.Icon()),
			Actions:  template.HTML(strings.Join(collection.Actions(), " ")),
		}
		for _, collector := range collection.Collectors() {
			contents, err := collector.Contents()
			if err != nil {
				return "", fmt.Errorf("render collector %q contents: %w", collector.Name(), err)
			}
			panel.Collectors = append(panel.Collectors, debugbarCollector{
				Name:     collector.Name(),
				SafeName: collector.SafeName(),
				Contents: template.HTML(contents),
			})
		}
		view.Panels = append(view.Panels, panel)
	}

	var out bytes.Buffer
	if err := debugbarTemplate.Execute(&out, view); err != nil {
		return "", fmt.Errorf("render debugbar: %w", err)
	}
	return out.String(), nil
}

func (d *Debugger) iconSource() (template.URL, error) {
	var (
		data []byte
		kind string
		err  error
	)
	if path, ok := d.options[OptionIconPath].(string); ok {
		data, err = os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("icon not found: %s: %w", path, err)
		}
		kind = mime.TypeByExtension(filepath.Ext(path))
	} else {
		data, err = views.ReadFile("views/icon.svg")
		if err != nil {
			return "", fmt.Errorf("read debugbar icon: %w", err)
		}
		kind = "image/svg+xml"
	}
	if kind == "" {
		kind = http.DetectContentType(data)
	}
	return template.URL("data:" + kind + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
}

func activitySummary(report ActivityReport) string {
	count := len(report.Collected)
	if count == 0 {
		return ""
	}
	noun := "activities were"
	if count == 1 {
		noun = "activity was"
	}
	return fmt.Sprintf("%d %s collected in %s milliseconds:", count, noun, formatNumber(RoundSecondsToMilliseconds(report.Total, 3)))
}
