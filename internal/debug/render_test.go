package debug

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderDebugbarPanels(t *testing.T) {
	t.Parallel()

	queries := newFakeCollector("Queries")
	queries.contents = "<table class=\"queries\"></table>"
	queries.AddActivity(Activity{Description: "SELECT", Start: 10, End: 10.25})
	queries.AddActivity(Activity{Description: "UPDATE", Start: 10.25, End: 10.5})

	debugger := NewDebugger()
	debugger.AddCollector(queries, "Database")
	debugger.AddCollection(NewCollection("Empty"))
	debugger.Collections()[0].AddAction("<a class=\"act\">x</a>").AddAction("<a class=\"act\">y</a>")

	html, err := debugger.RenderDebugbar()
	if err != nil {
		t.Fatalf("RenderDebugbar() error: %v", err)
	}

	for _, want := range []string{
		`class="panel database-collection"`,
		`class="collector-queries"`,
		`<table class="queries"></table>`,
		`id="database-collection"`,
		`<a class="act">x</a> <a class="act">y</a>`,
		"2 activities were collected in 500 milliseconds:",
		"data:image/svg+xml;base64,",
		" disabled>",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("debugbar missing %q", want)
		}
	}
	if strings.Contains(html, "empty-collection") {
		t.Fatal("collections without collectors must not render")
	}
}

func TestRenderDebugbarSingleActivity(t *testing.T) {
	t.Parallel()

	collector := newFakeCollector("Timer")
	collector.AddActivity(Activity{Description: "boot", Start: 1, End: 1.002})
	debugger := NewDebugger()
	debugger.AddCollector(collector, "Timing")

	html, err := debugger.RenderDebugbar()
	if err != nil {
		t.Fatalf("RenderDebugbar() error: %v", err)
	}
	if !strings.Contains(html, "1 activity was collected in 2 milliseconds:") {
		t.Fatal("missing single activity summary")
	}
}

func TestRenderDebugbarOptions(t *testing.T) {
	t.Parallel()

	iconPath := filepath.Join(t.TempDir(), "brand.png")
	if err := os.WriteFile(iconPath, []byte("\x89PNG\r\n\x1a\n"), 0o600); err != nil {
		t.Fatalf("write icon: %v", err)
	}

	debugger := NewDebugger()
	if err := debugger.SetOptions(map[string]any{
		OptionColor:    "#00aaff",
		OptionIconPath: iconPath,
		OptionInfoLink: map[string]any{"href": "https://example.com/docs", "text": "Docs"},
	}); err != nil {
		t.Fatalf("SetOptions() error: %v", err)
	}

	html, err := debugger.RenderDebugbar()
	if err != nil {
		t.Fatalf("RenderDebugbar() error: %v", err)
	}
	if strings.Contains(html, "magenta") {
		t.Fatal("accent color was not replaced")
	}
	if !strings.Contains(html, "#00aaff") {
		t.Fatal("custom accent color missing")
	}
	if !strings.Contains(html, "data:image/png;base64,") {
		t.Fatal("custom icon missing")
	}
	if !strings.Contains(html, `href="https://example.com/docs"`) || !strings.Contains(html, ">Docs</a>") {
		t.Fatal("custom info link missing")
	}

	if err := debugger.SetOption(OptionInfoContents, "<p id=\"custom-info\">Build 42</p>"); err != nil {
		t.Fatalf("SetOption(info_contents) error: %v", err)
	}
	html, err = debugger.RenderDebugbar()
	if err != nil {
		t.Fatalf("RenderDebugbar() error: %v", err)
	}
	if !strings.Contains(html, `<p id="custom-info">Build 42</p>`) {
		t.Fatal("info contents missing")
	}
	if strings.Contains(html, "★") {
		t.Fatal("info contents should replace the default link")
	}
}

func TestRenderDebugbarEscapesNames(t *testing.T) {
	t.Parallel()

	collector := newFakeCollector("<script>x</script>")
	collector.AddActivity(Activity{Description: "<b>bold</b>", Start: 1, End: 2})
	debugger := NewDebugger()
	debugger.AddCollector(collector, "Names")

	html, err := debugger.RenderDebugbar()
	if err != nil {
		t.Fatalf("RenderDebugbar() error: %v", err)
	}
	if strings.Contains(html, "<b>bold</b>") {
		t.Fatal("activity description must be escaped")
	}
	if !strings.Contains(html, "&lt;b&gt;bold&lt;/b&gt;") {
		t.Fatal("escaped description missing")
	}
}

func TestRenderDebugbarReturnsCollectorErrors(t *testing.T) {
	t.Parallel()

	broken := newFakeCollector("Broken")
	broken.err = errors.New("template failed")

	debugger := NewDebugger()
	debugger.AddCollector(broken, "Misc")
	if _, err := debugger.RenderDebugbar(); err == nil || !strings.Contains(err.Error(), "template failed") {
		t.Fatalf("RenderDebugbar() error=%v, want collector error", err)
	}
}
