package exceptions

import (
	"strings"
	"testing"
)

func TestSearchEnginesDefaults(t *testing.T) {
	t.Parallel()

	engines := NewSearchEngines()
	if engines.Current() != "google" {
		t.Fatalf("Current()=%q, want google", engines.Current())
	}
	if engines.CurrentURL() != "https://www.google.com/search?q=" {
		t.Fatalf("CurrentURL()=%q", engines.CurrentURL())
	}
	want := "ask,baidu,bing,duckduckgo,google,yahoo,yandex"
	if got := strings.Join(engines.Names(), ","); got != want {
		t.Fatalf("Names()=%q, want %q", got, want)
	}
}

func TestSearchEnginesRejectUnknownNames(t *testing.T) {
	t.Parallel()

	engines := NewSearchEngines()
	if _, err := engines.URL("altavista"); err == nil || err.Error() != "invalid search engine name: altavista" {
		t.Fatalf("URL(altavista) error=%v", err)
	}
	if err := engines.SetCurrent("altavista"); err == nil {
		t.Fatal("SetCurrent(altavista) error=nil, want error")
	}
	if engines.Current() != "google" {
		t.Fatalf("Current()=%q after failed SetCurrent, want google", engines.Current())
	}
	if _, err := engines.MakeLink("x", "altavista"); err == nil {
		t.Fatal("MakeLink(x, altavista) error=nil, want error")
	}
}

func TestSearchEnginesMakeLink(t *testing.T) {
	t.Parallel()

	engines := NewSearchEngines()
	link, err := engines.MakeLink("*errors.errorString: a & b")
	if err != nil {
		t.Fatalf("MakeLink() error: %v", err)
	}
	if link != "https://www.google.com/search?q=%2Aerrors.errorString%3A+a+%26+b" {
		t.Fatalf("MakeLink()=%q", link)
	}

	if err := engines.SetCurrent("duckduckgo"); err != nil {
		t.Fatalf("SetCurrent() error: %v", err)
	}
	link, _ = engines.MakeLink("go")
	if link != "https://duckduckgo.com/?q=go" {
		t.Fatalf("MakeLink(current duckduckgo)=%q", link)
	}
	link, _ = engines.MakeLink("go", "yandex")
	if link != "https://yandex.com/search/?text=go" {
		t.Fatalf("MakeLink(go, yandex)=%q", link)
	}
}

func TestSearchEnginesAdd(t *testing.T) {
	t.Parallel()

	engines := NewSearchEngines()
	if err := engines.Add("startpage", "https://www.startpage.com/do/search?q="); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := engines.SetCurrent("startpage"); err != nil {
		t.Fatalf("SetCurrent(startpage) error: %v", err)
	}
	if err := engines.Add(" ", "https://x"); err == nil {
		t.Fatal("Add(blank name) error=nil, want error")
	}
	if err := engines.Add("broken", ""); err == nil {
		t.Fatal("Add(empty url) error=nil, want error")
	}
}
