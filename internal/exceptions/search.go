package exceptions

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const defaultSearchEngine = "google"

// SearchEngines maps engine names to query URL prefixes and tracks the one
// used for "search this error" links.
type SearchEngines struct {
	engines map[string]string
	current string
}

func NewSearchEngines() *SearchEngines {
	return &SearchEngines{
		engines: map[string]string{
			"ask":        "https://www.ask.com/web?q=",
			"baidu":      "https://www.baidu.com/s?wd=",
			"bing":       "https://www.bing.com/search?q=",
			"duckduckgo": "https://duckduckgo.com/?q=",
			"google":     "https://www.google.com/search?q=",
			"yahoo":      "https://search.yahoo.com/search?p=",
			"yandex":     "https://yandex.com/search/?text=",
		},
		current: defaultSearchEngine,
	}
}

// Add registers or replaces an engine.
func (s *SearchEngines) Add(name, prefix string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("search engine name must not be empty")
	}
	if _, err := url.Parse(prefix); err != nil || strings.TrimSpace(prefix) == "" {
		return fmt.Errorf("invalid search engine url for %s: %q", name, prefix)
	}
	s.engines[name] = prefix
	return nil
}

func (s *SearchEngines) URL(name string) (string, error) {
	prefix, ok := s.engines[name]
	if !ok {
		return "", fmt.Errorf("invalid search engine name: %s", name)
	}
	return prefix, nil
}

func (s *SearchEngines) SetCurrent(name string) error {
	if _, err := s.URL(name); err != nil {
		return err
	}
	s.current = name
	return nil
}

func (s *SearchEngines) Current() string {
	return s.current
}

func (s *SearchEngines) CurrentURL() string {
	return s.engines[s.current]
}

func (s *SearchEngines) Names() []string {
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MakeLink returns a search URL for query on the named engine, or on the
// current engine when name is omitted.
func (s *SearchEngines) MakeLink(query string, name ...string) (string, error) {
	prefix := s.CurrentURL()
	if len(name) > 0 && name[0] != "" {
		var err error
		if prefix, err = s.URL(name[0]); err != nil {
			return "", err
		}
	}
	return prefix + url.QueryEscape(query), nil
}
