// Package language renders localized diagnostic strings.
package language

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// DefaultLocale is used when a key is missing from the current locale.
const DefaultLocale = "en"

var rtlScripts = map[string]bool{
	"Adlm": true,
	"Arab": true,
	"Hebr": true,
	"Nkoo": true,
	"Rohg": true,
	"Syrc": true,
	"Thaa": true,
}

// Language holds message catalogs keyed by canonical BCP 47 tag and the
// locale currently used for rendering.
type Language struct {
	current   language.Tag
	catalogs  map[string]map[string]string
	supported []language.Tag
	matcher   language.Matcher
}

// New loads the built-in catalogs and selects locale.
func New(locale string) (*Language, error) {
	l := &Language{catalogs: make(map[string]map[string]string)}
	entries, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil, fmt.Errorf("read embedded locales: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		data, err := locales.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		messages, err := decodeCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		if err := l.AddMessages(strings.TrimSuffix(name, ".yaml"), messages); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(locale) == "" {
		locale = DefaultLocale
	}
	if err := l.SetLocale(locale); err != nil {
		return nil, err
	}
	return l, nil
}

// MustNew is New for built-in locales known to be valid.
func MustNew(locale string) *Language {
	l, err := New(locale)
	if err != nil {
		panic(err)
	}
	return l
}

// AddMessages merges messages into the catalog for locale.
func (l *Language) AddMessages(locale string, messages map[string]string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	key := tag.String()
	catalog, ok := l.catalogs[key]
	if !ok {
		catalog = make(map[string]string, len(messages))
		l.catalogs[key] = catalog
		l.supported = append(l.supported, tag)
		sort.SliceStable(l.supported, func(i, j int) bool {
			// The default locale leads so the matcher falls back to it.
			if l.supported[i].String() == DefaultLocale {
				return true
			}
			if l.supported[j].String() == DefaultLocale {
				return false
			}
			return l.supported[i].String() < l.supported[j].String()
		})
		l.matcher = language.NewMatcher(l.supported)
	}
	for k, v := range messages {
		catalog[k] = v
	}
	return nil
}

// SetLocale selects a locale that has a catalog.
func (l *Language) SetLocale(locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	if _, ok := l.catalogs[tag.String()]; !ok {
		return fmt.Errorf("unsupported locale %q (supported: %s)", locale, strings.Join(l.Locales(), ", "))
	}
	l.current = tag
	return nil
}

// Locale returns the current locale as a BCP 47 tag, e.g. "pt-BR".
func (l *Language) Locale() string {
	return l.current.String()
}

func (l *Language) Locales() []string {
	out := make([]string, 0, len(l.supported))
	for _, tag := range l.supported {
		out = append(out, tag.String())
	}
	return out
}

// Negotiate returns a copy of l whose locale is the best supported match
// for an Accept-Language header. Without a usable header the current
// locale is kept.
func (l *Language) Negotiate(acceptLanguage string) *Language {
	clone := *l
	if strings.TrimSpace(acceptLanguage) == "" || l.matcher == nil {
		return &clone
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return &clone
	}
	_, index, confidence := l.matcher.Match(tags...)
	if confidence == language.No {
		return &clone
	}
	clone.current = l.supported[index]
	return &clone
}

// Direction returns "rtl" for right-to-left scripts and "ltr" otherwise.
func (l *Language) Direction() string {
	script, _ := l.current.Script()
	if rtlScripts[script.String()] {
		return "rtl"
	}
	return "ltr"
}

// Render returns the message for key with {0}, {1}, ... replaced by args.
// Missing keys fall back to the default locale, then to the key itself.
func (l *Language) Render(key string, args ...string) string {
	message, ok := l.catalogs[l.current.String()][key]
	if !ok {
		message, ok = l.catalogs[DefaultLocale][key]
	}
	if !ok {
		message = key
	}
	for i, arg := range args {
		message = strings.ReplaceAll(message, "{"+strconv.Itoa(i)+"}", arg)
	}
	return message
}

func decodeCatalog(data []byte) (map[string]string, error) {
	messages := make(map[string]string)
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&messages); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return messages, nil
}
