// Package debug aggregates collector activities into a timeline and renders
// the debug bar.
package debug

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Recognized debug bar option keys.
const (
	OptionColor        = "color"
	OptionIconPath     = "icon_path"
	OptionInfoLink     = "info_link"
	OptionInfoContents = "info_contents"
)

var ErrInvalidOption = errors.New("invalid debugbar option")

// InfoLink replaces the default link in the Info panel.
type InfoLink struct {
	Href string `json:"href" yaml:"href"`
	Text string `json:"text" yaml:"text"`
}

// Debugger owns the collections of one request or process run. It is not
// safe for concurrent use; create one per request.
type Debugger struct {
	collections     []*Collection
	byName          map[string]*Collection
	options         map[string]any
	debugbarEnabled bool
}

func NewDebugger() *Debugger {
	return &Debugger{
		byName:          make(map[string]*Collection),
		options:         make(map[string]any),
		debugbarEnabled: true,
	}
}

// AddCollection registers collection, replacing any collection with the
// same name while keeping its original position.
func (d *Debugger) AddCollection(collection *Collection) *Debugger {
	if collection == nil {
		return d
	}
	if existing, ok := d.byName[collection.Name()]; ok {
		for i, c := range d.collections {
			if c == existing {
				d.collections[i] = collection
				break
			}
		}
	} else {
		d.collections = append(d.collections, collection)
	}
	d.byName[collection.Name()] = collection
	return d
}

// Collections returns the collections in registration order.
func (d *Debugger) Collections() []*Collection {
	out := make([]*Collection, len(d.collections))
	copy(out, d.collections)
	return out
}

func (d *Debugger) Collection(name string) (*Collection, bool) {
	collection, ok := d.byName[name]
	return collection, ok
}

// AddCollector attaches collector to the named collection, creating the
// collection on first use.
func (d *Debugger) AddCollector(collector Collector, collectionName string) *Debugger {
	collection, ok := d.byName[collectionName]
	if !ok {
		collection = NewCollection(collectionName)
		d.AddCollection(collection)
	}
	collection.AddCollector(collector)
	return d
}

// Activities flattens every collection's activities and positions them on a
// shared timeline. Ties on start keep collection, collector and recording
// order.
func (d *Debugger) Activities() ActivityReport {
	var collected []EnrichedActivity
	for _, collection := range d.collections {
		for _, group := range collection.Activities() {
			for _, activity := range group {
				collected = append(collected, EnrichedActivity{Activity: activity})
			}
		}
	}
	if len(collected) == 0 {
		return ActivityReport{Collected: []EnrichedActivity{}}
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Start < collected[j].Start
	})

	minStart := collected[0].Start
	maxEnd := collected[0].End
	for _, activity := range collected[1:] {
		if activity.Start < minStart {
			minStart = activity.Start
		}
		if activity.End > maxEnd {
			maxEnd = activity.End
		}
	}
	total := maxEnd - minStart
	for i := range collected {
		activity := &collected[i]
		activity.Total = activity.End - activity.Start
		if total == 0 {
			continue
		}
		activity.Left = roundTo((activity.Start-minStart)*100/total, 3)
		activity.Width = roundTo(activity.Total*100/total, 3)
	}

	return ActivityReport{
		Min:       minStart,
		Max:       maxEnd,
		Total:     total,
		Collected: collected,
	}
}

// SetOption validates and stores a single option.
func (d *Debugger) SetOption(key string, value any) error {
	normalized, err := normalizeOption(key, value)
	if err != nil {
		return err
	}
	d.options[key] = normalized
	return nil
}

// SetOptions validates every entry before storing any of them.
func (d *Debugger) SetOptions(options map[string]any) error {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	normalized := make(map[string]any, len(options))
	for _, key := range keys {
		value, err := normalizeOption(key, options[key])
		if err != nil {
			return err
		}
		normalized[key] = value
	}
	for key, value := range normalized {
		d.options[key] = value
	}
	return nil
}

func (d *Debugger) Option(key string) (any, bool) {
	value, ok := d.options[key]
	return value, ok
}

func (d *Debugger) Options() map[string]any {
	out := make(map[string]any, len(d.options))
	for key, value := range d.options {
		out[key] = value
	}
	return out
}

func (d *Debugger) EnableDebugbar() *Debugger {
	d.debugbarEnabled = true
	return d
}

func (d *Debugger) DisableDebugbar() *Debugger {
	d.debugbarEnabled = false
	return d
}

func (d *Debugger) IsDebugbarEnabled() bool {
	return d.debugbarEnabled
}

func normalizeOption(key string, value any) (any, error) {
	switch key {
	case OptionColor:
		color, ok := value.(string)
		if !ok || strings.TrimSpace(color) == "" {
			return nil, fmt.Errorf("%w: color must be a non-empty string", ErrInvalidOption)
		}
		return strings.TrimSpace(color), nil
	case OptionIconPath:
		path, ok := value.(string)
		if !ok || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: icon_path must be a non-empty string", ErrInvalidOption)
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: icon not found: %s", ErrInvalidOption, path)
		}
		return path, nil
	case OptionInfoLink:
		link, ok := infoLinkFromValue(value)
		if !ok {
			return nil, fmt.Errorf("%w: info link must contain \"href\" and \"text\" keys", ErrInvalidOption)
		}
		return link, nil
	case OptionInfoContents:
		contents, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: info_contents must be a string", ErrInvalidOption)
		}
		return contents, nil
	default:
		return value, nil
	}
}

func infoLinkFromValue(value any) (InfoLink, bool) {
	switch v := value.(type) {
	case InfoLink:
		return v, v.Href != "" && v.Text != ""
	case *InfoLink:
		if v == nil {
			return InfoLink{}, false
		}
		return *v, v.Href != "" && v.Text != ""
	case map[string]string:
		href, hasHref := v["href"]
		text, hasText := v["text"]
		return InfoLink{Href: href, Text: text}, hasHref && hasText
	case map[string]any:
		href, hasHref := v["href"].(string)
		text, hasText := v["text"].(string)
		return InfoLink{Href: href, Text: text}, hasHref && hasText
	default:
		return InfoLink{}, false
	}
}
