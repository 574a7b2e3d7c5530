package debug

import (
	"fmt"
	"sort"
	"strings"
)

// CollectorFactory builds a collector with the given display name.
type CollectorFactory func(name string) Collector

// Registry maps stable keys to collector constructors so hosts can build
// collectors from configuration.
type Registry struct {
	factories map[string]CollectorFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]CollectorFactory)}
}

func (r *Registry) Register(key string, factory CollectorFactory) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("collector key must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("collector %q factory must not be nil", key)
	}
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("collector %q is already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// New builds the collector registered under key. An empty name lets the
// factory pick its default.
func (r *Registry) New(key, name string) (Collector, error) {
	factory, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("unknown collector %q (known: %s)", key, strings.Join(r.Keys(), ", "))
	}
	return factory(name), nil
}

func (r *Registry) Has(key string) bool {
	_, ok := r.factories[key]
	return ok
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
