package debug

import (
	"fmt"
	"os"
)

// Collection groups collectors under one toolbar button.
type Collection struct {
	name       string
	icon       string
	actions    []string
	collectors []Collector
}

func NewCollection(name string) *Collection {
	return &Collection{name: name}
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) SafeName() string {
	return MakeSafeName(c.name)
}

// SetIcon sets the icon markup shown next to the collection name.
func (c *Collection) SetIcon(icon string) *Collection {
	c.icon = icon
	return c
}

// SetIconPath loads the icon markup from a file.
func (c *Collection) SetIconPath(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("icon path is invalid: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("icon path is invalid: %s: %w", path, err)
	}
	c.icon = string(data)
	return nil
}

func (c *Collection) Icon() string {
	return c.icon
}

func (c *Collection) HasIcon() bool {
	return c.icon != ""
}

func (c *Collection) AddCollector(collector Collector) *Collection {
	if collector != nil {
		c.collectors = append(c.collectors, collector)
	}
	return c
}

func (c *Collection) Collectors() []Collector {
	out := make([]Collector, len(c.collectors))
	copy(out, c.collectors)
	return out
}

// AddAction appends an HTML snippet rendered in the panel header.
func (c *Collection) AddAction(action string) *Collection {
	c.actions = append(c.actions, action)
	return c
}

func (c *Collection) Actions() []string {
	out := make([]string, len(c.actions))
	copy(out, c.actions)
	return out
}

func (c *Collection) HasCollectors() bool {
	return len(c.collectors) > 0
}

// Activities returns one group per collector that recorded anything, each
// activity tagged with this collection's name. Collector state is not
// modified.
func (c *Collection) Activities() [][]Activity {
	var groups [][]Activity
	for _, collector := range c.collectors {
		activities := collector.Activities()
		if len(activities) == 0 {
			continue
		}
		group := make([]Activity, len(activities))
		for i, activity := range activities {
			activity.Collection = c.name
			group[i] = activity
		}
		groups = append(groups, group)
	}
	return groups
}
