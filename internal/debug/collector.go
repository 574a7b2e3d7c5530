package debug

const defaultCollectorName = "default"

// Collector is the capability every debug bar data source implements.
type Collector interface {
	Name() string
	SafeName() string
	// Contents returns the HTML fragment rendered inside the collector panel.
	Contents() (string, error)
	Activities() []Activity
}

// BaseCollector holds the state shared by concrete collectors. Embed it and
// implement Contents.
// It does no locking; collectors fed from other goroutines guard it themselves.
type BaseCollector struct {
	name       string
	class      string
	data       []any
	activities []Activity
}

// NewBaseCollector returns a collector base named name. An empty name falls
// back to "default". class identifies the concrete collector type in
// recorded activities.
func NewBaseCollector(name, class string) *BaseCollector {
	if name == "" {
		name = defaultCollectorName
	}
	return &BaseCollector{name: name, class: class}
}

func (c *BaseCollector) Name() string {
	return c.name
}

func (c *BaseCollector) SafeName() string {
	return MakeSafeName(c.name)
}

func (c *BaseCollector) Class() string {
	return c.class
}

// AddData appends an arbitrary item for the concrete collector to render.
func (c *BaseCollector) AddData(item any) {
	c.data = append(c.data, item)
}

func (c *BaseCollector) Data() []any {
	out := make([]any, len(c.data))
	copy(out, c.data)
	return out
}

func (c *BaseCollector) HasData() bool {
	return len(c.data) > 0
}

// AddActivity records an activity. Collector and Class default to the
// collector's own identity when left empty.
func (c *BaseCollector) AddActivity(activity Activity) {
	if activity.Collector == "" {
		activity.Collector = c.name
	}
	if activity.Class == "" {
		activity.Class = c.class
	}
	c.activities = append(c.activities, activity)
}

func (c *BaseCollector) Activities() []Activity {
	if len(c.activities) == 0 {
		return nil
	}
	out := make([]Activity, len(c.activities))
	copy(out, c.activities)
	return out
}
