package debug

// Activity is a single timed unit of work recorded by a collector.
// Start and End are seconds since the Unix epoch with sub-second precision.
type Activity struct {
	Collection  string  `json:"collection"`
	Collector   string  `json:"collector"`
	Class       string  `json:"class"`
	Description string  `json:"description"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
}

// EnrichedActivity is an Activity positioned on the aggregated timeline.
// Left and Width are percentages of the global window.
type EnrichedActivity struct {
	Activity
	Total float64 `json:"total"`
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// ActivityReport is the aggregated timeline across every collection.
type ActivityReport struct {
	Min       float64            `json:"min"`
	Max       float64            `json:"max"`
	Total     float64            `json:"total"`
	Collected []EnrichedActivity `json:"collected"`
}
