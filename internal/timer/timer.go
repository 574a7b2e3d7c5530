// Package timer records named time and memory marks.
package timer

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// StartMark is added by New.
const StartMark = "debug[start]"

// Mark is a point-in-time snapshot. Time is seconds since the Unix epoch and
// Memory is live heap bytes.
type Mark struct {
	Name   string
	Memory uint64
	Time   float64
}

// FormattedMark is a Mark rendered for display.
type FormattedMark struct {
	Name   string `json:"name"`
	Memory string `json:"memory"`
	Time   string `json:"time"`
}

// Diff is the formatted difference between two marks.
type Diff struct {
	Memory string `json:"memory"`
	Time   string `json:"time"`
}

type Timer struct {
	order      []string
	marks      map[string]Mark
	testsCount int

	now    func() time.Time
	memory func() uint64
}

var printer = message.NewPrinter(language.English)

func New() *Timer {
	t := &Timer{
		marks:      make(map[string]Mark),
		testsCount: 1,
		now:        time.Now,
		memory:     heapAlloc,
	}
	t.AddMark(StartMark)
	return t
}

// AddMark records the current time and heap usage under name.
func (t *Timer) AddMark(name string) *Timer {
	return t.SetMark(name, t.memory(), unixSeconds(t.now()))
}

// SetMark stores an explicit mark, replacing any previous value for name.
func (t *Timer) SetMark(name string, memory uint64, seconds float64) *Timer {
	if _, exists := t.marks[name]; !exists {
		t.order = append(t.order, name)
	}
	t.marks[name] = Mark{Name: name, Memory: memory, Time: seconds}
	return t
}

func (t *Timer) Mark(name string) (Mark, bool) {
	mark, ok := t.marks[name]
	return mark, ok
}

// Marks returns every mark in insertion order.
func (t *Timer) Marks() []Mark {
	out := make([]Mark, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.marks[name])
	}
	return out
}

func (t *Timer) FormattedMarks() []FormattedMark {
	out := make([]FormattedMark, 0, len(t.order))
	for _, name := range t.order {
		mark := t.marks[name]
		out = append(out, FormattedMark{
			Name:   name,
			Memory: formatMegabytes(float64(mark.Memory)),
			Time:   formatSeconds(mark.Time),
		})
	}
	return out
}

// Diff formats the memory and time elapsed between two marks.
func (t *Timer) Diff(from, to string) (Diff, error) {
	start, ok := t.marks[from]
	if !ok {
		return Diff{}, fmt.Errorf("unknown mark %q", from)
	}
	end, ok := t.marks[to]
	if !ok {
		return Diff{}, fmt.Errorf("unknown mark %q", to)
	}
	return Diff{
		Memory: formatMegabytes(float64(int64(end.Memory) - int64(start.Memory))),
		Time:   formatSeconds(end.Time - start.Time),
	}, nil
}

// Test runs fn times times between two fresh marks and returns their diff.
func (t *Timer) Test(times int, fn func()) Diff {
	t.testsCount++
	prefix := "test[" + strconv.Itoa(t.testsCount) + "]"
	t.AddMark(prefix + "[start]")
	for i := 0; i < times; i++ {
		fn()
	}
	t.AddMark(prefix + "[end]")
	diff, _ := t.Diff(prefix+"[start]", prefix+"[end]")
	return diff
}

func formatMegabytes(bytes float64) string {
	return printer.Sprintf("%.3f", bytes/1024/1024) + " MB"
}

func formatSeconds(seconds float64) string {
	return printer.Sprintf("%.3f", seconds) + " s"
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}
