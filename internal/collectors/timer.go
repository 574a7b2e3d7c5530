package collectors

import (
	"github.com/ongoingai/debugkit/internal/debug"
	"github.com/ongoingai/debugkit/internal/timer"
)

const timerClass = "collectors.TimerCollector"

var timerContents = newContentsTemplate("timer", `{{if .Rows}}<table>
<thead><tr><th>#</th><th>Mark</th><th>Elapsed</th><th>Memory</th><th>Time</th></tr></thead>
<tbody>{{range $i, $row := .Rows}}
<tr><td>{{inc $i}}</td><td>{{$row.Name}}</td><td>{{$row.Elapsed}}</td><td>{{$row.Memory}}</td><td>{{$row.Time}}</td></tr>{{end}}
</tbody>
</table>{{else}}<p>No marks have been recorded.</p>{{end}}`)

// TimerCollector exposes the marks of a timer.Timer. Each pair of
// consecutive marks becomes one activity named after the later mark.
type TimerCollector struct {
	*debug.BaseCollector
	timer *timer.Timer
}

func NewTimerCollector(name string, t *timer.Timer) *TimerCollector {
	if t == nil {
		t = timer.New()
	}
	return &TimerCollector{
		BaseCollector: debug.NewBaseCollector(nameOr(name, "Timer"), timerClass),
		timer:         t,
	}
}

func (c *TimerCollector) Timer() *timer.Timer {
	return c.timer
}

func (c *TimerCollector) Activities() []debug.Activity {
	marks := c.timer.Marks()
	if len(marks) < 2 {
		return nil
	}
	out := make([]debug.Activity, 0, len(marks)-1)
	for i := 1; i < len(marks); i++ {
		out = append(out, debug.Activity{
			Collector:   c.Name(),
			Class:       timerClass,
			Description: marks[i].Name,
			Start:       marks[i-1].Time,
			End:         marks[i].Time,
		})
	}
	return out
}

type timerRow struct {
	Name    string
	Elapsed string
	Memory  string
	Time    string
}

func (c *TimerCollector) Contents() (string, error) {
	formatted := c.timer.FormattedMarks()
	rows := make([]timerRow, 0, len(formatted))
	for _, mark := range formatted {
		diff, err := c.timer.Diff(timer.StartMark, mark.Name)
		if err != nil {
			// A timer built with SetMark alone may lack the start mark.
			diff = timer.Diff{Time: "-", Memory: "-"}
		}
		rows = append(rows, timerRow{
			Name:    mark.Name,
			Elapsed: diff.Time,
			Memory:  mark.Memory,
			Time:    mark.Time,
		})
	}
	return renderContents(timerContents, struct{ Rows []timerRow }{Rows: rows})
}
