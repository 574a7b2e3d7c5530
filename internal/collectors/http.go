package collectors

import (
	"net/http"
	"sync"
	"time"

	"github.com/ongoingai/debugkit/internal/debug"
	"github.com/ongoingai/debugkit/internal/observability"
)

const httpClientClass = "collectors.HTTPClientCollector"

var httpClientContents = newContentsTemplate("http", `{{if .Calls}}<table>
<thead><tr><th>#</th><th>Method</th><th>URL</th><th>Status</th><th>Time</th></tr></thead>
<tbody>{{range $i, $c := .Calls}}
<tr><td>{{inc $i}}</td><td>{{$c.Method}}</td><td>{{$c.URL}}</td><td>{{if $c.Error}}{{$c.Error}}{{else}}{{$c.Status}}{{end}}</td><td>{{ms $c.Seconds}} ms</td></tr>{{end}}
</tbody>
</table>{{else}}<p>No outbound HTTP requests were made.</p>{{end}}`)

// HTTPCall describes one outbound request seen by the transport.
type HTTPCall struct {
	Method string  `json:"method"`
	URL    string  `json:"url"`
	Status int     `json:"status,omitempty"`
	Error  string  `json:"error,omitempty"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

func (c HTTPCall) Seconds() float64 {
	return c.End - c.Start
}

// HTTPClientCollector is an http.RoundTripper that records every request it
// forwards to its base transport.
type HTTPClientCollector struct {
	*debug.BaseCollector

	base http.RoundTripper
	now  func() time.Time

	mu    sync.Mutex
	calls []HTTPCall
}

// NewHTTPClientCollector wraps base, or http.DefaultTransport when base is
// nil.
func NewHTTPClientCollector(name string, base http.RoundTripper) *HTTPClientCollector {
	if base == nil {
		base = http.DefaultTransport
	}
	return &HTTPClientCollector{
		BaseCollector: debug.NewBaseCollector(nameOr(name, "HTTP Client"), httpClientClass),
		base:          base,
		now:           time.Now,
	}
}

// Client returns an http.Client that sends requests through the collector.
func (c *HTTPClientCollector) Client() *http.Client {
	return &http.Client{Transport: c}
}

func (c *HTTPClientCollector) RoundTrip(req *http.Request) (*http.Response, error) {
	start := c.now()
	resp, err := c.base.RoundTrip(req)
	end := c.now()

	call := HTTPCall{
		Method: req.Method,
		URL:    observability.ScrubCredentials(req.URL.Redacted()),
		Start:  unixSeconds(start),
		End:    unixSeconds(end),
	}
	if err != nil {
		call.Error = err.Error()
	} else {
		call.Status = resp.StatusCode
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	c.AddActivity(debug.Activity{
		Description: call.Method + " " + call.URL,
		Start:       call.Start,
		End:         call.End,
	})
	return resp, err
}

func (c *HTTPClientCollector) Calls() []HTTPCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HTTPCall, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *HTTPClientCollector) Activities() []debug.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BaseCollector.Activities()
}

func (c *HTTPClientCollector) Contents() (string, error) {
	return renderContents(httpClientContents, struct{ Calls []HTTPCall }{Calls: c.Calls()})
}
