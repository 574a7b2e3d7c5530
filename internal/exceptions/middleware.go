package exceptions

import (
	"bytes"
	"net/http"
)

// bufferedResponseWriter holds the response until release so an error page
// can replace partial output. Flush commits what is buffered so far; after
// that only later writes can be discarded.
type bufferedResponseWriter struct {
	http.ResponseWriter
	buf       bytes.Buffer
	status    int
	committed bool
	// initial is the header set before next ran, e.g. by outer middleware.
	initial http.Header
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{ResponseWriter: w, initial: w.Header().Clone()}
}

func (w *bufferedResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *bufferedResponseWriter) WriteHeader(statusCode int) {
	if w.committed {
		return
	}
	w.status = statusCode
}

func (w *bufferedResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(p)
}

// Discard drops buffered output. Until the response is committed, headers
// are also reset to what they were before next ran, so an error page is not
// sent with Content-Encoding or Content-Disposition meant for other output.
func (w *bufferedResponseWriter) Discard() {
	w.buf.Reset()
	if w.committed {
		return
	}
	w.status = 0
	header := w.ResponseWriter.Header()
	for key := range header {
		delete(header, key)
	}
	for key, values := range w.initial {
		header[key] = append([]string(nil), values...)
	}
}

func (w *bufferedResponseWriter) HeadersSent() bool {
	return w.committed
}

func (w *bufferedResponseWriter) Flush() {
	w.release()
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// release sends the buffered status and body downstream.
func (w *bufferedResponseWriter) release() {
	if !w.committed && w.status != 0 {
		w.ResponseWriter.WriteHeader(w.status)
		w.committed = true
	}
	if w.buf.Len() > 0 {
		if !w.committed {
			w.committed = true
		}
		_, _ = w.ResponseWriter.Write(w.buf.Bytes())
		w.buf.Reset()
	}
}

// Middleware recovers panics from next and dispatches them. The response is
// buffered, so output written before the panic is replaced by the error page.
// A failure to log the exception is re-panicked.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buffered := newBufferedResponseWriter(w)
		defer buffered.release()
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				buffered.Discard()
				panic(recovered)
			}
			exc := FromPanic(recovered)
			if err := h.Dispatch(Invocation{Writer: buffered, Request: r}, exc); err != nil {
				buffered.Discard()
				panic(err)
			}
		}()
		next.ServeHTTP(buffered, r)
	})
}

// Guard runs fn and dispatches a returned error or a panic on the CLI path.
// It returns the exit status: 0 on success, 1 otherwise. A failure to log
// the exception is re-panicked.
func (h *Handler) Guard(fn func() error) (status int) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		if err := h.Dispatch(Invocation{}, FromPanic(recovered)); err != nil {
			panic(err)
		}
		status = 1
	}()

	if err := fn(); err != nil {
		if dispatchErr := h.Dispatch(Invocation{}, Capture(err, 0)); dispatchErr != nil {
			panic(dispatchErr)
		}
		return 1
	}
	return 0
}
