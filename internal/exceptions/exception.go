package exceptions

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

const maxTraceDepth = 64

// Frame is one stack frame of a captured exception.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Exception is an error together with where it surfaced.
type Exception struct {
	Err     error
	Type    string
	Message string
	File    string
	Line    int
	Trace   []Frame
}

func (e *Exception) Error() string {
	return e.Message
}

func (e *Exception) Unwrap() error {
	return e.Err
}

// String renders the exception the way it is written to the log.
func (e *Exception) String() string {
	var b strings.Builder
	b.WriteString(e.Type)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " in %s:%d", e.File, e.Line)
	}
	b.WriteString("\nStack trace:\n")
	b.WriteString(e.TraceString())
	return b.String()
}

// TraceString lists frames as "#N file(line): function", ending with
// "#N {main}".
func (e *Exception) TraceString() string {
	var b strings.Builder
	for i, frame := range e.Trace {
		b.WriteString("#")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" ")
		b.WriteString(frame.File)
		b.WriteString("(")
		b.WriteString(strconv.Itoa(frame.Line))
		b.WriteString("): ")
		b.WriteString(frame.Function)
		b.WriteString("\n")
	}
	b.WriteString("#")
	b.WriteString(strconv.Itoa(len(e.Trace)))
	b.WriteString(" {main}")
	return b.String()
}

// Capture wraps err with the caller's stack. skip counts frames above the
// caller of Capture. An err that already is an *Exception is returned as is.
func Capture(err error, skip int) *Exception {
	if err == nil {
		return nil
	}
	var existing *Exception
	if errors.As(err, &existing) {
		return existing
	}
	return newException(err, fmt.Sprintf("%T", err), err.Error(), callers(skip+3))
}

// FromPanic converts a recovered value. It must be called from the deferred
// function that recovered, so the trace starts at the panic site.
func FromPanic(recovered any) *Exception {
	trace := trimPanicFrames(callers(3))
	switch value := recovered.(type) {
	case *Exception:
		return value
	case error:
		return newException(value, fmt.Sprintf("%T", value), value.Error(), trace)
	default:
		message := fmt.Sprint(value)
		return newException(errors.New(message), fmt.Sprintf("%T", value), message, trace)
	}
}

func newException(err error, typeName, message string, trace []Frame) *Exception {
	exc := &Exception{
		Err:     err,
		Type:    typeName,
		Message: message,
		Trace:   trace,
	}
	if len(trace) > 0 {
		exc.File = trace[0].File
		exc.Line = trace[0].Line
	}
	return exc
}

func callers(skip int) []Frame {
	pcs := make([]uintptr, maxTraceDepth)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]Frame, 0, n)
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			out = append(out, Frame{Function: frame.Function, File: frame.File, Line: frame.Line})
		}
		if !more {
			break
		}
	}
	// runtime.main and goexit only add noise below main.main.
	for len(out) > 0 && isRuntimeFrame(out[len(out)-1].Function) {
		out = out[:len(out)-1]
	}
	return out
}

// trimPanicFrames drops the recovering function and runtime panic
// machinery so the first frame is the code that panicked.
func trimPanicFrames(frames []Frame) []Frame {
	for i, frame := range frames {
		if frame.Function != "runtime.gopanic" {
			continue
		}
		rest := frames[i+1:]
		for len(rest) > 0 && isRuntimeFrame(rest[0].Function) {
			rest = rest[1:]
		}
		return rest
	}
	return frames
}

func isRuntimeFrame(function string) bool {
	return strings.HasPrefix(function, "runtime.")
}
