package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

const noStackTrace = "(no stack trace)"

// ExceptionDetail is a captured failure with its cause chain.
type ExceptionDetail struct {
	Type       string           `json:"type"`
	Message    string           `json:"message"`
	StackTrace string           `json:"stack_trace"`
	Source     string           `json:"source,omitempty"`
	CapturedAt time.Time        `json:"captured_at"`
	Inner      *ExceptionDetail `json:"inner,omitempty"`
}

// NewExceptionDetail converts err and everything it wraps into a detail chain.
// Errors that implement Source() string or StackTrace() string override the
// source tag and the captured call trace for their level.
func NewExceptionDetail(err error, source string) *ExceptionDetail {
	if err == nil {
		return nil
	}
	return buildDetail(err, source, callerTrace(3), time.Now().UTC())
}

func buildDetail(err error, source, trace string, at time.Time) *ExceptionDetail {
	if s, ok := err.(interface{ Source() string }); ok && s.Source() != "" {
		source = s.Source()
	}
	if st, ok := err.(interface{ StackTrace() string }); ok && st.StackTrace() != "" {
		trace = st.StackTrace()
	}
	detail := &ExceptionDetail{
		Type:       fmt.Sprintf("%T", err),
		Message:    err.Error(),
		StackTrace: trace,
		Source:     source,
		CapturedAt: at,
	}
	if inner := errors.Unwrap(err); inner != nil {
		detail.Inner = buildDetail(inner, source, noStackTrace, at)
	}
	return detail
}

// ShortType returns the unqualified type name.
func (d *ExceptionDetail) ShortType() string {
	if d == nil {
		return ""
	}
	t := strings.TrimPrefix(d.Type, "*")
	if i := strings.LastIndex(t, "."); i >= 0 {
		return t[i+1:]
	}
	return t
}

// Depth returns the number of entries in the chain.
func (d *ExceptionDetail) Depth() int {
	n := 0
	for cur := d; cur != nil; cur = cur.Inner {
		n++
	}
	return n
}

// FullDisplay renders the whole chain for reports and logs.
func (d *ExceptionDetail) FullDisplay() string {
	var sb strings.Builder
	depth := 0
	for cur := d; cur != nil; cur = cur.Inner {
		if depth > 0 {
			fmt.Fprintf(&sb, "\n---- Inner error (depth %d) ----\n", depth)
		}
		fmt.Fprintf(&sb, "Type    : %s\n", cur.Type)
		fmt.Fprintf(&sb, "Message : %s\n", cur.Message)
		if cur.Source != "" {
			fmt.Fprintf(&sb, "Source  : %s\n", cur.Source)
		}
		fmt.Fprintf(&sb, "Captured: %s\n\n", cur.CapturedAt.Format("15:04:05.000"))
		sb.WriteString("Stack Trace:\n")
		sb.WriteString(cur.StackTrace)
		sb.WriteString("\n")
		depth++
	}
	return sb.String()
}

func callerTrace(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return noStackTrace
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}
