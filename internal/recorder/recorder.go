// Package recorder turns a stream of captured input events into actions.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clickreplay/internal/core"
)

// EventKind distinguishes raw capture events.
type EventKind string

const (
	EventClick EventKind = "click"
	EventKey   EventKind = "key"
)

// RawEvent is one captured mouse click or key press.
type RawEvent struct {
	Kind      EventKind        `json:"kind" validate:"required,oneof=click key"`
	Timestamp time.Time        `json:"timestamp" validate:"required"`
	X         int              `json:"x"`
	Y         int              `json:"y"`
	Button    core.MouseButton `json:"button,omitempty" validate:"omitempty,oneof=left right middle double"`
	ProcessID uint32           `json:"process_id"`
	Text      string           `json:"text,omitempty"`
	Enter     bool             `json:"enter,omitempty"`
	Backspace bool             `json:"backspace,omitempty"`
}

// Inspector snapshots the element under a screen point.
type Inspector interface {
	InspectAt(x, y int) *core.ElementIdentity
}

// Options configures a recording.
type Options struct {
	// AttachedPID drops events from every other process and scopes the recorded steps.
	AttachedPID      *uint32
	ForceCoordinates bool
	Inspector        Inspector
	// CursorX and CursorY give the position of a text step recorded before any click.
	CursorX, CursorY int
}

// Recorder accumulates actions. It is safe for concurrent use.
type Recorder struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	actions   []core.Action
	nextID    int
	lastClick *time.Time
	typed     []rune
	lastTyped *time.Time
}

// New returns an empty recorder.
func New(opts Options, logger *slog.Logger) *Recorder {
	return &Recorder{opts: opts, logger: logger}
}

// Run consumes events until the channel closes or ctx ends, then flushes any
// pending typed text and returns the recorded actions.
func (r *Recorder) Run(ctx context.Context, events <-chan RawEvent) []core.Action {
	for {
		select {
		case <-ctx.Done():
			r.Flush(time.Now())
			return r.Actions()
		case ev, ok := <-events:
			if !ok {
				r.Flush(time.Now())
				return r.Actions()
			}
			r.Handle(ev)
		}
	}
}

// Handle applies one event.
func (r *Recorder) Handle(ev RawEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.AttachedPID != nil && ev.ProcessID != *r.opts.AttachedPID {
		r.logger.Debug("ignoring event from foreign process", "pid", ev.ProcessID)
		return
	}
	switch ev.Kind {
	case EventClick:
		r.flushLocked(ev.Timestamp)
		r.addClickLocked(ev)
	case EventKey:
		r.keyLocked(ev)
	}
}

func (r *Recorder) keyLocked(ev RawEvent) {
	switch {
	case ev.Backspace:
		if len(r.typed) == 0 {
			return
		}
		if n := len(core.EnterToken); len(r.typed) >= n && string(r.typed[len(r.typed)-n:]) == core.EnterToken {
			r.typed = r.typed[:len(r.typed)-n]
		} else {
			r.typed = r.typed[:len(r.typed)-1]
		}
	case ev.Enter:
		r.typed = append(r.typed, []rune(core.EnterToken)...)
	case ev.Text != "":
		r.typed = append(r.typed, []rune(ev.Text)...)
	default:
		return
	}
	ts := ev.Timestamp
	r.lastTyped = &ts
}

func (r *Recorder) addClickLocked(ev RawEvent) {
	var delay time.Duration
	if r.lastClick != nil {
		delay = ev.Timestamp.Sub(*r.lastClick)
	}
	ts := ev.Timestamp
	r.lastClick = &ts

	button := ev.Button
	if button == "" {
		button = core.ButtonLeft
	}
	r.appendLocked(core.Action{
		Kind:       core.ActionClick,
		X:          ev.X,
		Y:          ev.Y,
		Button:     button,
		DelayMs:    delay.Milliseconds(),
		RecordedAt: ts,
		Element:    r.inspect(ev.X, ev.Y),
	})
}

// Flush turns pending typed text into a text step.
func (r *Recorder) Flush(ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked(ts)
}

func (r *Recorder) flushLocked(ts time.Time) {
	if len(r.typed) == 0 {
		r.lastTyped = nil
		return
	}
	action := core.Action{
		Kind:       core.ActionTypeText,
		Button:     core.ButtonLeft,
		Text:       string(r.typed),
		RecordedAt: ts,
	}
	if r.lastTyped != nil {
		action.RecordedAt = *r.lastTyped
	}
	if r.lastClick != nil {
		action.DelayMs = ts.Sub(*r.lastClick).Milliseconds()
	}
	if n := len(r.actions); n > 0 {
		prev := r.actions[n-1]
		action.X, action.Y, action.Element = prev.X, prev.Y, prev.Element
	} else {
		action.X, action.Y = r.opts.CursorX, r.opts.CursorY
		action.Element = r.inspect(action.X, action.Y)
	}
	r.appendLocked(action)
	r.typed = r.typed[:0]
	r.lastTyped = nil
	r.lastClick = &ts
}

func (r *Recorder) appendLocked(a core.Action) {
	r.nextID++
	a.ID = r.nextID
	a.Name = fmt.Sprintf("Step %d", a.ID)
	a.TargetProcessID = r.opts.AttachedPID
	a.ForceCoordinates = r.opts.ForceCoordinates
	r.actions = append(r.actions, a)
}

// inspect snapshots the element under the point, discarding elements owned by
// a process other than the attached one.
func (r *Recorder) inspect(x, y int) *core.ElementIdentity {
	if r.opts.Inspector == nil {
		return nil
	}
	id := r.opts.Inspector.InspectAt(x, y)
	if id == nil {
		return nil
	}
	if r.opts.AttachedPID != nil && (id.ProcessID == nil || *id.ProcessID != *r.opts.AttachedPID) {
		return nil
	}
	id.AncestorPath = core.TrimAncestors(id.AncestorPath)
	return id
}

// Actions returns a copy of the recorded actions.
func (r *Recorder) Actions() []core.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Action(nil), r.actions...)
}

// Record replays a captured event log through a fresh recorder.
func Record(events []RawEvent, opts Options, logger *slog.Logger) []core.Action {
	r := New(opts, logger)
	for _, ev := range events {
		r.Handle(ev)
	}
	if n := len(events); n > 0 {
		r.Flush(events[n-1].Timestamp)
	}
	return r.Actions()
}
