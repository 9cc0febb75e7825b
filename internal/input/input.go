// Package input synthesizes pointer and keyboard events.
package input

import (
	"fmt"
	"log/slog"
	"sync"
)

// Button is a physical mouse button.
type Button string

const (
	Left   Button = "left"
	Right  Button = "right"
	Middle Button = "middle"
)

// Key is a named special key.
type Key string

const KeyEnter Key = "enter"

// Injector sends synthetic input to the OS.
type Injector interface {
	MoveTo(x, y int) error
	ButtonDown(b Button) error
	ButtonUp(b Button) error
	KeyPress(k Key) error
	TypeText(text string) error
}

// EventKind names a recorded injector call.
type EventKind string

const (
	EventMove EventKind = "move"
	EventDown EventKind = "down"
	EventUp   EventKind = "up"
	EventKey  EventKind = "key"
	EventText EventKind = "text"
)

// Event is one call made against a Journal.
type Event struct {
	Kind   EventKind `json:"kind"`
	X      int       `json:"x,omitempty"`
	Y      int       `json:"y,omitempty"`
	Button Button    `json:"button,omitempty"`
	Key    Key       `json:"key,omitempty"`
	Text   string    `json:"text,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventMove:
		return fmt.Sprintf("move(%d,%d)", e.X, e.Y)
	case EventDown, EventUp:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Button)
	case EventKey:
		return fmt.Sprintf("key(%s)", e.Key)
	default:
		return fmt.Sprintf("text(%q)", e.Text)
	}
}

// Journal is an Injector that records calls instead of touching the OS.
// It backs the dry-run mode and tests.
type Journal struct {
	mu     sync.Mutex
	events []Event
	logger *slog.Logger
	// Err, when set, is returned by every call and nothing is recorded.
	Err error
}

// NewJournal returns an empty journal. A nil logger disables logging.
func NewJournal(logger *slog.Logger) *Journal {
	return &Journal{logger: logger}
}

func (j *Journal) record(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Err != nil {
		return j.Err
	}
	j.events = append(j.events, e)
	if j.logger != nil {
		j.logger.Debug("dry-run input", "event", e.String())
	}
	return nil
}

func (j *Journal) MoveTo(x, y int) error      { return j.record(Event{Kind: EventMove, X: x, Y: y}) }
func (j *Journal) ButtonDown(b Button) error  { return j.record(Event{Kind: EventDown, Button: b}) }
func (j *Journal) ButtonUp(b Button) error    { return j.record(Event{Kind: EventUp, Button: b}) }
func (j *Journal) KeyPress(k Key) error       { return j.record(Event{Kind: EventKey, Key: k}) }
func (j *Journal) TypeText(text string) error { return j.record(Event{Kind: EventText, Text: text}) }

// Events returns a copy of everything recorded so far.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Event(nil), j.events...)
}

// Reset clears the recorded events.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = nil
}
