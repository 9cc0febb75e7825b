package core

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind describes what a recorded step does.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionTypeText ActionKind = "type_text"
)

// MouseButton is the button used by a click action.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
	ButtonDouble MouseButton = "double"
)

// EnterToken is the reserved token inside typed text that stands for an Enter key press.
const EnterToken = "{ENTER}"

// Action is one recorded interaction step.
type Action struct {
	ID          int         `json:"id"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Kind        ActionKind  `json:"kind" validate:"required,oneof=click type_text"`
	X           int         `json:"x"`
	Y           int         `json:"y"`
	Button      MouseButton `json:"button,omitempty" validate:"omitempty,oneof=left right middle double"`
	Text        string      `json:"text,omitempty"`
	DelayMs     int64       `json:"delay_ms" validate:"gte=0"`
	RecordedAt  time.Time   `json:"recorded_at"`

	// TargetProcessID restricts element search and coordinate validation to one process.
	TargetProcessID *uint32          `json:"target_process_id,omitempty"`
	Element         *ElementIdentity `json:"element,omitempty"`

	// ForceCoordinates disables element-based playback for this step.
	ForceCoordinates bool `json:"force_coordinates,omitempty"`
}

// Delay returns the recorded pause before this action.
func (a Action) Delay() time.Duration {
	return time.Duration(a.DelayMs) * time.Millisecond
}

// UseElementPlayback reports whether the step is replayed through the UI tree.
func (a Action) UseElementPlayback() bool {
	return !a.ForceCoordinates && a.Element.Usable()
}

// Summary returns a one-line description used in listings.
func (a Action) Summary() string {
	switch {
	case a.Kind == ActionTypeText:
		return fmt.Sprintf("#%03d  [TEXT] '%s'  +%dms", a.ID, DisplayText(a.Text), a.DelayMs)
	case a.UseElementPlayback():
		return fmt.Sprintf("#%03d  %-38s  +%dms", a.ID, a.Element.Selector(), a.DelayMs)
	default:
		return fmt.Sprintf("#%03d  [%s] (%d,%d)  +%dms", a.ID, a.Button, a.X, a.Y, a.DelayMs)
	}
}

// DisplayText replaces the Enter token with a printable arrow.
func DisplayText(text string) string {
	return strings.ReplaceAll(text, EnterToken, "↵")
}

// Sequence is a named, reusable list of actions.
type Sequence struct {
	ID          string
	Name        string
	Description string
	Actions     []Action
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TriggerManual labels sessions started by a user.
const TriggerManual = "Manual"

// JobTrigger returns the trigger label for sessions started by a scheduled job.
func JobTrigger(jobID string) string {
	return "Job:" + jobID
}

// SessionRecord is a completed session together with the context it ran in.
type SessionRecord struct {
	Session    *TestSession
	SequenceID *string
	JobID      *string
	Trigger    string
}
