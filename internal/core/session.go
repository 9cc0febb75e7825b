package core

import (
	"fmt"
	"time"
)

// StepStatus is the outcome of a single step execution.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// ExecutionMode records how a step was actually executed.
type ExecutionMode string

const (
	ModeElement     ExecutionMode = "element"
	ModeCoordinates ExecutionMode = "coordinates"
)

// StepResult is the immutable outcome of executing one action once.
type StepResult struct {
	StepID         int              `json:"step_id"`
	RepeatIndex    int              `json:"repeat_index"`
	X              int              `json:"x"`
	Y              int              `json:"y"`
	Button         MouseButton      `json:"button,omitempty"`
	Kind           ActionKind       `json:"kind"`
	Text           string           `json:"text,omitempty"`
	Element        *ElementIdentity `json:"element,omitempty"`
	Status         StepStatus       `json:"status"`
	Mode           ExecutionMode    `json:"mode"`
	Duration       time.Duration    `json:"duration"`
	ExecutedAt     time.Time        `json:"executed_at"`
	ScreenshotPath string           `json:"screenshot_path,omitempty"`
	Exception      *ExceptionDetail `json:"exception,omitempty"`
}

func (r StepResult) String() string {
	icon := "-"
	switch r.Status {
	case StepSuccess:
		icon = "OK"
	case StepFailed:
		icon = "FAIL"
	}
	rep := ""
	if r.RepeatIndex > 1 {
		rep = fmt.Sprintf(" [R%d]", r.RepeatIndex)
	}
	var who string
	switch {
	case r.Kind == ActionTypeText:
		who = fmt.Sprintf("TEXT '%s'", DisplayText(r.Text))
	case r.Element != nil:
		who = r.Element.Selector()
	default:
		who = fmt.Sprintf("(%d,%d)", r.X, r.Y)
	}
	errText := ""
	if r.Exception != nil {
		errText = fmt.Sprintf("  -> %s: %s", r.Exception.ShortType(), r.Exception.Message)
	}
	return fmt.Sprintf("%-4s %-11s #%03d%s  %-40s  %dms%s", icon, r.Mode, r.StepID, rep, who, r.Duration.Milliseconds(), errText)
}

// TestSession aggregates the results of one playback run.
type TestSession struct {
	ID                  string             `json:"id"`
	StartedAt           time.Time          `json:"started_at"`
	FinishedAt          *time.Time         `json:"finished_at,omitempty"`
	Steps               []StepResult       `json:"steps"`
	UnhandledExceptions []*ExceptionDetail `json:"unhandled_exceptions,omitempty"`
	TotalActions        int                `json:"total_actions"`
	RepeatCount         int                `json:"repeat_count"`
	SpeedMultiplier     float64            `json:"speed_multiplier"`
	WasCancelled        bool               `json:"was_cancelled"`
}

func (s *TestSession) countStatus(status StepStatus) int {
	n := 0
	for _, step := range s.Steps {
		if step.Status == status {
			n++
		}
	}
	return n
}

func (s *TestSession) countMode(mode ExecutionMode) int {
	n := 0
	for _, step := range s.Steps {
		if step.Mode == mode {
			n++
		}
	}
	return n
}

func (s *TestSession) SuccessCount() int    { return s.countStatus(StepSuccess) }
func (s *TestSession) FailureCount() int    { return s.countStatus(StepFailed) }
func (s *TestSession) ElementSteps() int    { return s.countMode(ModeElement) }
func (s *TestSession) CoordinateSteps() int { return s.countMode(ModeCoordinates) }

// TotalDuration is zero until the session has finished.
func (s *TestSession) TotalDuration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Summary returns the short outcome text stored as a job's last result.
func (s *TestSession) Summary() string {
	return fmt.Sprintf("ok %d / failed %d in %.1fs", s.SuccessCount(), s.FailureCount(), s.TotalDuration().Seconds())
}

// PlayOptions controls one playback run.
type PlayOptions struct {
	SessionID       string
	RepeatCount     int
	SpeedMultiplier float64
	StopOnError     bool
	Screenshots     bool

	// ProcessScope applies to every step that does not carry its own target process.
	ProcessScope *uint32
}

// Normalized returns a copy with repeat count and speed clamped to usable values.
func (o PlayOptions) Normalized() PlayOptions {
	if o.RepeatCount < 1 {
		o.RepeatCount = 1
	}
	if o.SpeedMultiplier <= 0 {
		o.SpeedMultiplier = 1.0
	}
	return o
}
