package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"clickreplay/internal/core"
	"clickreplay/internal/input"
	"clickreplay/internal/uitree"
)

// ErrPolicyViolation matches every PolicyViolationError.
var ErrPolicyViolation = errors.New("process scope policy violation")

// PolicyViolationError reports a step refused by the process-scope check.
type PolicyViolationError struct {
	StepID int
	Reason string
	Err    error
}

func (e *PolicyViolationError) Error() string {
	msg := fmt.Sprintf("step %d refused: %s", e.StepID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PolicyViolationError) Unwrap() error        { return e.Err }
func (e *PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }
func (e *PolicyViolationError) Source() string       { return "policy" }

// InjectionError wraps a failure reported by the input backend.
type InjectionError struct {
	Op  string
	Err error
}

func (e *InjectionError) Error() string  { return fmt.Sprintf("inject %s: %v", e.Op, e.Err) }
func (e *InjectionError) Unwrap() error  { return e.Err }
func (e *InjectionError) Source() string { return "input" }

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string      { return fmt.Sprintf("panic: %v", e.value) }
func (e *panicError) StackTrace() string { return e.stack }

// Timing between synthetic pointer state changes.
const (
	settleDelay      = 30 * time.Millisecond
	pressDelay       = 50 * time.Millisecond
	doubleClickDelay = 80 * time.Millisecond
	typeDelay        = 40 * time.Millisecond
)

// Executor performs single actions against the live UI.
type Executor struct {
	desktop  uitree.Desktop
	resolver *Resolver
	input    input.Injector
	logger   *slog.Logger
	pause    func(time.Duration)
}

// NewExecutor wires an executor. A nil pause uses time.Sleep.
func NewExecutor(desktop uitree.Desktop, resolver *Resolver, in input.Injector, logger *slog.Logger, pause func(time.Duration)) *Executor {
	if pause == nil {
		pause = time.Sleep
	}
	return &Executor{desktop: desktop, resolver: resolver, input: in, logger: logger, pause: pause}
}

// Execute runs action once and never returns an error: every failure is
// captured in the result. Steps interrupted by ctx are reported as skipped.
func (x *Executor) Execute(ctx context.Context, action core.Action, repeatIndex int, scope *uint32) (result core.StepResult) {
	result = core.StepResult{
		StepID:      action.ID,
		RepeatIndex: repeatIndex,
		X:           action.X,
		Y:           action.Y,
		Button:      action.Button,
		Kind:        action.Kind,
		Text:        action.Text,
		Element:     action.Element,
		Mode:        core.ModeCoordinates,
		ExecutedAt:  time.Now().UTC(),
	}
	if action.UseElementPlayback() {
		result.Mode = core.ModeElement
	}

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
		result.Duration = time.Since(start)
		switch {
		case err == nil:
			result.Status = core.StepSuccess
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			result.Status = core.StepSkipped
			result.Exception = core.NewExceptionDetail(err, "playback")
		default:
			result.Status = core.StepFailed
			result.Exception = core.NewExceptionDetail(err, "playback")
			x.logger.Warn("step failed", "step", action.ID, "repeat", repeatIndex, "mode", result.Mode, "err", err)
		}
	}()

	err = x.execute(ctx, action, scope)
	return result
}

func (x *Executor) execute(ctx context.Context, a core.Action, runScope *uint32) error {
	if a.TargetProcessID != nil && !a.UseElementPlayback() {
		return &PolicyViolationError{
			StepID: a.ID,
			Reason: fmt.Sprintf("target process %d requires element playback but the step has no usable element", *a.TargetProcessID),
		}
	}

	scope := runScope
	if a.TargetProcessID != nil {
		scope = a.TargetProcessID
	}

	if a.UseElementPlayback() {
		el, err := x.resolver.WaitFor(ctx, a.Element, scope)
		if err != nil {
			return err
		}
		if err := el.Focus(); err != nil {
			x.logger.Debug("focus element", "step", a.ID, "err", err)
		}
		if a.Kind == core.ActionTypeText {
			return x.typeIntoElement(el, a.Text)
		}
		return x.clickElement(el, a.Button)
	}

	if scope != nil {
		if err := x.checkPointOwner(a, *scope); err != nil {
			return err
		}
	}
	if a.Kind == core.ActionTypeText {
		if err := x.pointerClick(a.X, a.Y, input.Left, false); err != nil {
			return err
		}
		x.pause(typeDelay)
		return x.typeKeys(a.Text)
	}
	btn, double := pointerButton(a.Button)
	return x.pointerClick(a.X, a.Y, btn, double)
}

func (x *Executor) checkPointOwner(a core.Action, scope uint32) error {
	pid, err := x.desktop.ProcessAtPoint(a.X, a.Y)
	if err != nil {
		return &PolicyViolationError{
			StepID: a.ID,
			Reason: fmt.Sprintf("cannot verify that (%d,%d) belongs to process %d", a.X, a.Y, scope),
			Err:    err,
		}
	}
	if pid != scope {
		return &PolicyViolationError{
			StepID: a.ID,
			Reason: fmt.Sprintf("point (%d,%d) belongs to process %d, not %d", a.X, a.Y, pid, scope),
		}
	}
	return nil
}

func (x *Executor) clickElement(el uitree.Element, button core.MouseButton) error {
	if button == "" {
		button = core.ButtonLeft
	}
	if button != core.ButtonMiddle {
		return el.Click(button)
	}
	props, err := el.Properties()
	if err != nil {
		return fmt.Errorf("read element bounds: %w", err)
	}
	cx, cy := props.Bounds.Center()
	return x.pointerClick(cx, cy, input.Middle, false)
}

func (x *Executor) typeIntoElement(el uitree.Element, text string) error {
	if !strings.Contains(text, core.EnterToken) && el.SupportsValue() {
		return el.SetValue(text)
	}
	return x.typeKeys(text)
}

func (x *Executor) typeKeys(text string) error {
	for _, part := range SplitText(text) {
		if part.Enter {
			if err := x.input.KeyPress(input.KeyEnter); err != nil {
				return &InjectionError{Op: "enter", Err: err}
			}
			continue
		}
		if err := x.input.TypeText(part.Text); err != nil {
			return &InjectionError{Op: "type", Err: err}
		}
	}
	return nil
}

func (x *Executor) pointerClick(px, py int, btn input.Button, double bool) error {
	if err := x.input.MoveTo(px, py); err != nil {
		return &InjectionError{Op: fmt.Sprintf("move to (%d,%d)", px, py), Err: err}
	}
	x.pause(settleDelay)
	presses := 1
	if double {
		presses = 2
	}
	for i := 0; i < presses; i++ {
		if i > 0 {
			x.pause(doubleClickDelay)
		}
		if err := x.input.ButtonDown(btn); err != nil {
			return &InjectionError{Op: string(btn) + " down", Err: err}
		}
		x.pause(pressDelay)
		if err := x.input.ButtonUp(btn); err != nil {
			return &InjectionError{Op: string(btn) + " up", Err: err}
		}
	}
	return nil
}

func pointerButton(b core.MouseButton) (input.Button, bool) {
	switch b {
	case core.ButtonRight:
		return input.Right, false
	case core.ButtonMiddle:
		return input.Middle, false
	case core.ButtonDouble:
		return input.Left, true
	default:
		return input.Left, false
	}
}
