package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clickreplay/internal/core"
	"clickreplay/internal/uitree"
)

const (
	DefaultElementTimeout = 5 * time.Second
	DefaultPollInterval   = 200 * time.Millisecond
)

// ErrElementNotFound matches every ElementNotFoundError.
var ErrElementNotFound = errors.New("element not found")

// ElementNotFoundError reports that no live element matched an identity in time.
type ElementNotFoundError struct {
	Identity *core.ElementIdentity
	Scope    *uint32
	Waited   time.Duration
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("ui element not found: %s in window '%s' after %s",
		e.Identity.Selector(), e.Identity.Location(), e.Waited.Round(time.Millisecond))
	if e.Scope != nil {
		msg += fmt.Sprintf(" (scoped to process %d)", *e.Scope)
	}
	return msg
}

func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }
func (e *ElementNotFoundError) Source() string       { return "resolver" }

// Resolver finds live elements for recorded identities.
type Resolver struct {
	desktop uitree.Desktop
	timeout time.Duration
	poll    time.Duration
	logger  *slog.Logger
}

// NewResolver returns a resolver polling desktop. Non-positive durations use the defaults.
func NewResolver(desktop uitree.Desktop, timeout, poll time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultElementTimeout
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Resolver{desktop: desktop, timeout: timeout, poll: poll, logger: logger}
}

// Find makes one pass over the strategy chain: automation id, then name with
// control type, then class name. The first strategy that matches wins.
func (r *Resolver) Find(id *core.ElementIdentity, scope *uint32) (uitree.Element, bool) {
	if !id.Usable() {
		return nil, false
	}
	roots := r.searchRoots(id, scope)
	for _, cond := range strategies(id) {
		for _, root := range roots {
			el, err := root.FindFirst(cond)
			if err != nil {
				r.logger.Debug("element search failed on root", "selector", id.Selector(), "err", err)
				continue
			}
			if el != nil {
				return el, true
			}
		}
	}
	return nil, false
}

// WaitFor polls Find until it matches or the timeout elapses, then makes one
// final attempt. Cancellation of ctx ends the wait early.
func (r *Resolver) WaitFor(ctx context.Context, id *core.ElementIdentity, scope *uint32) (uitree.Element, error) {
	start := time.Now()
	deadline := start.Add(r.timeout)
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if el, ok := r.Find(id, scope); ok {
			return el, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", id.Selector(), ctx.Err())
		case <-ticker.C:
		}
	}
	if el, ok := r.Find(id, scope); ok {
		return el, nil
	}
	return nil, &ElementNotFoundError{Identity: id, Scope: scope, Waited: time.Since(start)}
}

func strategies(id *core.ElementIdentity) []uitree.Condition {
	var conds []uitree.Condition
	if id.AutomationID != "" {
		conds = append(conds, uitree.Condition{AutomationID: id.AutomationID})
	}
	if id.Name != "" {
		conds = append(conds, uitree.Condition{Name: id.Name, ControlType: id.ControlType})
	}
	if id.ClassName != "" {
		conds = append(conds, uitree.Condition{ClassName: id.ClassName})
	}
	return conds
}

// searchRoots re-queries the live tree on every call. With a scope only that
// process's windows are searched and the desktop fallback is never added.
func (r *Resolver) searchRoots(id *core.ElementIdentity, scope *uint32) []uitree.Element {
	if scope != nil {
		wins, err := r.desktop.TopLevelWindows(*scope)
		if err != nil {
			r.logger.Debug("list scoped windows", "pid", *scope, "err", err)
			return nil
		}
		return wins
	}

	var roots []uitree.Element
	if id.ProcessName != "" {
		wins, err := r.desktop.ProcessWindows(id.ProcessName)
		if err != nil {
			r.logger.Debug("list process windows", "process", id.ProcessName, "err", err)
		}
		roots = append(roots, wins...)
	}
	if root, err := r.desktop.Root(); err == nil && root != nil {
		roots = append(roots, root)
	}
	return roots
}
