// Package playback replays recorded actions against the live UI.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"clickreplay/internal/core"
	"clickreplay/internal/screenshot"
)

// DefaultMaxStepDelay caps the scaled wait before a step.
const DefaultMaxStepDelay = 30 * time.Second

// ErrAlreadyPlaying is returned by Begin and Play while another run is active.
var ErrAlreadyPlaying = errors.New("playback already in progress")

// Listener observes a playback run. Callbacks run synchronously on the
// playback goroutine.
type Listener interface {
	StepCompleted(result core.StepResult)
	PlaybackFinished(session *core.TestSession)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	OnStep     func(result core.StepResult)
	OnFinished func(session *core.TestSession)
}

func (f ListenerFuncs) StepCompleted(result core.StepResult) {
	if f.OnStep != nil {
		f.OnStep(result)
	}
}

func (f ListenerFuncs) PlaybackFinished(session *core.TestSession) {
	if f.OnFinished != nil {
		f.OnFinished(session)
	}
}

// Status is a snapshot of the engine state.
type Status struct {
	Playing   bool   `json:"playing"`
	SessionID string `json:"session_id,omitempty"`
	Completed int    `json:"completed_steps"`
	Planned   int    `json:"planned_steps"`
	Failed    int    `json:"failed_steps"`
}

// Engine runs one playback at a time.
type Engine struct {
	executor *Executor
	capturer screenshot.Capturer
	logger   *slog.Logger
	maxDelay time.Duration

	mu      sync.Mutex
	playing bool
	cancel  context.CancelFunc
	current *core.TestSession

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int
}

// NewEngine builds an engine. capturer may be nil when screenshots are unavailable.
func NewEngine(executor *Executor, capturer screenshot.Capturer, maxDelay time.Duration, logger *slog.Logger) *Engine {
	if maxDelay <= 0 {
		maxDelay = DefaultMaxStepDelay
	}
	return &Engine{
		executor:  executor,
		capturer:  capturer,
		logger:    logger,
		maxDelay:  maxDelay,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function that removes it.
func (e *Engine) Subscribe(l Listener) func() {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	return func() {
		e.listenerMu.Lock()
		defer e.listenerMu.Unlock()
		delete(e.listeners, id)
	}
}

// IsPlaying reports whether a run is active.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Stop requests cancellation of the active run. It does not wait.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Status returns progress of the active run, or of the last one when idle.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{Playing: e.playing}
	if e.current == nil {
		return st
	}
	st.SessionID = e.current.ID
	st.Completed = len(e.current.Steps)
	st.Planned = e.current.TotalActions * e.current.RepeatCount
	st.Failed = e.current.FailureCount()
	return st
}

// Run is a playback that has claimed the engine but not executed yet.
// Execute must be called exactly once to release the claim.
type Run struct {
	engine  *Engine
	ctx     context.Context
	cancel  context.CancelFunc
	session *core.TestSession
	actions []core.Action
	opts    core.PlayOptions
}

// Session returns the session the run fills in.
func (r *Run) Session() *core.TestSession {
	return r.session
}

// Begin claims the engine for actions and returns the pending run. It fails
// with ErrAlreadyPlaying while another run holds the engine.
func (e *Engine) Begin(ctx context.Context, actions []core.Action, opts core.PlayOptions) (*Run, error) {
	opts = opts.Normalized()
	if opts.SessionID == "" {
		opts.SessionID = core.NewSessionID()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		return nil, ErrAlreadyPlaying
	}
	runCtx, cancel := context.WithCancel(ctx)
	session := &core.TestSession{
		ID:              opts.SessionID,
		StartedAt:       time.Now().UTC(),
		Steps:           []core.StepResult{},
		TotalActions:    len(actions),
		RepeatCount:     opts.RepeatCount,
		SpeedMultiplier: opts.SpeedMultiplier,
	}
	e.playing = true
	e.cancel = cancel
	e.current = session
	return &Run{engine: e, ctx: runCtx, cancel: cancel, session: session, actions: actions, opts: opts}, nil
}

// Play replays actions RepeatCount times and blocks until the run ends.
// The finished notification fires exactly once per accepted call.
func (e *Engine) Play(ctx context.Context, actions []core.Action, opts core.PlayOptions) (*core.TestSession, error) {
	run, err := e.Begin(ctx, actions, opts)
	if err != nil {
		return nil, err
	}
	return run.Execute(), nil
}

// Execute replays the run's actions, releases the engine and returns the
// finished session.
func (r *Run) Execute() *core.TestSession {
	e, session := r.engine, r.session
	e.logger.Info("playback started", "session_id", session.ID, "actions", len(r.actions),
		"repeat", r.opts.RepeatCount, "speed", r.opts.SpeedMultiplier)

	defer func() {
		if rec := recover(); rec != nil {
			detail := core.NewExceptionDetail(&panicError{value: rec, stack: string(debug.Stack())}, "engine")
			e.mu.Lock()
			session.UnhandledExceptions = append(session.UnhandledExceptions, detail)
			e.mu.Unlock()
			e.logger.Error("playback panic", "session_id", session.ID, "panic", rec)
		}
		cancelled := r.ctx.Err() != nil
		r.cancel()
		finished := time.Now().UTC()

		e.mu.Lock()
		session.WasCancelled = cancelled
		session.FinishedAt = &finished
		e.playing = false
		e.cancel = nil
		e.mu.Unlock()

		e.logger.Info("playback finished", "session_id", session.ID, "ok", session.SuccessCount(),
			"failed", session.FailureCount(), "cancelled", cancelled)
		for _, l := range e.snapshotListeners() {
			l.PlaybackFinished(session)
		}
	}()

	e.run(r.ctx, session, r.actions, r.opts)
	return session
}

func (e *Engine) run(ctx context.Context, session *core.TestSession, actions []core.Action, opts core.PlayOptions) {
	for r := 1; r <= opts.RepeatCount; r++ {
		for _, action := range actions {
			if ctx.Err() != nil {
				return
			}
			if !e.wait(ctx, e.scaledDelay(action.Delay(), opts.SpeedMultiplier)) {
				return
			}

			result := e.executor.Execute(ctx, action, r, opts.ProcessScope)
			if opts.Screenshots && result.Status == core.StepFailed {
				result.ScreenshotPath = e.capture(action.ID, r)
			}

			e.mu.Lock()
			session.Steps = append(session.Steps, result)
			e.mu.Unlock()
			for _, l := range e.snapshotListeners() {
				l.StepCompleted(result)
			}

			if opts.StopOnError && result.Status == core.StepFailed {
				e.logger.Info("stopping on first error", "session_id", session.ID, "step", action.ID, "repeat", r)
				return
			}
		}
	}
}

func (e *Engine) scaledDelay(d time.Duration, speed float64) time.Duration {
	if d <= 0 {
		return 0
	}
	scaled := time.Duration(float64(d) / speed)
	if scaled > e.maxDelay {
		return e.maxDelay
	}
	return scaled
}

// wait sleeps for d and reports false when ctx ended first.
func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *Engine) capture(stepID, repeat int) string {
	if e.capturer == nil {
		return ""
	}
	path, err := e.capturer.Capture(stepID, repeat)
	if err != nil {
		e.logger.Warn("screenshot failed", "step", stepID, "repeat", repeat, "err", err)
		return ""
	}
	return path
}

func (e *Engine) snapshotListeners() []Listener {
	e.listenerMu.RLock()
	defer e.listenerMu.RUnlock()
	out := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		out = append(out, l)
	}
	return out
}
