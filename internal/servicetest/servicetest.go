// Package servicetest assembles a Service over an in-memory desktop and a
// temporary SQLite store for tests of the outer surfaces.
package servicetest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clickreplay/internal/core"
	"clickreplay/internal/input"
	"clickreplay/internal/playback"
	"clickreplay/internal/service"
	"clickreplay/internal/store"
	"clickreplay/internal/uitree"
)

// AppPID is the process that owns the test window.
const AppPID = 100

// Env is a ready service with handles on its collaborators.
type Env struct {
	Service   *service.Service
	Store     *store.Store
	Engine    *playback.Engine
	Scheduler *core.Scheduler
	Desktop   *uitree.MemDesktop
	Journal   *input.Journal
	Logger    *slog.Logger

	// Button is a clickable element with automation id "ok" at (10,10)-(30,30).
	Button *uitree.MemElement
	// Field is a value-capable edit with automation id "query" at (50,10)-(150,30).
	Field *uitree.MemElement
}

// New builds an Env and registers cleanup that stops playback and the scheduler.
func New(t testing.TB) *Env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), t.TempDir(), 10)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	desktop := uitree.NewMemDesktop()
	win := desktop.AddWindow(AppPID, "app", uitree.Properties{Name: "App", Bounds: uitree.Rect{Width: 200, Height: 200}})
	button := win.Add(uitree.Properties{AutomationID: "ok", Name: "OK", ControlType: "Button",
		Bounds: uitree.Rect{X: 10, Y: 10, Width: 20, Height: 20}})
	field := win.Add(uitree.Properties{AutomationID: "query", ControlType: "Edit",
		Bounds: uitree.Rect{X: 50, Y: 10, Width: 100, Height: 20}}).EnableValue()

	journal := input.NewJournal(logger)
	resolver := playback.NewResolver(desktop, 100*time.Millisecond, 10*time.Millisecond, logger)
	executor := playback.NewExecutor(desktop, resolver, journal, logger, func(time.Duration) {})
	engine := playback.NewEngine(executor, nil, 0, logger)
	scheduler := core.NewScheduler(st, engine, logger, core.SchedulerOptions{Location: time.UTC})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc := service.New(ctx, st, engine, scheduler, logger, service.Options{Inspector: desktop})
	t.Cleanup(func() {
		engine.Stop()
		scheduler.Stop()
		svc.Wait()
	})
	return &Env{
		Service:   svc,
		Store:     st,
		Engine:    engine,
		Scheduler: scheduler,
		Desktop:   desktop,
		Journal:   journal,
		Logger:    logger,
		Button:    button,
		Field:     field,
	}
}

// ClickOK is an element-mode click on the test button.
func ClickOK(delayMs int64) core.Action {
	return core.Action{Kind: core.ActionClick, X: 20, Y: 20, Button: core.ButtonLeft, DelayMs: delayMs,
		Element: &core.ElementIdentity{AutomationID: "ok", ProcessName: "app"}}
}
