package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickreplay/internal/core"
	"clickreplay/internal/input"
	"clickreplay/internal/screenshot"
	"clickreplay/internal/uitree"
)

type recordingListener struct {
	mu       sync.Mutex
	steps    []core.StepResult
	finished int
}

func (l *recordingListener) StepCompleted(r core.StepResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, r)
}

func (l *recordingListener) PlaybackFinished(*core.TestSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished++
}

func (l *recordingListener) finishedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished
}

type fakeCapturer struct {
	err   error
	calls int
}

func (c *fakeCapturer) Capture(stepID, repeat int) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "shot.png", nil
}

func newTestEngine(capturer screenshot.Capturer) (*Engine, *input.Journal) {
	j := input.NewJournal(nil)
	x := newTestExecutor(uitree.NewMemDesktop(), j)
	return NewEngine(x, capturer, 0, discardLogger()), j
}

func okAction(id int) core.Action {
	return core.Action{ID: id, Kind: core.ActionClick, X: id, Y: id}
}

// refusedAction always fails without touching input.
func refusedAction(id int) core.Action {
	return core.Action{ID: id, Kind: core.ActionClick, TargetProcessID: u32(99)}
}

func TestPlayRepeatsStepsInOrder(t *testing.T) {
	e, _ := newTestEngine(nil)
	l := &recordingListener{}
	e.Subscribe(l)

	session, err := e.Play(context.Background(), []core.Action{okAction(1), okAction(2)}, core.PlayOptions{RepeatCount: 3, SpeedMultiplier: 2})
	require.NoError(t, err)

	require.Len(t, session.Steps, 6)
	var order [][2]int
	for _, s := range session.Steps {
		order = append(order, [2]int{s.RepeatIndex, s.StepID})
	}
	assert.Equal(t, [][2]int{{1, 1}, {1, 2}, {2, 1}, {2, 2}, {3, 1}, {3, 2}}, order)
	assert.Equal(t, 6, session.SuccessCount())
	assert.Equal(t, 2, session.TotalActions)
	assert.Equal(t, 3, session.RepeatCount)
	assert.Equal(t, 2.0, session.SpeedMultiplier)
	assert.False(t, session.WasCancelled)
	require.NotNil(t, session.FinishedAt)
	assert.Len(t, session.ID, 8)

	assert.Len(t, l.steps, 6)
	assert.Equal(t, 1, l.finishedCount())
	assert.False(t, e.IsPlaying())

	st := e.Status()
	assert.False(t, st.Playing)
	assert.Equal(t, session.ID, st.SessionID)
	assert.Equal(t, 6, st.Completed)
	assert.Equal(t, 6, st.Planned)
}

func TestPlayStopOnError(t *testing.T) {
	e, _ := newTestEngine(nil)
	l := &recordingListener{}
	e.Subscribe(l)

	actions := []core.Action{okAction(1), refusedAction(2), okAction(3)}
	session, err := e.Play(context.Background(), actions, core.PlayOptions{RepeatCount: 2, StopOnError: true})
	require.NoError(t, err)

	require.Len(t, session.Steps, 2)
	assert.Equal(t, core.StepSuccess, session.Steps[0].Status)
	assert.Equal(t, core.StepFailed, session.Steps[1].Status)
	assert.False(t, session.WasCancelled)
	assert.Equal(t, 1, l.finishedCount())
}

func TestPlayContinuesAfterFailureByDefault(t *testing.T) {
	e, _ := newTestEngine(nil)
	actions := []core.Action{okAction(1), refusedAction(2), okAction(3)}
	session, err := e.Play(context.Background(), actions, core.PlayOptions{RepeatCount: 2})
	require.NoError(t, err)
	assert.Len(t, session.Steps, 6)
	assert.Equal(t, 2, session.FailureCount())
}

func TestPlayStopCancelsDelay(t *testing.T) {
	e, j := newTestEngine(nil)
	l := &recordingListener{}
	e.Subscribe(l)

	actions := []core.Action{okAction(1), {ID: 2, Kind: core.ActionClick, DelayMs: 10_000}}
	time.AfterFunc(50*time.Millisecond, e.Stop)

	start := time.Now()
	session, err := e.Play(context.Background(), actions, core.PlayOptions{RepeatCount: 5})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.True(t, session.WasCancelled)
	assert.Len(t, session.Steps, 1)
	assert.Len(t, j.Events(), 3)
	assert.Equal(t, 1, l.finishedCount())

	// Stop is idempotent and harmless when idle.
	e.Stop()
	e.Stop()
}

func TestPlayParentContextCancel(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := e.Play(ctx, []core.Action{okAction(1)}, core.PlayOptions{})
	require.NoError(t, err)
	assert.True(t, session.WasCancelled)
	assert.Empty(t, session.Steps)
}

func TestPlayRejectsConcurrentRun(t *testing.T) {
	e, _ := newTestEngine(nil)
	l := &recordingListener{}
	e.Subscribe(l)

	done := make(chan *core.TestSession)
	go func() {
		s, _ := e.Play(context.Background(), []core.Action{{ID: 1, Kind: core.ActionClick, DelayMs: 10_000}}, core.PlayOptions{})
		done <- s
	}()
	require.Eventually(t, e.IsPlaying, time.Second, 5*time.Millisecond)
	assert.True(t, e.Status().Playing)

	_, err := e.Play(context.Background(), []core.Action{okAction(1)}, core.PlayOptions{})
	assert.ErrorIs(t, err, ErrAlreadyPlaying)

	e.Stop()
	select {
	case s := <-done:
		assert.True(t, s.WasCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not stop")
	}
	assert.Equal(t, 1, l.finishedCount())
}

func TestBeginClaimsEngineBeforeExecute(t *testing.T) {
	e, j := newTestEngine(nil)
	l := &recordingListener{}
	e.Subscribe(l)

	run, err := e.Begin(context.Background(), []core.Action{okAction(1)}, core.PlayOptions{SessionID: "AB12CD34"})
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", run.Session().ID)
	assert.True(t, e.IsPlaying())
	assert.Equal(t, "AB12CD34", e.Status().SessionID)

	_, err = e.Begin(context.Background(), []core.Action{okAction(2)}, core.PlayOptions{})
	assert.ErrorIs(t, err, ErrAlreadyPlaying)
	_, err = e.Play(context.Background(), []core.Action{okAction(2)}, core.PlayOptions{})
	assert.ErrorIs(t, err, ErrAlreadyPlaying)

	session := run.Execute()
	assert.Same(t, run.Session(), session)
	require.Len(t, session.Steps, 1)
	assert.False(t, e.IsPlaying())
	assert.Equal(t, 1, l.finishedCount())
	assert.Len(t, j.Events(), 3)
}

func TestPlayScreenshotsOnFailure(t *testing.T) {
	capturer := &fakeCapturer{}
	e, _ := newTestEngine(capturer)

	session, err := e.Play(context.Background(), []core.Action{okAction(1), refusedAction(2)}, core.PlayOptions{Screenshots: true})
	require.NoError(t, err)
	require.Len(t, session.Steps, 2)
	assert.Empty(t, session.Steps[0].ScreenshotPath)
	assert.Equal(t, "shot.png", session.Steps[1].ScreenshotPath)
	assert.Equal(t, 1, capturer.calls)

	capturer.err = errors.New("no display")
	session, err = e.Play(context.Background(), []core.Action{refusedAction(2)}, core.PlayOptions{Screenshots: true})
	require.NoError(t, err)
	require.Len(t, session.Steps, 1)
	assert.Equal(t, core.StepFailed, session.Steps[0].Status)
	assert.Empty(t, session.Steps[0].ScreenshotPath)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	e, _ := newTestEngine(nil)
	var steps int
	unsubscribe := e.Subscribe(ListenerFuncs{OnStep: func(core.StepResult) { steps++ }})

	_, err := e.Play(context.Background(), []core.Action{okAction(1)}, core.PlayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, steps)

	unsubscribe()
	_, err = e.Play(context.Background(), []core.Action{okAction(1)}, core.PlayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
}

func TestScaledDelay(t *testing.T) {
	e := NewEngine(nil, nil, 0, discardLogger())
	assert.Equal(t, 5*time.Second, e.scaledDelay(10*time.Second, 2))
	assert.Equal(t, DefaultMaxStepDelay, e.scaledDelay(100*time.Second, 1))
	assert.Equal(t, DefaultMaxStepDelay, e.scaledDelay(10*time.Second, 0.1))
	assert.Zero(t, e.scaledDelay(-time.Second, 1))
}
