package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	jobs      map[string]*ScheduledJob
	sequences map[string][]Action
	sessions  []SessionRecord
	pruned    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*ScheduledJob{}, sequences: map[string][]Action{}}
}

func (f *fakeStore) ListJobs(_ context.Context, status *JobStatus) ([]*ScheduledJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ScheduledJob
	for _, j := range f.jobs {
		if status != nil && j.Status != *status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) GetJob(_ context.Context, id string) (*ScheduledJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) UpdateJob(ctx context.Context, job *ScheduledJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeStore) LoadSequenceActions(_ context.Context, id string) ([]Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions, ok := f.sequences[id]
	if !ok {
		return nil, ErrSequenceNotFound
	}
	return actions, nil
}

func (f *fakeStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, rec)
	return nil
}

func (f *fakeStore) PruneSessions(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, jobID)
	return nil
}

func (f *fakeStore) job(id string) *ScheduledJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.jobs[id]
	return &cp
}

type fakePlayer struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	now     time.Time
}

func (p *fakePlayer) Play(_ context.Context, actions []Action, opts PlayOptions) (*TestSession, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	end := p.now.Add(time.Second)
	s := &TestSession{ID: "SESSION1", StartedAt: p.now, FinishedAt: &end, TotalActions: len(actions), RepeatCount: opts.RepeatCount}
	for _, a := range actions {
		s.Steps = append(s.Steps, StepResult{StepID: a.ID, Status: StepSuccess, Mode: ModeCoordinates})
	}
	return s, nil
}

func (p *fakePlayer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var schedNow = time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestScheduler(store Store, player Player) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(store, player, logger, SchedulerOptions{
		Location: time.UTC,
		Now:      func() time.Time { return schedNow },
	})
}

func addJob(store *fakeStore, job ScheduledJob) {
	store.jobs[job.ID] = &job
}

func TestCheckDueJobsRunsOnlyDueActiveJobs(t *testing.T) {
	store := newFakeStore()
	store.sequences["seq"] = []Action{{ID: 1, Kind: ActionClick}, {ID: 2, Kind: ActionClick}}
	past := schedNow.Add(-time.Minute)
	future := schedNow.Add(time.Hour)
	addJob(store, ScheduledJob{ID: "due", Name: "due", SequenceID: "seq", ScheduleType: ScheduleInterval, IntervalMins: 30, Status: JobStatusActive, NextRunAt: &past})
	addJob(store, ScheduledJob{ID: "later", Name: "later", SequenceID: "seq", ScheduleType: ScheduleInterval, IntervalMins: 30, Status: JobStatusActive, NextRunAt: &future})
	addJob(store, ScheduledJob{ID: "paused", Name: "paused", SequenceID: "seq", ScheduleType: ScheduleInterval, IntervalMins: 30, Status: JobStatusPaused, NextRunAt: &past})

	player := &fakePlayer{now: schedNow}
	s := newTestScheduler(store, player)

	var events []JobEvent
	s.AddListener(SchedulerListenerFuncs{OnJobFinished: func(ev JobEvent) { events = append(events, ev) }})

	ran, err := s.CheckDueJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, player.callCount())

	job := store.job("due")
	assert.Equal(t, 1, job.RunCount)
	assert.Equal(t, "ok 2 / failed 0 in 1.0s", job.LastResult)
	require.NotNil(t, job.NextRunAt)
	assert.Equal(t, schedNow.Add(30*time.Minute), *job.NextRunAt)

	require.Len(t, store.sessions, 1)
	assert.Equal(t, "Job:due", store.sessions[0].Trigger)
	require.NotNil(t, store.sessions[0].JobID)
	assert.Equal(t, "due", *store.sessions[0].JobID)
	assert.Equal(t, []string{"due"}, store.pruned)

	require.Len(t, events, 1)
	assert.Equal(t, "due", events[0].Job.ID)
	assert.NotNil(t, events[0].Session)

	assert.Zero(t, store.job("later").RunCount)
	assert.Zero(t, store.job("paused").RunCount)
}

func TestCheckDueJobsSkipsEmptySequence(t *testing.T) {
	store := newFakeStore()
	store.sequences["empty"] = nil
	past := schedNow.Add(-time.Minute)
	addJob(store, ScheduledJob{ID: "j", Name: "j", SequenceID: "empty", ScheduleType: ScheduleHourly, Status: JobStatusActive, NextRunAt: &past})

	player := &fakePlayer{now: schedNow}
	s := newTestScheduler(store, player)

	_, err := s.CheckDueJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, player.callCount())

	job := store.job("j")
	assert.Equal(t, "empty sequence", job.LastResult)
	assert.Equal(t, 1, job.RunCount)
	assert.Equal(t, schedNow.Add(time.Hour), *job.NextRunAt)
	assert.Empty(t, store.sessions)
}

func TestMissingSequenceFailsJob(t *testing.T) {
	store := newFakeStore()
	past := schedNow.Add(-time.Minute)
	addJob(store, ScheduledJob{ID: "j", Name: "j", SequenceID: "gone", ScheduleType: ScheduleHourly, Status: JobStatusActive, NextRunAt: &past})

	player := &fakePlayer{now: schedNow}
	s := newTestScheduler(store, player)

	_, err := s.CheckDueJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, player.callCount())
	assert.Equal(t, JobStatusFailed, store.job("j").Status)
	assert.Contains(t, store.job("j").LastResult, "sequence not found")
}

func TestOnceJobCompletes(t *testing.T) {
	store := newFakeStore()
	store.sequences["seq"] = []Action{{ID: 1}}
	runAt := schedNow.Add(-time.Minute)
	addJob(store, ScheduledJob{ID: "j", Name: "j", SequenceID: "seq", ScheduleType: ScheduleOnce, Status: JobStatusActive, RunAt: &runAt, NextRunAt: &runAt})

	s := newTestScheduler(store, &fakePlayer{now: schedNow})
	ran, err := s.CheckDueJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, JobStatusCompleted, store.job("j").Status)

	ran, err = s.CheckDueJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ran)
}

func TestRunJobNowRejectsWhileBusy(t *testing.T) {
	store := newFakeStore()
	store.sequences["seq"] = []Action{{ID: 1}}
	addJob(store, ScheduledJob{ID: "a", Name: "a", SequenceID: "seq", ScheduleType: ScheduleHourly, Status: JobStatusActive})
	addJob(store, ScheduledJob{ID: "b", Name: "b", SequenceID: "seq", ScheduleType: ScheduleHourly, Status: JobStatusActive})

	player := &fakePlayer{now: schedNow, entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestScheduler(store, player)

	done := make(chan struct{})
	s.AddListener(SchedulerListenerFuncs{OnJobFinished: func(JobEvent) { close(done) }})

	require.NoError(t, s.StartJobNow(context.Background(), "a"))
	<-player.entered

	_, err := s.RunJobNow(context.Background(), "b")
	assert.ErrorIs(t, err, ErrSchedulerBusy)
	assert.ErrorIs(t, s.StartJobNow(context.Background(), "b"), ErrSchedulerBusy)
	_, err = s.CheckDueJobs(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerBusy)

	close(player.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background job did not finish")
	}
	assert.Equal(t, 1, player.callCount())
	assert.Zero(t, store.job("b").RunCount)

	// The slot is released after the listener returns.
	player.entered = nil
	player.release = nil
	require.Eventually(t, func() bool {
		_, err := s.RunJobNow(context.Background(), "b")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, store.job("b").RunCount)
}

func TestRunJobNowUnknownJob(t *testing.T) {
	s := newTestScheduler(newFakeStore(), &fakePlayer{now: schedNow})
	_, err := s.RunJobNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.StartJobNow(context.Background(), "nope"), ErrJobNotFound)

	// Failed lookup must not leak the slot.
	_, err = s.CheckDueJobs(context.Background())
	assert.NoError(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler(newFakeStore(), &fakePlayer{now: schedNow})
	var lines []string
	var mu sync.Mutex
	s.AddListener(SchedulerListenerFuncs{OnLog: func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}})

	assert.False(t, s.IsRunning())
	s.Start(context.Background())
	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	<-s.Stop().Done()
	assert.False(t, s.IsRunning())
	<-s.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "scheduler started")
	assert.Contains(t, lines[1], "scheduler stopped")
}

func TestSchedulerStopEndsBatchAfterCurrentJob(t *testing.T) {
	store := newFakeStore()
	store.sequences["seq"] = []Action{{ID: 1}}
	past := schedNow.Add(-time.Minute)
	addJob(store, ScheduledJob{ID: "a", Name: "a", SequenceID: "seq", ScheduleType: ScheduleHourly, Status: JobStatusActive, NextRunAt: &past})
	addJob(store, ScheduledJob{ID: "b", Name: "b", SequenceID: "seq", ScheduleType: ScheduleHourly, Status: JobStatusActive, NextRunAt: &past})

	player := &fakePlayer{now: schedNow, entered: make(chan struct{}, 2), release: make(chan struct{})}
	s := NewScheduler(store, player, slog.New(slog.NewTextHandler(io.Discard, nil)), SchedulerOptions{
		Location: time.UTC,
		Warmup:   10 * time.Millisecond,
		Interval: time.Hour,
		Now:      func() time.Time { return schedNow },
	})
	s.Start(context.Background())

	select {
	case <-player.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not start the first due job")
	}
	stopCtx := s.Stop()
	close(player.release)

	select {
	case <-stopCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not end after stop")
	}
	assert.Equal(t, 1, player.callCount())
	assert.Equal(t, 1, store.job("a").RunCount+store.job("b").RunCount)
	assert.Len(t, store.sessions, 1)
}

func TestJobRunIsRecordedAfterCancel(t *testing.T) {
	store := newFakeStore()
	store.sequences["seq"] = []Action{{ID: 1}}
	addJob(store, ScheduledJob{ID: "j", Name: "j", SequenceID: "seq", ScheduleType: ScheduleHourly, Status: JobStatusActive})

	player := &fakePlayer{now: schedNow, entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestScheduler(store, player)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan JobEvent, 1)
	go func() {
		ev, err := s.RunJobNow(ctx, "j")
		assert.NoError(t, err)
		done <- ev
	}()
	<-player.entered
	cancel()
	close(player.release)

	select {
	case ev := <-done:
		assert.NotNil(t, ev.Session)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
	require.Len(t, store.sessions, 1)
	assert.Equal(t, "Job:j", store.sessions[0].Trigger)
	assert.Equal(t, 1, store.job("j").RunCount)
	assert.Equal(t, []string{"j"}, store.pruned)
}
