package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrSchedulerBusy is returned when the single job slot is taken.
	ErrSchedulerBusy = errors.New("another job is running")
	// ErrSequenceNotFound is returned by stores for unknown sequence ids.
	ErrSequenceNotFound = errors.New("sequence not found")
	// ErrJobNotFound is returned by stores for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

const (
	DefaultSchedulerWarmup   = 5 * time.Second
	DefaultSchedulerInterval = 30 * time.Second
)

// Store abstracts the persistence layer used by the scheduler.
type Store interface {
	ListJobs(ctx context.Context, status *JobStatus) ([]*ScheduledJob, error)
	GetJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateJob(ctx context.Context, job *ScheduledJob) error
	LoadSequenceActions(ctx context.Context, sequenceID string) ([]Action, error)
	SaveSession(ctx context.Context, rec SessionRecord) error
	PruneSessions(ctx context.Context, jobID string) error
}

// Player replays a list of actions and returns the resulting session.
type Player interface {
	Play(ctx context.Context, actions []Action, opts PlayOptions) (*TestSession, error)
}

// SchedulerListener receives scheduler notifications.
type SchedulerListener interface {
	SchedulerLog(line string)
	JobFinished(ev JobEvent)
}

// SchedulerListenerFuncs adapts plain functions to SchedulerListener. Nil fields are ignored.
type SchedulerListenerFuncs struct {
	OnLog         func(line string)
	OnJobFinished func(ev JobEvent)
}

func (f SchedulerListenerFuncs) SchedulerLog(line string) {
	if f.OnLog != nil {
		f.OnLog(line)
	}
}

func (f SchedulerListenerFuncs) JobFinished(ev JobEvent) {
	if f.OnJobFinished != nil {
		f.OnJobFinished(ev)
	}
}

// SchedulerOptions tunes the scheduler cadence.
type SchedulerOptions struct {
	Location *time.Location
	Warmup   time.Duration
	Interval time.Duration
	// Now overrides the clock used for due checks and bookkeeping.
	Now func() time.Time
}

// Scheduler polls for due jobs and replays them one at a time.
type Scheduler struct {
	store    Store
	player   Player
	logger   *slog.Logger
	location *time.Location
	warmup   time.Duration
	interval time.Duration
	now      func() time.Time

	// slot admits at most one due-job batch or manual run.
	slot *semaphore.Weighted

	mu     sync.Mutex
	cron   *cron.Cron
	stopCh chan struct{}
	ctx    context.Context

	listenerMu sync.RWMutex
	listeners  []SchedulerListener
}

// NewScheduler constructs a scheduler with the given dependencies.
func NewScheduler(store Store, player Player, logger *slog.Logger, opts SchedulerOptions) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Warmup <= 0 {
		opts.Warmup = DefaultSchedulerWarmup
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSchedulerInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:    store,
		player:   player,
		logger:   logger,
		location: opts.Location,
		warmup:   opts.Warmup,
		interval: opts.Interval,
		now:      opts.Now,
		slot:     semaphore.NewWeighted(1),
	}
}

// Location returns the zone used for daily schedules.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// AddListener registers l for log lines and job-finished events.
func (s *Scheduler) AddListener(l SchedulerListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start begins the polling loop. ctx is used for job runs started by the timer.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	s.ctx = ctx
	s.stopCh = make(chan struct{})
	c := cron.New(cron.WithLocation(s.location))
	c.Schedule(pollSchedule{first: time.Now().Add(s.warmup), every: s.interval}, cron.FuncJob(s.tick))
	c.Start()
	s.cron = c
	s.emit(fmt.Sprintf("scheduler started (checking every %s)", s.interval))
}

// Stop halts the timer and asks a running batch to stop after its current job.
// The returned context is done once in-flight timer callbacks have returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	close(s.stopCh)
	stopCtx := s.cron.Stop()
	s.cron = nil
	s.emit("scheduler stopped")
	return stopCtx
}

// IsRunning reports whether the polling loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Scheduler) tick() {
	ran, err := s.CheckDueJobs(s.ctxOrBackground())
	if err != nil {
		if errors.Is(err, ErrSchedulerBusy) {
			s.logger.Debug("due-job check skipped, a job is still running")
			return
		}
		s.logger.Error("due-job check", "err", err)
		return
	}
	if ran > 0 {
		s.logger.Debug("due-job check finished", "jobs_run", ran)
	}
}

// CheckDueJobs runs every active job whose next run time has passed, sequentially.
// It returns ErrSchedulerBusy without waiting when another batch or manual run holds the slot.
func (s *Scheduler) CheckDueJobs(ctx context.Context) (int, error) {
	if !s.slot.TryAcquire(1) {
		return 0, ErrSchedulerBusy
	}
	defer s.slot.Release(1)

	stop := s.stopSignal()
	active := JobStatusActive
	jobs, err := s.store.ListJobs(ctx, &active)
	if err != nil {
		s.emit(fmt.Sprintf("scheduler error: %v", err))
		return 0, fmt.Errorf("list active jobs: %w", err)
	}
	now := s.now()
	ran := 0
	for _, job := range jobs {
		if !job.IsDue(now) {
			continue
		}
		if stopped(stop) || ctx.Err() != nil {
			break
		}
		s.runJob(ctx, job)
		ran++
	}
	return ran, nil
}

// RunJobNow runs the job immediately, bypassing the due-time filter.
func (s *Scheduler) RunJobNow(ctx context.Context, jobID string) (JobEvent, error) {
	if !s.slot.TryAcquire(1) {
		s.emit("another job is running, try again shortly")
		return JobEvent{}, ErrSchedulerBusy
	}
	defer s.slot.Release(1)
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return JobEvent{}, err
	}
	return s.runJob(ctx, job), nil
}

// StartJobNow claims the job slot and runs the job in the background.
func (s *Scheduler) StartJobNow(ctx context.Context, jobID string) error {
	if !s.slot.TryAcquire(1) {
		s.emit("another job is running, try again shortly")
		return ErrSchedulerBusy
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.slot.Release(1)
		return err
	}
	go func() {
		defer s.slot.Release(1)
		s.runJob(s.ctxOrBackground(), job)
	}()
	return nil
}

// SetJobStatus pauses or resumes a job, recomputing its next run on reactivation.
func (s *Scheduler) SetJobStatus(ctx context.Context, jobID string, status JobStatus) (*ScheduledJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.SetStatus(status, s.now(), s.location)
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	return job, nil
}

func (s *Scheduler) runJob(ctx context.Context, job *ScheduledJob) (ev JobEvent) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("job panicked: %v", r)
			s.logger.Error("job run panic", "job_id", job.ID, "panic", r)
			ev = s.finishJob(ctx, job, nil, msg, false)
		}
	}()

	actions, err := s.store.LoadSequenceActions(ctx, job.SequenceID)
	if err != nil {
		msg := fmt.Sprintf("load sequence %s: %v", job.SequenceID, err)
		s.emit(fmt.Sprintf("job '%s' failed: %s", job.Name, msg))
		return s.finishJob(ctx, job, nil, msg, errors.Is(err, ErrSequenceNotFound))
	}
	if len(actions) == 0 {
		s.emit(fmt.Sprintf("job '%s': sequence %s is empty, skipping", job.Name, job.SequenceID))
		return s.finishJob(ctx, job, nil, "empty sequence", false)
	}

	s.emit(fmt.Sprintf("starting job '%s' (sequence %s)", job.Name, job.SequenceID))
	session, err := s.player.Play(ctx, actions, job.PlayOptions())
	if err != nil {
		msg := fmt.Sprintf("playback failed: %v", err)
		s.emit(fmt.Sprintf("job '%s' failed: %s", job.Name, msg))
		return s.finishJob(ctx, job, nil, msg, false)
	}

	// Shutdown cancels ctx mid-run; the finished session is still recorded.
	ctx = context.WithoutCancel(ctx)
	sequenceID, jobID := job.SequenceID, job.ID
	if err := s.store.SaveSession(ctx, SessionRecord{
		Session:    session,
		SequenceID: &sequenceID,
		JobID:      &jobID,
		Trigger:    JobTrigger(job.ID),
	}); err != nil {
		s.logger.Warn("save job session", "job_id", job.ID, "session_id", session.ID, "err", err)
	}

	summary := session.Summary()
	outcome := "finished"
	if session.FailureCount() > 0 {
		outcome = "finished with failures"
	}
	s.emit(fmt.Sprintf("job '%s' %s: %s", job.Name, outcome, summary))
	return s.finishJob(ctx, job, session, summary, false)
}

// finishJob records the attempt; failed marks the job as permanently failed.
func (s *Scheduler) finishJob(ctx context.Context, job *ScheduledJob, session *TestSession, summary string, failed bool) JobEvent {
	ctx = context.WithoutCancel(ctx)
	job.MarkRun(s.now(), summary, s.location)
	if failed {
		job.Status = JobStatusFailed
	}
	s.saveJob(ctx, job)
	if err := s.store.PruneSessions(ctx, job.ID); err != nil {
		s.logger.Warn("prune job sessions", "job_id", job.ID, "err", err)
	}
	ev := JobEvent{Job: job, Session: session, Message: summary}
	for _, l := range s.snapshotListeners() {
		l.JobFinished(ev)
	}
	return ev
}

func (s *Scheduler) saveJob(ctx context.Context, job *ScheduledJob) {
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.Error("update job after run", "job_id", job.ID, "err", err)
	}
}

func (s *Scheduler) emit(line string) {
	s.logger.Info(line)
	stamped := fmt.Sprintf("[%s] %s", s.now().In(s.location).Format("15:04:05"), line)
	for _, l := range s.snapshotListeners() {
		l.SchedulerLog(stamped)
	}
}

func (s *Scheduler) snapshotListeners() []SchedulerListener {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	return append([]SchedulerListener(nil), s.listeners...)
}

func (s *Scheduler) stopSignal() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	return s.stopCh
}

func stopped(ch chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Scheduler) ctxOrBackground() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// pollSchedule fires once at first and then every interval after each fire.
type pollSchedule struct {
	first time.Time
	every time.Duration
}

func (p pollSchedule) Next(t time.Time) time.Time {
	if t.Before(p.first) {
		return p.first
	}
	return t.Add(p.every)
}
