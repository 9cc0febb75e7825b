// Package service holds the operations shared by the HTTP and MCP surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"clickreplay/internal/core"
	"clickreplay/internal/launcher"
	"clickreplay/internal/playback"
	"clickreplay/internal/recorder"
	"clickreplay/internal/store"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptySequence = errors.New("sequence has no actions")
)

// Options configures optional collaborators of a Service.
type Options struct {
	// Inspector resolves the element under recorded clicks. Nil records coordinates only.
	Inspector recorder.Inspector
	// Launcher starts applications under test. Nil uses launcher.New.
	Launcher *launcher.Launcher
	Now      func() time.Time
}

// Service wires the store, the playback engine and the scheduler together.
type Service struct {
	store     *store.Store
	engine    *playback.Engine
	scheduler *core.Scheduler
	inspector recorder.Inspector
	launcher  *launcher.Launcher
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
	log       *LogFeed

	baseCtx context.Context
	plays   sync.WaitGroup
}

func New(ctx context.Context, st *store.Store, engine *playback.Engine, scheduler *core.Scheduler, logger *slog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Launcher == nil {
		opts.Launcher = launcher.New(logger)
	}
	feed := NewLogFeed(0)
	scheduler.AddListener(feed)
	return &Service{
		store:     st,
		engine:    engine,
		scheduler: scheduler,
		inspector: opts.Inspector,
		launcher:  opts.Launcher,
		validate:  validator.New(),
		logger:    logger,
		now:       opts.Now,
		log:       feed,
		baseCtx:   ctx,
	}
}

// Location is the zone used for daily schedules and displayed times.
func (s *Service) Location() *time.Location {
	return s.scheduler.Location()
}

// SchedulerLog exposes the scheduler's recent log lines.
func (s *Service) SchedulerLog() *LogFeed {
	return s.log
}

// Wait blocks until background playbacks started by PlaySequence have been saved.
func (s *Service) Wait() {
	s.plays.Wait()
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// SequenceInput creates or replaces a named sequence.
type SequenceInput struct {
	Name        string        `json:"name" validate:"required,max=200"`
	Description string        `json:"description" validate:"max=2000"`
	Actions     []core.Action `json:"actions" validate:"dive"`
}

// SaveSequence stores the sequence under its name, replacing an existing one with the same name.
func (s *Service) SaveSequence(ctx context.Context, in SequenceInput) (*core.Sequence, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, false, err
	}
	seq := &core.Sequence{Name: in.Name, Description: in.Description, Actions: in.Actions}
	created, err := s.store.SaveSequence(ctx, seq)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("sequence saved", "sequence_id", seq.ID, "name", seq.Name, "actions", len(seq.Actions), "created", created)
	return seq, created, nil
}

// UpdateSequence replaces the content of the sequence with the given id.
func (s *Service) UpdateSequence(ctx context.Context, id string, in SequenceInput) (*core.Sequence, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, err
	}
	seq, err := s.store.GetSequence(ctx, id)
	if err != nil {
		return nil, err
	}
	seq.Name = in.Name
	seq.Description = in.Description
	seq.Actions = in.Actions
	if err := s.store.UpdateSequence(ctx, seq); err != nil {
		return nil, err
	}
	return seq, nil
}

func (s *Service) GetSequence(ctx context.Context, id string) (*core.Sequence, error) {
	return s.store.GetSequence(ctx, id)
}

func (s *Service) ListSequences(ctx context.Context) ([]*core.Sequence, error) {
	return s.store.ListSequences(ctx)
}

func (s *Service) DeleteSequence(ctx context.Context, id string) error {
	return s.store.DeleteSequence(ctx, id)
}

// RecordInput turns captured raw input events into a saved sequence.
type RecordInput struct {
	Name             string              `json:"name" validate:"required,max=200"`
	Description      string              `json:"description" validate:"max=2000"`
	AttachedPID      *uint32             `json:"attached_pid"`
	ForceCoordinates bool                `json:"force_coordinates"`
	Events           []recorder.RawEvent `json:"events" validate:"required,min=1,dive"`
}

// RecordSequence replays the raw events through the recorder and saves the result by name.
func (s *Service) RecordSequence(ctx context.Context, in RecordInput) (*core.Sequence, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, err
	}
	actions := recorder.Record(in.Events, recorder.Options{
		AttachedPID:      in.AttachedPID,
		ForceCoordinates: in.ForceCoordinates,
		Inspector:        s.inspector,
	}, s.logger)
	seq, _, err := s.SaveSequence(ctx, SequenceInput{Name: in.Name, Description: in.Description, Actions: actions})
	return seq, err
}

// PlayInput controls a manual playback.
type PlayInput struct {
	RepeatCount     int     `json:"repeat_count" validate:"gte=0,lte=1000"`
	SpeedMultiplier float64 `json:"speed_multiplier" validate:"gte=0,lte=10"`
	StopOnError     bool    `json:"stop_on_error"`
	Screenshots     bool    `json:"screenshots"`
	ProcessScope    *uint32 `json:"process_scope"`
}

// PlaySequence starts playing a sequence in the background and returns the session id.
// The session is persisted with the Manual trigger once playback ends.
func (s *Service) PlaySequence(ctx context.Context, id string, in PlayInput) (string, error) {
	if err := s.check(in); err != nil {
		return "", err
	}
	seq, err := s.store.GetSequence(ctx, id)
	if err != nil {
		return "", err
	}
	if len(seq.Actions) == 0 {
		return "", ErrEmptySequence
	}
	opts := core.PlayOptions{
		SessionID:       core.NewSessionID(),
		RepeatCount:     in.RepeatCount,
		SpeedMultiplier: in.SpeedMultiplier,
		StopOnError:     in.StopOnError,
		Screenshots:     in.Screenshots,
		ProcessScope:    in.ProcessScope,
	}
	run, err := s.engine.Begin(s.baseCtx, seq.Actions, opts)
	if err != nil {
		return "", err
	}

	seqID := seq.ID
	s.plays.Add(1)
	go func() {
		defer s.plays.Done()
		session := run.Execute()
		rec := core.SessionRecord{Session: session, SequenceID: &seqID, Trigger: core.TriggerManual}
		if err := s.store.SaveSession(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn("save session", "session_id", session.ID, "err", err)
		}
	}()
	return run.Session().ID, nil
}

// LaunchInput starts the application under test.
type LaunchInput struct {
	Target string   `json:"target" validate:"required,max=1024"`
	Args   []string `json:"args"`
}

// LaunchApplication starts an application and returns its process id for use
// as a playback process scope.
func (s *Service) LaunchApplication(ctx context.Context, in LaunchInput) (launcher.Result, error) {
	in.Target = strings.TrimSpace(in.Target)
	if err := s.check(in); err != nil {
		return launcher.Result{}, err
	}
	return s.launcher.Launch(ctx, in.Target, in.Args)
}

// PlaybackStatus reports the engine progress.
func (s *Service) PlaybackStatus() playback.Status {
	return s.engine.Status()
}

// StopPlayback cancels the active playback. It reports whether one was running.
func (s *Service) StopPlayback() bool {
	playing := s.engine.IsPlaying()
	s.engine.Stop()
	return playing
}

// JobInput creates or reconfigures a scheduled job.
type JobInput struct {
	Name            string            `json:"name" validate:"required,max=200"`
	SequenceID      string            `json:"sequence_id" validate:"required"`
	ScheduleType    core.ScheduleType `json:"schedule_type" validate:"required,oneof=once interval hourly daily"`
	RunAt           *time.Time        `json:"run_at" validate:"required_if=ScheduleType once"`
	IntervalMins    int               `json:"interval_mins" validate:"gte=0,required_if=ScheduleType interval"`
	RepeatCount     int               `json:"repeat_count" validate:"gte=0,lte=1000"`
	SpeedMultiplier float64           `json:"speed_multiplier" validate:"gte=0,lte=10"`
	StopOnError     bool              `json:"stop_on_error"`
	Screenshots     bool              `json:"screenshots"`
	Paused          bool              `json:"paused"`
}

func (in JobInput) apply(job *core.ScheduledJob) {
	job.Name = in.Name
	job.SequenceID = in.SequenceID
	job.ScheduleType = in.ScheduleType
	job.RunAt = nil
	if in.RunAt != nil {
		at := in.RunAt.UTC()
		job.RunAt = &at
	}
	job.IntervalMins = in.IntervalMins
	opts := core.PlayOptions{RepeatCount: in.RepeatCount, SpeedMultiplier: in.SpeedMultiplier}.Normalized()
	job.RepeatCount = opts.RepeatCount
	job.SpeedMultiplier = opts.SpeedMultiplier
	job.StopOnError = in.StopOnError
	job.Screenshots = in.Screenshots
}

// CreateJob validates the input, checks the sequence exists and computes the first run.
func (s *Service) CreateJob(ctx context.Context, in JobInput) (*core.ScheduledJob, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSequence(ctx, in.SequenceID); err != nil {
		return nil, err
	}
	job := &core.ScheduledJob{ID: core.NewID(), Status: core.JobStatusActive}
	in.apply(job)
	job.NextRunAt = core.ComputeNextRun(job, s.now(), s.Location())
	if in.Paused {
		job.Status = core.JobStatusPaused
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("job created", "job_id", job.ID, "schedule", job.ScheduleType, "next_run_at", job.NextRunAt)
	return job, nil
}

// UpdateJob replaces the configuration of a job and keeps its run history.
// Leaving the job unpaused reactivates it and recomputes the next run.
func (s *Service) UpdateJob(ctx context.Context, id string, in JobInput) (*core.ScheduledJob, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetSequence(ctx, in.SequenceID); err != nil {
		return nil, err
	}
	in.apply(job)
	status := core.JobStatusActive
	if in.Paused {
		status = core.JobStatusPaused
	}
	job.SetStatus(status, s.now(), s.Location())
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*core.ScheduledJob, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, status *core.JobStatus) ([]*core.ScheduledJob, error) {
	return s.store.ListJobs(ctx, status)
}

func (s *Service) DeleteJob(ctx context.Context, id string) error {
	return s.store.DeleteJob(ctx, id)
}

// RunJob starts a job immediately in the background.
// It fails with core.ErrSchedulerBusy while another job or check holds the slot.
func (s *Service) RunJob(ctx context.Context, id string) error {
	return s.scheduler.StartJobNow(ctx, id)
}

func (s *Service) PauseJob(ctx context.Context, id string) (*core.ScheduledJob, error) {
	return s.scheduler.SetJobStatus(ctx, id, core.JobStatusPaused)
}

func (s *Service) ResumeJob(ctx context.Context, id string) (*core.ScheduledJob, error) {
	return s.scheduler.SetJobStatus(ctx, id, core.JobStatusActive)
}

func (s *Service) ListSessions(ctx context.Context, filter store.SessionFilter) ([]*core.SessionRecord, error) {
	return s.store.ListSessions(ctx, filter)
}

func (s *Service) GetSession(ctx context.Context, id string) (*core.SessionRecord, error) {
	return s.store.GetSession(ctx, id)
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.store.DeleteSession(ctx, id)
}

// SchedulerStatus summarizes the scheduler state.
type SchedulerStatus struct {
	Running    bool       `json:"running"`
	Location   string     `json:"location"`
	ActiveJobs int        `json:"active_jobs"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
}

func (s *Service) SchedulerStatus(ctx context.Context) (SchedulerStatus, error) {
	st := SchedulerStatus{Running: s.scheduler.IsRunning(), Location: s.Location().String()}
	active := core.JobStatusActive
	jobs, err := s.store.ListJobs(ctx, &active)
	if err != nil {
		return st, err
	}
	st.ActiveJobs = len(jobs)
	for _, j := range jobs {
		if j.NextRunAt != nil && (st.NextRunAt == nil || j.NextRunAt.Before(*st.NextRunAt)) {
			next := *j.NextRunAt
			st.NextRunAt = &next
		}
	}
	return st, nil
}

// StartScheduler starts the polling loop bound to the service lifetime.
func (s *Service) StartScheduler() {
	s.scheduler.Start(s.baseCtx)
}

func (s *Service) StopScheduler() {
	s.scheduler.Stop()
}
