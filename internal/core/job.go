package core

import (
	"time"
)

// ScheduleType selects how a job's next run time is computed.
type ScheduleType string

const (
	ScheduleOnce     ScheduleType = "once"
	ScheduleInterval ScheduleType = "interval"
	ScheduleHourly   ScheduleType = "hourly"
	ScheduleDaily    ScheduleType = "daily"
)

// JobStatus describes the lifecycle state of a scheduled job.
type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ScheduledJob is a persisted schedule that replays a sequence.
type ScheduledJob struct {
	ID              string
	Name            string
	SequenceID      string
	ScheduleType    ScheduleType
	Status          JobStatus
	RunAt           *time.Time
	IntervalMins    int
	RepeatCount     int
	SpeedMultiplier float64
	StopOnError     bool
	Screenshots     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastRunAt       *time.Time
	NextRunAt       *time.Time
	RunCount        int
	LastResult      string
}

// PlayOptions returns the playback settings configured on the job.
func (j *ScheduledJob) PlayOptions() PlayOptions {
	return PlayOptions{
		RepeatCount:     j.RepeatCount,
		SpeedMultiplier: j.SpeedMultiplier,
		StopOnError:     j.StopOnError,
		Screenshots:     j.Screenshots,
	}.Normalized()
}

// IsDue reports whether an active job should run at now.
func (j *ScheduledJob) IsDue(now time.Time) bool {
	return j.Status == JobStatusActive && j.NextRunAt != nil && !j.NextRunAt.After(now)
}

// JobEvent is emitted after every job run attempt.
type JobEvent struct {
	Job     *ScheduledJob
	Session *TestSession // nil when the run failed before playback produced a session
	Message string
}
