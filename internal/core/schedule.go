package core

import (
	"time"
)

// ComputeNextRun returns the next run time of job counted from now.
// Daily runs are placed on the following calendar day in loc.
func ComputeNextRun(job *ScheduledJob, now time.Time, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.Local
	}
	var next time.Time
	switch job.ScheduleType {
	case ScheduleOnce:
		if job.RunAt == nil {
			return nil
		}
		next = *job.RunAt
	case ScheduleInterval:
		next = now.Add(time.Duration(job.IntervalMins) * time.Minute)
	case ScheduleHourly:
		// Relative to the actual run time; drifts by the run duration.
		next = now.Add(time.Hour)
	case ScheduleDaily:
		if job.RunAt == nil {
			next = now.Add(24 * time.Hour)
			break
		}
		local := now.In(loc)
		base := job.RunAt.In(loc)
		next = time.Date(local.Year(), local.Month(), local.Day()+1,
			base.Hour(), base.Minute(), base.Second(), 0, loc)
	default:
		return nil
	}
	next = next.UTC()
	return &next
}

// MarkRun updates the run bookkeeping after an attempt and recomputes NextRunAt.
// Once jobs become completed.
func (j *ScheduledJob) MarkRun(now time.Time, summary string, loc *time.Location) {
	ran := now.UTC()
	j.LastRunAt = &ran
	j.RunCount++
	j.LastResult = summary
	j.NextRunAt = ComputeNextRun(j, now, loc)
	if j.ScheduleType == ScheduleOnce {
		j.Status = JobStatusCompleted
	}
}

// SetStatus changes the job status; reactivation recomputes NextRunAt.
func (j *ScheduledJob) SetStatus(status JobStatus, now time.Time, loc *time.Location) {
	j.Status = status
	if status == JobStatusActive {
		j.NextRunAt = ComputeNextRun(j, now, loc)
	}
}
