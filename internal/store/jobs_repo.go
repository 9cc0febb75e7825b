package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clickreplay/internal/core"
)

var ErrJobNotFound = core.ErrJobNotFound

const jobColumns = `id, name, sequence_id, schedule_type, status, run_at, interval_mins, repeat_count,
	speed_multiplier, stop_on_error, screenshots, last_run_at, next_run_at, run_count, last_result,
	created_at, updated_at`

func (s *Store) InsertJob(ctx context.Context, job *core.ScheduledJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Name, job.SequenceID, job.ScheduleType, job.Status, nullableTime(job.RunAt),
		job.IntervalMins, job.RepeatCount, job.SpeedMultiplier, boolInt(job.StopOnError), boolInt(job.Screenshots),
		nullableTime(job.LastRunAt), nullableTime(job.NextRunAt), job.RunCount, nullableString(job.LastResult),
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, job *core.ScheduledJob) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs
		SET name = ?, sequence_id = ?, schedule_type = ?, status = ?, run_at = ?, interval_mins = ?,
			repeat_count = ?, speed_multiplier = ?, stop_on_error = ?, screenshots = ?, last_run_at = ?,
			next_run_at = ?, run_count = ?, last_result = ?, updated_at = ?
		WHERE id = ?
	`, job.Name, job.SequenceID, job.ScheduleType, job.Status, nullableTime(job.RunAt), job.IntervalMins,
		job.RepeatCount, job.SpeedMultiplier, boolInt(job.StopOnError), boolInt(job.Screenshots),
		nullableTime(job.LastRunAt), nullableTime(job.NextRunAt), job.RunCount, nullableString(job.LastResult),
		formatTime(job.UpdatedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return affectedOrNotFound(res, ErrJobNotFound)
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return affectedOrNotFound(res, ErrJobNotFound)
}

func (s *Store) GetJob(ctx context.Context, id string) (*core.ScheduledJob, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListJobs returns jobs ordered by next run time, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status *core.JobStatus) ([]*core.ScheduledJob, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status = ?
			ORDER BY next_run_at IS NULL, next_run_at, created_at
		`, *status)
	} else {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			ORDER BY next_run_at IS NULL, next_run_at, created_at
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*core.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(scanner rowScanner) (*core.ScheduledJob, error) {
	var (
		job         core.ScheduledJob
		runAt       sql.NullString
		stopOnError int
		screenshots int
		lastRun     sql.NullString
		nextRun     sql.NullString
		lastResult  sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := scanner.Scan(&job.ID, &job.Name, &job.SequenceID, &job.ScheduleType, &job.Status, &runAt,
		&job.IntervalMins, &job.RepeatCount, &job.SpeedMultiplier, &stopOnError, &screenshots,
		&lastRun, &nextRun, &job.RunCount, &lastResult, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.RunAt = parseNullTime(runAt)
	job.StopOnError = stopOnError != 0
	job.Screenshots = screenshots != 0
	job.LastRunAt = parseNullTime(lastRun)
	job.NextRunAt = parseNullTime(nextRun)
	job.LastResult = lastResult.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}
