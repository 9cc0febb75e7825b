package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clickreplay/internal/core"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, sequence_id, job_id, trigger_label, started_at, finished_at, total_actions,
	repeat_count, speed_multiplier, was_cancelled, steps_json, exceptions_json`

// SessionFilter narrows ListSessions. Empty fields match everything.
type SessionFilter struct {
	SequenceID string
	JobID      string
	Limit      int
	Offset     int
}

// SaveSession persists a finished session.
func (s *Store) SaveSession(ctx context.Context, rec core.SessionRecord) error {
	sess := rec.Session
	if sess == nil {
		return errors.New("save session: nil session")
	}
	steps, err := json.Marshal(nonNilSteps(sess.Steps))
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	var exceptions any
	if len(sess.UnhandledExceptions) > 0 {
		data, err := json.Marshal(sess.UnhandledExceptions)
		if err != nil {
			return fmt.Errorf("encode exceptions: %w", err)
		}
		exceptions = string(data)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`, success_count, failure_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, nullableStringPtr(rec.SequenceID), nullableStringPtr(rec.JobID), rec.Trigger,
		formatTime(sess.StartedAt), nullableTime(sess.FinishedAt), sess.TotalActions, sess.RepeatCount,
		sess.SpeedMultiplier, boolInt(sess.WasCancelled), string(steps), exceptions,
		sess.SuccessCount(), sess.FailureCount(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*core.SessionRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]*core.SessionRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE (? = '' OR sequence_id = ?) AND (? = '' OR job_id = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, filter.SequenceID, filter.SequenceID, filter.JobID, filter.JobID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var recs []*core.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return affectedOrNotFound(res, ErrSessionNotFound)
}

// PruneSessions removes a job's sessions beyond the retention limit.
func (s *Store) PruneSessions(ctx context.Context, jobID string) error {
	if s.SessionRetention <= 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE job_id = ? AND id IN (
			SELECT id FROM sessions
			WHERE job_id = ?
			ORDER BY started_at DESC
			LIMIT -1 OFFSET ?
		)
	`, jobID, jobID, s.SessionRetention)
	if err != nil {
		return fmt.Errorf("prune sessions for job %s: %w", jobID, err)
	}
	return nil
}

func scanSession(scanner rowScanner) (*core.SessionRecord, error) {
	var (
		sess       core.TestSession
		sequenceID sql.NullString
		jobID      sql.NullString
		trigger    string
		startedAt  string
		finishedAt sql.NullString
		cancelled  int
		steps      string
		exceptions sql.NullString
	)
	if err := scanner.Scan(&sess.ID, &sequenceID, &jobID, &trigger, &startedAt, &finishedAt,
		&sess.TotalActions, &sess.RepeatCount, &sess.SpeedMultiplier, &cancelled, &steps, &exceptions); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = parseTime(startedAt)
	sess.FinishedAt = parseNullTime(finishedAt)
	sess.WasCancelled = cancelled != 0
	if err := json.Unmarshal([]byte(steps), &sess.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of session %s: %w", sess.ID, err)
	}
	if exceptions.Valid {
		if err := json.Unmarshal([]byte(exceptions.String), &sess.UnhandledExceptions); err != nil {
			return nil, fmt.Errorf("decode exceptions of session %s: %w", sess.ID, err)
		}
	}
	rec := &core.SessionRecord{Session: &sess, Trigger: trigger}
	if sequenceID.Valid {
		rec.SequenceID = &sequenceID.String
	}
	if jobID.Valid {
		rec.JobID = &jobID.String
	}
	return rec, nil
}

func nonNilSteps(steps []core.StepResult) []core.StepResult {
	if steps == nil {
		return []core.StepResult{}
	}
	return steps
}
