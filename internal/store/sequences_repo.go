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

var ErrSequenceNotFound = core.ErrSequenceNotFound

func (s *Store) InsertSequence(ctx context.Context, seq *core.Sequence) error {
	now := time.Now().UTC()
	seq.CreatedAt = now
	seq.UpdatedAt = now
	actions, err := encodeActions(seq.Actions)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO sequences (id, name, description, actions_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, seq.ID, seq.Name, nullableString(seq.Description), actions, formatTime(seq.CreatedAt), formatTime(seq.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert sequence: %w", err)
	}
	return nil
}

func (s *Store) UpdateSequence(ctx context.Context, seq *core.Sequence) error {
	seq.UpdatedAt = time.Now().UTC()
	actions, err := encodeActions(seq.Actions)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE sequences
		SET name = ?, description = ?, actions_json = ?, updated_at = ?
		WHERE id = ?
	`, seq.Name, nullableString(seq.Description), actions, formatTime(seq.UpdatedAt), seq.ID)
	if err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	return affectedOrNotFound(res, ErrSequenceNotFound)
}

func (s *Store) DeleteSequence(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sequences WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sequence: %w", err)
	}
	return affectedOrNotFound(res, ErrSequenceNotFound)
}

func (s *Store) GetSequence(ctx context.Context, id string) (*core.Sequence, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, description, actions_json, created_at, updated_at
		FROM sequences WHERE id = ?
	`, id)
	seq, err := scanSequence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSequenceNotFound
		}
		return nil, err
	}
	return seq, nil
}

// GetSequenceByName returns the most recently updated sequence with the given name.
func (s *Store) GetSequenceByName(ctx context.Context, name string) (*core.Sequence, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, description, actions_json, created_at, updated_at
		FROM sequences WHERE name = ?
		ORDER BY updated_at DESC LIMIT 1
	`, name)
	seq, err := scanSequence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSequenceNotFound
		}
		return nil, err
	}
	return seq, nil
}

// SaveSequence stores seq under its name, replacing the actions and description
// of an existing sequence with that name. It reports whether a new row was created.
func (s *Store) SaveSequence(ctx context.Context, seq *core.Sequence) (bool, error) {
	existing, err := s.GetSequenceByName(ctx, seq.Name)
	switch {
	case errors.Is(err, ErrSequenceNotFound):
		if seq.ID == "" {
			seq.ID = core.NewID()
		}
		return true, s.InsertSequence(ctx, seq)
	case err != nil:
		return false, err
	}
	seq.ID = existing.ID
	seq.CreatedAt = existing.CreatedAt
	return false, s.UpdateSequence(ctx, seq)
}

// LoadSequenceActions returns the actions of a sequence for playback.
func (s *Store) LoadSequenceActions(ctx context.Context, id string) ([]core.Action, error) {
	seq, err := s.GetSequence(ctx, id)
	if err != nil {
		return nil, err
	}
	return seq.Actions, nil
}

func (s *Store) ListSequences(ctx context.Context) ([]*core.Sequence, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, description, actions_json, created_at, updated_at
		FROM sequences
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sequences: %w", err)
	}
	defer rows.Close()
	var seqs []*core.Sequence
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seqs, nil
}

func scanSequence(scanner rowScanner) (*core.Sequence, error) {
	var (
		seq         core.Sequence
		description sql.NullString
		actions     string
		createdAt   string
		updatedAt   string
	)
	if err := scanner.Scan(&seq.ID, &seq.Name, &description, &actions, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan sequence: %w", err)
	}
	seq.Description = description.String
	if err := json.Unmarshal([]byte(actions), &seq.Actions); err != nil {
		return nil, fmt.Errorf("decode actions of sequence %s: %w", seq.ID, err)
	}
	seq.CreatedAt = parseTime(createdAt)
	seq.UpdatedAt = parseTime(updatedAt)
	return &seq, nil
}

func encodeActions(actions []core.Action) (string, error) {
	if actions == nil {
		actions = []core.Action{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("encode actions: %w", err)
	}
	return string(data), nil
}
