package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
)

// CreateRun records a new classification run in the created state.
func (s *SQLiteStorage) CreateRun(ctx context.Context, userID string, runType model.RunType, input model.ProductInput) (*model.ClassificationRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateRunType(runType); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run input: %w", err)
	}

	now := time.Now().UTC()
	run := &model.ClassificationRun{
		UserID:    userID,
		Type:      runType,
		Status:    model.RunCreated,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.inTx(ctx, func(q queryable) error {
		res, execErr := q.ExecContext(ctx, `
			INSERT INTO classification_runs (user_id, run_type, status, input, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, userID, runType, run.Status, string(encoded), now, now)
		if execErr != nil {
			return fmt.Errorf("failed to create run: %w", execErr)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("failed to get run id: %w", idErr)
		}
		run.ID = id
		return insertStatusChange(ctx, q, id, "", run.Status, now)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id int64) (*model.ClassificationRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, run_type, status, input, created_at, updated_at
		FROM classification_runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, common.ErrNotFound)
	}
	return run, err
}

// ListRuns returns a user's runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, userID string, filter service.RunFilter) ([]model.ClassificationRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, run_type, status, input, created_at, updated_at
		FROM classification_runs
		WHERE user_id = ?`
	args := []any{userID}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.ClassificationRun
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus moves a run to a new status and records the change in the
// audit trail. Transitions not allowed by the run state machine are rejected.
func (s *SQLiteStorage) UpdateRunStatus(ctx context.Context, runID int64, status model.RunStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(runID, "runID"); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	return s.inTx(ctx, func(q queryable) error {
		var current model.RunStatus
		err := q.QueryRowContext(ctx, `SELECT status FROM classification_runs WHERE id = ?`, runID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %d: %w", runID, common.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read run status: %w", err)
		}
		if !model.CanTransition(current, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}

		now := time.Now().UTC()
		if _, err := q.ExecContext(ctx, `
			UPDATE classification_runs SET status = ?, updated_at = ? WHERE id = ?
		`, status, now, runID); err != nil {
			return fmt.Errorf("failed to update run status: %w", err)
		}
		return insertStatusChange(ctx, q, runID, current, status, now)
	})
}

// GetRunHistory returns the status changes of a run in order.
func (s *SQLiteStorage) GetRunHistory(ctx context.Context, runID int64) ([]model.RunStatusChange, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT run_id, from_status, to_status, changed_at
		FROM run_status_history
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.RunStatusChange
	for rows.Next() {
		var c model.RunStatusChange
		if err := rows.Scan(&c.RunID, &c.From, &c.To, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run history: %w", err)
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

// AppendClarificationMessage adds a message to the end of a run's transcript.
func (s *SQLiteStorage) AppendClarificationMessage(ctx context.Context, msg *model.ClarificationMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMessage(msg); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO clarification_messages (run_id, step, type, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.RunID, msg.Step, msg.Type, msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append clarification message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get message id: %w", err)
	}
	msg.ID = id
	return nil
}

// ListClarificationMessages returns a run's transcript in insertion order.
func (s *SQLiteStorage) ListClarificationMessages(ctx context.Context, runID int64) ([]model.ClarificationMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, run_id, step, type, content, created_at
		FROM clarification_messages
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clarification messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.ClarificationMessage
	for rows.Next() {
		var m model.ClarificationMessage
		if err := rows.Scan(&m.ID, &m.RunID, &m.Step, &m.Type, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan clarification message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.ClassificationRun, error) {
	var (
		run   model.ClassificationRun
		input string
	)
	if err := row.Scan(&run.ID, &run.UserID, &run.Type, &run.Status, &input, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(input), &run.Input); err != nil {
		return nil, fmt.Errorf("failed to decode input of run %d: %w", run.ID, err)
	}
	return &run, nil
}

func insertStatusChange(ctx context.Context, q queryable, runID int64, from, to model.RunStatus, at time.Time) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO run_status_history (run_id, from_status, to_status, changed_at)
		VALUES (?, ?, ?, ?)
	`, runID, from, to, at); err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}
	return nil
}
