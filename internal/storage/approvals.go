package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
)

// RecordApproval upserts the approval record for a result. The result must
// belong to a run owned by the approving user; ownership is verified inside
// the same transaction before anything is written.
func (s *SQLiteStorage) RecordApproval(ctx context.Context, approval *model.ApprovalRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateApproval(approval); err != nil {
		return err
	}

	return s.inTx(ctx, func(q queryable) error {
		var owner string
		err := q.QueryRowContext(ctx, `
			SELECT r.user_id
			FROM classification_results cr
			JOIN classification_runs r ON r.id = cr.run_id
			WHERE cr.id = ?
		`, approval.ClassificationResultID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("result %d: %w", approval.ClassificationResultID, common.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to verify result owner: %w", err)
		}
		if owner != approval.UserID {
			return fmt.Errorf("result %d: %w", approval.ClassificationResultID, ErrForbidden)
		}

		if approval.CreatedAt.IsZero() {
			approval.CreatedAt = time.Now().UTC()
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO approvals (classification_result_id, user_id, approved, chosen_hts, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(classification_result_id) DO UPDATE SET
				user_id = excluded.user_id,
				approved = excluded.approved,
				chosen_hts = excluded.chosen_hts,
				notes = excluded.notes,
				created_at = excluded.created_at
		`, approval.ClassificationResultID, approval.UserID, approval.Approved, approval.ChosenHTS,
			approval.Notes, approval.CreatedAt); err != nil {
			return fmt.Errorf("failed to record approval: %w", err)
		}

		return q.QueryRowContext(ctx, `SELECT id FROM approvals WHERE classification_result_id = ?`,
			approval.ClassificationResultID).Scan(&approval.ID)
	})
}

// GetApproval returns the approval record for a result.
func (s *SQLiteStorage) GetApproval(ctx context.Context, resultID int64) (*model.ApprovalRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(resultID, "resultID"); err != nil {
		return nil, err
	}

	var a model.ApprovalRecord
	err := s.q.QueryRowContext(ctx, `
		SELECT id, classification_result_id, user_id, approved, chosen_hts, notes, created_at
		FROM approvals
		WHERE classification_result_id = ?
	`, resultID).Scan(&a.ID, &a.ClassificationResultID, &a.UserID, &a.Approved, &a.ChosenHTS, &a.Notes, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval for result %d: %w", resultID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return &a, nil
}

// ListApprovedResultIDs returns the subset of resultIDs with approved = true.
func (s *SQLiteStorage) ListApprovedResultIDs(ctx context.Context, resultIDs []int64) (map[int64]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	approved := make(map[int64]bool)
	if len(resultIDs) == 0 {
		return approved, nil
	}

	placeholders, args := int64Args(resultIDs)
	rows, err := s.q.QueryContext(ctx, `
		SELECT classification_result_id
		FROM approvals
		WHERE approved = 1 AND classification_result_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approved[id] = true
	}
	return approved, rows.Err()
}

// ApprovedConfidence summarises the confidence of a user's approved results.
func (s *SQLiteStorage) ApprovedConfidence(ctx context.Context, userID string) (service.ApprovalSummary, error) {
	var summary service.ApprovalSummary
	if err := validateContext(ctx); err != nil {
		return summary, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return summary, err
	}

	var avg sql.NullFloat64
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(cr.confidence)
		FROM approvals a
		JOIN classification_results cr ON cr.id = a.classification_result_id
		JOIN classification_runs r ON r.id = cr.run_id
		WHERE a.approved = 1 AND r.user_id = ?
	`, userID).Scan(&summary.Count, &avg)
	if err != nil {
		return summary, fmt.Errorf("failed to summarise approvals: %w", err)
	}
	summary.AvgConfidence = avg.Float64
	return summary, nil
}
