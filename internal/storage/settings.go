package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Veraticus/tariff/internal/model"
)

// DefaultThreshold is returned for users who never configured one.
const DefaultThreshold = 0.8

// GetUserThreshold returns the user's auto-approval confidence threshold.
func (s *SQLiteStorage) GetUserThreshold(ctx context.Context, userID string) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	var threshold float64
	err := s.q.QueryRowContext(ctx, `
		SELECT confidence_threshold FROM user_settings WHERE user_id = ?
	`, userID).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultThreshold, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get threshold: %w", err)
	}
	return threshold, nil
}

// SetUserThreshold stores the user's threshold. Range rules beyond [0, 1]
// are enforced by the caller.
func (s *SQLiteStorage) SetUserThreshold(ctx context.Context, userID string, threshold float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, confidence_threshold, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			confidence_threshold = excluded.confidence_threshold,
			updated_at = excluded.updated_at
	`, userID, threshold, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set threshold: %w", err)
	}
	return nil
}

// CountCompletedRuns counts a user's completed runs created since the given time.
func (s *SQLiteStorage) CountCompletedRuns(ctx context.Context, userID string, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM classification_runs
		WHERE user_id = ? AND status = ? AND created_at >= ?
	`, userID, model.RunCompleted, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed runs: %w", err)
	}
	return n, nil
}
