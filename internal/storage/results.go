package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
)

// exceptionSlack widens the SQL threshold past the rounding IsException applies.
const exceptionSlack = 1e-4

const resultColumns = `cr.id, cr.product_id, cr.run_id, cr.hts_code, cr.confidence, cr.alternate_classification,
	cr.description, cr.tariff_rate, cr.tariff_amount, cr.total_cost, cr.reasoning, cr.classified_at`

// SaveClassificationResult stores a result together with its ordered alternatives.
func (s *SQLiteStorage) SaveClassificationResult(ctx context.Context, result *model.ClassificationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateResult(result); err != nil {
		return err
	}
	if result.ClassifiedAt.IsZero() {
		result.ClassifiedAt = time.Now().UTC()
	}

	return s.inTx(ctx, func(q queryable) error {
		res, err := q.ExecContext(ctx, `
			INSERT INTO classification_results (product_id, run_id, hts_code, confidence, alternate_classification,
				description, tariff_rate, tariff_amount, total_cost, reasoning, classified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, result.ProductID, result.RunID, result.HTSCode, result.Confidence, result.AlternateClassification,
			result.Description, nullFloat(result.TariffRate), nullFloat(result.TariffAmount), nullFloat(result.TotalCost),
			result.Reasoning, result.ClassifiedAt)
		if err != nil {
			return fmt.Errorf("failed to save classification result: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get result id: %w", err)
		}
		result.ID = id
		return replaceCandidates(ctx, q, id, result.Alternatives)
	})
}

// UpdateClassificationResult rewrites the chosen code and alternatives of a result,
// e.g. after an alternative candidate was promoted to primary.
func (s *SQLiteStorage) UpdateClassificationResult(ctx context.Context, result *model.ClassificationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateResult(result); err != nil {
		return err
	}
	if err := validateID(result.ID, "id"); err != nil {
		return err
	}

	return s.inTx(ctx, func(q queryable) error {
		res, err := q.ExecContext(ctx, `
			UPDATE classification_results
			SET hts_code = ?, confidence = ?, alternate_classification = ?, description = ?, tariff_rate = ?,
				tariff_amount = ?, total_cost = ?, reasoning = ?
			WHERE id = ?
		`, result.HTSCode, result.Confidence, result.AlternateClassification, result.Description, nullFloat(result.TariffRate),
			nullFloat(result.TariffAmount), nullFloat(result.TotalCost), result.Reasoning, result.ID)
		if err != nil {
			return fmt.Errorf("failed to update classification result: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("result %d: %w", result.ID, common.ErrNotFound)
		}
		return replaceCandidates(ctx, q, result.ID, result.Alternatives)
	})
}

// GetClassificationResult retrieves a result and its alternatives.
func (s *SQLiteStorage) GetClassificationResult(ctx context.Context, id int64) (*model.ClassificationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}
	return s.getResult(ctx, `SELECT `+resultColumns+` FROM classification_results cr WHERE cr.id = ?`, id)
}

// GetResultByRun retrieves the result a run produced.
func (s *SQLiteStorage) GetResultByRun(ctx context.Context, runID int64) (*model.ClassificationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(runID, "runID"); err != nil {
		return nil, err
	}
	return s.getResult(ctx, `SELECT `+resultColumns+` FROM classification_results cr WHERE cr.run_id = ?`, runID)
}

func (s *SQLiteStorage) getResult(ctx context.Context, query string, arg int64) (*model.ClassificationResult, error) {
	r, err := scanResult(s.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	alts, err := s.loadCandidates(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Alternatives = alts
	return r, nil
}

// ListResultsBelow returns results for the given products whose confidence is
// strictly below threshold, most recently classified first. Alternatives are
// not loaded.
func (s *SQLiteStorage) ListResultsBelow(ctx context.Context, productIDs []int64, threshold float64) ([]model.ClassificationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return nil, nil
	}

	// The SQL bound is loose; confidence.IsException makes the final call so
	// the queue and the classify summary agree at the boundary.
	placeholders, args := int64Args(productIDs)
	args = append(args, threshold+exceptionSlack)
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM classification_results cr
		WHERE cr.product_id IN (`+placeholders+`) AND cr.confidence < ?
		ORDER BY cr.classified_at DESC, cr.id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	results, err := collectResults(rows)
	if err != nil {
		return nil, err
	}
	below := results[:0]
	for _, r := range results {
		if confidence.IsException(r.Confidence, threshold) {
			below = append(below, r)
		}
	}
	return below, nil
}

// ListRecentResults returns a user's latest results across completed runs.
func (s *SQLiteStorage) ListRecentResults(ctx context.Context, userID string, limit int) ([]model.ClassificationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM classification_results cr
		JOIN classification_runs r ON r.id = cr.run_id
		WHERE r.user_id = ? AND r.status = ?
		ORDER BY cr.classified_at DESC, cr.id DESC
		LIMIT ?
	`, userID, model.RunCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent results: %w", err)
	}
	return collectResults(rows)
}

func collectResults(rows *sql.Rows) ([]model.ClassificationResult, error) {
	defer func() { _ = rows.Close() }()

	var results []model.ClassificationResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func scanResult(row rowScanner) (*model.ClassificationResult, error) {
	var (
		r                   model.ClassificationResult
		rate, amount, total sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.ProductID, &r.RunID, &r.HTSCode, &r.Confidence, &r.AlternateClassification,
		&r.Description, &rate, &amount, &total, &r.Reasoning, &r.ClassifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan classification result: %w", err)
	}
	r.TariffRate = floatPtr(rate)
	r.TariffAmount = floatPtr(amount)
	r.TotalCost = floatPtr(total)
	return &r, nil
}

func replaceCandidates(ctx context.Context, q queryable, resultID int64, alts model.Candidates) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM classification_candidates WHERE result_id = ?`, resultID); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}
	for i, c := range alts {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO classification_candidates (result_id, position, hts, score, description, reasoning, tariff_rate)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, resultID, i, c.HTS, c.Score, c.Description, c.Reasoning, nullFloat(c.TariffRate)); err != nil {
			return fmt.Errorf("failed to save candidate %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) loadCandidates(ctx context.Context, resultID int64) (model.Candidates, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT hts, score, description, reasoning, tariff_rate
		FROM classification_candidates
		WHERE result_id = ?
		ORDER BY position
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cs := model.Candidates{}
	for rows.Next() {
		var (
			c    model.Candidate
			rate sql.NullFloat64
		)
		if err := rows.Scan(&c.HTS, &c.Score, &c.Description, &c.Reasoning, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.TariffRate = floatPtr(rate)
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

func int64Args(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
