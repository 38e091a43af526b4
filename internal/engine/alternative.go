package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/model"
)

// ErrUnknownAlternative is returned when the chosen code is not an alternative.
var ErrUnknownAlternative = errors.New("code is not one of the result's alternatives")

// SelectAlternative promotes the alternative with the given code to primary.
// The previous primary moves to the front of the alternatives and the
// confidence, tariff and reasoning follow the chosen candidate. Selecting the
// current primary returns the result unchanged.
func SelectAlternative(result model.ClassificationResult, hts string, unitCost *float64) (model.ClassificationResult, error) {
	if hts == result.HTSCode {
		return result, nil
	}
	idx := result.Alternatives.Index(hts)
	if idx < 0 {
		return result, fmt.Errorf("%w: %s", ErrUnknownAlternative, hts)
	}

	chosen := result.Alternatives[idx]
	alternatives := make(model.Candidates, 0, len(result.Alternatives))
	alternatives = append(alternatives, result.PrimaryCandidate())
	for i, c := range result.Alternatives {
		if i != idx {
			alternatives = append(alternatives, c)
		}
	}

	out := result
	out.HTSCode = chosen.HTS
	out.Confidence = chosen.Score
	out.Description = chosen.Description
	out.TariffRate = chosen.TariffRate
	out.Reasoning = chosen.Reasoning
	out.Alternatives = alternatives
	out.AlternateClassification = alternatives[0].HTS
	out.ApplyTariff(unitCost)
	return out, nil
}

// Reselect persists a user's choice of an alternative code for a stored result.
func (e *Engine) Reselect(ctx context.Context, userID string, resultID int64, hts string) (*model.ClassificationResult, error) {
	const op = "engine.Reselect"
	if userID == "" {
		return nil, common.E(common.KindUnauthenticated, op, ErrNoUser)
	}

	result, err := e.storage.GetClassificationResult(ctx, resultID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.E(common.KindNotFound, op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	product, err := e.storage.GetProduct(ctx, result.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product.UserID != userID {
		return nil, common.E(common.KindForbidden, op, ErrNotOwner)
	}

	updated, err := SelectAlternative(*result, hts, product.UnitCost)
	if err != nil {
		return nil, common.E(common.KindInvalid, op, err)
	}
	if updated.HTSCode == result.HTSCode {
		return result, nil
	}
	if err := e.storage.UpdateClassificationResult(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to save selection: %w", err)
	}

	e.logger.Info("Alternative selected",
		"result_id", resultID,
		"from", result.HTSCode,
		"to", updated.HTSCode)
	return &updated, nil
}
