package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
)

// SeedCompleted stores a completed single-product run for userID: the run is
// walked through preprocessing to completed and the product and result are
// linked to it. A zero ClassifiedAt becomes now.
func SeedCompleted(t *testing.T, db service.Storage, userID string, input model.ProductInput, result model.ClassificationResult) (model.Product, model.ClassificationResult) {
	t.Helper()
	ctx := context.Background()

	run, err := db.CreateRun(ctx, userID, model.RunTypeSingle, input)
	require.NoError(t, err)
	require.NoError(t, db.UpdateRunStatus(ctx, run.ID, model.RunPreprocessing))

	product := model.Product{UserID: userID, RunID: run.ID, ProductInput: input}
	require.NoError(t, db.SaveProduct(ctx, &product))

	result.ID = 0
	result.ProductID = product.ID
	result.RunID = run.ID
	if result.ClassifiedAt.IsZero() {
		result.ClassifiedAt = time.Now().UTC()
	}
	require.NoError(t, db.SaveClassificationResult(ctx, &result))
	require.NoError(t, db.UpdateRunStatus(ctx, run.ID, model.RunCompleted))
	return product, result
}
