package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// completedRun creates a run with a product and result at the given confidence.
func completedRun(t *testing.T, s *SQLiteStorage, userID string, confidence float64, at time.Time) (*model.Product, *model.ClassificationResult) {
	t.Helper()
	ctx := context.Background()

	input := model.ProductInput{Name: "Smart Watch", Description: "fitness tracker watch", CountryOfOrigin: "CN"}
	run, err := s.CreateRun(ctx, userID, model.RunTypeSingle, input)
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunPreprocessing))

	product := &model.Product{UserID: userID, RunID: run.ID, ProductInput: input}
	require.NoError(t, s.SaveProduct(ctx, product))

	result := &model.ClassificationResult{
		ProductID:    product.ID,
		RunID:        run.ID,
		HTSCode:      "9102.11.0000",
		Confidence:   confidence,
		ClassifiedAt: at,
		Alternatives: model.Candidates{
			{HTS: "9031.80.8000", Score: 0.62, Description: "Measuring instruments"},
			{HTS: "8517.62.0050", Score: 0.58},
		},
	}
	require.NoError(t, s.SaveClassificationResult(ctx, result))
	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunCompleted))
	return product, result
}

func TestMigrate_Idempotent(t *testing.T) {
	s := createTestStorage(t)
	require.NoError(t, s.Migrate(context.Background()))

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)

	current, latest, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, current)
	assert.Equal(t, current, latest)
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestRuns_Lifecycle(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	cost := 12.5
	input := model.ProductInput{
		Description: "Wireless bluetooth speaker",
		Materials:   []model.Material{{Material: "plastic", Percentage: 80}},
		UnitCost:    &cost,
	}
	run, err := s.CreateRun(ctx, "user-1", model.RunTypeSingle, input)
	require.NoError(t, err)
	assert.Equal(t, model.RunCreated, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, input, got.Input)
	assert.Equal(t, "user-1", got.UserID)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunPreprocessing))
	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunAwaitingClarification))

	err = s.UpdateRunStatus(ctx, run.ID, model.RunCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunReclassifying))
	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunCompleted))

	history, err := s.GetRunHistory(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, model.RunStatus(""), history[0].From)
	assert.Equal(t, model.RunCreated, history[0].To)
	assert.Equal(t, model.RunReclassifying, history[4].From)
	assert.Equal(t, model.RunCompleted, history[4].To)

	_, err = s.GetRun(ctx, 999)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, s.UpdateRunStatus(ctx, 999, model.RunPreprocessing), common.ErrNotFound)
}

func TestRuns_ListFilters(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateRun(ctx, "user-1", model.RunTypeBulk, model.ProductInput{Description: "item"})
		require.NoError(t, err)
	}
	_, err := s.CreateRun(ctx, "user-2", model.RunTypeSingle, model.ProductInput{Description: "other"})
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "user-1", service.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Greater(t, runs[0].ID, runs[1].ID, "newest first")

	require.NoError(t, s.UpdateRunStatus(ctx, runs[0].ID, model.RunPreprocessing))
	filtered, err := s.ListRuns(ctx, "user-1", service.RunFilter{Status: model.RunCreated, Limit: 1})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, runs[1].ID, filtered[0].ID)
}

func TestClarificationMessages_InsertionOrder(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "user-1", model.RunTypeSingle, model.ProductInput{Description: "gadget"})
	require.NoError(t, err)

	contents := []string{"What is it made of?", "Aluminum", "Is it certified?", "No"}
	for i, c := range contents {
		typ := model.MessageQuestion
		if i%2 == 1 {
			typ = model.MessageUserResponse
		}
		msg := &model.ClarificationMessage{RunID: run.ID, Step: model.StepPreprocess, Type: typ, Content: c}
		require.NoError(t, s.AppendClarificationMessage(ctx, msg))
		assert.NotZero(t, msg.ID)
	}

	msgs, err := s.ListClarificationMessages(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, contents[i], m.Content)
	}

	err = s.AppendClarificationMessage(ctx, &model.ClarificationMessage{RunID: run.ID, Step: "bogus", Type: model.MessageQuestion, Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestResults_SaveGetUpdate(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	product, result := completedRun(t, s, "user-1", 0.68, time.Now().UTC())

	got, err := s.GetClassificationResult(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, "9102.11.0000", got.HTSCode)
	assert.InDelta(t, 0.68, got.Confidence, 1e-9)
	require.Len(t, got.Alternatives, 2)
	assert.Equal(t, "9031.80.8000", got.Alternatives[0].HTS)
	assert.Equal(t, "Measuring instruments", got.Alternatives[0].Description)

	byRun, err := s.GetResultByRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, byRun.ID)

	rate := 0.035
	got.HTSCode = "9031.80.8000"
	got.Confidence = 0.62
	got.TariffRate = &rate
	got.Alternatives = model.Candidates{{HTS: "9102.11.0000", Score: 0.68}, {HTS: "8517.62.0050", Score: 0.58}}
	require.NoError(t, s.UpdateClassificationResult(ctx, got))

	updated, err := s.GetClassificationResult(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, "9031.80.8000", updated.HTSCode)
	require.NotNil(t, updated.TariffRate)
	assert.InDelta(t, 0.035, *updated.TariffRate, 1e-9)
	assert.Equal(t, "9102.11.0000", updated.Alternatives[0].HTS)

	p, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Smart Watch", p.Name)

	_, err = s.GetClassificationResult(ctx, 12345)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestResults_ListBelowThreshold(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	p1, r1 := completedRun(t, s, "user-1", 0.55, base)
	p2, r2 := completedRun(t, s, "user-1", 0.79, base.Add(10*time.Minute))
	p3, _ := completedRun(t, s, "user-1", 0.80, base.Add(20*time.Minute))

	results, err := s.ListResultsBelow(ctx, []int64{p1.ID, p2.ID, p3.ID}, 0.8)
	require.NoError(t, err)
	require.Len(t, results, 2, "threshold comparison is strict")
	assert.Equal(t, r2.ID, results[0].ID, "most recently classified first")
	assert.Equal(t, r1.ID, results[1].ID)

	empty, err := s.ListResultsBelow(ctx, nil, 0.8)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestResults_ListBelowThresholdRounding(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name       string
		confidence float64
		want       bool
	}{
		{name: "rounds up to threshold", confidence: 0.79996, want: false},
		{name: "just below after rounding", confidence: 0.79994, want: true},
		{name: "tiny excess over threshold", confidence: 0.80001, want: false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := completedRun(t, s, "user-1", tt.confidence, base.Add(time.Duration(i)*time.Minute))
			results, err := s.ListResultsBelow(ctx, []int64{p.ID}, 0.8)
			require.NoError(t, err)
			assert.Equal(t, tt.want, len(results) == 1)
			assert.Equal(t, confidence.IsException(tt.confidence, 0.8), tt.want)
		})
	}
}

func TestSettings_Threshold(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	th, err := s.GetUserThreshold(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, DefaultThreshold, th, 1e-9)

	require.NoError(t, s.SetUserThreshold(ctx, "user-1", 0.9))
	require.NoError(t, s.SetUserThreshold(ctx, "user-1", 0.85))
	th, err = s.GetUserThreshold(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, th, 1e-9)

	assert.ErrorIs(t, s.SetUserThreshold(ctx, "user-1", 1.5), ErrInvalidThreshold)
}

func TestApprovals_OwnershipAndUpsert(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	_, result := completedRun(t, s, "owner", 0.6, time.Now().UTC())

	err := s.RecordApproval(ctx, &model.ApprovalRecord{ClassificationResultID: result.ID, UserID: "intruder", Approved: true})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = s.GetApproval(ctx, result.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "nothing written on forbidden approval")

	err = s.RecordApproval(ctx, &model.ApprovalRecord{ClassificationResultID: 999, UserID: "owner", Approved: true})
	assert.ErrorIs(t, err, common.ErrNotFound)

	rejected := &model.ApprovalRecord{ClassificationResultID: result.ID, UserID: "owner", Approved: false}
	require.NoError(t, s.RecordApproval(ctx, rejected))
	approved, err := s.ListApprovedResultIDs(ctx, []int64{result.ID})
	require.NoError(t, err)
	assert.False(t, approved[result.ID])

	first := &model.ApprovalRecord{ClassificationResultID: result.ID, UserID: "owner", Approved: true, ChosenHTS: "9102.11.0000", Notes: "checked data sheet"}
	require.NoError(t, s.RecordApproval(ctx, first))
	second := &model.ApprovalRecord{ClassificationResultID: result.ID, UserID: "owner", Approved: true, ChosenHTS: "9102.11.0000"}
	require.NoError(t, s.RecordApproval(ctx, second))
	assert.Equal(t, first.ID, second.ID, "one record per result")

	approved, err = s.ListApprovedResultIDs(ctx, []int64{result.ID, 777})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{result.ID: true}, approved)

	summary, err := s.ApprovedConfidence(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 0.6, summary.AvgConfidence, 1e-9)
}

func TestRecentResultsAndCounts(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, older := completedRun(t, s, "user-1", 0.9, now.Add(-2*time.Hour))
	_, newer := completedRun(t, s, "user-1", 0.7, now.Add(-time.Minute))
	_, err := s.CreateRun(ctx, "user-1", model.RunTypeSingle, model.ProductInput{Description: "pending"})
	require.NoError(t, err)

	recent, err := s.ListRecentResults(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newer.ID, recent[0].ID)
	assert.Equal(t, older.ID, recent[1].ID)

	n, err := s.CountCompletedRuns(ctx, "user-1", now.AddDate(0, -1, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBeginTx_RollbackDiscardsWrites(t *testing.T) {
	s := createTestStorage(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	run, err := tx.CreateRun(ctx, "user-1", model.RunTypeSingle, model.ProductInput{Description: "rolled back"})
	require.NoError(t, err)
	require.NoError(t, tx.UpdateRunStatus(ctx, run.ID, model.RunPreprocessing))
	require.NoError(t, tx.Rollback())

	_, err = s.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.BeginTx(ctx)
	assert.Error(t, err, "nested transactions are rejected")
	assert.Error(t, tx.Migrate(ctx))
	run, err = tx.CreateRun(ctx, "user-1", model.RunTypeSingle, model.ProductInput{Description: "kept"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Input.Description)
}
