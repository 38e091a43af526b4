package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff/internal/classifier"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
	"github.com/Veraticus/tariff/internal/storage"
	"github.com/Veraticus/tariff/internal/telemetry"
	"github.com/Veraticus/tariff/internal/testutil"
)

const testUser = "user-1"

func setupEngine(t *testing.T, client classifier.Client, cfg Config) (*Engine, *storage.SQLiteStorage, *telemetry.Metrics) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	metrics := telemetry.New()
	return New(db, client, cfg, WithMetrics(metrics)), db, metrics
}

func watchInput() model.ProductInput {
	return model.ProductInput{
		Name:            "Smart Watch",
		Description:     "Smart watch with heart rate sensor",
		CountryOfOrigin: "CN",
	}
}

func rate(f float64) *float64 {
	return &f
}

func TestEngine_Start_RequiresUser(t *testing.T) {
	client := classifier.NewScriptedClient(classifier.Resolve(model.Candidate{HTS: "8517.62.0050", Score: 0.9}))
	e, db, _ := setupEngine(t, client, DefaultConfig())

	state, outcome, err := e.Start(context.Background(), "  ", model.RunTypeSingle, watchInput())
	require.Error(t, err)
	assert.Nil(t, state)
	assert.Equal(t, OutcomeNone, outcome)
	assert.True(t, common.IsKind(err, common.KindUnauthenticated))
	assert.Empty(t, client.Calls())

	runs, err := db.ListRuns(context.Background(), testUser, service.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_Start_InvalidInput(t *testing.T) {
	client := classifier.NewScriptedClient()
	e, _, _ := setupEngine(t, client, DefaultConfig())

	_, _, err := e.Start(context.Background(), testUser, model.RunTypeSingle, model.ProductInput{Description: " "})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindInvalid))
	assert.Empty(t, client.Calls())
}

func TestEngine_ClarificationTerminates(t *testing.T) {
	tests := []struct {
		name      string
		questions int
	}{
		{name: "resolves immediately", questions: 0},
		{name: "one question", questions: 1},
		{name: "three questions", questions: 3},
		{name: "questions up to the cap", questions: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			steps := make([]classifier.ScriptedStep, 0, tt.questions+1)
			for i := 0; i < tt.questions; i++ {
				steps = append(steps, classifier.Clarify("smart watch", map[string]any{"category": "wearable"}))
			}
			steps = append(steps, classifier.Resolve(
				model.Candidate{HTS: "8517.62.0050", Score: 0.82, Description: "Smart watches"},
				model.Candidate{HTS: "9102.12.8000", Score: 0.41, Description: "Wrist watches"},
			))
			client := classifier.NewScriptedClient(steps...)
			e, db, _ := setupEngine(t, client, DefaultConfig())

			state, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
			require.NoError(t, err)

			answers := make([]string, 0, tt.questions)
			for outcome == OutcomeClarify {
				require.NotEmpty(t, state.Question)
				answer := fmt.Sprintf("answer number %d", len(answers)+1)
				answers = append(answers, answer)
				outcome, err = e.Answer(ctx, state, answer)
				require.NoError(t, err)
			}

			assert.Equal(t, OutcomeResolved, outcome)
			assert.Len(t, answers, tt.questions)
			assert.Equal(t, tt.questions, state.Rounds)

			calls := client.Calls()
			require.Len(t, calls, tt.questions+1)
			last := calls[len(calls)-1].Text
			assert.Contains(t, last, "Smart watch with heart rate sensor")
			for i, a := range answers {
				assert.Contains(t, last, fmt.Sprintf("Clarification %d: %s", i+1, a))
			}

			messages, err := db.ListClarificationMessages(ctx, state.Run.ID)
			require.NoError(t, err)
			require.Len(t, messages, 2*tt.questions)
			for i, m := range messages {
				if i%2 == 0 {
					assert.Equal(t, model.MessageQuestion, m.Type)
				} else {
					assert.Equal(t, model.MessageUserResponse, m.Type)
				}
				wantStep := model.StepParse
				if i < 2 {
					wantStep = model.StepPreprocess
				}
				assert.Equal(t, wantStep, m.Step, "message %d", i)
			}

			run, err := db.GetRun(ctx, state.Run.ID)
			require.NoError(t, err)
			assert.Equal(t, model.RunCompleted, run.Status)
		})
	}
}

func TestEngine_EscalatesAtRoundCap(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Clarify("gadget", nil))
	cfg := DefaultConfig()
	cfg.MaxRounds = 2
	e, db, metrics := setupEngine(t, client, cfg)

	state, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)
	require.Equal(t, OutcomeClarify, outcome)

	outcome, err = e.Answer(ctx, state, "it tells time")
	require.NoError(t, err)
	require.Equal(t, OutcomeClarify, outcome)

	outcome, err = e.Answer(ctx, state, "it is worn on the wrist")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEscalated, outcome)
	assert.Equal(t, model.RunEscalated, state.Status())
	assert.Len(t, client.Calls(), 3)

	run, err := db.GetRun(ctx, state.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunEscalated, run.Status)
	assert.InDelta(t, 1, promtestutil.ToFloat64(metrics.RunOutcomes.WithLabelValues("escalated")), 0)

	_, err = e.Answer(ctx, state, "more detail")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindConflict))
}

func TestEngine_SilentClassifierFailure(t *testing.T) {
	tests := []struct {
		name string
		step classifier.ScriptedStep
	}{
		{name: "error", step: classifier.Fail(errors.New("connection refused"))},
		{name: "null response", step: classifier.ScriptedStep{}},
		{name: "timeout", step: classifier.Fail(context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			client := classifier.NewScriptedClient(
				tt.step,
				classifier.Resolve(model.Candidate{HTS: "8517.62.0050", Score: 0.9}),
			)
			e, db, metrics := setupEngine(t, client, DefaultConfig())

			state, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
			require.Error(t, err)
			require.NotNil(t, state)
			assert.Equal(t, OutcomeUnavailable, outcome)
			assert.Equal(t, common.KindClassifierUnavailable, common.KindOf(err))
			assert.ErrorIs(t, err, common.ErrClassifierUnavailable)

			run, err := db.GetRun(ctx, state.Run.ID)
			require.NoError(t, err)
			assert.Equal(t, model.RunPreprocessing, run.Status)
			messages, err := db.ListClarificationMessages(ctx, state.Run.ID)
			require.NoError(t, err)
			assert.Empty(t, messages)
			assert.True(t, state.Pending())
			assert.InDelta(t, 1, promtestutil.ToFloat64(metrics.ClassifierFailures.WithLabelValues("preprocess")), 0)

			outcome, err = e.Retry(ctx, state)
			require.NoError(t, err)
			assert.Equal(t, OutcomeResolved, outcome)
			assert.Equal(t, "8517.62.0050", state.Result.HTSCode)
		})
	}
}

func TestEngine_FailureDuringReclassifyKeepsState(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(
		classifier.Clarify("watch", nil),
		classifier.Fail(errors.New("bad gateway")),
		classifier.Resolve(model.Candidate{HTS: "8517.62.0050", Score: 0.9}),
	)
	e, db, metrics := setupEngine(t, client, DefaultConfig())

	state, _, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)

	outcome, err := e.Answer(ctx, state, "primarily marketed for fitness tracking")
	require.Error(t, err)
	assert.Equal(t, OutcomeUnavailable, outcome)
	assert.Equal(t, model.RunReclassifying, state.Status())
	assert.InDelta(t, 1, promtestutil.ToFloat64(metrics.ClassifierFailures.WithLabelValues("parse")), 0)

	outcome, err = e.Retry(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, outcome)

	calls := client.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, calls[1].Text, calls[2].Text)

	history, err := db.GetRunHistory(ctx, state.Run.ID)
	require.NoError(t, err)
	statuses := make([]model.RunStatus, 0, len(history))
	for _, h := range history {
		statuses = append(statuses, h.To)
	}
	assert.Equal(t, []model.RunStatus{
		model.RunCreated,
		model.RunPreprocessing,
		model.RunAwaitingClarification,
		model.RunReclassifying,
		model.RunCompleted,
	}, statuses)
}

func TestEngine_Retry_NothingPending(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Clarify("watch", nil))
	e, _, _ := setupEngine(t, client, DefaultConfig())

	state, _, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)

	_, err = e.Retry(ctx, state)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingPending)
	assert.Len(t, client.Calls(), 1)
}

func TestEngine_TurnInFlight(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	client := classifier.NewScriptedClient(
		classifier.Clarify("watch", nil),
		classifier.ScriptedStep{
			Response: &classifier.Response{Candidates: model.Candidates{{HTS: "8517.62.0050", Score: 0.9}}},
			Block:    block,
		},
	)
	e, _, _ := setupEngine(t, client, DefaultConfig())

	state, _, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstOutcome Outcome
	var firstErr error
	go func() {
		defer wg.Done()
		firstOutcome, firstErr = e.Answer(ctx, state, "fitness tracking")
	}()

	require.Eventually(t, func() bool { return len(client.Calls()) == 2 }, time.Second, 5*time.Millisecond)

	_, err = e.Answer(ctx, state, "second answer")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindConflict))
	assert.ErrorIs(t, err, ErrTurnInFlight)

	_, err = e.Retry(ctx, state)
	assert.True(t, common.IsKind(err, common.KindConflict))

	close(block)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, OutcomeResolved, firstOutcome)
	assert.Len(t, client.Calls(), 2)
}

func TestEngine_CallTimeout(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	defer close(block)
	client := classifier.NewScriptedClient(classifier.ScriptedStep{
		Response: &classifier.Response{},
		Block:    block,
	})
	cfg := DefaultConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	e, _, _ := setupEngine(t, client, cfg)

	_, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.Error(t, err)
	assert.Equal(t, OutcomeUnavailable, outcome)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_WirelessSpeakerEndToEnd(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Resolve(model.Candidate{
		HTS:         "8517.62.0050",
		Score:       0.96,
		Description: "Machines for the reception, conversion and transmission of voice or data",
	}))
	e, db, _ := setupEngine(t, client, DefaultConfig())

	state, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, model.ProductInput{Description: "Wireless bluetooth speaker"})
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, outcome)

	require.NotNil(t, state.Result)
	assert.Equal(t, "96%", confidence.Percent(state.Result.Confidence))
	assert.Empty(t, state.Result.AlternateClassification)
	assert.Empty(t, state.Result.Alternatives)
	assert.Nil(t, state.Result.TotalCost)

	run, err := db.GetRun(ctx, state.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)

	stored, err := db.GetResultByRun(ctx, state.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, "8517.62.0050", stored.HTSCode)
	assert.InDelta(t, 0.96, stored.Confidence, 1e-9)

	product, err := db.GetProduct(ctx, stored.ProductID)
	require.NoError(t, err)
	assert.Equal(t, testUser, product.UserID)
	assert.Equal(t, "Wireless bluetooth speaker", product.Description)
}

func TestEngine_ResolutionDefaults(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Resolve(
		model.Candidate{HTS: "", Score: 1.4, TariffRate: rate(0.05)},
		model.Candidate{HTS: "8518.22.0000", Score: -0.2},
		model.Candidate{HTS: "8518.29.8000", Score: 0.3},
	))
	e, _, _ := setupEngine(t, client, DefaultConfig())

	input := watchInput()
	input.UnitCost = rate(200)
	state, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, input)
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, outcome)

	res := state.Result
	assert.Equal(t, model.MissingHTS, res.HTSCode)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Equal(t, "8518.22.0000", res.AlternateClassification)
	require.Len(t, res.Alternatives, 2)
	assert.InDelta(t, 0, res.Alternatives[0].Score, 1e-9)
	assert.Equal(t, "8518.29.8000", res.Alternatives[1].HTS)
	require.NotNil(t, res.TariffAmount)
	assert.InDelta(t, 10, *res.TariffAmount, 1e-9)
	assert.InDelta(t, 210, *res.TotalCost, 1e-9)
}

func TestEngine_Resume(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(
		classifier.Clarify("watch", nil),
		classifier.Clarify("watch", nil),
		classifier.Resolve(model.Candidate{HTS: "8517.62.0050", Score: 0.88}),
	)
	e, _, _ := setupEngine(t, client, DefaultConfig())

	first, _, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)
	_, err = e.Answer(ctx, first, "worn on the wrist")
	require.NoError(t, err)

	resumed, err := e.Resume(ctx, testUser, first.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunAwaitingClarification, resumed.Status())
	assert.Equal(t, 2, resumed.Rounds)
	assert.Equal(t, first.Question, resumed.Question)
	assert.Equal(t, first.Context.Serialize(), resumed.Context.Serialize())
	assert.Len(t, resumed.Transcript, 3)

	outcome, err := e.Answer(ctx, resumed, "made of aluminum and silicone")
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, outcome)

	calls := client.Calls()
	last := calls[len(calls)-1].Text
	assert.Contains(t, last, "Clarification 1: worn on the wrist")
	assert.Contains(t, last, "Clarification 2: made of aluminum and silicone")

	done, err := e.Resume(ctx, testUser, first.Run.ID)
	require.NoError(t, err)
	require.NotNil(t, done.Result)
	require.NotNil(t, done.Product)
	assert.Equal(t, "8517.62.0050", done.Result.HTSCode)
	assert.Empty(t, done.Question)
}

func TestEngine_Resume_Errors(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Clarify("watch", nil))
	e, _, _ := setupEngine(t, client, DefaultConfig())

	state, _, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)

	_, err = e.Resume(ctx, "someone-else", state.Run.ID)
	assert.True(t, common.IsKind(err, common.KindForbidden))

	_, err = e.Resume(ctx, testUser, 9999)
	assert.True(t, common.IsKind(err, common.KindNotFound))

	_, err = e.Resume(ctx, "", state.Run.ID)
	assert.True(t, common.IsKind(err, common.KindUnauthenticated))
}

func TestEngine_Reselect(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Resolve(
		model.Candidate{HTS: "8517.62.0050", Score: 0.72, Description: "Smart watches", TariffRate: rate(0)},
		model.Candidate{HTS: "8518.22.0000", Score: 0.65, Description: "Loudspeakers", TariffRate: rate(0.049)},
	))
	e, db, _ := setupEngine(t, client, DefaultConfig())

	input := watchInput()
	input.UnitCost = rate(100)
	state, _, err := e.Start(ctx, testUser, model.RunTypeSingle, input)
	require.NoError(t, err)

	_, err = e.Reselect(ctx, "intruder", state.Result.ID, "8518.22.0000")
	assert.True(t, common.IsKind(err, common.KindForbidden))

	_, err = e.Reselect(ctx, testUser, state.Result.ID, "0000.00.0000")
	assert.True(t, common.IsKind(err, common.KindInvalid))

	updated, err := e.Reselect(ctx, testUser, state.Result.ID, "8518.22.0000")
	require.NoError(t, err)
	assert.Equal(t, "8518.22.0000", updated.HTSCode)

	stored, err := db.GetClassificationResult(ctx, state.Result.ID)
	require.NoError(t, err)
	assert.Equal(t, "8518.22.0000", stored.HTSCode)
	assert.InDelta(t, 0.65, stored.Confidence, 1e-9)
	assert.Equal(t, "8517.62.0050", stored.AlternateClassification)
	require.Len(t, stored.Alternatives, 1)
	assert.Equal(t, "8517.62.0050", stored.Alternatives[0].HTS)
	assert.Equal(t, "Smart watches", stored.Alternatives[0].Description)
	require.NotNil(t, stored.TotalCost)
	assert.InDelta(t, 104.9, *stored.TotalCost, 1e-9)
	assert.Len(t, client.Calls(), 1)
}

func TestEngine_Converse(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(
		classifier.Clarify("smart watch", map[string]any{"form": "wrist worn"}),
		classifier.Resolve(
			model.Candidate{HTS: "8517.62.0050", Score: 0.78},
			model.Candidate{HTS: "9102.12.8000", Score: 0.61},
		),
	)
	e, db, _ := setupEngine(t, client, DefaultConfig())
	prompter := NewMockPrompter("9102.12.8000", "It is mainly marketed for fitness tracking")

	state, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)

	outcome, err = e.Converse(ctx, state, outcome, prompter)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, outcome)

	questions := prompter.Questions()
	require.Len(t, questions, 1)
	assert.Contains(t, questions[0], "form: wrist worn")
	require.Len(t, prompter.Offered(), 1)

	assert.Equal(t, "9102.12.8000", state.Result.HTSCode)
	stored, err := db.GetClassificationResult(ctx, state.Result.ID)
	require.NoError(t, err)
	assert.Equal(t, "9102.12.8000", stored.HTSCode)
}

func TestEngine_Converse_PrompterGivesUp(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Clarify("watch", nil))
	e, _, _ := setupEngine(t, client, DefaultConfig())
	prompter := NewMockPrompter("")

	state, outcome, err := e.Start(ctx, testUser, model.RunTypeSingle, watchInput())
	require.NoError(t, err)

	outcome, err = e.Converse(ctx, state, outcome, prompter)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMoreAnswers)
	assert.Equal(t, OutcomeClarify, outcome)
	assert.Equal(t, model.RunAwaitingClarification, state.Status())
}

func TestEngine_ClassifyBulk(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Resolve(model.Candidate{HTS: "8518.22.0000", Score: 0.9}))
	cfg := DefaultConfig()
	cfg.Workers = 2
	e, db, _ := setupEngine(t, client, cfg)

	inputs := []model.ProductInput{
		{Name: "Speaker", Description: "Wireless bluetooth speaker"},
		{Name: "Bad", Description: ""},
		{Name: "Soundbar", Description: "TV soundbar"},
		{Name: "Earbuds", Description: "Bluetooth earbuds"},
	}

	var mu sync.Mutex
	var seen []int
	items, err := e.ClassifyBulk(ctx, testUser, inputs, func(item BulkItem) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, item.Index)
	})
	require.NoError(t, err)
	require.Len(t, items, len(inputs))
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, seen)

	summary := Summarize(items)
	assert.Equal(t, BulkSummary{Resolved: 3, Failed: 1}, summary)
	assert.True(t, common.IsKind(items[1].Err, common.KindInvalid))
	for _, i := range []int{0, 2, 3} {
		require.NotNil(t, items[i].Result, "item %d", i)
		assert.Equal(t, "8518.22.0000", items[i].Result.HTSCode)
	}

	runs, err := db.ListRuns(ctx, testUser, service.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
	for _, r := range runs {
		assert.Equal(t, model.RunTypeBulk, r.Type)
	}
}

func TestEngine_ClassifyBulk_LeavesClarificationsPending(t *testing.T) {
	ctx := context.Background()
	client := classifier.NewScriptedClient(classifier.Clarify("gadget", nil))
	e, db, _ := setupEngine(t, client, DefaultConfig())

	items, err := e.ClassifyBulk(ctx, testUser, []model.ProductInput{{Description: "gadget"}}, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, OutcomeClarify, items[0].Outcome)

	runs, err := db.ListRuns(ctx, testUser, service.RunFilter{Status: model.RunAwaitingClarification})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = e.ClassifyBulk(ctx, "", nil, nil)
	assert.True(t, common.IsKind(err, common.KindUnauthenticated))
}

func TestSelectAlternative(t *testing.T) {
	result := model.ClassificationResult{
		HTSCode:                 "8517.62.0050",
		Confidence:              0.72,
		Description:             "Smart watches",
		AlternateClassification: "8518.22.0000",
		Alternatives: model.Candidates{
			{HTS: "8518.22.0000", Score: 0.65, Description: "Loudspeakers", TariffRate: rate(0.049)},
			{HTS: "8543.70.9960", Score: 0.40, Description: "Other electrical machines"},
		},
	}

	swapped, err := SelectAlternative(result, "8518.22.0000", nil)
	require.NoError(t, err)
	assert.Equal(t, "8518.22.0000", swapped.HTSCode)
	assert.InDelta(t, 0.65, swapped.Confidence, 1e-9)
	require.NotNil(t, swapped.TariffRate)
	assert.InDelta(t, 0.049, *swapped.TariffRate, 1e-9)
	require.Len(t, swapped.Alternatives, 2)
	assert.Equal(t, "8517.62.0050", swapped.Alternatives[0].HTS)
	assert.InDelta(t, 0.72, swapped.Alternatives[0].Score, 1e-9)
	assert.Equal(t, "8543.70.9960", swapped.Alternatives[1].HTS)
	assert.Equal(t, "8517.62.0050", swapped.AlternateClassification)

	assert.Equal(t, "8517.62.0050", result.HTSCode, "input must not be modified")
	assert.Equal(t, "8518.22.0000", result.Alternatives[0].HTS)

	same, err := SelectAlternative(result, "8517.62.0050", nil)
	require.NoError(t, err)
	assert.Equal(t, result, same)

	_, err = SelectAlternative(result, "1234.56.7890", nil)
	assert.ErrorIs(t, err, ErrUnknownAlternative)
}

func TestClarificationContext(t *testing.T) {
	c := NewContext(model.ProductInput{
		Name:        "Hoodie",
		Description: "Pullover hoodie",
		Materials: []model.Material{
			{Material: "cotton", Percentage: 60},
			{Material: "polyester", Percentage: 40},
		},
	})
	c.AddAnswer("  worn as outerwear ")
	c.AddAnswer("")
	c.AddAnswer("sold to adults")

	assert.Equal(t, 2, c.Answers())
	assert.Equal(t, strings.Join([]string{
		"Product: Hoodie",
		"Description: Pullover hoodie",
		"Materials: cotton 60%, polyester 40%",
		"Clarification 1: worn as outerwear",
		"Clarification 2: sold to adults",
	}, "\n"), c.Serialize())
	assert.Len(t, c.Facts(), 5)
}

func TestSynthesizeQuestion(t *testing.T) {
	catalog := confidence.DefaultCatalog()

	tests := []struct {
		resp        *classifier.Response
		name        string
		text        string
		contains    []string
		notContains []string
	}{
		{
			name: "asks for every undetected issue",
			resp: &classifier.Response{Normalized: "smart watch", Attributes: map[string]any{"product_type": "wearable", "battery": true}},
			text: "Description: smart watch",
			contains: []string{
				`"smart watch"`,
				"battery: true, product type: wearable",
				"primary intended use",
				"made of",
				"certified",
			},
		},
		{
			name:        "skips issues the text already covers",
			resp:        &classifier.Response{},
			text:        "Description: made of cotton, mainly marketed for fitness tracking",
			contains:    []string{"certified"},
			notContains: []string{"primary intended use", "made of?"},
		},
		{
			name:     "falls back when nothing is missing",
			resp:     &classifier.Response{},
			text:     "primary fitness monitor, made of steel, FDA certified",
			contains: []string{fallbackQuestion},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := synthesizeQuestion(tt.resp, tt.text, catalog)
			for _, s := range tt.contains {
				assert.Contains(t, q, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, q, s)
			}
		})
	}
}
