// Package engine drives classification runs through clarification until they
// resolve to an HTS code, escalate, or wait on the user.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tariff/internal/classifier"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
	"github.com/Veraticus/tariff/internal/telemetry"
)

// Engine errors.
var (
	ErrNoUser         = errors.New("no signed-in user")
	ErrTurnInFlight   = errors.New("a classifier call is already in flight for this run")
	ErrNotAwaiting    = errors.New("run is not awaiting clarification")
	ErrNothingPending = errors.New("run has no pending classifier call")
	ErrEmptyAnswer    = errors.New("answer is empty")
	ErrNotOwner       = errors.New("run belongs to another user")
)

// Config holds configuration options for the engine.
type Config struct {
	CallTimeout time.Duration
	// MaxRounds caps clarification questions per run; 0 means unbounded.
	MaxRounds int
	Workers   int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 30 * time.Second,
		MaxRounds:   5,
		Workers:     4,
	}
}

// Engine orchestrates classification runs.
type Engine struct {
	storage    service.Storage
	classifier classifier.Client
	catalog    *confidence.Catalog
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	config     Config
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records engine activity.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCatalog sets the issue catalog used to phrase questions.
func WithCatalog(c *confidence.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// New creates an engine with the given dependencies.
func New(storage service.Storage, client classifier.Client, config Config, opts ...Option) *Engine {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultConfig().CallTimeout
	}
	if config.MaxRounds < 0 {
		config.MaxRounds = 0
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	e := &Engine{
		storage:    storage,
		classifier: client,
		catalog:    confidence.DefaultCatalog(),
		logger:     slog.Default(),
		config:     config,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Start creates a run for input and performs the first classification round.
func (e *Engine) Start(ctx context.Context, userID string, runType model.RunType, input model.ProductInput) (*RunState, Outcome, error) {
	const op = "engine.Start"
	if strings.TrimSpace(userID) == "" {
		return nil, OutcomeNone, common.E(common.KindUnauthenticated, op, ErrNoUser)
	}
	if err := input.Validate(); err != nil {
		return nil, OutcomeNone, common.E(common.KindInvalid, op, err)
	}

	run, err := e.storage.CreateRun(ctx, userID, runType, input)
	if err != nil {
		return nil, OutcomeNone, fmt.Errorf("failed to create run: %w", err)
	}
	state := newRunState(run)
	if err := e.transition(ctx, state, model.RunPreprocessing); err != nil {
		return state, OutcomeNone, err
	}

	e.logger.Info("Started classification run", "run_id", run.ID, "type", runType)

	state.busy.Store(true)
	defer state.release()
	outcome, err := e.round(ctx, state)
	return state, outcome, err
}

// Answer records the user's reply to the pending question and reclassifies
// with the full accumulated context.
func (e *Engine) Answer(ctx context.Context, state *RunState, answer string) (Outcome, error) {
	const op = "engine.Answer"
	if !state.acquire() {
		return OutcomeNone, common.E(common.KindConflict, op, ErrTurnInFlight)
	}
	defer state.release()

	if state.Run.Status != model.RunAwaitingClarification {
		return OutcomeNone, common.E(common.KindConflict, op, fmt.Errorf("%w: run %d is %s", ErrNotAwaiting, state.Run.ID, state.Run.Status))
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return OutcomeNone, common.E(common.KindInvalid, op, ErrEmptyAnswer)
	}

	msg := &model.ClarificationMessage{
		RunID:   state.Run.ID,
		Step:    state.lastQuestionStep(),
		Type:    model.MessageUserResponse,
		Content: answer,
	}
	if err := e.storage.AppendClarificationMessage(ctx, msg); err != nil {
		return OutcomeNone, fmt.Errorf("failed to record answer: %w", err)
	}
	state.Transcript = append(state.Transcript, *msg)
	state.Context.AddAnswer(answer)
	state.Question = ""

	if err := e.transition(ctx, state, model.RunReclassifying); err != nil {
		return OutcomeNone, err
	}
	return e.round(ctx, state)
}

// Retry re-issues the classifier call that previously failed silently.
func (e *Engine) Retry(ctx context.Context, state *RunState) (Outcome, error) {
	const op = "engine.Retry"
	if !state.acquire() {
		return OutcomeNone, common.E(common.KindConflict, op, ErrTurnInFlight)
	}
	defer state.release()

	if !state.Pending() {
		return OutcomeNone, common.E(common.KindConflict, op, fmt.Errorf("%w: run %d is %s", ErrNothingPending, state.Run.ID, state.Run.Status))
	}
	return e.round(ctx, state)
}

// Resume rebuilds the state of a stored run so it can be continued.
func (e *Engine) Resume(ctx context.Context, userID string, runID int64) (*RunState, error) {
	const op = "engine.Resume"
	if strings.TrimSpace(userID) == "" {
		return nil, common.E(common.KindUnauthenticated, op, ErrNoUser)
	}

	run, err := e.storage.GetRun(ctx, runID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.E(common.KindNotFound, op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run.UserID != userID {
		return nil, common.E(common.KindForbidden, op, ErrNotOwner)
	}

	messages, err := e.storage.ListClarificationMessages(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	state := newRunState(run)
	state.Transcript = messages
	for _, m := range messages {
		switch m.Type {
		case model.MessageQuestion:
			state.Rounds++
			state.Question = m.Content
		case model.MessageUserResponse:
			state.Context.AddAnswer(m.Content)
			state.Question = ""
		}
	}
	if run.Status != model.RunAwaitingClarification {
		state.Question = ""
	}

	if run.Status == model.RunCompleted {
		result, err := e.storage.GetResultByRun(ctx, runID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("failed to load result: %w", err)
		}
		state.Result = result
		if result != nil {
			product, err := e.storage.GetProduct(ctx, result.ProductID)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return nil, fmt.Errorf("failed to load product: %w", err)
			}
			state.Product = product
		}
	}
	return state, nil
}

// round performs one classifier call and acts on its outcome. The caller
// holds the state's turn.
func (e *Engine) round(ctx context.Context, state *RunState) (Outcome, error) {
	step := state.step()
	text := state.Context.Serialize()

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	started := time.Now()
	resp, err := e.classifier.Classify(callCtx, text, state.Run.UserID)
	cancel()
	e.metrics.ObserveClassifierCall(time.Since(started))

	if err == nil && resp == nil {
		err = classifier.ErrEmptyResponse
	}
	if err != nil {
		e.logger.Warn("Classifier call failed",
			"run_id", state.Run.ID,
			"step", step,
			"error", err)
		e.metrics.ClassifierFailed(string(step))
		e.metrics.RunOutcome(OutcomeUnavailable.String())
		return OutcomeUnavailable, common.E(common.KindClassifierUnavailable, "engine.classify",
			fmt.Errorf("%w: %w", common.ErrClassifierUnavailable, err))
	}

	if resp.HasCandidates() {
		if err := e.resolve(ctx, state, resp.Candidates); err != nil {
			return OutcomeNone, err
		}
		e.metrics.RunOutcome(OutcomeResolved.String())
		return OutcomeResolved, nil
	}

	if e.config.MaxRounds > 0 && state.Rounds >= e.config.MaxRounds {
		if err := e.transition(ctx, state, model.RunEscalated); err != nil {
			return OutcomeNone, err
		}
		e.logger.Info("Clarification limit reached, escalating run",
			"run_id", state.Run.ID,
			"rounds", state.Rounds)
		e.metrics.RunOutcome(OutcomeEscalated.String())
		return OutcomeEscalated, nil
	}

	if err := e.ask(ctx, state, step, synthesizeQuestion(resp, text, e.catalog)); err != nil {
		return OutcomeNone, err
	}
	e.metrics.QuestionAsked()
	e.metrics.RunOutcome(OutcomeClarify.String())
	return OutcomeClarify, nil
}

func (e *Engine) ask(ctx context.Context, state *RunState, step model.Step, question string) error {
	msg := &model.ClarificationMessage{
		RunID:   state.Run.ID,
		Step:    step,
		Type:    model.MessageQuestion,
		Content: question,
	}
	if err := e.storage.AppendClarificationMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to record question: %w", err)
	}
	state.Transcript = append(state.Transcript, *msg)
	state.Question = question
	state.Rounds++

	return e.transition(ctx, state, model.RunAwaitingClarification)
}

// resolve persists the product and result and completes the run in one
// transaction.
func (e *Engine) resolve(ctx context.Context, state *RunState, candidates model.Candidates) error {
	result := BuildResult(candidates, state.Run.Input.UnitCost)
	result.RunID = state.Run.ID
	product := &model.Product{
		UserID:       state.Run.UserID,
		RunID:        state.Run.ID,
		ProductInput: state.Run.Input,
	}

	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				e.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = tx.SaveProduct(ctx, product); err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	result.ProductID = product.ID
	if err = tx.SaveClassificationResult(ctx, &result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	if err = tx.UpdateRunStatus(ctx, state.Run.ID, model.RunCompleted); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}

	state.Run.Status = model.RunCompleted
	state.Run.UpdatedAt = time.Now()
	state.Product = product
	state.Result = &result
	state.Question = ""

	e.logger.Info("Run resolved",
		"run_id", state.Run.ID,
		"hts", result.HTSCode,
		"confidence", confidence.Percent(result.Confidence))
	return nil
}

func (e *Engine) transition(ctx context.Context, state *RunState, to model.RunStatus) error {
	if err := e.storage.UpdateRunStatus(ctx, state.Run.ID, to); err != nil {
		return fmt.Errorf("failed to move run %d to %s: %w", state.Run.ID, to, err)
	}
	return state.Run.Transition(to)
}

// BuildResult turns classifier candidates into a result: the first candidate is
// primary, the rest are ordered alternatives and the second one is the alternate
// classification.
func BuildResult(candidates model.Candidates, unitCost *float64) model.ClassificationResult {
	cs := candidates.Normalized()
	var result model.ClassificationResult
	if primary := cs.Primary(); primary != nil {
		result = model.ClassificationResult{
			HTSCode:     primary.HTS,
			Confidence:  primary.Score,
			Description: primary.Description,
			TariffRate:  primary.TariffRate,
			Reasoning:   primary.Reasoning,
		}
	}
	result.Alternatives = cs.Alternatives()
	if len(result.Alternatives) > 0 {
		result.AlternateClassification = result.Alternatives[0].HTS
	}
	result.ApplyTariff(unitCost)
	return result
}
