package engine

import (
	"sync/atomic"

	"github.com/Veraticus/tariff/internal/model"
)

// Outcome is what a classification round produced.
type Outcome int

// Outcome constants.
const (
	OutcomeNone Outcome = iota
	OutcomeResolved
	OutcomeClarify
	OutcomeEscalated
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeClarify:
		return "clarify"
	case OutcomeEscalated:
		return "escalated"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "none"
	}
}

// RunState is the in-memory view of one run being driven by the engine.
// A RunState must not be copied after first use.
type RunState struct {
	Run      *model.ClassificationRun
	Product  *model.Product
	Result   *model.ClassificationResult
	Question string
	// Transcript mirrors the stored clarification messages.
	Transcript []model.ClarificationMessage
	Context    ClarificationContext
	// Rounds counts the questions asked so far.
	Rounds int
	busy   atomic.Bool
}

func newRunState(run *model.ClassificationRun) *RunState {
	return &RunState{
		Run:     run,
		Context: NewContext(run.Input),
	}
}

// Status returns the run's current status.
func (s *RunState) Status() model.RunStatus {
	return s.Run.Status
}

// Pending reports whether a classifier call is owed, i.e. the last call failed
// silently and the run is waiting on a retry.
func (s *RunState) Pending() bool {
	switch s.Run.Status {
	case model.RunPreprocessing, model.RunReclassifying:
		return true
	}
	return false
}

// step names the classifier stage for the current round.
func (s *RunState) step() model.Step {
	if s.Rounds == 0 {
		return model.StepPreprocess
	}
	return model.StepParse
}

func (s *RunState) acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *RunState) release() {
	s.busy.Store(false)
}

// lastQuestionStep returns the step of the most recent question, which the
// answer to it shares.
func (s *RunState) lastQuestionStep() model.Step {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Type == model.MessageQuestion {
			return s.Transcript[i].Step
		}
	}
	return s.step()
}
