package engine

import (
	"context"
	"fmt"
)

// Converse drives a run interactively: it keeps asking the prompter for
// answers while the run needs clarification, then offers the alternatives once
// it resolves. Silent classifier failures are returned to the caller, which
// may Retry.
func (e *Engine) Converse(ctx context.Context, state *RunState, outcome Outcome, p Prompter) (Outcome, error) {
	for outcome == OutcomeClarify {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		answer, err := p.Clarify(ctx, state.Question)
		if err != nil {
			return outcome, fmt.Errorf("clarification cancelled: %w", err)
		}
		outcome, err = e.Answer(ctx, state, answer)
		if err != nil {
			return outcome, err
		}
	}

	if outcome != OutcomeResolved || state.Result == nil || len(state.Result.Alternatives) == 0 {
		return outcome, nil
	}

	hts, err := p.ChooseCandidate(ctx, *state.Result)
	if err != nil {
		return outcome, fmt.Errorf("candidate selection cancelled: %w", err)
	}
	if hts == "" || hts == state.Result.HTSCode {
		return outcome, nil
	}
	updated, err := e.Reselect(ctx, state.Run.UserID, state.Result.ID, hts)
	if err != nil {
		return outcome, err
	}
	state.Result = updated
	return outcome, nil
}
