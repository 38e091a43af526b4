package engine

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/model"
)

// BulkItem reports what happened to one product of a bulk import.
type BulkItem struct {
	Err     error
	Result  *model.ClassificationResult
	Input   model.ProductInput
	Outcome Outcome
	Index   int
	RunID   int64
}

// BulkSummary counts bulk outcomes.
type BulkSummary struct {
	Resolved  int
	Clarify   int
	Escalated int
	Failed    int
}

// Summarize tallies a set of bulk items.
func Summarize(items []BulkItem) BulkSummary {
	var s BulkSummary
	for _, it := range items {
		switch {
		case it.Err != nil:
			s.Failed++
		case it.Outcome == OutcomeResolved:
			s.Resolved++
		case it.Outcome == OutcomeClarify:
			s.Clarify++
		case it.Outcome == OutcomeEscalated:
			s.Escalated++
		}
	}
	return s
}

// ClassifyBulk starts one bulk run per product using a bounded pool of workers.
// Products that need clarification are left awaiting it so they can be resumed
// later. A failure on one product never stops the others; progress, when set,
// is called once per finished product.
func (e *Engine) ClassifyBulk(ctx context.Context, userID string, inputs []model.ProductInput, progress func(BulkItem)) ([]BulkItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, common.E(common.KindUnauthenticated, "engine.ClassifyBulk", ErrNoUser)
	}

	items := make([]BulkItem, len(inputs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)

	for i, input := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item := BulkItem{Index: i, Input: input}
			state, outcome, err := e.Start(gctx, userID, model.RunTypeBulk, input)
			item.Outcome = outcome
			item.Err = err
			if state != nil {
				item.RunID = state.Run.ID
				item.Result = state.Result
			}
			if err != nil {
				e.logger.Warn("Bulk item failed",
					"index", i,
					"run_id", item.RunID,
					"error", err)
			}

			mu.Lock()
			items[i] = item
			if progress != nil {
				progress(item)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return items, err
	}

	s := Summarize(items)
	e.logger.Info("Bulk classification finished",
		"total", len(items),
		"resolved", s.Resolved,
		"awaiting", s.Clarify,
		"escalated", s.Escalated,
		"failed", s.Failed)
	return items, nil
}
