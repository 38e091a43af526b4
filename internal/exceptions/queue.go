// Package exceptions derives the review queue of low-confidence
// classifications and the dashboard summaries built on top of it.
package exceptions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/service"
	"github.com/Veraticus/tariff/internal/telemetry"
)

// Queue computes exception items from stored results. It never writes, so one
// Queue may serve many users concurrently.
type Queue struct {
	storage service.Storage
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
	printer *message.Printer
}

// NewQueue creates a queue over storage. metrics may be nil.
func NewQueue(storage service.Storage, metrics *telemetry.Metrics, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		storage: storage,
		metrics: metrics,
		logger:  logger.With("component", "exceptions"),
		now:     time.Now,
		printer: message.NewPrinter(language.AmericanEnglish),
	}
}

// Derive lists the user's unapproved results whose confidence is below the
// user's threshold, most recently classified first.
func (q *Queue) Derive(ctx context.Context, userID string) ([]model.ExceptionItem, error) {
	const op = "exceptions.Derive"
	if strings.TrimSpace(userID) == "" {
		return nil, common.E(common.KindUnauthenticated, op, fmt.Errorf("no signed-in user"))
	}

	threshold, err := q.storage.GetUserThreshold(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load threshold: %w", err)
	}

	products, err := q.storage.ListProducts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	if len(products) == 0 {
		q.metrics.QueueDerived(0)
		return []model.ExceptionItem{}, nil
	}

	byID := make(map[int64]model.Product, len(products))
	productIDs := make([]int64, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		productIDs = append(productIDs, p.ID)
	}

	results, err := q.storage.ListResultsBelow(ctx, productIDs, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	if len(results) == 0 {
		q.metrics.QueueDerived(0)
		return []model.ExceptionItem{}, nil
	}

	resultIDs := make([]int64, 0, len(results))
	for _, r := range results {
		resultIDs = append(resultIDs, r.ID)
	}
	approved, err := q.storage.ListApprovedResultIDs(ctx, resultIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}

	items := make([]model.ExceptionItem, 0, len(results))
	for _, r := range results {
		if approved[r.ID] {
			continue
		}
		product, ok := byID[r.ProductID]
		if !ok {
			q.logger.Debug("Skipping result without product",
				"result_id", r.ID,
				"product_id", r.ProductID)
			continue
		}
		items = append(items, q.item(product, r, threshold))
	}

	q.metrics.QueueDerived(len(items))
	return items, nil
}

func (q *Queue) item(p model.Product, r model.ClassificationResult, threshold float64) model.ExceptionItem {
	priority := confidence.QueuePriority(r.Confidence, threshold)
	status := "review"
	if priority == model.PriorityHigh {
		status = "urgent"
	}

	hts := r.HTSCode
	if strings.TrimSpace(hts) == "" {
		hts = model.MissingHTS
	}
	origin := p.CountryOfOrigin
	if strings.TrimSpace(origin) == "" {
		origin = "Unknown"
	}
	sku := p.SKU
	if strings.TrimSpace(sku) == "" {
		sku = fmt.Sprintf("PROD-%d", p.ID)
	}

	return model.ExceptionItem{
		ResultID:    r.ID,
		ProductID:   p.ID,
		Product:     p.DisplayName(),
		SKU:         sku,
		Reason:      fmt.Sprintf("Low confidence (%s)", confidence.Percent(r.Confidence)),
		HTS:         hts,
		Status:      status,
		Origin:      origin,
		Value:       q.FormatMoney(p.UnitCost),
		Description: p.Description,
		Vendor:      p.Vendor,
		Priority:    priority,
		Category:    model.CategoryLowConfidence,
		Confidence:  r.Confidence,
		TariffRate:  r.TariffRate,
	}
}

// FormatMoney renders an amount as "$1,234.56", or "N/A" when unknown.
func (q *Queue) FormatMoney(amount *float64) string {
	if amount == nil {
		return "N/A"
	}
	return q.printer.Sprintf("$%.2f", *amount)
}
