package exceptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
)

// RecentLimit is the length of the recent activity feed.
const RecentLimit = 3

// Stats summarises the user's queue and classification history.
func (q *Queue) Stats(ctx context.Context, userID string) (model.DashboardStats, error) {
	var stats model.DashboardStats

	items, err := q.Derive(ctx, userID)
	if err != nil {
		return stats, err
	}
	stats.Exceptions = len(items)

	since := q.now().AddDate(0, -1, 0)
	stats.Classified, err = q.storage.CountCompletedRuns(ctx, userID, since)
	if err != nil {
		return stats, fmt.Errorf("failed to count runs: %w", err)
	}

	summary, err := q.storage.ApprovedConfidence(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("failed to summarise approvals: %w", err)
	}
	stats.ProductProfiles = summary.Count
	stats.AvgConfidence = "0%"
	if summary.Count > 0 {
		stats.AvgConfidence = fmt.Sprintf("%.1f%%", summary.AvgConfidence*100)
	}
	return stats, nil
}

// RecentActivity lists the latest completed classifications.
func (q *Queue) RecentActivity(ctx context.Context, userID string) ([]model.RecentActivity, error) {
	results, err := q.storage.ListRecentResults(ctx, userID, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent results: %w", err)
	}

	now := q.now()
	activity := make([]model.RecentActivity, 0, len(results))
	for _, r := range results {
		product, err := q.storage.GetProduct(ctx, r.ProductID)
		if errors.Is(err, common.ErrNotFound) {
			q.logger.Debug("Skipping activity without product", "result_id", r.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load product: %w", err)
		}
		if product.UserID != userID {
			continue
		}

		hts := r.HTSCode
		if hts == "" {
			hts = model.MissingHTS
		}
		activity = append(activity, model.RecentActivity{
			ClassifiedAt: r.ClassifiedAt,
			Product:      product.DisplayName(),
			HTS:          hts,
			Confidence:   confidence.Percent(r.Confidence),
			Time:         RelativeTime(now, r.ClassifiedAt),
			Status:       "auto-approved",
		})
	}
	return activity, nil
}

// RelativeTime renders the age of t as "Just now", "3 hours ago" or "2 days ago".
func RelativeTime(now, t time.Time) string {
	hours := int(now.Sub(t) / time.Hour)
	switch {
	case hours < 1:
		return "Just now"
	case hours < 24:
		return plural(hours, "hour") + " ago"
	default:
		return plural(hours/24, "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
