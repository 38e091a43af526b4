package confidence

import (
	"fmt"
	"math"

	"github.com/Veraticus/tariff/internal/model"
)

const (
	// Ceiling is the highest confidence, in points, that resolving issues can reach.
	Ceiling = 95
	// ReadyPoints marks a review as ready for approval.
	ReadyPoints = 85
	// AmberPoints is the lower bound of the amber review tier.
	AmberPoints = 75

	// DefaultThreshold applies when a user never configured one.
	DefaultThreshold = 0.8
	// MinThreshold and MaxThreshold bound the user-configurable threshold.
	MinThreshold = 0.8
	MaxThreshold = 1.0

	highBand   = 0.7
	mediumBand = 0.85
)

// Tier is the presentation tier of a confidence value during review.
type Tier string

// Review tiers.
const (
	TierReady Tier = "ready"
	TierAmber Tier = "amber"
	TierRed   Tier = "red"
)

// Label is the human readable tier description.
func (t Tier) Label() string {
	switch t {
	case TierReady:
		return "Ready for approval"
	case TierAmber:
		return "Needs review"
	default:
		return "Needs review (low)"
	}
}

// Points converts a fraction to whole percentage points.
func Points(c float64) int {
	return int(math.Round(clamp(c) * 100))
}

// FromPoints converts percentage points back to a fraction.
func FromPoints(p int) float64 {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return float64(p) / 100
}

// Percent formats a fraction for display, e.g. "68%".
func Percent(c float64) string {
	return fmt.Sprintf("%d%%", Points(c))
}

// Apply adds boost points to current, clamped at Ceiling. It never lowers
// confidence: a value already above the ceiling is returned unchanged.
func Apply(current float64, boost int) float64 {
	if boost <= 0 {
		return current
	}
	cur := Points(current)
	next := cur + boost
	if next > Ceiling {
		next = Ceiling
	}
	if next <= cur {
		return current
	}
	return FromPoints(next)
}

// Score computes the confidence reached from base once every issue in resolved is applied.
func Score(base float64, resolved IssueSet, catalog *Catalog) float64 {
	return Apply(base, catalog.Weight(resolved.Keys()))
}

// ReviewTier classifies confidence for review-session display.
// Tiers are guidance only; approval stays an explicit action.
func ReviewTier(c float64) Tier {
	v := round4(c)
	switch {
	case v >= FromPoints(ReadyPoints):
		return TierReady
	case v >= FromPoints(AmberPoints):
		return TierAmber
	default:
		return TierRed
	}
}

// IsException reports whether a result falls below the user's threshold.
func IsException(c, threshold float64) bool {
	return round4(c) < round4(threshold)
}

// QueuePriority ranks an exception against the user's threshold. Values equal
// to a band limit fall into the lower-priority band.
func QueuePriority(c, threshold float64) model.Priority {
	v := round4(c)
	switch {
	case v < round4(threshold*highBand):
		return model.PriorityHigh
	case v < round4(threshold*mediumBand):
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// ValidateThreshold checks a user-supplied auto-approval threshold.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < MinThreshold || t > MaxThreshold {
		return fmt.Errorf("threshold must be between %s and %s, got %.2f",
			Percent(MinThreshold), Percent(MaxThreshold), t)
	}
	return nil
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
