package cli

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/review"
)

func money(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *v)
}

func ptr(f float64) *float64 {
	return &f
}

func TestRenderResult(t *testing.T) {
	result := model.ClassificationResult{
		HTSCode:      "8517.62.0050",
		Description:  "Wireless speakers",
		Confidence:   0.96,
		TariffRate:   ptr(0.049),
		TariffAmount: ptr(2.45),
		TotalCost:    ptr(52.45),
		Reasoning:    "Bluetooth audio device.",
	}

	out := RenderResult(result, money)
	assert.Contains(t, out, "8517.62.0050")
	assert.Contains(t, out, "96%")
	assert.Contains(t, out, "4.90%")
	assert.Contains(t, out, "$2.45")
	assert.Contains(t, out, "$52.45")
	assert.NotContains(t, out, "Alternate")
}

func TestRenderQueue(t *testing.T) {
	assert.Contains(t, RenderQueue(nil), "No exceptions")

	out := RenderQueue([]model.ExceptionItem{
		{ResultID: 12, Priority: model.PriorityHigh, Product: "Smart Watch", SKU: "PROD-3", HTS: "9102.11.0000", Confidence: 0.5, Origin: "CN", Value: "$1,234.56"},
		{ResultID: 9, Priority: model.PriorityLow, Product: "Hoodie", SKU: "HD-1", HTS: "6110.20.2079", Confidence: 0.75, Origin: "Unknown", Value: "N/A"},
	})
	assert.Contains(t, out, "Exceptions (2)")
	for _, want := range []string{"Smart Watch", "PROD-3", "50%", "$1,234.56", "Hoodie", "75%", "N/A", "high", "low"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "Smart Watch"), strings.Index(out, "Hoodie"), "queue order is preserved")
}

func TestRenderStatsAndRecent(t *testing.T) {
	out := RenderStats(model.DashboardStats{Exceptions: 3, Classified: 10, ProductProfiles: 4, AvgConfidence: "87.5%"})
	assert.Contains(t, out, "87.5%")
	assert.Contains(t, out, "10")

	assert.Contains(t, RenderRecent(nil), "No recent")
	out = RenderRecent([]model.RecentActivity{{Product: "Speaker", HTS: "8517.62.0050", Confidence: "96%", Time: "2 hours ago", Status: "auto-approved"}})
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "auto-approved")
}

func TestRenderTranscript(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	run := model.ClassificationRun{ID: 4, Status: model.RunCompleted, Input: model.ProductInput{Description: "cotton hoodie"}}
	history := []model.RunStatusChange{
		{From: model.RunCreated, To: model.RunPreprocessing, ChangedAt: at},
		{From: model.RunPreprocessing, To: model.RunAwaitingClarification, ChangedAt: at},
	}
	messages := []model.ClarificationMessage{
		{Type: model.MessageQuestion, Step: model.StepPreprocess, Content: "What is it made of?"},
		{Type: model.MessageUserResponse, Step: model.StepPreprocess, Content: "80% cotton"},
	}

	out := RenderTranscript(run, history, messages)
	assert.Contains(t, out, "cotton hoodie")
	assert.Contains(t, out, "created → preprocessing")
	assert.Contains(t, out, "Classifier [preprocess]: What is it made of?")
	assert.Contains(t, out, "You [preprocess]: 80% cotton")
}

func TestRenderReview(t *testing.T) {
	product := model.Product{ID: 1, UserID: "u", ProductInput: model.ProductInput{Name: "Smart Watch", Description: "watch"}}
	result := model.ClassificationResult{ID: 2, ProductID: 1, HTSCode: "9102.11.0000", Confidence: 0.68,
		Alternatives: model.Candidates{{HTS: "9031.80.8000", Score: 0.6}}}
	s := review.NewSession("u", product, result, confidence.DefaultCatalog(), 3)

	header := RenderSessionHeader(s)
	assert.Contains(t, header, "Smart Watch")
	assert.Contains(t, header, "* 9102.11.0000")
	assert.Contains(t, header, "Needs review (low)")

	msgs, err := s.Apply(review.SubmitEvidence{Text: "made of steel"})
	assert.NoError(t, err)
	chat := RenderChat(msgs)
	assert.Contains(t, chat, "You: made of steel")
	assert.Contains(t, chat, "Confidence updated: 68% → 76%")
}

func TestRenderConfidenceBar(t *testing.T) {
	out := RenderConfidenceBar(0.5)
	assert.Equal(t, 10, strings.Count(out, "█"))
	assert.Contains(t, out, "50%")
}

func TestRenderLater(t *testing.T) {
	assert.Contains(t, RenderLater(nil), "Nothing saved")
	out := RenderLater([]model.ReviewLaterItem{{ResultID: 5, ProductName: "Hoodie", HTS: "6110.20.2079", Confidence: 0.6, SavedAt: time.Now()}})
	assert.Contains(t, out, "Hoodie")
	assert.Contains(t, out, "60%")
}
