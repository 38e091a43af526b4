package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/engine"
	"github.com/Veraticus/tariff/internal/model"
	"github.com/Veraticus/tariff/internal/review"
)

// renderTable lays out rows under a header with padded columns.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{line(header, TableHeaderStyle)}
	for _, row := range rows {
		lines = append(lines, line(row, TableCellStyle))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderResult shows a completed classification.
func RenderResult(result model.ClassificationResult, formatMoney func(*float64) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTS code:    %s\n", SuccessStyle.Render(result.HTSCode))
	if result.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", result.Description)
	}
	fmt.Fprintf(&b, "Confidence:  %s\n", FormatConfidence(result.Confidence))
	if result.TariffRate != nil {
		fmt.Fprintf(&b, "Duty rate:   %.2f%%\n", *result.TariffRate*100)
	}
	if result.TariffAmount != nil {
		fmt.Fprintf(&b, "Duty:        %s\n", formatMoney(result.TariffAmount))
	}
	if result.TotalCost != nil {
		fmt.Fprintf(&b, "Landed cost: %s\n", formatMoney(result.TotalCost))
	}
	if result.AlternateClassification != "" {
		fmt.Fprintf(&b, "Alternate:   %s\n", result.AlternateClassification)
	}
	if result.Reasoning != "" {
		fmt.Fprintf(&b, "\n%s", SubtleStyle.Render(result.Reasoning))
	}
	return RenderBox("Classification", strings.TrimRight(b.String(), "\n"))
}

// RenderBulkSummary tallies bulk outcomes.
func RenderBulkSummary(items []engine.BulkItem) string {
	s := engine.Summarize(items)
	lines := []string{
		FormatSuccess(fmt.Sprintf("%d classified", s.Resolved)),
	}
	if s.Clarify > 0 {
		lines = append(lines, FormatInfo(fmt.Sprintf("%d awaiting clarification (tariff runs resume <id>)", s.Clarify)))
	}
	if s.Escalated > 0 {
		lines = append(lines, FormatWarning(fmt.Sprintf("%d escalated for manual classification", s.Escalated)))
	}
	if s.Failed > 0 {
		lines = append(lines, FormatError(fmt.Sprintf("%d failed", s.Failed)))
		for _, it := range items {
			if it.Err != nil {
				lines = append(lines, SubtleStyle.Render(fmt.Sprintf("  #%d %s: %v", it.Index+1, displayName(it.Input), it.Err)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func displayName(in model.ProductInput) string {
	if in.Name != "" {
		return in.Name
	}
	if len(in.Description) > 40 {
		return in.Description[:37] + "..."
	}
	return in.Description
}

// RenderQueue shows the exception queue as a table.
func RenderQueue(items []model.ExceptionItem) string {
	if len(items) == 0 {
		return FormatSuccess("No exceptions. Every classification meets your threshold.")
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			strconv.FormatInt(it.ResultID, 10),
			PriorityStyle(it.Priority).Render(string(it.Priority)),
			it.Product,
			it.SKU,
			it.HTS,
			FormatConfidence(it.Confidence),
			it.Origin,
			it.Value,
		})
	}
	header := []string{"ID", "Priority", "Product", "SKU", "HTS", "Confidence", "Origin", "Value"}
	return FormatTitle(fmt.Sprintf("Exceptions (%d)", len(items))) + "\n" + renderTable(header, rows)
}

// RenderStats shows the dashboard counters.
func RenderStats(stats model.DashboardStats) string {
	content := fmt.Sprintf("Exceptions:       %d\nClassified (30d): %d\nProduct profiles: %d\nAvg confidence:   %s",
		stats.Exceptions, stats.Classified, stats.ProductProfiles, stats.AvgConfidence)
	return RenderBox(ChartIcon+" Dashboard", content)
}

// RenderRecent lists recent classifications.
func RenderRecent(activity []model.RecentActivity) string {
	if len(activity) == 0 {
		return SubtleStyle.Render("No recent classifications.")
	}
	rows := make([][]string, 0, len(activity))
	for _, a := range activity {
		rows = append(rows, []string{a.Product, a.HTS, a.Confidence, a.Time, a.Status})
	}
	return renderTable([]string{"Product", "HTS", "Confidence", "When", "Status"}, rows)
}

// RenderRuns lists classification runs.
func RenderRuns(runs []model.ClassificationRun) string {
	if len(runs) == 0 {
		return SubtleStyle.Render("No runs yet.")
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			string(r.Type),
			runStatusStyle(r.Status).Render(string(r.Status)),
			displayName(r.Input),
			r.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable([]string{"ID", "Type", "Status", "Product", "Updated"}, rows)
}

func runStatusStyle(s model.RunStatus) lipgloss.Style {
	switch s {
	case model.RunCompleted:
		return SuccessStyle
	case model.RunAwaitingClarification, model.RunPreprocessing, model.RunReclassifying:
		return WarningStyle
	case model.RunFailed, model.RunEscalated:
		return ErrorStyle
	default:
		return SubtleStyle
	}
}

// RenderTranscript shows a run's status history and clarification dialogue.
func RenderTranscript(run model.ClassificationRun, history []model.RunStatusChange, messages []model.ClarificationMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render("Run"), strconv.FormatInt(run.ID, 10))
	fmt.Fprintf(&b, "Status:  %s\n", runStatusStyle(run.Status).Render(string(run.Status)))
	fmt.Fprintf(&b, "Product: %s\n", displayName(run.Input))

	if len(history) > 0 {
		b.WriteString("\n" + BoldStyle.Render("History") + "\n")
		for _, h := range history {
			fmt.Fprintf(&b, "  %s  %s → %s\n", h.ChangedAt.Local().Format(time.DateTime), h.From, h.To)
		}
	}
	if len(messages) > 0 {
		b.WriteString("\n" + BoldStyle.Render("Clarification") + "\n")
		for _, m := range messages {
			who := AssistantStyle.Render("Classifier")
			if m.Type == model.MessageUserResponse {
				who = UserStyle.Render("You")
			}
			fmt.Fprintf(&b, "  %s [%s]: %s\n", who, m.Step, m.Content)
		}
	}
	return RenderBox("Run transcript", strings.TrimRight(b.String(), "\n"))
}

// RenderSessionHeader summarises an open review.
func RenderSessionHeader(s *review.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product:    %s\n", s.Product.DisplayName())
	fmt.Fprintf(&b, "Selected:   %s\n", SuccessStyle.Render(s.Selected))
	fmt.Fprintf(&b, "Confidence: %s (%s)\n", FormatConfidence(s.State.Current), s.Tier().Label())
	b.WriteString("Candidates:")
	for _, c := range s.Candidates {
		marker := " "
		if c.HTS == s.Selected {
			marker = "*"
		}
		fmt.Fprintf(&b, "\n  %s %s  %s", marker, c.HTS, c.Description)
	}
	return RenderBox("Review "+s.ID[:8], b.String())
}

// RenderChat renders review transcript messages.
func RenderChat(msgs []review.ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == review.RoleUser {
			lines = append(lines, UserStyle.Render("You: ")+m.Text)
			continue
		}
		lines = append(lines, AssistantStyle.Render(RobotIcon+" ")+m.Text)
	}
	return strings.Join(lines, "\n")
}

// RenderConfidenceBar draws the current confidence as a bar toward the ceiling.
func RenderConfidenceBar(c float64) string {
	const width = 20
	filled := confidence.Points(c) * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return TierStyle(confidence.ReviewTier(c)).Render(bar) + " " + confidence.Percent(c)
}

// RenderLater lists reviews deferred for later.
func RenderLater(items []model.ReviewLaterItem) string {
	if len(items) == 0 {
		return SubtleStyle.Render("Nothing saved for later.")
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			strconv.FormatInt(it.ResultID, 10),
			it.ProductName,
			it.HTS,
			FormatConfidence(it.Confidence),
			it.SavedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable([]string{"Result", "Product", "HTS", "Confidence", "Saved"}, rows)
}
