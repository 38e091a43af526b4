package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/tariff/internal/engine"
	"github.com/Veraticus/tariff/internal/model"
)

// Prompter asks clarification questions and candidate choices on a terminal.
type Prompter struct {
	writer io.Writer
	reader *LineReader
}

var _ engine.Prompter = (*Prompter)(nil)

// NewCLIPrompter creates a prompter reading from reader and writing to writer.
func NewCLIPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		reader: NewLineReader(reader),
		writer: writer,
	}
}

// Clarify shows the classifier's question and returns the first non-empty answer.
func (p *Prompter) Clarify(ctx context.Context, question string) (string, error) {
	if _, err := fmt.Fprintln(p.writer, RenderBox(RobotIcon+" More detail needed", question)); err != nil {
		return "", fmt.Errorf("failed to write question: %w", err)
	}
	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt("Your answer")); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}
		answer, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
		if _, err := fmt.Fprintln(p.writer, FormatWarning("Please type an answer, or press Ctrl+C to stop.")); err != nil {
			return "", fmt.Errorf("failed to write warning: %w", err)
		}
	}
}

// ChooseCandidate lists the primary code and its alternatives. Pressing enter
// keeps the primary; a number picks an alternative.
func (p *Prompter) ChooseCandidate(ctx context.Context, result model.ClassificationResult) (string, error) {
	if _, err := fmt.Fprintln(p.writer, RenderCandidates(result)); err != nil {
		return "", fmt.Errorf("failed to write candidates: %w", err)
	}
	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt(fmt.Sprintf("Keep %s [enter] or pick 1-%d", result.HTSCode, len(result.Alternatives)))); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}
		choice, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if choice == "" || choice == "0" {
			return "", nil
		}
		n, err := strconv.Atoi(choice)
		if err == nil && n >= 1 && n <= len(result.Alternatives) {
			return result.Alternatives[n-1].HTS, nil
		}
		if _, err := fmt.Fprintln(p.writer, FormatWarning("Invalid choice: "+choice)); err != nil {
			return "", fmt.Errorf("failed to write warning: %w", err)
		}
	}
}

// Confirm asks a yes/no question; enter accepts the default.
func (p *Prompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	if _, err := fmt.Fprint(p.writer, FormatPrompt(fmt.Sprintf("%s [%s]", question, hint))); err != nil {
		return false, fmt.Errorf("failed to write prompt: %w", err)
	}
	answer, err := p.reader.ReadLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ReadLine reads one line of free input, used by the review chat.
func (p *Prompter) ReadLine(ctx context.Context, prompt string) (string, error) {
	if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	return p.reader.ReadLine(ctx)
}

// RenderCandidates lists the primary code as 0 followed by numbered alternatives.
func RenderCandidates(result model.ClassificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s  %s\n", BoldStyle.Render("0."), SuccessStyle.Render(result.HTSCode),
		FormatConfidence(result.Confidence), result.Description)
	for i, alt := range result.Alternatives {
		fmt.Fprintf(&b, "%s %s  %s  %s\n", BoldStyle.Render(strconv.Itoa(i+1)+"."), alt.HTS,
			SubtleStyle.Render(fmt.Sprintf("%.0f%%", alt.Score*100)), alt.Description)
	}
	return RenderBox("Candidate codes", strings.TrimRight(b.String(), "\n"))
}

// BulkProgress reports bulk classification progress with a progress bar.
type BulkProgress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewBulkProgress creates a progress bar for total products.
func NewBulkProgress(writer io.Writer, total int) *BulkProgress {
	if writer == nil {
		writer = os.Stdout
	}
	bp := &BulkProgress{writer: writer}
	bp.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Classifying products...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return bp
}

// Observe advances the bar; it is passed to engine.ClassifyBulk.
func (bp *BulkProgress) Observe(item engine.BulkItem) {
	if item.Err != nil {
		bp.bar.Describe(fmt.Sprintf("[red]Product %d failed[reset]", item.Index+1))
	}
	if err := bp.bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finish completes the bar and prints the outcome summary.
func (bp *BulkProgress) Finish(items []engine.BulkItem) error {
	if err := bp.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
	_, err := fmt.Fprintln(bp.writer, RenderBulkSummary(items))
	return err
}
