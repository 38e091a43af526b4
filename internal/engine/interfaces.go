package engine

import (
	"context"

	"github.com/Veraticus/tariff/internal/model"
)

// Prompter defines the contract for user interaction during classification.
type Prompter interface {
	// Clarify shows a question and returns the user's answer.
	Clarify(ctx context.Context, question string) (string, error)
	// ChooseCandidate lets the user keep the primary code or pick an
	// alternative. An empty code keeps the primary.
	ChooseCandidate(ctx context.Context, result model.ClassificationResult) (string, error)
}
