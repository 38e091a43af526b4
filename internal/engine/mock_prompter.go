package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/Veraticus/tariff/internal/model"
)

// ErrNoMoreAnswers is returned by MockPrompter when its answers run out.
var ErrNoMoreAnswers = errors.New("mock prompter has no more answers")

// MockPrompter is a test implementation of the Prompter interface that
// replays scripted answers and records every question it was shown.
type MockPrompter struct {
	choice    string
	answers   []string
	questions []string
	offered   []model.ClassificationResult
	mu        sync.Mutex
}

// NewMockPrompter creates a prompter answering questions in order. choice is
// returned when alternatives are offered.
func NewMockPrompter(choice string, answers ...string) *MockPrompter {
	return &MockPrompter{
		choice:  choice,
		answers: answers,
	}
}

// Clarify implements Prompter.
func (m *MockPrompter) Clarify(_ context.Context, question string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.questions = append(m.questions, question)
	if len(m.answers) == 0 {
		return "", ErrNoMoreAnswers
	}
	answer := m.answers[0]
	m.answers = m.answers[1:]
	return answer, nil
}

// ChooseCandidate implements Prompter.
func (m *MockPrompter) ChooseCandidate(_ context.Context, result model.ClassificationResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.offered = append(m.offered, result)
	return m.choice, nil
}

// Questions returns the questions shown so far.
func (m *MockPrompter) Questions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.questions))
	copy(out, m.questions)
	return out
}

// Offered returns the results offered for candidate selection.
func (m *MockPrompter) Offered() []model.ClassificationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ClassificationResult, len(m.offered))
	copy(out, m.offered)
	return out
}
