package classifier

import (
	"context"
	"sync"

	"github.com/Veraticus/tariff/internal/model"
)

// ScriptedClient is a test implementation of Client that replays a fixed
// sequence of answers and records every request.
type ScriptedClient struct {
	steps []ScriptedStep
	calls []ScriptedCall
	mu    sync.Mutex
}

// ScriptedStep is one scripted answer. A nil Response with a nil Err models a
// service that answered with nothing.
type ScriptedStep struct {
	Response *Response
	Err      error
	// Block, when set, is waited on before answering.
	Block <-chan struct{}
}

// ScriptedCall records details of a classification request.
type ScriptedCall struct {
	Text   string
	UserID string
}

// NewScriptedClient creates a client answering with steps in order. Once the
// script is exhausted the last step repeats.
func NewScriptedClient(steps ...ScriptedStep) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// Classify implements Client.
func (m *ScriptedClient) Classify(ctx context.Context, text, userID string) (*Response, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, ScriptedCall{Text: text, UserID: userID})
	var step ScriptedStep
	if len(m.steps) > 0 {
		if idx >= len(m.steps) {
			idx = len(m.steps) - 1
		}
		step = m.steps[idx]
	}
	m.mu.Unlock()

	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response == nil {
		return nil, ErrEmptyResponse
	}
	resp := *step.Response
	return &resp, nil
}

// Calls returns a copy of the recorded requests.
func (m *ScriptedClient) Calls() []ScriptedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScriptedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Clarify is a convenience step returning zero candidates.
func Clarify(normalized string, attributes map[string]any) ScriptedStep {
	return ScriptedStep{Response: &Response{Normalized: normalized, Attributes: attributes}}
}

// Resolve is a convenience step returning candidates.
func Resolve(candidates ...model.Candidate) ScriptedStep {
	return ScriptedStep{Response: &Response{Candidates: model.Candidates(candidates)}}
}

// Fail is a convenience step returning an error.
func Fail(err error) ScriptedStep {
	return ScriptedStep{Err: err}
}

// StaticRuler answers every ruling request with a fixed reply or error.
type StaticRuler struct {
	Err      error
	Reply    string
	requests []RulingRequest
	mu       sync.Mutex
}

// Ruling implements Ruler.
func (r *StaticRuler) Ruling(_ context.Context, req RulingRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.Err != nil {
		return "", r.Err
	}
	return r.Reply, nil
}

// Requests returns a copy of the recorded requests.
func (r *StaticRuler) Requests() []RulingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RulingRequest, len(r.requests))
	copy(out, r.requests)
	return out
}
