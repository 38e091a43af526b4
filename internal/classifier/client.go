package classifier

import (
	"context"
	"errors"

	"github.com/Veraticus/tariff/internal/model"
)

// ErrEmptyResponse is returned when the service answers with no payload.
var ErrEmptyResponse = errors.New("classifier returned an empty response")

// Client is the classification service contract.
type Client interface {
	// Classify proposes HTS candidates for free text. A response with zero
	// candidates is a normal outcome meaning the text needs clarification.
	Classify(ctx context.Context, text, userID string) (*Response, error)
}

// Ruler generates conversational replies for the review assistant.
type Ruler interface {
	Ruling(ctx context.Context, req RulingRequest) (string, error)
}

// Response is the classifier's answer for one piece of text.
type Response struct {
	Attributes map[string]any   `json:"attributes"`
	Normalized string           `json:"normalized"`
	Candidates model.Candidates `json:"candidates"`
}

// HasCandidates reports whether the response can resolve a run.
func (r *Response) HasCandidates() bool {
	return r != nil && len(r.Candidates) > 0
}

// ChatTurn is one entry of conversation history sent to the rulings action.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProductContext describes the product under review for the rulings action.
type ProductContext struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	HTS         string `json:"hts,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

// RulingRequest asks the assistant for a reply to message.
type RulingRequest struct {
	Message string         `json:"message"`
	Product ProductContext `json:"product_context"`
	History []ChatTurn     `json:"conversation_history"`
}
