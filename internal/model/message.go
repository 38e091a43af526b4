package model

import "time"

// Step names the classifier stage a clarification exchange belongs to.
type Step string

// Step constants mirror the classifier proxy actions.
const (
	StepPreprocess Step = "preprocess"
	StepParse      Step = "parse"
	StepRules      Step = "rules"
	StepRulings    Step = "rulings"
)

// MessageType distinguishes questions from user answers in the transcript.
type MessageType string

// Message type constants.
const (
	MessageQuestion     MessageType = "question"
	MessageUserResponse MessageType = "user_response"
)

// ClarificationMessage is one turn of the clarification dialogue for a run.
// Messages are append-only; insertion order defines the transcript.
type ClarificationMessage struct {
	Timestamp time.Time
	Step      Step
	Type      MessageType
	Content   string
	ID        int64
	RunID     int64
}
