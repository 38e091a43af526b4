package model

import (
	"fmt"
	"time"
)

// RunType distinguishes interactive single-product runs from bulk imports.
type RunType string

// Run type constants.
const (
	RunTypeSingle RunType = "single"
	RunTypeBulk   RunType = "bulk"
)

// RunStatus is the lifecycle state of a classification run.
type RunStatus string

// Run status constants.
const (
	RunCreated               RunStatus = "created"
	RunPreprocessing         RunStatus = "preprocessing"
	RunAwaitingClarification RunStatus = "awaiting_clarification"
	RunReclassifying         RunStatus = "reclassifying"
	RunCompleted             RunStatus = "completed"
	RunFailed                RunStatus = "failed"
	RunEscalated             RunStatus = "escalated"
)

// runTransitions lists the allowed next states for every run status.
var runTransitions = map[RunStatus][]RunStatus{
	RunCreated:               {RunPreprocessing, RunFailed},
	RunPreprocessing:         {RunCompleted, RunAwaitingClarification, RunFailed},
	RunAwaitingClarification: {RunReclassifying, RunEscalated, RunFailed},
	RunReclassifying:         {RunCompleted, RunAwaitingClarification, RunEscalated, RunFailed},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to RunStatus) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return len(runTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunCreated, RunPreprocessing, RunAwaitingClarification, RunReclassifying,
		RunCompleted, RunFailed, RunEscalated:
		return true
	}
	return false
}

// ClassificationRun is one attempt to classify one product for one user.
// Runs are never deleted and form the audit trail of classification activity.
type ClassificationRun struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    string
	Type      RunType
	Status    RunStatus
	Input     ProductInput
	ID        int64
}

// Transition moves the run to the next status if the move is allowed.
func (r *ClassificationRun) Transition(to RunStatus) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("invalid run transition %s -> %s", r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return nil
}

// RunStatusChange is an audit row recording a single status transition.
type RunStatusChange struct {
	ChangedAt time.Time
	From      RunStatus
	To        RunStatus
	RunID     int64
}
