// Package storage provides the SQLite persistence layer for classification runs,
// results and approvals.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tariff/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidID         = errors.New("id must be positive")
	ErrInvalidStatus     = errors.New("invalid run status")
	ErrInvalidTransition = errors.New("invalid run status transition")
	ErrInvalidResult     = errors.New("invalid classification result")
	ErrInvalidMessage    = errors.New("invalid clarification message")
	ErrInvalidThreshold  = errors.New("invalid confidence threshold")
	ErrForbidden         = errors.New("result belongs to another user")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateID(id int64, paramName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidID, paramName)
	}
	return nil
}

func validateRunType(t model.RunType) error {
	switch t {
	case model.RunTypeSingle, model.RunTypeBulk:
		return nil
	}
	return fmt.Errorf("invalid run type %q", t)
}

func validateMessage(msg *model.ClarificationMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: message", ErrNilParameter)
	}
	if err := validateID(msg.RunID, "runID"); err != nil {
		return err
	}
	switch msg.Step {
	case model.StepPreprocess, model.StepParse, model.StepRules, model.StepRulings:
	default:
		return fmt.Errorf("%w: unknown step %q", ErrInvalidMessage, msg.Step)
	}
	switch msg.Type {
	case model.MessageQuestion, model.MessageUserResponse:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, msg.Type)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	return nil
}

func validateProduct(p *model.Product) error {
	if p == nil {
		return fmt.Errorf("%w: product", ErrNilParameter)
	}
	if err := validateString(p.UserID, "userID"); err != nil {
		return err
	}
	if err := validateID(p.RunID, "runID"); err != nil {
		return err
	}
	return p.ProductInput.Validate()
}

// validateResult validates a classification result.
func validateResult(r *model.ClassificationResult) error {
	if r == nil {
		return fmt.Errorf("%w: result", ErrNilParameter)
	}
	if err := validateID(r.ProductID, "productID"); err != nil {
		return err
	}
	if err := validateID(r.RunID, "runID"); err != nil {
		return err
	}
	if strings.TrimSpace(r.HTSCode) == "" {
		return fmt.Errorf("%w: missing hts code", ErrInvalidResult)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidResult)
	}
	return nil
}

func validateApproval(a *model.ApprovalRecord) error {
	if a == nil {
		return fmt.Errorf("%w: approval", ErrNilParameter)
	}
	if err := validateString(a.UserID, "userID"); err != nil {
		return err
	}
	return validateID(a.ClassificationResultID, "classificationResultID")
}
