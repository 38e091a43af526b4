// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/tariff/internal/model"
)

// RunFilter narrows run listings.
type RunFilter struct {
	Status model.RunStatus
	Limit  int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, userID string, runType model.RunType, input model.ProductInput) (*model.ClassificationRun, error)
	GetRun(ctx context.Context, id int64) (*model.ClassificationRun, error)
	ListRuns(ctx context.Context, userID string, filter RunFilter) ([]model.ClassificationRun, error)
	UpdateRunStatus(ctx context.Context, runID int64, status model.RunStatus) error
	GetRunHistory(ctx context.Context, runID int64) ([]model.RunStatusChange, error)

	// Clarification transcript operations
	AppendClarificationMessage(ctx context.Context, msg *model.ClarificationMessage) error
	ListClarificationMessages(ctx context.Context, runID int64) ([]model.ClarificationMessage, error)

	// Product operations
	SaveProduct(ctx context.Context, product *model.Product) error
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context, userID string) ([]model.Product, error)

	// Classification result operations
	SaveClassificationResult(ctx context.Context, result *model.ClassificationResult) error
	UpdateClassificationResult(ctx context.Context, result *model.ClassificationResult) error
	GetClassificationResult(ctx context.Context, id int64) (*model.ClassificationResult, error)
	GetResultByRun(ctx context.Context, runID int64) (*model.ClassificationResult, error)
	ListResultsBelow(ctx context.Context, productIDs []int64, threshold float64) ([]model.ClassificationResult, error)
	ListRecentResults(ctx context.Context, userID string, limit int) ([]model.ClassificationResult, error)

	// Settings
	GetUserThreshold(ctx context.Context, userID string) (float64, error)
	SetUserThreshold(ctx context.Context, userID string, threshold float64) error

	// Approval operations
	ListApprovedResultIDs(ctx context.Context, resultIDs []int64) (map[int64]bool, error)
	RecordApproval(ctx context.Context, approval *model.ApprovalRecord) error
	GetApproval(ctx context.Context, resultID int64) (*model.ApprovalRecord, error)

	// Dashboard aggregates
	CountCompletedRuns(ctx context.Context, userID string, since time.Time) (int, error)
	ApprovedConfidence(ctx context.Context, userID string) (ApprovalSummary, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// ApprovalSummary aggregates a user's approved results.
type ApprovalSummary struct {
	Count         int
	AvgConfidence float64
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
