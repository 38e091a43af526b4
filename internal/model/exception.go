package model

import "time"

// Priority ranks exceptions for human review.
type Priority string

// Priority constants.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ExceptionCategory explains why a result landed in the queue.
type ExceptionCategory string

// Exception categories.
const (
	CategoryLowConfidence  ExceptionCategory = "lowConfidence"
	CategoryMissingDoc     ExceptionCategory = "missingDoc"
	CategoryMultipleHTS    ExceptionCategory = "multipleHTS"
	CategoryMaterialIssues ExceptionCategory = "materialIssues"
)

// ExceptionItem is a derived view of a product and a result that needs review.
type ExceptionItem struct {
	TariffRate  *float64
	Product     string
	SKU         string
	Reason      string
	HTS         string
	Status      string
	Origin      string
	Value       string
	Description string
	Vendor      string
	Priority    Priority
	Category    ExceptionCategory
	Confidence  float64
	ResultID    int64
	ProductID   int64
}

// DashboardStats summarises a user's classification activity.
type DashboardStats struct {
	AvgConfidence   string
	Exceptions      int
	Classified      int
	ProductProfiles int
}

// RecentActivity is one line of the recent classifications feed.
type RecentActivity struct {
	ClassifiedAt time.Time
	Product      string
	HTS          string
	Confidence   string
	Time         string
	Status       string
}

// ReviewLaterStatus is the only status a deferred review item carries.
const ReviewLaterStatus = "needs_review"

// ReviewLaterItem is a lightweight record of a review deferred for later.
type ReviewLaterItem struct {
	SavedAt     time.Time `json:"saved_at"`
	UnitCost    *float64  `json:"unit_cost,omitempty"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	HTS         string    `json:"hts"`
	Origin      string    `json:"origin"`
	Vendor      string    `json:"vendor"`
	Status      string    `json:"status"`
	Confidence  float64   `json:"confidence"`
	ResultID    int64     `json:"result_id"`
}
