// Package model defines the core domain models used throughout the application.
package model

import "time"

// ClassificationResult is the output of one successful classification.
// Confidence is a fraction in [0, 1]; it is only scaled to a percentage for display.
type ClassificationResult struct {
	ClassifiedAt            time.Time
	TariffRate              *float64
	TariffAmount            *float64
	TotalCost               *float64
	HTSCode                 string
	AlternateClassification string
	Description             string
	Reasoning               string
	Alternatives            Candidates
	Confidence              float64
	ID                      int64
	ProductID               int64
	RunID                   int64
}

// PrimaryCandidate returns the result's chosen code as a candidate.
func (r ClassificationResult) PrimaryCandidate() Candidate {
	return Candidate{
		HTS:         r.HTSCode,
		Score:       r.Confidence,
		Description: r.Description,
		TariffRate:  r.TariffRate,
		Reasoning:   r.Reasoning,
	}
}

// ApplyTariff derives tariff amount and total cost from the rate and unit cost.
func (r *ClassificationResult) ApplyTariff(unitCost *float64) {
	r.TariffAmount = nil
	r.TotalCost = nil
	if unitCost == nil {
		return
	}
	total := *unitCost
	if r.TariffRate != nil {
		amount := *unitCost * *r.TariffRate
		r.TariffAmount = &amount
		total += amount
	}
	r.TotalCost = &total
}

// ApprovalRecord marks a classification result as reviewed by a human.
type ApprovalRecord struct {
	CreatedAt              time.Time
	UserID                 string
	ChosenHTS              string
	Notes                  string
	ID                     int64
	ClassificationResultID int64
	Approved               bool
}
