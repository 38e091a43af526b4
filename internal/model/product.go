package model

import (
	"fmt"
	"strings"
	"time"
)

// Material is one entry of a product's material composition.
type Material struct {
	Material   string  `json:"material"`
	Percentage float64 `json:"percentage"`
}

// String renders the material as "cotton 60%".
func (m Material) String() string {
	return fmt.Sprintf("%s %s%%", m.Material, trimFloat(m.Percentage))
}

// ProductInput is what the user supplied when requesting a classification.
type ProductInput struct {
	UnitCost        *float64   `json:"unit_cost,omitempty"`
	Name            string     `json:"name,omitempty"`
	Description     string     `json:"description"`
	CountryOfOrigin string     `json:"country_of_origin,omitempty"`
	Vendor          string     `json:"vendor,omitempty"`
	SKU             string     `json:"sku,omitempty"`
	Materials       []Material `json:"materials,omitempty"`
}

// TotalPercentage sums the material percentages.
func (p ProductInput) TotalPercentage() float64 {
	var total float64
	for _, m := range p.Materials {
		total += m.Percentage
	}
	return total
}

// MaterialsSummary renders the ordered materials as a comma separated list.
func (p ProductInput) MaterialsSummary() string {
	parts := make([]string, 0, len(p.Materials))
	for _, m := range p.Materials {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, ", ")
}

// Validate checks the input is classifiable.
func (p ProductInput) Validate() error {
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("product description is required")
	}
	for i, m := range p.Materials {
		if strings.TrimSpace(m.Material) == "" {
			return fmt.Errorf("material %d: name is required", i)
		}
		if m.Percentage < 0 || m.Percentage > 100 {
			return fmt.Errorf("material %d: percentage must be between 0 and 100", i)
		}
	}
	if total := p.TotalPercentage(); total > 100 {
		return fmt.Errorf("material percentages add up to %s%%", trimFloat(total))
	}
	if p.UnitCost != nil && *p.UnitCost < 0 {
		return fmt.Errorf("unit cost cannot be negative")
	}
	return nil
}

// Product is the stored subject of a completed classification.
type Product struct {
	CreatedAt time.Time
	UserID    string
	ProductInput
	ID    int64
	RunID int64
}

// DisplayName falls back to a placeholder for unnamed products.
func (p Product) DisplayName() string {
	if strings.TrimSpace(p.Name) == "" {
		return "Unnamed Product"
	}
	return p.Name
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
