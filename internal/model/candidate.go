package model

import (
	"fmt"
	"strings"
)

// MissingHTS is substituted when the classifier returns a candidate without a code.
const MissingHTS = "N/A"

// Candidate is one proposed HTS code returned by the classifier.
type Candidate struct {
	TariffRate  *float64 `json:"tariff_rate,omitempty"`
	HTS         string   `json:"hts"`
	Description string   `json:"description"`
	Reasoning   string   `json:"reasoning,omitempty"`
	Score       float64  `json:"score"`
}

// Normalized returns a copy with defaults substituted for missing fields
// and the score clamped into [0, 1].
func (c Candidate) Normalized() Candidate {
	if strings.TrimSpace(c.HTS) == "" {
		c.HTS = MissingHTS
	}
	switch {
	case c.Score < 0:
		c.Score = 0
	case c.Score > 1:
		c.Score = 1
	}
	if c.TariffRate != nil && *c.TariffRate < 0 {
		c.TariffRate = nil
	}
	return c
}

// Validate ensures the candidate carries a usable code and score.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.HTS) == "" {
		return fmt.Errorf("hts code is required")
	}
	if c.Score < 0.0 || c.Score > 1.0 {
		return fmt.Errorf("score must be between 0.0 and 1.0, got %.2f", c.Score)
	}
	return nil
}

// Candidates keeps the classifier's order: most similar first.
type Candidates []Candidate

// Normalized applies Candidate.Normalized to every entry.
func (cs Candidates) Normalized() Candidates {
	out := make(Candidates, len(cs))
	for i, c := range cs {
		out[i] = c.Normalized()
	}
	return out
}

// Primary returns the first candidate, or nil if empty.
func (cs Candidates) Primary() *Candidate {
	if len(cs) == 0 {
		return nil
	}
	return &cs[0]
}

// Alternatives returns every candidate after the primary.
func (cs Candidates) Alternatives() Candidates {
	if len(cs) < 2 {
		return Candidates{}
	}
	out := make(Candidates, len(cs)-1)
	copy(out, cs[1:])
	return out
}

// TopN returns at most n leading candidates.
func (cs Candidates) TopN(n int) Candidates {
	if n <= 0 {
		return Candidates{}
	}
	if n > len(cs) {
		n = len(cs)
	}
	out := make(Candidates, n)
	copy(out, cs[:n])
	return out
}

// Index returns the position of the candidate with the given code, or -1.
func (cs Candidates) Index(hts string) int {
	for i, c := range cs {
		if c.HTS == hts {
			return i
		}
	}
	return -1
}

// Validate ensures all candidates are valid and codes are unique.
func (cs Candidates) Validate() error {
	seen := make(map[string]bool)
	for i, c := range cs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candidate at index %d: %w", i, err)
		}
		if c.HTS != MissingHTS && seen[c.HTS] {
			return fmt.Errorf("duplicate hts %q in candidates", c.HTS)
		}
		seen[c.HTS] = true
	}
	return nil
}
