package confidence

import (
	"fmt"
	"strings"
)

// IssueKey names an ambiguity category that lowers classification confidence.
type IssueKey string

// Built-in issue keys.
const (
	IssuePrimaryUse    IssueKey = "primary_use"
	IssueMaterials     IssueKey = "materials"
	IssueCertification IssueKey = "certification"
)

// Issue is one catalog entry: how to spot it and what resolving it is worth.
type Issue struct {
	Detector    IssueDetector
	Key         IssueKey
	Label       string
	Explanation string
	Question    string
	Weight      int
}

// Catalog is the fixed, ordered set of issues evaluated against evidence.
type Catalog struct {
	index  map[IssueKey]int
	issues []Issue
}

// NewCatalog validates and indexes issues.
func NewCatalog(issues ...Issue) (*Catalog, error) {
	c := &Catalog{index: make(map[IssueKey]int, len(issues))}
	for i, issue := range issues {
		if issue.Key == "" {
			return nil, fmt.Errorf("issue %d: key is required", i)
		}
		if issue.Detector == nil {
			return nil, fmt.Errorf("issue %s: detector is required", issue.Key)
		}
		if issue.Weight <= 0 {
			return nil, fmt.Errorf("issue %s: weight must be positive", issue.Key)
		}
		if _, dup := c.index[issue.Key]; dup {
			return nil, fmt.Errorf("issue %s: duplicate key", issue.Key)
		}
		c.index[issue.Key] = len(c.issues)
		c.issues = append(c.issues, issue)
	}
	return c, nil
}

// DefaultCatalog returns the primary-use, materials and certification issues.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Issue{
			Key:         IssuePrimaryUse,
			Label:       "Unclear Primary Function",
			Explanation: "The product may combine several functions; classification depends on which one is primary.",
			Question:    "What is the product's primary intended use, and how is it marketed?",
			Weight:      12,
			Detector: AllOf(
				Keywords("health", "fitness", "monitor", "track"),
				Keywords("primary", "main", "marketed"),
			),
		},
		Issue{
			Key:         IssueMaterials,
			Label:       "Insufficient Material Information",
			Explanation: "Missing material composition affects the precise subheading.",
			Question:    "What is the product made of? Percentages by material help most.",
			Weight:      8,
			Detector: AnyOf(
				AllOf(
					Keywords("material", "made", "composition", "fabric"),
					Keywords("cotton", "polyester", "wool", "nylon", "leather", "rubber",
						"aluminum", "steel", "plastic", "silicone", "metal"),
				),
				Pattern(`\d+\s*%`),
			),
		},
		Issue{
			Key:         IssueCertification,
			Label:       "Certification Status Unknown",
			Explanation: "Medical device certification (FDA, CE) can change the classification and duty rate.",
			Question:    "Is the product certified (for example FDA registered, CE marked, or a Class II medical device)?",
			Weight:      9,
			Detector:    Keywords("fda", "ce mark", "certified", "class ii", "medical device"),
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Issues returns the catalog entries in order.
func (c *Catalog) Issues() []Issue {
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Keys returns every issue key in catalog order.
func (c *Catalog) Keys() []IssueKey {
	keys := make([]IssueKey, len(c.issues))
	for i, issue := range c.issues {
		keys[i] = issue.Key
	}
	return keys
}

// Get looks up an issue by key.
func (c *Catalog) Get(key IssueKey) (Issue, bool) {
	i, ok := c.index[key]
	if !ok {
		return Issue{}, false
	}
	return c.issues[i], true
}

// Detect evaluates every issue independently against text and returns the
// keys whose facts the text supplies, in catalog order.
func (c *Catalog) Detect(text string) []IssueKey {
	lower := strings.ToLower(text)
	var found []IssueKey
	for _, issue := range c.issues {
		if issue.Detector.Detect(lower) {
			found = append(found, issue.Key)
		}
	}
	return found
}

// Weight sums the weights of the given keys; unknown keys count zero.
func (c *Catalog) Weight(keys []IssueKey) int {
	total := 0
	for _, k := range keys {
		if issue, ok := c.Get(k); ok {
			total += issue.Weight
		}
	}
	return total
}

// IssueSet is an insertion-ordered set of issue keys.
type IssueSet struct {
	members map[IssueKey]struct{}
	order   []IssueKey
}

// NewIssueSet builds a set from keys.
func NewIssueSet(keys ...IssueKey) IssueSet {
	var s IssueSet
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts k and reports whether it was new.
func (s *IssueSet) Add(k IssueKey) bool {
	if s.members == nil {
		s.members = make(map[IssueKey]struct{})
	}
	if _, ok := s.members[k]; ok {
		return false
	}
	s.members[k] = struct{}{}
	s.order = append(s.order, k)
	return true
}

// Has reports membership.
func (s IssueSet) Has(k IssueKey) bool {
	_, ok := s.members[k]
	return ok
}

// Len returns the number of members.
func (s IssueSet) Len() int {
	return len(s.order)
}

// Keys returns members in insertion order.
func (s IssueSet) Keys() []IssueKey {
	out := make([]IssueKey, len(s.order))
	copy(out, s.order)
	return out
}

// Missing returns the keys not in s, preserving the order given.
func (s IssueSet) Missing(keys []IssueKey) []IssueKey {
	var out []IssueKey
	seen := make(map[IssueKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if !s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns an independent copy.
func (s IssueSet) Clone() IssueSet {
	return NewIssueSet(s.order...)
}

// All returns every issue key; a document upload resolves all of them.
func (c *Catalog) All() []IssueKey {
	return c.Keys()
}
