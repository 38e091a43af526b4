package confidence

import (
	"regexp"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// IssueDetector decides whether free text supplies the facts behind an issue.
// Text passed to Detect is already lower-cased.
type IssueDetector interface {
	Detect(text string) bool
}

// DetectorFunc adapts a plain function to IssueDetector.
type DetectorFunc func(text string) bool

// Detect implements IssueDetector.
func (f DetectorFunc) Detect(text string) bool {
	return f(text)
}

// KeywordDetector matches any of a fixed vocabulary as substrings using an
// Aho-Corasick automaton, so a single pass covers every keyword.
type KeywordDetector struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	mu       sync.Mutex
}

// Keywords builds a detector for the given vocabulary.
func Keywords(words ...string) *KeywordDetector {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			normalized = append(normalized, w)
		}
	}
	d := &KeywordDetector{keywords: normalized}
	if len(normalized) > 0 {
		d.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return d
}

// Detect implements IssueDetector.
func (d *KeywordDetector) Detect(text string) bool {
	return len(d.Matches(text)) > 0
}

// Matches returns the keywords present in text, in order of first occurrence.
func (d *KeywordDetector) Matches(text string) []string {
	if d.matcher == nil || text == "" {
		return nil
	}
	// The matcher keeps per-call state and is not safe for concurrent Match calls.
	d.mu.Lock()
	hits := d.matcher.Match([]byte(text))
	d.mu.Unlock()

	found := make([]string, 0, len(hits))
	for _, idx := range hits {
		if idx < len(d.keywords) {
			found = append(found, d.keywords[idx])
		}
	}
	return found
}

// PatternDetector matches a regular expression.
type PatternDetector struct {
	re *regexp.Regexp
}

// Pattern compiles expr into a detector; it panics on invalid patterns.
func Pattern(expr string) *PatternDetector {
	return &PatternDetector{re: regexp.MustCompile(expr)}
}

// Detect implements IssueDetector.
func (d *PatternDetector) Detect(text string) bool {
	return d.re.MatchString(text)
}

// AllOf matches when every detector matches.
func AllOf(ds ...IssueDetector) IssueDetector {
	return DetectorFunc(func(text string) bool {
		for _, d := range ds {
			if !d.Detect(text) {
				return false
			}
		}
		return len(ds) > 0
	})
}

// AnyOf matches when at least one detector matches.
func AnyOf(ds ...IssueDetector) IssueDetector {
	return DetectorFunc(func(text string) bool {
		for _, d := range ds {
			if d.Detect(text) {
				return true
			}
		}
		return false
	})
}
