package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/tariff/internal/classifier"
	"github.com/Veraticus/tariff/internal/confidence"
)

const fallbackQuestion = "Could you describe the product in more detail, including what it does and who it is for?"

// synthesizeQuestion builds the next clarification question from what the
// classifier understood and which issue categories the text still lacks.
func synthesizeQuestion(resp *classifier.Response, text string, catalog *confidence.Catalog) string {
	var b strings.Builder

	if resp != nil && strings.TrimSpace(resp.Normalized) != "" {
		fmt.Fprintf(&b, "I couldn't find a confident HTS match for %q.", strings.TrimSpace(resp.Normalized))
	} else {
		b.WriteString("I couldn't find a confident HTS match yet.")
	}

	if resp != nil {
		if known := describeAttributes(resp.Attributes); known != "" {
			b.WriteString(" So far I have ")
			b.WriteString(known)
			b.WriteString(".")
		}
	}

	questions := missingQuestions(text, catalog)
	if len(questions) == 0 {
		questions = []string{fallbackQuestion}
	}
	for _, q := range questions {
		b.WriteString(" ")
		b.WriteString(q)
	}
	return b.String()
}

func missingQuestions(text string, catalog *confidence.Catalog) []string {
	if catalog == nil {
		return nil
	}
	detected := confidence.NewIssueSet(catalog.Detect(text)...)
	var out []string
	for _, issue := range catalog.Issues() {
		if detected.Has(issue.Key) || issue.Question == "" {
			continue
		}
		out = append(out, issue.Question)
	}
	return out
}

// describeAttributes renders attributes as "key: value" pairs in key order.
func describeAttributes(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.TrimSpace(fmt.Sprint(attrs[k]))
		if v == "" || v == "<nil>" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ReplaceAll(k, "_", " "), v))
	}
	return strings.Join(parts, ", ")
}
