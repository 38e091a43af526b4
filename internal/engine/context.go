package engine

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tariff/internal/model"
)

// Fact is one labelled piece of product information sent to the classifier.
type Fact struct {
	Field string
	Value string
}

// ClarificationContext is the ordered set of facts known about a product.
// Each classifier call receives the whole context, never just the latest answer.
type ClarificationContext struct {
	facts   []Fact
	answers int
}

// NewContext seeds a context from what the user typed.
func NewContext(input model.ProductInput) ClarificationContext {
	var c ClarificationContext
	c.Add("Product", input.Name)
	c.Add("Description", input.Description)
	c.Add("Country of origin", input.CountryOfOrigin)
	c.Add("Materials", input.MaterialsSummary())
	return c
}

// Add appends a fact. Blank values are ignored.
func (c *ClarificationContext) Add(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	c.facts = append(c.facts, Fact{Field: field, Value: value})
}

// AddAnswer records a clarification answer as the next numbered fact.
func (c *ClarificationContext) AddAnswer(answer string) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return
	}
	c.answers++
	c.facts = append(c.facts, Fact{Field: fmt.Sprintf("Clarification %d", c.answers), Value: answer})
}

// Answers returns the number of recorded answers.
func (c ClarificationContext) Answers() int {
	return c.answers
}

// Facts returns a copy of the facts in insertion order.
func (c ClarificationContext) Facts() []Fact {
	out := make([]Fact, len(c.facts))
	copy(out, c.facts)
	return out
}

// Serialize renders the context as "Field: value" lines.
func (c ClarificationContext) Serialize() string {
	var b strings.Builder
	for i, f := range c.facts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Field)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}
