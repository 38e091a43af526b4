package review

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
)

// Family is the topic of a reviewer message, used to pick a reply.
type Family string

// Reply families, in match priority order.
const (
	FamilyPrimaryUse    Family = "primary_use"
	FamilyMaterial      Family = "material"
	FamilyCertification Family = "certification"
	FamilyDuty          Family = "duty"
	FamilyHelp          Family = "help"
	FamilyGeneric       Family = "generic"
)

type familyRule struct {
	detector confidence.IssueDetector
	family   Family
}

var familyRules = []familyRule{
	{family: FamilyPrimaryUse, detector: confidence.Keywords("primary function", "main use", "primary use", "essential character")},
	{family: FamilyMaterial, detector: confidence.AnyOf(
		confidence.Keywords("material", "made of"),
		confidence.Pattern(`\d+\s*%`),
	)},
	{family: FamilyCertification, detector: confidence.Keywords("medical", "fda", "certified", "certification")},
	{family: FamilyDuty, detector: confidence.Keywords("tariff", "duty", "rate", "save", "cost")},
	{family: FamilyHelp, detector: confidence.Keywords("help", "what do you need", "how can")},
}

// Classify returns the reply family of a reviewer message.
func Classify(text string) Family {
	lower := strings.ToLower(text)
	for _, r := range familyRules {
		if r.detector.Detect(lower) {
			return r.family
		}
	}
	return FamilyGeneric
}

func announce(u confidence.Update) string {
	msg := fmt.Sprintf("Confidence updated: %s → %s (+%d%%).",
		confidence.Percent(u.From), confidence.Percent(u.To), u.Delta())
	if confidence.ReviewTier(u.To) == confidence.TierReady {
		return msg + " This classification is now high confidence and ready for approval!"
	}
	return msg + " Keep providing details to boost confidence further."
}

func cannedReply(text string, s *Session) string {
	switch Classify(text) {
	case FamilyPrimaryUse:
		return "The primary function, or essential character, decides between competing headings. " +
			"Tell me how the product is marketed and what buyers use it for first; secondary features carry less weight."
	case FamilyMaterial:
		return "Material details help narrow the subheading. Which materials make up the product and in what " +
			"percentages? A specification sheet works too."
	case FamilyCertification:
		return "Certifications can shift the classification significantly. If the product has FDA registration or a CE " +
			"medical device certificate, it strengthens the case for an instrument heading. Can you share the documents?"
	case FamilyDuty:
		return dutyReply(s)
	case FamilyHelp:
		return helpReply(s)
	default:
		return "More specific product details would help. You can upload the specification sheet, share marketing " +
			"material, tell me about certifications, or describe the primary use."
	}
}

// dutyReply compares the duty rates of the session's candidates.
func dutyReply(s *Session) string {
	var b strings.Builder
	b.WriteString("Here is how the candidates compare on duty:")
	for _, c := range s.Candidates {
		fmt.Fprintf(&b, "\n• %s", c.HTS)
		if c.Description != "" {
			fmt.Fprintf(&b, " (%s)", c.Description)
		}
		b.WriteString(": ")
		b.WriteString(formatRate(c.TariffRate))
		if c.TariffRate != nil && s.Product.UnitCost != nil {
			fmt.Fprintf(&b, ", $%.2f per unit", *c.TariffRate**s.Product.UnitCost)
		}
	}
	b.WriteString("\nGetting the classification right directly affects what you pay.")
	return b.String()
}

func helpReply(s *Session) string {
	open := s.State.Unresolved(s.catalog)
	if len(open) == 0 {
		return "Every issue I was tracking is resolved. Review the selected code and approve when you are satisfied."
	}
	var b strings.Builder
	b.WriteString("Here's what would raise the confidence score:")
	for i, key := range open {
		issue, _ := s.catalog.Get(key)
		fmt.Fprintf(&b, "\n%d. %s", i+1, issue.Question)
	}
	b.WriteString("\nType the details or upload a document.")
	return b.String()
}

func selectionReply(result model.ClassificationResult, chosen model.Candidate) string {
	if chosen.HTS == result.HTSCode {
		return fmt.Sprintf("You've selected my original suggestion (%s). It is still a valid option, though the %s "+
			"confidence means we should verify the details before finalizing.", chosen.HTS, confidence.Percent(result.Confidence))
	}
	msg := fmt.Sprintf("You've selected %s", chosen.HTS)
	if chosen.Description != "" {
		msg += fmt.Sprintf(" (%s)", chosen.Description)
	}
	if chosen.TariffRate != nil {
		msg += fmt.Sprintf(" at %s duty.", formatRate(chosen.TariffRate))
	} else {
		msg += ". Its duty rate is not known yet."
	}
	if r := strings.TrimSpace(chosen.Reasoning); r != "" {
		msg += " " + strings.TrimSuffix(r, ".") + "."
	}
	return msg + " This could work if the product characteristics match."
}

func documentReply(n int, u confidence.Update, changed bool) string {
	noun, verb := "document", "It covers"
	if n > 1 {
		noun, verb = "documents", "They cover"
	}
	if !changed {
		return fmt.Sprintf("I've attached the %s to this review. Every issue was already resolved.", noun)
	}
	labels := make([]string, 0, len(u.Newly))
	for _, k := range u.Newly {
		labels = append(labels, strings.ReplaceAll(string(k), "_", " "))
	}
	return fmt.Sprintf("I've analyzed the %s. %s %s.", noun, verb, strings.Join(labels, ", "))
}

func formatRate(rate *float64) string {
	if rate == nil {
		return "rate unknown"
	}
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", *rate*100), "0"), ".") + "%"
}
