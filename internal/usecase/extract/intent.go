package extract

import (
	"regexp"
	"strings"

	"github.com/cove-labs/concierge/internal/domain"
)

var policyKeywords = []string{
	"return", "refund", "shipping", "delivery", "dispatch", "tax", "customs",
	"vat", "duty", "warranty", "privacy", "gdpr", "cancel", "cancellation",
}

var sizeFitKeywords = []string{
	"size", "fit", "tight", "loose", "regular", "measure", "measurement",
	"height", "weight", "cm", "kg", "inches", "lbs",
}

var (
	multiRegex = regexp.MustCompile(`\?\s+\w|\band\b.*\b(what|do|is|are|how)\b`)
	splitRegex = regexp.MustCompile(`\?\s+| and `)
)

// Classify determines the intent of a question. First match wins:
// policy keywords, then size/fit keywords or an extracted size filter,
// then the compound-question heuristic, then product lookup.
func Classify(query string, attrs domain.AttributeFilter) domain.Intent {
	q := strings.ToLower(query)

	for _, k := range policyKeywords {
		if strings.Contains(q, k) {
			return domain.Intent{Kind: domain.IntentPolicy}
		}
	}

	if len(attrs.Sizes) > 0 {
		return domain.Intent{Kind: domain.IntentSizeFit}
	}
	for _, k := range sizeFitKeywords {
		if strings.Contains(q, k) {
			return domain.Intent{Kind: domain.IntentSizeFit}
		}
	}

	if multiRegex.MatchString(q) {
		return domain.Intent{Kind: domain.IntentMulti, SubQueries: splitCompound(query)}
	}

	return domain.Intent{Kind: domain.IntentLookupProduct}
}

// splitCompound breaks a compound question into at most MaxSubQueries
// sub-questions.
func splitCompound(query string) []string {
	parts := splitRegex.Split(query, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if len(out) == domain.MaxSubQueries {
			break
		}
	}
	return out
}
