// Package extract turns raw query text into attribute filters and an
// intent category. Everything here is a pure function of the query and
// a vocabulary snapshot.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cove-labs/concierge/internal/domain"
)

// fallbackColors supplements the catalog vocabulary with common color
// words so color extraction works even before the first vocabulary
// refresh.
var fallbackColors = map[string]struct{}{
	"black": {}, "white": {}, "gray": {}, "grey": {}, "cream": {}, "beige": {},
	"red": {}, "maroon": {}, "crimson": {}, "pink": {}, "hotpink": {}, "rose": {},
	"orange": {}, "amber": {}, "yellow": {}, "gold": {}, "mustard": {},
	"green": {}, "lime": {}, "olive": {}, "teal": {},
	"blue": {}, "navy": {}, "azure": {}, "cyan": {},
	"purple": {}, "violet": {}, "lavender": {}, "magenta": {},
}

var wordRegex = regexp.MustCompile(`[a-zA-Z]+`)

// DefaultFuzzyCutoff is the similarity threshold for fuzzy type
// matching. Tunable, not a load-bearing correctness guarantee.
const DefaultFuzzyCutoff = 0.84

// Extractor derives attribute filters from query text.
type Extractor struct {
	fuzzyCutoff float64
}

// New creates an extractor with the given fuzzy-match cutoff; zero
// takes the default.
func New(fuzzyCutoff float64) *Extractor {
	if fuzzyCutoff <= 0 {
		fuzzyCutoff = DefaultFuzzyCutoff
	}
	return &Extractor{fuzzyCutoff: fuzzyCutoff}
}

// Attributes extracts the colors, sizes and types a query asks for.
func (e *Extractor) Attributes(query string, vocab domain.Vocabulary) domain.AttributeFilter {
	tokens := wordRegex.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}

	var filter domain.AttributeFilter

	colorSet := make(map[string]struct{})
	for t := range seen {
		if _, ok := fallbackColors[t]; ok {
			colorSet[t] = struct{}{}
			continue
		}
		if vocab.HasColor(t) {
			colorSet[t] = struct{}{}
		}
	}
	// Compound color: "hot pink" tokenizes into two words.
	if _, hot := seen["hot"]; hot {
		if _, pink := seen["pink"]; pink {
			colorSet["hotpink"] = struct{}{}
		}
	}
	for c := range colorSet {
		filter.Colors = append(filter.Colors, c)
	}
	sort.Strings(filter.Colors)

	sizeSet := make(map[domain.Size]struct{})
	for t := range seen {
		if s, ok := domain.ParseSize(t); ok {
			sizeSet[s] = struct{}{}
		}
	}
	for _, s := range domain.AllSizes {
		if _, ok := sizeSet[s]; ok {
			filter.Sizes = append(filter.Sizes, s)
		}
	}

	typeSet := make(map[string]struct{})
	for t := range seen {
		if normalized, ok := e.normalizeType(t, vocab); ok {
			typeSet[normalized] = struct{}{}
		}
	}
	for t := range typeSet {
		filter.Types = append(filter.Types, t)
	}
	sort.Strings(filter.Types)

	return filter
}

// normalizeType resolves a token against the type vocabulary: exact
// match first, then plural suffix stripping, then fuzzy match above
// the cutoff. An unresolvable token is dropped, never guessed.
func (e *Extractor) normalizeType(tok string, vocab domain.Vocabulary) (string, bool) {
	candidates := []string{tok}
	for _, stripped := range stripPlural(tok) {
		candidates = append(candidates, stripped)
	}

	for _, c := range candidates {
		if vocab.HasType(c) {
			return c, true
		}
	}

	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		for known := range vocab.Types {
			if score := matchRatio(c, known); score >= e.fuzzyCutoff && score > bestScore {
				best = known
				bestScore = score
			}
		}
	}
	if best != "" {
		return best, true
	}
	return "", false
}

// stripPlural applies simple English plural suffix heuristics.
func stripPlural(tok string) []string {
	var out []string
	if strings.HasSuffix(tok, "ies") && len(tok) > 3 {
		out = append(out, tok[:len(tok)-3]+"y")
	}
	if strings.HasSuffix(tok, "es") && len(tok) > 2 {
		out = append(out, tok[:len(tok)-2])
	}
	if strings.HasSuffix(tok, "s") && len(tok) > 1 {
		out = append(out, tok[:len(tok)-1])
	}
	return out
}
