package answer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/metrics"
)

var (
	priceRegex = regexp.MustCompile(`\d{1,4}(?:\.\d{1,2})?`)
	sizeRegex  = regexp.MustCompile(`[A-Z]{1,3}`)
	spaceRegex = regexp.MustCompile(`\s{2,}`)
)

// Verifier cross-checks factual claims in an answer against the cited
// documents. It corrects what it can prove wrong and leaves everything
// it cannot verify untouched.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify returns the corrected answer and the corrections applied.
// Prices the cited products do not carry are rewritten to a cited
// price; size tokens no cited product has in stock are removed. With
// no cited product data the answer passes through unchanged. Applying
// Verify to its own output is a no-op.
func (v *Verifier) Verify(answer string, docs []domain.Document) (string, domain.Correction) {
	corrections := domain.Correction{}

	if prices := citedPrices(docs); len(prices) > 0 {
		replacement := formatPrice(prices[0])
		for _, claimed := range claimedPrices(answer) {
			if !priceSupported(claimed, prices) {
				corrections[claimed] = replacement
				metrics.GuardrailCorrectionsTotal.WithLabelValues("price").Inc()
			}
		}
	}

	if sizes := citedSizes(docs); len(sizes) > 0 {
		for _, tok := range claimedSizes(answer) {
			if _, ok := sizes[domain.Size(tok)]; !ok {
				corrections[tok] = ""
				metrics.GuardrailCorrectionsTotal.WithLabelValues("size").Inc()
			}
		}
	}

	if len(corrections) == 0 {
		return answer, nil
	}
	return applyCorrections(answer, corrections), corrections
}

// applyCorrections substitutes whole tokens only, longest first so a
// short literal never rewrites part of a longer one, then collapses
// the whitespace that removals leave behind.
func applyCorrections(answer string, corrections domain.Correction) string {
	keys := make([]string, 0, len(corrections))
	for k := range corrections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	out := answer
	for _, wrong := range keys {
		out = substituteToken(out, wrong, corrections[wrong])
	}
	out = spaceRegex.ReplaceAllString(out, " ")
	out = strings.ReplaceAll(out, " ,", ",")
	out = strings.ReplaceAll(out, " .", ".")
	return strings.TrimSpace(out)
}

// substituteToken replaces standalone occurrences of wrong. The same
// adjacency rules as extraction apply, so a literal like "49" never
// rewrites the "49" inside a supported "49.99".
func substituteToken(text, wrong, right string) string {
	re := regexp.MustCompile(regexp.QuoteMeta(wrong))
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] < last || !standaloneToken(text, loc[0], loc[1]) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(right)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// standaloneToken reports whether text[start:end] is a whole token: not
// glued to a word character or a dot on the left, not glued to a word
// character on the right, and not followed by a decimal continuation.
func standaloneToken(text string, start, end int) bool {
	if start > 0 {
		p := text[start-1]
		if isWordByte(p) || p == '.' {
			return false
		}
	}
	if end < len(text) {
		n := text[end]
		if isWordByte(n) {
			return false
		}
		if n == '.' && end+1 < len(text) && text[end+1] >= '0' && text[end+1] <= '9' {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= '0' && b <= '9') ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}

// claimedPrices extracts the number literals in the answer that could
// be prices. A match glued to a neighboring digit or dot is a fragment
// of a longer literal and is skipped.
func claimedPrices(answer string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, loc := range priceRegex.FindAllStringIndex(answer, -1) {
		if loc[0] > 0 {
			prev := answer[loc[0]-1]
			if (prev >= '0' && prev <= '9') || prev == '.' {
				continue
			}
		}
		if loc[1] < len(answer) {
			next := answer[loc[1]]
			if next >= '0' && next <= '9' {
				continue
			}
		}
		m := answer[loc[0]:loc[1]]
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func claimedSizes(answer string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range sizeRegex.FindAllString(answer, -1) {
		if _, ok := domain.ParseSize(tok); !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func citedPrices(docs []domain.Document) []float64 {
	var out []float64
	for _, d := range docs {
		if d.Meta.Price != nil {
			out = append(out, *d.Meta.Price)
		}
	}
	return out
}

func citedSizes(docs []domain.Document) map[domain.Size]struct{} {
	out := make(map[domain.Size]struct{})
	for _, d := range docs {
		for _, s := range d.Meta.InStockSizes() {
			out[s] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func priceSupported(claimed string, prices []float64) bool {
	v, err := strconv.ParseFloat(claimed, 64)
	if err != nil {
		return true // not a number after all, leave it alone
	}
	for _, p := range prices {
		if v == p {
			return true
		}
	}
	return false
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
