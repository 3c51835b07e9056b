// Package answer turns retrieved documents into a grounded answer:
// drafting via the generation provider, citation normalization, and a
// guardrail pass that corrects claims the cited documents do not
// support.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/logger"
)

// maxContextChars caps how much of each document's text goes into the
// prompt.
const maxContextChars = 1200

// Generator produces a completion from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Draft is the parsed model output before guardrails run.
type Draft struct {
	Answer string
	// Citations are the references the model returned, in reply order.
	// Empty when the model cited nothing usable.
	Citations []CitationRef
	// Fallback is set when the model response could not be parsed and
	// the raw text was taken as the answer.
	Fallback bool
}

// CitationRef is one citation as the model returned it: either a
// 1-based index into the context block, or an already canonical
// {title, url} object to be matched back onto a retrieved document.
type CitationRef struct {
	Index int
	Title string
	URL   string
}

// Drafter prompts the generation provider with retrieved documents and
// parses the structured reply.
type Drafter struct {
	generator Generator
}

func NewDrafter(generator Generator) *Drafter {
	return &Drafter{generator: generator}
}

var systemPrompts = map[domain.IntentKind]string{
	domain.IntentPolicy: "You answer store policy questions using only the numbered documents provided. " +
		"Quote concrete terms such as durations and fees from the documents.",
	domain.IntentSizeFit: "You answer sizing and fit questions using only the numbered documents provided. " +
		"Only name sizes the documents list as available.",
	domain.IntentLookupProduct: "You answer product questions using only the numbered documents provided. " +
		"Mention prices, colors and materials only when a document states them.",
	domain.IntentMulti: "The user asked several questions at once. Answer each in turn using only the " +
		"numbered documents provided.",
}

const outputContract = " Respond with a JSON object: " +
	`{"answer": "<your answer>", "citations": [<1-based document numbers you relied on>]}. ` +
	"If the documents do not contain the answer, say so in the answer field."

// Compose asks the provider for an answer over the given documents.
// An unparsable reply degrades to the raw text with no citations
// rather than an error; only provider failures propagate.
func (d *Drafter) Compose(
	ctx context.Context, intent domain.Intent, query string, docs []domain.Document,
) (Draft, error) {
	log := logger.FromContext(ctx)

	system, ok := systemPrompts[intent.Kind]
	if !ok {
		system = systemPrompts[domain.IntentLookupProduct]
	}
	user := fmt.Sprintf("Documents:\n%s\nQuestion: %s", contextBlock(docs), query)

	raw, err := d.generator.Generate(ctx, system+outputContract, user)
	if err != nil {
		return Draft{}, err
	}

	draft, perr := parseDraft(raw)
	if perr != nil {
		log.Warn("unparsable model reply, using raw text", zap.Error(perr))
		return Draft{Answer: strings.TrimSpace(stripFences(raw)), Fallback: true}, nil
	}
	return draft, nil
}

// contextBlock renders the documents as a numbered list, 1-based,
// clipping each body.
func contextBlock(docs []domain.Document) string {
	var b strings.Builder
	for i, doc := range docs {
		text := clip(doc.Text, maxContextChars)
		fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, doc.Title, text)
	}
	return b.String()
}

// clip truncates s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

type draftPayload struct {
	Answer    string            `json:"answer"`
	Citations []json.RawMessage `json:"citations"`
}

func parseDraft(raw string) (Draft, error) {
	cleaned := stripFences(raw)

	var payload draftPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if strings.TrimSpace(payload.Answer) == "" {
		return Draft{}, fmt.Errorf("%w: empty answer field", domain.ErrParse)
	}

	draft := Draft{Answer: strings.TrimSpace(payload.Answer)}
	for _, c := range payload.Citations {
		if ref, ok := parseCitationRef(c); ok {
			draft.Citations = append(draft.Citations, ref)
		}
	}
	return draft, nil
}

// parseCitationRef accepts a positive integer, a string such as "3" or
// "[3]", or a canonical citation object carrying a title or url.
// Indices are 1-based, so zero and below never resolve.
func parseCitationRef(raw json.RawMessage) (CitationRef, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return CitationRef{Index: n}, n > 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(s, "[")
		s = strings.TrimSuffix(s, "]")
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return CitationRef{}, false
		}
		return CitationRef{Index: n}, n > 0
	}

	var obj struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return CitationRef{}, false
	}
	obj.Title = strings.TrimSpace(obj.Title)
	obj.URL = strings.TrimSpace(obj.URL)
	if obj.Title == "" && obj.URL == "" {
		return CitationRef{}, false
	}
	return CitationRef{Title: obj.Title, URL: obj.URL}, true
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
