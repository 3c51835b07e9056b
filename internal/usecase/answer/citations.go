package answer

import (
	"strings"

	"github.com/cove-labs/concierge/internal/domain"
)

// NormalizeCitations maps the model's references onto the documents
// that were actually in the prompt. Index references resolve by
// position; canonical {title, url} references pass through by matching
// a retrieved document, so a citation is never fabricated.
// Out-of-range, unmatched and duplicate references are discarded. When
// nothing usable remains and at least one document was retrieved,
// every retrieved document is cited; an answer is never presented as
// ungrounded while sources exist.
func NormalizeCitations(refs []CitationRef, hits []domain.RetrievalHit) []domain.Citation {
	if len(hits) == 0 {
		return nil
	}

	resolved := resolveRefs(refs, hits)
	out := make([]domain.Citation, 0, len(resolved))
	for _, i := range resolved {
		out = append(out, citationFor(hits[i]))
	}

	if len(out) == 0 {
		for _, h := range hits {
			out = append(out, citationFor(h))
		}
	}
	return out
}

func citationFor(h domain.RetrievalHit) domain.Citation {
	return domain.Citation{Title: h.Doc.Title, URL: h.Doc.URL, Score: h.Final}
}

// CitedDocuments resolves citations back to the documents backing
// them, for the guardrail pass. Falls back to every hit when the refs
// are empty, mirroring NormalizeCitations.
func CitedDocuments(refs []CitationRef, hits []domain.RetrievalHit) []domain.Document {
	resolved := resolveRefs(refs, hits)
	docs := make([]domain.Document, 0, len(resolved))
	for _, i := range resolved {
		docs = append(docs, hits[i].Doc)
	}
	if len(docs) == 0 {
		for _, h := range hits {
			docs = append(docs, h.Doc)
		}
	}
	return docs
}

// resolveRefs turns references into hit positions, in reference order,
// deduplicated.
func resolveRefs(refs []CitationRef, hits []domain.RetrievalHit) []int {
	seen := make(map[int]struct{}, len(refs))
	out := make([]int, 0, len(refs))
	for _, ref := range refs {
		i, ok := resolveRef(ref, hits)
		if !ok {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

func resolveRef(ref CitationRef, hits []domain.RetrievalHit) (int, bool) {
	if ref.Index > 0 {
		i := ref.Index - 1
		return i, i < len(hits)
	}
	if ref.URL != "" {
		for i, h := range hits {
			if h.Doc.URL == ref.URL {
				return i, true
			}
		}
	}
	if ref.Title != "" {
		for i, h := range hits {
			if strings.EqualFold(h.Doc.Title, ref.Title) {
				return i, true
			}
		}
	}
	return 0, false
}
