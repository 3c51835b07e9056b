package ask

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/usecase/extract"
)

// DebugHit is one retrieval candidate with its scoring breakdown.
type DebugHit struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	TextLen  int     `json:"text_len"`
	Dense    float64 `json:"dense"`
	Lexical  float64 `json:"lexical"`
	Attr     float64 `json:"attr"`
	Final    float64 `json:"final"`
	Selected bool    `json:"selected"`
}

// DebugReport exposes the retrieval stage without running generation.
type DebugReport struct {
	TraceID    string                 `json:"trace_id"`
	Attributes domain.AttributeFilter `json:"attrs"`
	Intent     domain.IntentKind      `json:"intent"`
	SubQueries []string               `json:"sub_queries,omitempty"`
	Count      int                    `json:"count"`
	Hits       []DebugHit             `json:"docs"`
}

// Debug runs extraction and retrieval for a question and reports the
// scoring table. No provider generation happens on this path.
func (s *Service) Debug(ctx context.Context, q domain.Question) (DebugReport, error) {
	vocab := s.vocab.Vocabulary(ctx)
	attrs := s.extractor.Attributes(q.Query, vocab)
	intent := extract.Classify(q.Query, attrs)

	res, err := s.retriever.Retrieve(ctx, kindFor(intent), q, attrs)
	if err != nil {
		return DebugReport{}, fmt.Errorf("retrieve: %w", err)
	}

	hits := make([]DebugHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, DebugHit{
			ID:       h.Doc.ID,
			Title:    h.Doc.Title,
			TextLen:  len(h.Doc.Text),
			Dense:    h.Dense,
			Lexical:  h.Lexical,
			Attr:     h.Attr,
			Final:    h.Final,
			Selected: h.Selected,
		})
	}

	return DebugReport{
		TraceID:    uuid.NewString(),
		Attributes: attrs,
		Intent:     intent.Kind,
		SubQueries: intent.SubQueries,
		Count:      len(hits),
		Hits:       hits,
	}, nil
}
