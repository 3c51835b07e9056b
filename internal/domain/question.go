package domain

import (
	"fmt"
	"strings"
)

// Question bounds for the requested result count.
const (
	MinTopK     = 1
	MaxTopK     = 24
	DefaultTopK = 6
)

// Question is a validated inbound request.
type Question struct {
	Query string
	TopK  int
}

// NewQuestion validates the raw query and clamps top_k into bounds.
// A zero top_k takes the default.
func NewQuestion(query string, topK int) (Question, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Question{}, fmt.Errorf("%w: query text is required", ErrValidation)
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < MinTopK {
		topK = MinTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return Question{Query: query, TopK: topK}, nil
}

// AttributeFilter holds the colors, sizes and types extracted from a
// query. Request-scoped, never persisted.
type AttributeFilter struct {
	Colors []string `json:"colors"`
	Sizes  []Size   `json:"sizes"`
	Types  []string `json:"types"`
}

// Empty reports whether no attribute was extracted at all.
func (f AttributeFilter) Empty() bool {
	return len(f.Colors) == 0 && len(f.Sizes) == 0 && len(f.Types) == 0
}

// RetrievalHit is a document with its per-signal and blended scores.
type RetrievalHit struct {
	Doc      Document
	Dense    float64
	Lexical  float64
	Attr     float64
	Final    float64
	Selected bool
}

// Citation references a retrieved document substantiating part of an
// answer. Always traceable to a RetrievalHit, never fabricated.
type Citation struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Correction maps an unsupported answer fragment to its replacement.
// An empty replacement means the fragment is removed.
type Correction map[string]string
