// Package recs suggests similar products given an anchor product, a
// free-text query, or both. Purely retrieval plus local scoring, no
// generation provider involved.
package recs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/logger"
	"github.com/cove-labs/concierge/internal/usecase/retrieve"
)

const defaultTopK = 8

// Blend coefficients for the suggestion score.
const (
	simWeight   = 0.5
	popWeight   = 0.3
	availWeight = 0.2
)

// Retriever is the hybrid retrieval stage feeding candidates.
type Retriever interface {
	Retrieve(ctx context.Context, kind string, q domain.Question, attrs domain.AttributeFilter) (retrieve.Result, error)
}

// SlugResolver fetches the anchor product.
type SlugResolver interface {
	BySlug(ctx context.Context, slug string) (domain.Document, error)
}

// Filters narrows suggestions by product facets. Zero values match
// everything.
type Filters struct {
	Type  string      `json:"type,omitempty"`
	Tier  string      `json:"tier,omitempty"`
	Color string      `json:"color,omitempty"`
	Size  domain.Size `json:"size,omitempty"`
}

// Request asks for products similar to an anchor and/or a query.
type Request struct {
	AnchorSlug string  `json:"anchor_slug,omitempty"`
	Query      string  `json:"query,omitempty"`
	Filters    Filters `json:"filters"`
	TopK       int     `json:"top_k,omitempty"`
}

// Item is one suggestion with the facets that drove it.
type Item struct {
	Title  string      `json:"title"`
	URL    string      `json:"url"`
	Slug   string      `json:"slug"`
	Score  float64     `json:"score"`
	Reason string      `json:"reason"`
	Type   string      `json:"type,omitempty"`
	Tier   string      `json:"tier,omitempty"`
	Color  string      `json:"color,omitempty"`
	Size   domain.Size `json:"size,omitempty"`
}

// Service produces similar-product suggestions.
type Service struct {
	retriever Retriever
	resolver  SlugResolver
}

func NewService(retriever Retriever, resolver SlugResolver) *Service {
	return &Service{retriever: retriever, resolver: resolver}
}

// Suggest returns up to TopK similar products. With neither anchor nor
// query there is nothing to go on and the result is empty, not an
// error.
func (s *Service) Suggest(ctx context.Context, req Request) ([]Item, error) {
	log := logger.FromContext(ctx)

	topK := req.TopK
	if topK == 0 {
		topK = defaultTopK
	}

	anchorSlug := strings.TrimSpace(req.AnchorSlug)
	queryText := strings.TrimSpace(req.Query)
	if anchorSlug != "" {
		anchor, err := s.resolver.BySlug(ctx, anchorSlug)
		switch {
		case err == nil:
			queryText = anchorQueryText(anchor)
		case errors.Is(err, domain.ErrNotFound):
			log.Warn("anchor slug not found", zap.String("slug", anchorSlug))
		default:
			return nil, fmt.Errorf("resolve anchor: %w", err)
		}
	}
	if queryText == "" {
		return nil, nil
	}

	q, err := domain.NewQuestion(queryText, topK)
	if err != nil {
		return nil, err
	}
	topK = q.TopK

	res, err := s.retriever.Retrieve(ctx, domain.KindProduct, q, domain.AttributeFilter{})
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	candidates := filterCandidates(res.Hits, anchorSlug, req.Filters)
	if len(candidates) == 0 {
		log.Debug("no candidates after filtering", zap.String("query", queryText))
		return nil, nil
	}

	items := scoreCandidates(candidates, req.Filters)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > topK {
		items = items[:topK]
	}

	log.Debug("suggestions ready",
		zap.String("anchor", anchorSlug),
		zap.Int("count", len(items)),
	)
	return items, nil
}

// filterCandidates drops the anchor itself and anything the facet
// filters exclude. A document missing a facet passes that filter; only
// a stated, mismatching value excludes it.
func filterCandidates(hits []domain.RetrievalHit, anchorSlug string, f Filters) []domain.RetrievalHit {
	out := make([]domain.RetrievalHit, 0, len(hits))
	for _, h := range hits {
		meta := h.Doc.Meta
		if meta.Slug != "" && meta.Slug == anchorSlug {
			continue
		}
		if f.Type != "" && meta.Type != "" && !strings.EqualFold(meta.Type, f.Type) {
			continue
		}
		if f.Tier != "" && meta.Tier != "" && !strings.EqualFold(meta.Tier, f.Tier) {
			continue
		}
		if f.Color != "" {
			if names := meta.ColorNames(); len(names) > 0 {
				if _, ok := meta.Color(f.Color); !ok {
					continue
				}
			}
		}
		if f.Size != "" {
			if keys := meta.SizeKeys(); len(keys) > 0 {
				if _, ok := keys[f.Size]; !ok {
					continue
				}
			}
		}
		out = append(out, h)
	}
	return out
}

// scoreCandidates blends similarity, popularity and availability.
// Similarity is re-normalized over the surviving candidates so the
// filters cannot skew the range.
func scoreCandidates(candidates []domain.RetrievalHit, f Filters) []Item {
	sims := normalizeRange(candidates)

	items := make([]Item, 0, len(candidates))
	for i, h := range candidates {
		meta := h.Doc.Meta

		pop := 0.5
		if meta.Popularity != nil {
			pop = clamp01(*meta.Popularity)
		}
		avail := availabilityScore(meta, f.Size)
		score := simWeight*sims[i] + popWeight*pop + availWeight*avail

		color := primaryColor(meta, f.Color)
		items = append(items, Item{
			Title:  cleanTitle(h.Doc.Title),
			URL:    h.Doc.URL,
			Slug:   meta.Slug,
			Score:  score,
			Reason: reason(meta, color, f.Size, avail),
			Type:   meta.Type,
			Tier:   meta.Tier,
			Color:  color,
			Size:   f.Size,
		})
	}
	return items
}

// availabilityScore is a coarse in-stock heuristic: 1 when the
// requested size is in stock, 0.7 when another size is, 0 otherwise.
// Exact stock counts never leave this function.
func availabilityScore(meta domain.Metadata, desired domain.Size) float64 {
	inStock := meta.InStockSizes()
	if len(inStock) == 0 {
		return 0
	}
	for _, s := range inStock {
		if s == desired {
			return 1
		}
	}
	return 0.7
}

// normalizeRange min-max normalizes the blended retrieval scores of
// the candidates. A collapsed range maps to 0.5 everywhere.
func normalizeRange(hits []domain.RetrievalHit) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	lo, hi := hits[0].Final, hits[0].Final
	for _, h := range hits[1:] {
		if h.Final < lo {
			lo = h.Final
		}
		if h.Final > hi {
			hi = h.Final
		}
	}
	for i, h := range hits {
		if hi <= lo {
			out[i] = 0.5
		} else {
			out[i] = (h.Final - lo) / (hi - lo)
		}
	}
	return out
}

func reason(meta domain.Metadata, color string, size domain.Size, avail float64) string {
	var pieces []string
	if meta.Type != "" {
		pieces = append(pieces, "Similar "+strings.ToLower(meta.Type))
	} else {
		pieces = append(pieces, "Similar item")
	}
	if color != "" {
		pieces = append(pieces, strings.ToLower(color))
	}
	if size != "" {
		pieces = append(pieces, "in size "+string(size))
	}
	if meta.Tier != "" {
		pieces = append(pieces, "from the "+strings.ToLower(meta.Tier)+" tier")
	}
	switch {
	case avail >= 0.99:
		pieces = append(pieces, "(requested size appears in stock)")
	case avail >= 0.6:
		pieces = append(pieces, "(some sizes appear in stock)")
	}
	return strings.Join(pieces, " ")
}

// primaryColor prefers the requested color when the product carries
// it, otherwise the first listed color.
func primaryColor(meta domain.Metadata, desired string) string {
	names := meta.ColorNames()
	if len(names) == 0 {
		return ""
	}
	if desired != "" {
		if v, ok := meta.Color(desired); ok {
			return strings.ToLower(strings.TrimSpace(v.Name))
		}
	}
	return names[0]
}

var trailingParenRegex = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// cleanTitle strips a trailing parenthetical such as "(100% Cotton)".
func cleanTitle(t string) string {
	return strings.TrimSpace(trailingParenRegex.ReplaceAllString(t, ""))
}

// anchorQueryText renders a product as retrieval text for
// similar-to-this queries.
func anchorQueryText(doc domain.Document) string {
	meta := doc.Meta
	var pieces []string
	if doc.Title != "" {
		pieces = append(pieces, cleanTitle(doc.Title))
	}
	if meta.Type != "" {
		pieces = append(pieces, meta.Type)
	}
	if meta.Material != "" {
		pieces = append(pieces, meta.Material)
	}
	if meta.Tier != "" {
		pieces = append(pieces, "tier: "+meta.Tier)
	}
	if meta.Gender != "" {
		pieces = append(pieces, "gender: "+meta.Gender)
	}
	if names := meta.ColorNames(); len(names) > 0 {
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		pieces = append(pieces, "colors: "+strings.Join(sorted, ", "))
	}
	return strings.Join(pieces, " | ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
