// Package retrieve implements hybrid retrieval: dense vector search and
// lexical BM25 search run concurrently, their scores are normalized and
// blended with an attribute-overlap bonus, and a diversity re-ranking
// picks the final candidates.
package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/logger"
)

// candidateFloor is the minimum number of candidates fetched per signal
// before blending, regardless of the requested top_k.
const candidateFloor = 24

// SearchStore is the catalog search surface the retriever depends on.
type SearchStore interface {
	SearchDense(ctx context.Context, kind string, vector []float32, topK int) ([]domain.ScoredDoc, error)
	SearchLexical(ctx context.Context, kind, query string, topK int) ([]domain.ScoredDoc, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Weights are the blend coefficients for the three signals. They must
// sum to 1; inactive signals have their weight redistributed
// proportionally at blend time.
type Weights struct {
	Dense   float64
	Lexical float64
	Attr    float64
}

// Options tunes the retriever.
type Options struct {
	Weights     Weights
	MMRLambda   float64
	KeywordOnly bool
}

// Service performs hybrid retrieval over the catalog.
type Service struct {
	store    SearchStore
	embedder Embedder
	opts     Options
}

func NewService(store SearchStore, embedder Embedder, opts Options) *Service {
	return &Service{store: store, embedder: embedder, opts: opts}
}

// Result holds the full scoring table plus the final selection.
type Result struct {
	// Hits is the union of both signals, sorted by blended score
	// descending. Selected entries are flagged.
	Hits []domain.RetrievalHit
	// Selected is the diversity-selected subset in selection order.
	Selected []domain.RetrievalHit
	// Vector is the query embedding, empty in keyword-only mode.
	Vector []float32
}

// Retrieve runs both search signals for the question, blends the
// scores and returns the top candidates. An empty catalog yields an
// empty result, not an error.
func (s *Service) Retrieve(
	ctx context.Context, kind string, q domain.Question, attrs domain.AttributeFilter,
) (Result, error) {
	log := logger.FromContext(ctx)
	n := q.TopK
	if n < candidateFloor {
		n = candidateFloor
	}

	var (
		vector  []float32
		dense   []domain.ScoredDoc
		lexical []domain.ScoredDoc
	)

	if !s.opts.KeywordOnly {
		vectors, err := s.embedder.EmbedBatch(ctx, []string{q.Query})
		if err != nil {
			return Result{}, fmt.Errorf("embed query: %w", err)
		}
		vector = vectors[0]
	}

	var (
		wg       sync.WaitGroup
		denseErr error
		lexErr   error
	)
	if len(vector) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dense, denseErr = s.store.SearchDense(ctx, kind, vector, n)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		lexical, lexErr = s.store.SearchLexical(ctx, kind, q.Query, n)
	}()
	wg.Wait()

	if denseErr != nil {
		return Result{}, fmt.Errorf("dense search: %w", denseErr)
	}
	if lexErr != nil {
		return Result{}, fmt.Errorf("lexical search: %w", lexErr)
	}

	hits := s.blend(dense, lexical, attrs)
	if len(hits) == 0 {
		log.Debug("retrieval found no candidates", zap.String("query", q.Query))
		return Result{Vector: vector}, nil
	}

	rel := make([]float64, len(hits))
	texts := make([]string, len(hits))
	for i, h := range hits {
		rel[i] = h.Final
		texts[i] = h.Doc.Title + " " + h.Doc.Text
	}
	picked := MMR(rel, TextSim(texts), s.opts.MMRLambda, q.TopK)

	selected := make([]domain.RetrievalHit, 0, len(picked))
	for _, i := range picked {
		hits[i].Selected = true
		selected = append(selected, hits[i])
	}

	log.Debug("retrieval complete",
		zap.Int("dense", len(dense)),
		zap.Int("lexical", len(lexical)),
		zap.Int("union", len(hits)),
		zap.Int("selected", len(selected)),
	)
	return Result{Hits: hits, Selected: selected, Vector: vector}, nil
}

// blend unions both result lists by document identity, normalizes each
// score column independently and combines them with the configured
// weights. A signal that produced nothing for a document contributes
// its raw zero before normalization.
func (s *Service) blend(
	dense, lexical []domain.ScoredDoc, attrs domain.AttributeFilter,
) []domain.RetrievalHit {
	byID := make(map[string]*domain.RetrievalHit)
	order := make([]string, 0, len(dense)+len(lexical))

	add := func(sd domain.ScoredDoc) *domain.RetrievalHit {
		if h, ok := byID[sd.Doc.ID]; ok {
			return h
		}
		h := &domain.RetrievalHit{Doc: sd.Doc}
		byID[sd.Doc.ID] = h
		order = append(order, sd.Doc.ID)
		return h
	}
	for _, sd := range dense {
		add(sd).Dense = sd.Score
	}
	for _, sd := range lexical {
		add(sd).Lexical = sd.Score
	}
	if len(order) == 0 {
		return nil
	}

	hits := make([]domain.RetrievalHit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		h.Attr = attrOverlap(h.Doc.Meta, attrs)
		hits = append(hits, *h)
	}

	normalizeColumn(hits, func(h *domain.RetrievalHit) *float64 { return &h.Dense })
	normalizeColumn(hits, func(h *domain.RetrievalHit) *float64 { return &h.Lexical })
	// With no attribute filter the attr column stays all-zero and the
	// configured weights apply as-is; normalizing would lift every hit
	// to 0.5 and skew the blend.
	if !attrs.Empty() {
		normalizeColumn(hits, func(h *domain.RetrievalHit) *float64 { return &h.Attr })
	}

	w := s.activeWeights()
	for i := range hits {
		hits[i].Final = w.Dense*hits[i].Dense + w.Lexical*hits[i].Lexical + w.Attr*hits[i].Attr
	}

	// Stable sort keeps union insertion order on equal scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Final > hits[j].Final
	})
	return hits
}

// activeWeights returns the configured blend weights, rescaled to sum
// to 1 when keyword-only mode removes the dense signal. An empty
// attribute filter does not rescale anything: its column contributes
// raw zeros instead.
func (s *Service) activeWeights() Weights {
	w := s.opts.Weights
	if s.opts.KeywordOnly {
		w.Dense = 0
	}
	sum := w.Dense + w.Lexical + w.Attr
	if sum <= 0 {
		return Weights{Lexical: 1}
	}
	w.Dense /= sum
	w.Lexical /= sum
	w.Attr /= sum
	return w
}

// normalizeColumn min-max normalizes one score column in place. A
// collapsed column, where every value is identical, maps to 0.5 so it
// neither boosts nor penalizes any document.
func normalizeColumn(hits []domain.RetrievalHit, col func(*domain.RetrievalHit) *float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range hits {
		v := *col(&hits[i])
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	for i := range hits {
		p := col(&hits[i])
		if span == 0 {
			*p = 0.5
		} else {
			*p = (*p - lo) / span
		}
	}
}

// attrOverlap scores how well a document matches the extracted
// attributes: per non-empty category the fraction of requested values
// the document carries, averaged over the requested categories.
func attrOverlap(meta domain.Metadata, attrs domain.AttributeFilter) float64 {
	if attrs.Empty() {
		return 0
	}

	var sum float64
	var categories int

	if len(attrs.Colors) > 0 {
		categories++
		have := make(map[string]struct{})
		for _, c := range meta.ColorNames() {
			have[c] = struct{}{}
		}
		sum += fraction(attrs.Colors, have)
	}
	if len(attrs.Sizes) > 0 {
		categories++
		have := meta.SizeKeys()
		matched := 0
		for _, s := range attrs.Sizes {
			if _, ok := have[s]; ok {
				matched++
			}
		}
		sum += float64(matched) / float64(len(attrs.Sizes))
	}
	if len(attrs.Types) > 0 {
		categories++
		if meta.Type != "" {
			have := map[string]struct{}{meta.Type: {}}
			sum += fraction(attrs.Types, have)
		}
	}

	return sum / float64(categories)
}

func fraction(want []string, have map[string]struct{}) float64 {
	matched := 0
	for _, w := range want {
		if _, ok := have[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(want))
}
