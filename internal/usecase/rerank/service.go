// Package rerank reorders retrieved candidates with an external
// relevance model, then applies an embedding-based diversity pass. The
// whole stage is best-effort: any provider failure leaves the incoming
// order untouched.
package rerank

import (
	"context"

	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/logger"
	"github.com/cove-labs/concierge/internal/usecase/retrieve"
)

// Provider scores documents against a query and returns their indices
// in relevance order.
type Provider interface {
	Rerank(ctx context.Context, query string, documents []string) ([]int, error)
}

// Embedder turns texts into vectors for the diversity pass.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tunes the reranker.
type Options struct {
	// Disabled turns the whole stage into a pass-through.
	Disabled  bool
	MMRLambda float64
}

// Service is the reranking stage of the answer pipeline.
type Service struct {
	provider Provider
	embedder Embedder
	opts     Options
}

func NewService(provider Provider, embedder Embedder, opts Options) *Service {
	return &Service{provider: provider, embedder: embedder, opts: opts}
}

// Rerank reorders hits by external relevance, then diversifies the
// order with cosine MMR over fresh embeddings. Never fails: every
// degradation returns the hits it had at that point.
func (s *Service) Rerank(
	ctx context.Context, query string, hits []domain.RetrievalHit,
) []domain.RetrievalHit {
	if s.opts.Disabled || s.provider == nil || len(hits) < 2 {
		return hits
	}
	log := logger.FromContext(ctx)

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Doc.Title + " " + h.Doc.Text
	}

	ranked, err := s.provider.Rerank(ctx, query, texts)
	if err != nil {
		log.Warn("rerank degraded, keeping retrieval order", zap.Error(err))
		return hits
	}
	hits = reorder(hits, ranked)

	return s.diversify(ctx, query, hits)
}

// diversify runs cosine MMR over a fresh embedding of the query and
// every document. Degrades to the incoming order when embeddings are
// unavailable.
func (s *Service) diversify(
	ctx context.Context, query string, hits []domain.RetrievalHit,
) []domain.RetrievalHit {
	if s.embedder == nil {
		return hits
	}
	log := logger.FromContext(ctx)

	texts := make([]string, 0, len(hits)+1)
	texts = append(texts, query)
	for _, h := range hits {
		texts = append(texts, h.Doc.Title+" "+h.Doc.Text)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Warn("diversity pass degraded, keeping rerank order", zap.Error(err))
		return hits
	}

	sim := retrieve.VectorSim(vectors)
	relevance := make([]float64, len(hits))
	for i := range hits {
		// vectors[0] is the query.
		relevance[i] = sim(0, i+1)
	}
	docSim := func(i, j int) float64 { return sim(i+1, j+1) }

	picked := retrieve.MMR(relevance, docSim, s.opts.MMRLambda, len(hits))
	return reorder(hits, picked)
}

// reorder returns hits in the given index order, appending any hit the
// index list omitted so documents are never lost.
func reorder(hits []domain.RetrievalHit, indices []int) []domain.RetrievalHit {
	out := make([]domain.RetrievalHit, 0, len(hits))
	used := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(hits) {
			continue
		}
		if _, dup := used[i]; dup {
			continue
		}
		used[i] = struct{}{}
		out = append(out, hits[i])
	}
	for i, h := range hits {
		if _, ok := used[i]; !ok {
			out = append(out, h)
		}
	}
	return out
}
