// Package ask orchestrates the full question pipeline: attribute and
// intent extraction, hybrid retrieval, reranking, drafting, citation
// normalization, guardrail verification and answer composition.
package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/logger"
	"github.com/cove-labs/concierge/internal/metrics"
	"github.com/cove-labs/concierge/internal/usecase/answer"
	"github.com/cove-labs/concierge/internal/usecase/extract"
	"github.com/cove-labs/concierge/internal/usecase/retrieve"
)

// emptyCatalogAnswer is returned when retrieval finds nothing at all.
const emptyCatalogAnswer = "I don't have product data for that yet. Please sync the catalog and try again."

// VocabSource supplies the current catalog vocabulary.
type VocabSource interface {
	Vocabulary(ctx context.Context) domain.Vocabulary
}

// Retriever is the hybrid retrieval stage.
type Retriever interface {
	Retrieve(ctx context.Context, kind string, q domain.Question, attrs domain.AttributeFilter) (retrieve.Result, error)
}

// Reranker reorders retrieved candidates. Best-effort by contract.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []domain.RetrievalHit) []domain.RetrievalHit
}

// Drafter produces the model draft over the selected documents.
type Drafter interface {
	Compose(ctx context.Context, intent domain.Intent, query string, docs []domain.Document) (answer.Draft, error)
}

// Verifier corrects unsupported claims against cited documents.
type Verifier interface {
	Verify(text string, docs []domain.Document) (string, domain.Correction)
}

// SlugResolver re-reads a product from the store for ground truth.
type SlugResolver interface {
	BySlug(ctx context.Context, slug string) (domain.Document, error)
}

// Options holds the orchestrator policy knobs.
type Options struct {
	// HardTimeout bounds the generation call only; retrieval and
	// verification run outside it.
	HardTimeout time.Duration
	// BypassOnFail turns generation failures into a templated degraded
	// answer instead of an error response.
	BypassOnFail bool
	// LowStockThreshold is the stock level at or below which a size
	// counts as nearly sold out.
	LowStockThreshold int
	// SurfaceStockHints adds "few left" wording for low-stock sizes.
	// Exact counts are never exposed.
	SurfaceStockHints bool
	// DisableLookupFallback skips the per-citation store re-read and
	// verifies against retrieved metadata only.
	DisableLookupFallback bool
}

// Service answers catalog questions end to end.
type Service struct {
	vocab     VocabSource
	extractor *extract.Extractor
	retriever Retriever
	reranker  Reranker
	drafter   Drafter
	verifier  Verifier
	resolver  SlugResolver
	opts      Options
}

func NewService(
	vocab VocabSource,
	extractor *extract.Extractor,
	retriever Retriever,
	reranker Reranker,
	drafter Drafter,
	verifier Verifier,
	resolver SlugResolver,
	opts Options,
) *Service {
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = 12 * time.Second
	}
	return &Service{
		vocab:     vocab,
		extractor: extractor,
		retriever: retriever,
		reranker:  reranker,
		drafter:   drafter,
		verifier:  verifier,
		resolver:  resolver,
		opts:      opts,
	}
}

// Answer is the outcome of one question.
type Answer struct {
	TraceID     string            `json:"trace_id"`
	Answer      string            `json:"answer"`
	Citations   []domain.Citation `json:"citations"`
	Intent      domain.IntentKind `json:"intent"`
	Corrections domain.Correction `json:"corrections,omitempty"`
	Degraded    bool              `json:"degraded,omitempty"`
}

// AnswerQuestion runs the full pipeline for one question.
func (s *Service) AnswerQuestion(ctx context.Context, q domain.Question) (Answer, error) {
	traceID := uuid.NewString()
	log := logger.FromContext(ctx).With(zap.String("trace_id", traceID))
	ctx = logger.WithContext(ctx, log)

	vocab := s.vocab.Vocabulary(ctx)
	attrs := s.extractor.Attributes(q.Query, vocab)
	intent := extract.Classify(q.Query, attrs)
	log.Debug("question classified",
		zap.String("intent", string(intent.Kind)),
		zap.Strings("colors", attrs.Colors),
		zap.Strings("types", attrs.Types),
	)

	res, err := s.retriever.Retrieve(ctx, kindFor(intent), q, attrs)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	if len(res.Selected) == 0 {
		metrics.AnswersTotal.WithLabelValues("empty").Inc()
		return Answer{TraceID: traceID, Answer: emptyCatalogAnswer, Intent: intent.Kind}, nil
	}

	hits := s.reranker.Rerank(ctx, q.Query, res.Selected)

	draft, err := s.draftWithTimeout(ctx, intent, q.Query, hits)
	if err != nil {
		if !s.opts.BypassOnFail {
			metrics.AnswersTotal.WithLabelValues("failed").Inc()
			return Answer{}, err
		}
		log.Warn("generation failed, serving degraded answer", zap.Error(err))
		metrics.AnswersTotal.WithLabelValues("degraded").Inc()
		return Answer{
			TraceID:   traceID,
			Answer:    degradedAnswer(hits),
			Citations: answer.NormalizeCitations(nil, hits),
			Intent:    intent.Kind,
			Degraded:  true,
		}, nil
	}

	citations := answer.NormalizeCitations(draft.Citations, hits)
	ground := s.groundTruth(ctx, answer.CitedDocuments(draft.Citations, hits))
	verified, corrections := s.verifier.Verify(draft.Answer, ground)
	if len(corrections) > 0 {
		log.Info("guardrail corrections applied", zap.Int("count", len(corrections)))
	}

	final := s.compose(q.Query, attrs, verified, ground, hits)

	metrics.AnswersTotal.WithLabelValues("answered").Inc()
	log.Debug("question answered",
		zap.Int("citations", len(citations)),
		zap.Int("corrections", len(corrections)),
	)
	return Answer{
		TraceID:     traceID,
		Answer:      final,
		Citations:   citations,
		Intent:      intent.Kind,
		Corrections: corrections,
	}, nil
}

// draftWithTimeout wraps only the generation call in the hard timeout.
func (s *Service) draftWithTimeout(
	ctx context.Context, intent domain.Intent, query string, hits []domain.RetrievalHit,
) (answer.Draft, error) {
	docs := make([]domain.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.Doc
	}

	genCtx, cancel := context.WithTimeout(ctx, s.opts.HardTimeout)
	defer cancel()

	draft, err := s.drafter.Compose(genCtx, intent, query, docs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("generation: %w", domain.ErrProviderTimeout)
		}
		return answer.Draft{}, err
	}
	return draft, nil
}

// groundTruth re-reads cited products from the store so verification
// runs against current stock and prices. A vanished slug drops that
// document from ground truth; any other failure keeps the retrieved
// copy.
func (s *Service) groundTruth(ctx context.Context, docs []domain.Document) []domain.Document {
	if s.opts.DisableLookupFallback || s.resolver == nil {
		return docs
	}
	log := logger.FromContext(ctx)

	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if d.Kind != domain.KindProduct || d.Meta.Slug == "" {
			out = append(out, d)
			continue
		}
		fresh, err := s.resolver.BySlug(ctx, d.Meta.Slug)
		switch {
		case err == nil:
			out = append(out, fresh)
		case errors.Is(err, domain.ErrNotFound):
			log.Debug("cited slug vanished, excluded from verification", zap.String("slug", d.Meta.Slug))
		default:
			log.Warn("ground truth lookup failed, using retrieved copy", zap.Error(err))
			out = append(out, d)
		}
	}
	return out
}

func kindFor(intent domain.Intent) string {
	if intent.Kind == domain.IntentPolicy {
		return domain.KindPolicy
	}
	return domain.KindProduct
}

// degradedAnswer is the templated reply served when generation fails
// and the bypass policy is on.
func degradedAnswer(hits []domain.RetrievalHit) string {
	titles := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Doc.Title != "" {
			titles = append(titles, h.Doc.Title)
		}
		if len(titles) == 3 {
			break
		}
	}
	if len(titles) == 0 {
		return "I couldn't generate an answer right now. Please try again shortly."
	}
	return "I couldn't generate a full answer right now. These catalog entries look most relevant: " +
		strings.Join(titles, "; ") + "."
}
