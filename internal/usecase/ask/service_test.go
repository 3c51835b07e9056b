package ask

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/usecase/answer"
	"github.com/cove-labs/concierge/internal/usecase/extract"
	"github.com/cove-labs/concierge/internal/usecase/retrieve"
)

type mockVocab struct {
	vocab domain.Vocabulary
}

func (m *mockVocab) Vocabulary(_ context.Context) domain.Vocabulary { return m.vocab }

type mockRetriever struct {
	result retrieve.Result
	err    error
	kind   string
}

func (m *mockRetriever) Retrieve(
	_ context.Context, kind string, _ domain.Question, _ domain.AttributeFilter,
) (retrieve.Result, error) {
	m.kind = kind
	return m.result, m.err
}

type passReranker struct{}

func (passReranker) Rerank(_ context.Context, _ string, hits []domain.RetrievalHit) []domain.RetrievalHit {
	return hits
}

type mockDrafter struct {
	draft answer.Draft
	err   error
	delay time.Duration
}

func (m *mockDrafter) Compose(
	ctx context.Context, _ domain.Intent, _ string, _ []domain.Document,
) (answer.Draft, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return answer.Draft{}, ctx.Err()
		}
	}
	return m.draft, m.err
}

type mockResolver struct {
	docs map[string]domain.Document
}

func (m *mockResolver) BySlug(_ context.Context, slug string) (domain.Document, error) {
	if d, ok := m.docs[slug]; ok {
		return d, nil
	}
	return domain.Document{}, domain.ErrNotFound
}

func hoodieDoc() domain.Document {
	price := 49.99
	return domain.Document{
		ID:    "p1",
		Kind:  domain.KindProduct,
		Title: "Black Hoodie",
		Text:  "A soft fleece hoodie.",
		URL:   "/product/black-hoodie",
		Meta: domain.Metadata{
			Slug:  "black-hoodie",
			Type:  "hoodie",
			Price: &price,
			Colors: []domain.ColorVariant{
				{Name: "black", Sizes: map[domain.Size]int{
					domain.SizeS: 2,
					domain.SizeM: 0,
					domain.SizeL: 1,
				}},
			},
		},
	}
}

func hitsFor(docs ...domain.Document) retrieve.Result {
	hits := make([]domain.RetrievalHit, len(docs))
	for i, d := range docs {
		hits[i] = domain.RetrievalHit{Doc: d, Final: 1 - float64(i)*0.1, Selected: true}
	}
	return retrieve.Result{Hits: hits, Selected: hits}
}

func newTestService(ret *mockRetriever, dr *mockDrafter, opts Options) *Service {
	doc := hoodieDoc()
	return NewService(
		&mockVocab{vocab: domain.NewVocabulary([]string{"black"}, []string{"hoodie"})},
		extract.New(0),
		ret,
		passReranker{},
		dr,
		answer.NewVerifier(),
		&mockResolver{docs: map[string]domain.Document{doc.Meta.Slug: doc}},
		opts,
	)
}

func TestAnswerQuestion_ListsOnlyInStockSizes(t *testing.T) {
	ret := &mockRetriever{result: hitsFor(hoodieDoc())}
	dr := &mockDrafter{draft: answer.Draft{
		Answer:    "The black hoodie is available in S, M and L.",
		Citations: []answer.CitationRef{{Index: 1}},
	}}
	svc := newTestService(ret, dr, Options{LowStockThreshold: 3, SurfaceStockHints: true})

	q, _ := domain.NewQuestion("what sizes does the black hoodie come in?", 6)
	got, err := svc.AnswerQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(got.Answer, "S") || !strings.Contains(got.Answer, "L") {
		t.Errorf("expected S and L in %q", got.Answer)
	}
	for _, tok := range strings.FieldsFunc(got.Answer, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ':'
	}) {
		if tok == "M" {
			t.Errorf("out-of-stock M leaked into %q", got.Answer)
		}
	}
	if strings.ContainsAny(got.Answer, "0123456789") {
		t.Errorf("exact stock counts leaked into %q", got.Answer)
	}
	if !strings.Contains(got.Answer, "few left") {
		t.Errorf("expected a low-stock hint in %q", got.Answer)
	}
	if len(got.Citations) != 1 || got.Citations[0].Title != "Black Hoodie" {
		t.Errorf("unexpected citations %v", got.Citations)
	}
}

func TestAnswerQuestion_RewritesWrongPrice(t *testing.T) {
	price := 49.99
	plain := domain.Document{
		ID:    "p2",
		Kind:  domain.KindProduct,
		Title: "Wool Beanie",
		Text:  "A warm wool beanie.",
		Meta:  domain.Metadata{Price: &price},
	}
	ret := &mockRetriever{result: hitsFor(plain)}
	dr := &mockDrafter{draft: answer.Draft{
		Answer:    "It costs 59.99 and ships free.",
		Citations: []answer.CitationRef{{Index: 1}},
	}}
	svc := newTestService(ret, dr, Options{})

	q, _ := domain.NewQuestion("how much is the hoodie", 6)
	got, err := svc.AnswerQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(got.Answer, "49.99") || strings.Contains(got.Answer, "59.99") {
		t.Errorf("price was not corrected: %q", got.Answer)
	}
	if got.Corrections["59.99"] != "49.99" {
		t.Errorf("expected the correction to be reported, got %v", got.Corrections)
	}
}

func TestAnswerQuestion_EmptyCatalog(t *testing.T) {
	ret := &mockRetriever{}
	dr := &mockDrafter{}
	svc := newTestService(ret, dr, Options{})

	q, _ := domain.NewQuestion("anything at all", 6)
	got, err := svc.AnswerQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("an empty catalog must not error: %v", err)
	}
	if got.Answer != emptyCatalogAnswer || len(got.Citations) != 0 {
		t.Errorf("unexpected empty-catalog reply %+v", got)
	}
}

func TestAnswerQuestion_BypassServesDegradedAnswer(t *testing.T) {
	ret := &mockRetriever{result: hitsFor(hoodieDoc())}
	dr := &mockDrafter{err: domain.ErrProviderError}
	svc := newTestService(ret, dr, Options{BypassOnFail: true})

	q, _ := domain.NewQuestion("tell me about the hoodie", 6)
	got, err := svc.AnswerQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("bypass must swallow the provider error, got %v", err)
	}
	if !got.Degraded {
		t.Errorf("expected a degraded answer")
	}
	if !strings.Contains(got.Answer, "Black Hoodie") {
		t.Errorf("degraded answer should surface the best titles, got %q", got.Answer)
	}
	if len(got.Citations) == 0 {
		t.Errorf("degraded answer must keep best-available citations")
	}
}

func TestAnswerQuestion_NoBypassSurfacesError(t *testing.T) {
	ret := &mockRetriever{result: hitsFor(hoodieDoc())}
	dr := &mockDrafter{err: domain.ErrProviderError}
	svc := newTestService(ret, dr, Options{BypassOnFail: false})

	q, _ := domain.NewQuestion("tell me about the hoodie", 6)
	_, err := svc.AnswerQuestion(context.Background(), q)
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("expected the provider error, got %v", err)
	}
}

func TestAnswerQuestion_GenerationTimeout(t *testing.T) {
	ret := &mockRetriever{result: hitsFor(hoodieDoc())}
	dr := &mockDrafter{delay: 200 * time.Millisecond}
	svc := newTestService(ret, dr, Options{HardTimeout: 20 * time.Millisecond})

	q, _ := domain.NewQuestion("tell me about the hoodie", 6)
	_, err := svc.AnswerQuestion(context.Background(), q)
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Errorf("expected a provider timeout, got %v", err)
	}
}

func TestAnswerQuestion_PolicyIntentSearchesPolicyDocs(t *testing.T) {
	ret := &mockRetriever{result: hitsFor(domain.Document{
		ID: "pol1", Kind: domain.KindPolicy, Title: "Returns Policy",
		Text: "Free returns within 30 days.",
	})}
	dr := &mockDrafter{draft: answer.Draft{Answer: "Returns are free within 30 days.", Citations: []answer.CitationRef{{Index: 1}}}}
	svc := newTestService(ret, dr, Options{})

	q, _ := domain.NewQuestion("what is your return policy?", 6)
	got, err := svc.AnswerQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ret.kind != domain.KindPolicy {
		t.Errorf("policy questions should search policy docs, got kind %q", ret.kind)
	}
	if got.Intent != domain.IntentPolicy {
		t.Errorf("expected policy intent, got %s", got.Intent)
	}
	if got.Answer != "Returns are free within 30 days." {
		t.Errorf("unexpected answer %q", got.Answer)
	}
}

func TestDebug_NoGeneration(t *testing.T) {
	ret := &mockRetriever{result: hitsFor(hoodieDoc())}
	dr := &mockDrafter{err: errors.New("must not be called")}
	svc := newTestService(ret, dr, Options{})

	q, _ := domain.NewQuestion("black hoodie", 6)
	got, err := svc.Debug(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Count != 1 || got.Hits[0].Title != "Black Hoodie" {
		t.Errorf("unexpected report %+v", got)
	}
	if len(got.Attributes.Colors) == 0 || got.Attributes.Colors[0] != "black" {
		t.Errorf("expected black extracted, got %v", got.Attributes)
	}
}
