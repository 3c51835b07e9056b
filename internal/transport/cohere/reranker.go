// Package cohere implements the optional external reranking provider
// as a thin HTTP transport over the /rerank endpoint. Callers treat
// any failure as a silent degrade to the pre-rerank order.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/metrics"
)

const (
	rerankProvider   = "rerank"
	defaultBaseURL   = "https://api.cohere.ai/v1"
	maxErrorBodySize = 2048
)

// Reranker calls a Cohere-style /rerank endpoint.
type Reranker struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// Config holds the rerank provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a rerank provider. An empty API key yields a provider
// whose Rerank always errors; the caller degrades silently.
func New(cfg *Config) *Reranker {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Reranker{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns the indices of documents in provider-ranked order,
// most relevant first.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) ([]int, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("rerank api key not configured: %w", domain.ErrProviderError)
	}
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(rerankProvider, r.model, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("rerank request: %w", domain.ErrProviderTimeout)
		}
		return nil, fmt.Errorf("rerank request: %v: %w", err, domain.ErrProviderError)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.ProviderRequestsTotal.WithLabelValues(rerankProvider, r.model, "error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("rerank API error %d: %s: %w", resp.StatusCode, detail, domain.ErrProviderError)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(rerankProvider, r.model, "error").Inc()
		return nil, fmt.Errorf("decode rerank response: %v: %w", err, domain.ErrProviderError)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(rerankProvider, r.model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(rerankProvider, r.model).Observe(duration.Seconds())

	order := make([]int, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			continue
		}
		order = append(order, res.Index)
	}
	return order, nil
}
