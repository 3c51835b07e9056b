package openai

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/domain"
	"github.com/cove-labs/concierge/internal/metrics"
)

const generationProvider = "generation"

// Generator is a chat-completion provider using the OpenAI-compatible
// API in JSON mode.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generation provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Generate runs one chat completion and returns the raw completion
// text. The caller parses the expected JSON payload defensively; this
// transport makes no promise about the shape of the text.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(generationProvider, g.model, "error").Inc()
		return "", parseAPIError(err, "generation")
	}

	if len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(generationProvider, g.model, "error").Inc()
		return "", domain.ErrProviderError
	}

	metrics.ProviderRequestsTotal.WithLabelValues(generationProvider, g.model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(generationProvider, g.model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.
			WithLabelValues(generationProvider, g.model, "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.ProviderTokensTotal.
			WithLabelValues(generationProvider, g.model, "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	g.logger.Debug("generation completed",
		zap.String("model", g.model),
		zap.Duration("latency", duration),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
