package metrics

import "github.com/prometheus/client_golang/prometheus"

// Provider call metrics, shared by the embedding, generation, and
// rerank transports.
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "provider_requests_total",
			Help:      "Total number of external provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "provider_request_duration_seconds",
			Help:      "External provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider", "model"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "provider_tokens_total",
			Help:      "Total provider tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "answers_total",
			Help:      "Answers produced, by outcome (answered, degraded, empty)",
		},
		[]string{"outcome"},
	)

	GuardrailCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "guardrail_corrections_total",
			Help:      "Verifier corrections applied to draft answers",
		},
		[]string{"kind"}, // "price" / "size"
	)
)

var providerMetricsRegistered bool

// RegisterProviderMetrics registers the pipeline metrics. Must be called once from main.
func RegisterProviderMetrics() {
	if providerMetricsRegistered {
		return
	}
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(ProviderTokensTotal)
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(GuardrailCorrectionsTotal)
	providerMetricsRegistered = true
}
