package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics covering routing, retrieval, memory,
// reasoning and the upstream model/embedding providers.
var (
	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "routing_decisions_total",
			Help:      "Total routing decisions by primary domain",
		},
		[]string{"domain", "overridden"},
	)

	RoutingConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wayfind",
			Name:      "routing_confidence",
			Help:      "Confidence of routing decisions",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"domain"},
	)

	RetrievalPathTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "retrieval_path_total",
			Help:      "Per-path retrieval outcomes",
		},
		[]string{"path", "status"}, // path: "dense"/"sparse", status: "ok"/"timeout"/"error"
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wayfind",
			Name:      "retrieval_duration_seconds",
			Help:      "Hybrid retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"domain"},
	)

	RerankTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "rerank_total",
			Help:      "Selective rerank invocations",
		},
		[]string{"status"}, // "applied" / "skipped" / "failed"
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "answer_cache_total",
			Help:      "Answer cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	FactWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "fact_writes_total",
			Help:      "Fact store write outcomes",
		},
		[]string{"outcome"}, // "stored" / "superseded" / "kept" / "evicted"
	)

	ReasoningIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wayfind",
			Name:      "reasoning_iterations",
			Help:      "ReAct loop iterations per run",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
		},
	)

	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by name and status",
		},
		[]string{"tool", "status"},
	)

	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "model_requests_total",
			Help:      "Total chat model requests",
		},
		[]string{"provider", "model", "purpose", "status"},
	)

	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wayfind",
			Name:      "model_request_duration_seconds",
			Help:      "Chat model request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "purpose"},
	)

	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "model_tokens_total",
			Help:      "Total chat model tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wayfind",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfind",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wayfind",
			Name:      "budget_tokens_remaining",
			Help:      "Remaining token budget",
		},
		[]string{"period"}, // "daily" / "monthly"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline Prometheus metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(RoutingDecisionsTotal)
	prometheus.MustRegister(RoutingConfidence)
	prometheus.MustRegister(RetrievalPathTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RerankTotal)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(FactWritesTotal)
	prometheus.MustRegister(ReasoningIterations)
	prometheus.MustRegister(ToolInvocationsTotal)
	prometheus.MustRegister(ModelRequestsTotal)
	prometheus.MustRegister(ModelRequestDuration)
	prometheus.MustRegister(ModelTokensTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(BudgetTokensRemaining)
	pipelineMetricsRegistered = true
}
