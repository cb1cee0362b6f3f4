package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutor_rag_retrieval_duration_seconds",
			Help:    "End-to-end retrieval pipeline duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	RetrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_rag_retrieval_results_count",
			Help:    "Number of results per retrieval branch",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"source"},
	)

	ClassificationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutor_rag_classification_confidence",
			Help:    "Topic classification confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	EvaluatorVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_rag_evaluator_verdicts_total",
			Help: "CRAG evaluator decisions by action",
		},
		[]string{"action"},
	)

	EvaluatorBypass = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tutor_rag_evaluator_bypass_total",
			Help: "Evaluations served in bypass mode",
		},
	)

	DirectAnswers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tutor_rag_direct_answers_total",
			Help: "Queries answered directly from a prior QA pair",
		},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_rag_query_total",
			Help: "Total retrieval queries processed",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RetrievalResults)
	prometheus.MustRegister(ClassificationConfidence)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(EvaluatorVerdicts)
	prometheus.MustRegister(EvaluatorBypass)
	prometheus.MustRegister(DirectAnswers)
	prometheus.MustRegister(QueryTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
