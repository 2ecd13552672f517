package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moneymentor"

// Metrics owns a private registry so tests and multiple services in one
// process never collide on the global one. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	retrievalLatency *prometheus.HistogramVec
	retrievalResults *prometheus.HistogramVec
	retrievalErrors  *prometheus.CounterVec
	rerankFallbacks  *prometheus.CounterVec
	indexedVectors   prometheus.Counter
	indexRuns        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		retrievalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Latency of retrieve calls by mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		retrievalResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of candidates returned per retrieve call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}, []string{"mode"}),
		retrievalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_degraded_total",
			Help:      "Retrieve calls that returned an empty or partial result because a collaborator failed.",
		}, []string{"mode"}),
		rerankFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_fallback_total",
			Help:      "Reranker calls that fell back to the pre-rerank order.",
		}, []string{"reason"}),
		indexedVectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_vectors_total",
			Help:      "Vectors written to the vector index.",
		}),
		indexRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_runs_total",
			Help:      "Indexing runs by outcome.",
		}, []string{"success"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.retrievalLatency,
		m.retrievalResults,
		m.retrievalErrors,
		m.rerankFallbacks,
		m.indexedVectors,
		m.indexRuns,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRetrieval(mode string, elapsed time.Duration, results int, degraded bool) {
	if m == nil {
		return
	}
	m.retrievalLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	m.retrievalResults.WithLabelValues(mode).Observe(float64(results))
	if degraded {
		m.retrievalErrors.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) RerankFallback(reason string) {
	if m == nil {
		return
	}
	m.rerankFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveIndex(vectors int, success bool) {
	if m == nil {
		return
	}
	m.indexedVectors.Add(float64(vectors))
	m.indexRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
