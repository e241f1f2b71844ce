package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/helixir/citation-network-service/internal/domain"
)

// Metrics contains all Prometheus metrics for the citation network service.
// Metrics are organized by subsystem: upstream sources, resolver, discovery,
// cache, networks, ranking and embeddings.
//
// All Record* methods are safe to call on a nil *Metrics, so components can
// run without instrumentation in tests.
type Metrics struct {
	// SourceRequestsTotal counts HTTP requests to bibliographic APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed requests, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts requests that ended rate limited, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// ResolverBatches counts efetch batches, labeled by outcome (ok, failed).
	ResolverBatches *prometheus.CounterVec

	// ResolverRecords counts records returned by the resolver.
	ResolverRecords prometheus.Counter

	// ResolverDropped counts requested identifiers that produced no record.
	ResolverDropped prometheus.Counter

	// DiscoveryResults counts related records, labeled by relation and strategy.
	DiscoveryResults *prometheus.CounterVec

	// DiscoveryFallbacks counts cascade steps that produced nothing, labeled by strategy.
	DiscoveryFallbacks *prometheus.CounterVec

	// CacheHits counts cache hits, labeled by cache name.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts cache misses, labeled by cache name.
	CacheMisses *prometheus.CounterVec

	// CacheEvictions counts LRU evictions, labeled by cache name.
	CacheEvictions *prometheus.CounterVec

	// CacheExpirations counts TTL removals, labeled by cache name.
	CacheExpirations *prometheus.CounterVec

	// CacheEntries reports the current entry count, labeled by cache name.
	CacheEntries *prometheus.GaugeVec

	// CacheBytes reports the approximate payload size, labeled by cache name.
	CacheBytes *prometheus.GaugeVec

	// NetworksAssembled counts built networks.
	NetworksAssembled prometheus.Counter

	// NetworkNodes observes node counts per assembled network.
	NetworkNodes prometheus.Histogram

	// NetworkValidationErrors counts dangling-edge findings, labeled by kind.
	NetworkValidationErrors *prometheus.CounterVec

	// RankingsTotal counts ranking calls.
	RankingsTotal prometheus.Counter

	// RankingCandidatesFiltered counts candidates removed by the criteria pre-filter.
	RankingCandidatesFiltered prometheus.Counter

	// RankingDuration observes ranking duration in seconds.
	RankingDuration prometheus.Histogram

	// EmbeddingRequestsTotal counts embedding calls, labeled by model and status.
	EmbeddingRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names. A nil registerer
// selects prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Upstream sources
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to bibliographic APIs",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to bibliographic APIs",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to bibliographic APIs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limited requests",
		}, []string{"source"}),

		// Resolver
		ResolverBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_batches_total",
			Help:      "Total number of resolver fetch batches by outcome",
		}, []string{"outcome"}),
		ResolverRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_records_total",
			Help:      "Total number of records resolved",
		}),
		ResolverDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_dropped_total",
			Help:      "Total number of requested identifiers that yielded no record",
		}),

		// Discovery
		DiscoveryResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_results_total",
			Help:      "Total number of related records returned by strategy",
		}, []string{"relation", "strategy"}),
		DiscoveryFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_fallbacks_total",
			Help:      "Total number of discovery steps that yielded nothing",
		}, []string{"strategy"}),

		// Cache
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}, []string{"cache"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}, []string{"cache"}),
		CacheEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of LRU evictions",
		}, []string{"cache"}),
		CacheExpirations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expirations_total",
			Help:      "Total number of entries removed after their TTL",
		}, []string{"cache"}),
		CacheEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of cache entries",
		}, []string{"cache"}),
		CacheBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Approximate size of cached values in bytes",
		}, []string{"cache"}),

		// Networks
		NetworksAssembled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "networks_assembled_total",
			Help:      "Total number of citation networks assembled",
		}),
		NetworkNodes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "network_nodes",
			Help:      "Number of nodes per assembled network",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		NetworkValidationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_validation_errors_total",
			Help:      "Total number of validation errors by kind",
		}, []string{"kind"}),

		// Ranking
		RankingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rankings_total",
			Help:      "Total number of ranking calls",
		}),
		RankingCandidatesFiltered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_candidates_filtered_total",
			Help:      "Total number of candidates excluded by ranking criteria",
		}),
		RankingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_duration_seconds",
			Help:      "Duration of ranking calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Embeddings
		EmbeddingRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests by model and status",
		}, []string{"model", "status"}),
	}
}

// ObserveUpstream records one upstream request. It satisfies
// papersources.RequestObserver.
func (m *Metrics) ObserveUpstream(source, endpoint string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(duration.Seconds())
	if err == nil {
		return
	}
	kind := ErrorType(err)
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, kind).Inc()
	if kind == "rate_limited" {
		m.SourceRateLimited.WithLabelValues(source).Inc()
	}
}

// ErrorType classifies err into a short label value.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "other"
	}
}

// RecordResolverBatch records the outcome of one fetch batch.
func (m *Metrics) RecordResolverBatch(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.ResolverBatches.WithLabelValues(outcome).Inc()
}

// RecordResolved records the result of one Resolve call.
func (m *Metrics) RecordResolved(requested, resolved int) {
	if m == nil {
		return
	}
	m.ResolverRecords.Add(float64(resolved))
	if dropped := requested - resolved; dropped > 0 {
		m.ResolverDropped.Add(float64(dropped))
	}
}

// RecordDiscovery records a discovery result produced by strategy.
func (m *Metrics) RecordDiscovery(relation, strategy string, count int) {
	if m == nil {
		return
	}
	m.DiscoveryResults.WithLabelValues(relation, strategy).Add(float64(count))
}

// RecordDiscoveryFallback records a strategy that produced nothing.
func (m *Metrics) RecordDiscoveryFallback(strategy string) {
	if m == nil {
		return
	}
	m.DiscoveryFallbacks.WithLabelValues(strategy).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}

// RecordCacheEvictions records n LRU evictions.
func (m *Metrics) RecordCacheEvictions(cache string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(cache).Add(float64(n))
}

// RecordCacheExpirations records n TTL removals.
func (m *Metrics) RecordCacheExpirations(cache string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheExpirations.WithLabelValues(cache).Add(float64(n))
}

// SetCacheSize publishes the current entry count and byte estimate.
func (m *Metrics) SetCacheSize(cache string, entries int, bytes int64) {
	if m == nil {
		return
	}
	m.CacheEntries.WithLabelValues(cache).Set(float64(entries))
	m.CacheBytes.WithLabelValues(cache).Set(float64(bytes))
}

// RecordNetworkAssembled records a built network.
func (m *Metrics) RecordNetworkAssembled(nodes int) {
	if m == nil {
		return
	}
	m.NetworksAssembled.Inc()
	m.NetworkNodes.Observe(float64(nodes))
}

// RecordValidationError records a validation finding of the given kind.
func (m *Metrics) RecordValidationError(kind string) {
	if m == nil {
		return
	}
	m.NetworkValidationErrors.WithLabelValues(kind).Inc()
}

// RecordRanking records one ranking call.
func (m *Metrics) RecordRanking(filtered int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RankingsTotal.Inc()
	if filtered > 0 {
		m.RankingCandidatesFiltered.Add(float64(filtered))
	}
	m.RankingDuration.Observe(durationSeconds)
}

// RecordEmbeddingRequest records one embedding call.
func (m *Metrics) RecordEmbeddingRequest(model string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = ErrorType(err)
	}
	m.EmbeddingRequestsTotal.WithLabelValues(model, status).Inc()
}
