package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-network-service/internal/domain"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics("test_citenet", prometheus.NewRegistry())
}

func TestNewMetrics(t *testing.T) {
	m := newTestMetrics(t)

	assert.NotNil(t, m.SourceRequestsTotal)
	assert.NotNil(t, m.SourceRequestsFailed)
	assert.NotNil(t, m.ResolverBatches)
	assert.NotNil(t, m.DiscoveryResults)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheEntries)
	assert.NotNil(t, m.NetworksAssembled)
	assert.NotNil(t, m.RankingDuration)
	assert.NotNil(t, m.EmbeddingRequestsTotal)
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("dup", prometheus.NewRegistry())
		NewMetrics("dup", prometheus.NewRegistry())
	})
}

func TestObserveUpstream(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveUpstream("PubMed", "efetch", 120*time.Millisecond, nil)
	m.ObserveUpstream("PubMed", "efetch", time.Second,
		domain.NewExternalAPIError("PubMed", 429, "slow down", domain.NewRateLimitError("PubMed", time.Second)))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("PubMed", "efetch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsFailed.WithLabelValues("PubMed", "efetch", "rate_limited")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRateLimited.WithLabelValues("PubMed")))

	count, err := getHistogramVecSampleCount(m.SourceRequestDuration, "PubMed", "efetch")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{err: nil, expected: "none"},
		{err: context.Canceled, expected: "canceled"},
		{err: fmt.Errorf("wrap: %w", context.DeadlineExceeded), expected: "canceled"},
		{err: domain.NewMalformedResponseError("PubMed", "xml", nil), expected: "malformed"},
		{err: domain.NewExternalAPIError("PubMed", 503, "down", nil), expected: "upstream"},
		{err: domain.NewValidationError("id", "empty"), expected: "invalid_input"},
		{err: errors.New("boom"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorType(tt.err))
		})
	}
}

func TestResolverMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordResolverBatch(true)
	m.RecordResolverBatch(false)
	m.RecordResolved(5, 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResolverBatches.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResolverBatches.WithLabelValues("failed")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ResolverRecords))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ResolverDropped))
}

func TestCacheMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCacheHit("records")
	m.RecordCacheMiss("records")
	m.RecordCacheMiss("records")
	m.RecordCacheEvictions("records", 3)
	m.RecordCacheExpirations("records", 0)
	m.SetCacheSize("records", 10, 2048)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits.WithLabelValues("records")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMisses.WithLabelValues("records")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CacheEvictions.WithLabelValues("records")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.CacheEntries.WithLabelValues("records")))
	assert.Equal(t, float64(2048), testutil.ToFloat64(m.CacheBytes.WithLabelValues("records")))
}

func TestNetworkAndRankingMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordNetworkAssembled(12)
	m.RecordValidationError("missing_target")
	m.RecordRanking(4, 0.01)
	m.RecordDiscovery("citations", "direct_link", 7)
	m.RecordDiscoveryFallback("keyword")
	m.RecordEmbeddingRequest("text-embedding-3-small", nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.NetworksAssembled))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NetworkValidationErrors.WithLabelValues("missing_target")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RankingsTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.RankingCandidatesFiltered))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.DiscoveryResults.WithLabelValues("citations", "direct_link")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DiscoveryFallbacks.WithLabelValues("keyword")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmbeddingRequestsTotal.WithLabelValues("text-embedding-3-small", "ok")))

	count, err := getHistogramSampleCount(m.NetworkNodes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpstream("PubMed", "esearch", time.Second, errors.New("x"))
		m.RecordResolverBatch(true)
		m.RecordResolved(1, 1)
		m.RecordCacheHit("c")
		m.SetCacheSize("c", 1, 1)
		m.RecordNetworkAssembled(1)
		m.RecordRanking(0, 0)
		m.RecordEmbeddingRequest("m", nil)
	})
}

func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	var metric dto.Metric
	if err := h.Write(&metric); err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleCount(), nil
}

func getHistogramVecSampleCount(h *prometheus.HistogramVec, labels ...string) (uint64, error) {
	observer, err := h.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}
	metric, ok := observer.(prometheus.Metric)
	if !ok {
		return 0, errors.New("observer is not a metric")
	}
	var out dto.Metric
	if err := metric.Write(&out); err != nil {
		return 0, err
	}
	return out.GetHistogram().GetSampleCount(), nil
}
