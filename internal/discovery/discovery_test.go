package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/observability"
	"github.com/helixir/citation-network-service/internal/papersources"
)

// fakeProvider is an in-memory papersources.Provider.
type fakeProvider struct {
	mu       sync.Mutex
	records  map[string]domain.ArticleRecord
	links    map[domain.RelationType][]string
	search   map[string][]string
	linkErr  error
	searchOK bool

	linkMax      int
	searchParams []papersources.SearchParams
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		records:  map[string]domain.ArticleRecord{},
		links:    map[domain.RelationType][]string{},
		search:   map[string][]string{},
		searchOK: true,
	}
}

func (p *fakeProvider) add(id, title string, year int) {
	p.records[id] = domain.NewArticleRecord(id, title, nil, "", year, "", "", 0, nil)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchRecords(_ context.Context, ids []string) ([]domain.ArticleRecord, error) {
	var out []domain.ArticleRecord
	for _, id := range ids {
		if r, ok := p.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *fakeProvider) Search(_ context.Context, params papersources.SearchParams) ([]string, error) {
	p.mu.Lock()
	p.searchParams = append(p.searchParams, params)
	p.mu.Unlock()
	if !p.searchOK {
		return nil, domain.NewExternalAPIError("fake", 503, "down", nil)
	}
	return p.search[params.Query], nil
}

func (p *fakeProvider) Links(_ context.Context, _ string, relation domain.RelationType, max int) ([]string, error) {
	p.mu.Lock()
	p.linkMax = max
	p.mu.Unlock()
	if p.linkErr != nil {
		return nil, p.linkErr
	}
	return p.links[relation], nil
}

// mapResolver resolves through the provider without batching.
type mapResolver struct{ p *fakeProvider }

func (r mapResolver) Resolve(ctx context.Context, ids []string) []domain.ArticleRecord {
	recs, _ := r.p.FetchRecords(ctx, ids)
	return recs
}

func newTestEngine(p *fakeProvider, cfg Config, m *observability.Metrics) *Engine {
	res := mapResolver{p}
	return NewEngine(res, DefaultStrategies(p, res, nil, 0, zerolog.Nop()), cfg, zerolog.Nop(), m)
}

func relatedIDs(rs []Related) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Record.ID
	}
	return out
}

func TestFindRelated_DirectLinks(t *testing.T) {
	p := newFakeProvider()
	p.add("1", "Source paper", 2020)
	p.add("2", "Citing A", 2021)
	p.add("3", "Citing B", 2022)
	p.add("4", "Citing C", 2023)
	p.links[domain.RelationCitations] = []string{"2", "1", "3", "missing", "4"}

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	e := newTestEngine(p, Config{}, m)

	res := e.FindRelated(context.Background(), "1", domain.RelationCitations, 2)
	assert.Equal(t, StrategyDirectLink, res.Strategy)
	assert.Equal(t, []string{"2", "3"}, relatedIDs(res.Related))
	assert.Equal(t, 6, p.linkMax, "limit times the over-fetch factor")
	for _, r := range res.Related {
		assert.Equal(t, ReasonCitesSource, r.Reason)
		assert.Equal(t, domain.ProvenanceCitationDiscovery, r.Provenance)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiscoveryResults.WithLabelValues("citations", StrategyDirectLink)))
}

func TestFindRelated_ReferencesReason(t *testing.T) {
	p := newFakeProvider()
	p.add("1", "Source", 2020)
	p.add("9", "Older", 2001)
	p.links[domain.RelationReferences] = []string{"9"}

	res := newTestEngine(p, Config{}, nil).FindRelated(context.Background(), "1", domain.RelationReferences, 10)
	require.Len(t, res.Related, 1)
	assert.Equal(t, ReasonCitedBy, res.Related[0].Reason)
	assert.Equal(t, domain.ProvenanceReferenceDiscovery, res.Related[0].Provenance)
}

func TestFindRelated_DomainAnchoredFallback(t *testing.T) {
	p := newFakeProvider()
	p.add("1", "CRISPR screens in tumour organoids", 2020)
	p.add("10", "Early Cas9 work", 2013)
	p.add("11", "Same-year paper", 2020)
	p.add("12", "Undated classic", 0)
	p.add("13", "Older tumour biology", 2005)
	p.search["CRISPR gene editing"] = []string{"10", "11", "1"}
	p.search["neoplasms"] = []string{"12", "13", "10"}

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	res := newTestEngine(p, Config{}, m).FindRelated(context.Background(), "1", domain.RelationReferences, 10)

	assert.Equal(t, StrategyDomainAnchored, res.Strategy)
	assert.Equal(t, []string{"10", "12", "13"}, relatedIDs(res.Related))
	for _, r := range res.Related {
		assert.Equal(t, ReasonFoundational, r.Reason)
	}

	require.Len(t, p.searchParams, 2)
	for _, sp := range p.searchParams {
		require.NotNil(t, sp.DateTo)
		assert.Nil(t, sp.DateFrom)
		assert.Equal(t, 2019, sp.DateTo.Year())
		assert.Equal(t, 30, sp.MaxResults)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscoveryFallbacks.WithLabelValues(StrategyDirectLink)))
}

func TestFindRelated_DomainAnchoredSkippedForCitations(t *testing.T) {
	p := newFakeProvider()
	p.add("1", "CRISPR screens in organoids", 2020)
	p.add("20", "Topical hit", 2022)
	p.search["crispr screens organoids"] = []string{"20"}

	res := newTestEngine(p, Config{}, nil).FindRelated(context.Background(), "1", domain.RelationCitations, 10)
	assert.Equal(t, StrategyKeyword, res.Strategy)
	assert.Equal(t, []string{"20"}, relatedIDs(res.Related))
	assert.Equal(t, ReasonTopical, res.Related[0].Reason)
	require.Len(t, p.searchParams, 1)
	assert.Nil(t, p.searchParams[0].DateTo)
}

func TestFindRelated_UnknownYearSkipsDomainAnchored(t *testing.T) {
	p := newFakeProvider()
	p.add("1", "CRISPR screens", 0)
	p.add("30", "Topical", 2010)
	p.search["crispr screens"] = []string{"30"}

	res := newTestEngine(p, Config{}, nil).FindRelated(context.Background(), "1", domain.RelationReferences, 10)
	assert.Equal(t, StrategyKeyword, res.Strategy)
}

func TestFindRelated_PlaceholderWhenEverythingFails(t *testing.T) {
	p := newFakeProvider()
	p.add("1", "Quantum chromodynamics", 2020)
	p.linkErr = domain.NewExternalAPIError("fake", 503, "down", nil)
	p.searchOK = false

	res := newTestEngine(p, Config{}, nil).FindRelated(context.Background(), "1", domain.RelationCitations, 10)
	assert.Equal(t, StrategyPlaceholder, res.Strategy)
	require.Len(t, res.Related, DefaultPlaceholderCount)
	for _, r := range res.Related {
		assert.True(t, r.Record.IsPlaceholder())
		assert.True(t, strings.HasPrefix(r.Record.Title, "[Placeholder]"))
		assert.Contains(t, r.Record.Title, "Quantum chromodynamics")
		assert.Equal(t, domain.ProvenancePlaceholder, r.Provenance)
		assert.NotEqual(t, "1", r.Record.ID)
	}
}

func TestFindRelated_PlaceholdersRespectLimit(t *testing.T) {
	p := newFakeProvider()
	res := newTestEngine(p, Config{}, nil).FindRelated(context.Background(), "unknown", domain.RelationReferences, 1)
	assert.Equal(t, StrategyPlaceholder, res.Strategy)
	require.Len(t, res.Related, 1)
	assert.Contains(t, res.Related[0].Record.Title, "unknown")
}

func TestFindRelated_UnresolvedSourceStillFollowsLinks(t *testing.T) {
	p := newFakeProvider()
	p.add("2", "Citing", 2021)
	p.links[domain.RelationCitations] = []string{"2"}

	res := newTestEngine(p, Config{}, nil).FindRelated(context.Background(), "1", domain.RelationCitations, 5)
	assert.Equal(t, StrategyDirectLink, res.Strategy)
	assert.Equal(t, []string{"2"}, relatedIDs(res.Related))
}

func TestFindRelated_InvalidInput(t *testing.T) {
	e := newTestEngine(newFakeProvider(), Config{}, nil)

	res := e.FindRelated(context.Background(), " ", domain.RelationCitations, 5)
	assert.Empty(t, res.Related)
	assert.Empty(t, res.Strategy)

	res = e.FindRelated(context.Background(), "1", domain.RelationType("siblings"), 5)
	assert.Empty(t, res.Related)
}

func TestFindRelated_CancelledContext(t *testing.T) {
	p := newFakeProvider()
	p.add("1", "Source", 2020)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestEngine(p, Config{}, nil).FindRelated(ctx, "1", domain.RelationCitations, 5)
	assert.Empty(t, res.Related)
	assert.Empty(t, res.Strategy)
}

// slowStrategy blocks until its step deadline.
type slowStrategy struct{}

func (slowStrategy) Name() string { return "slow" }

func (slowStrategy) Discover(ctx context.Context, _ Request) ([]Related, bool) {
	<-ctx.Done()
	return nil, false
}

// staticStrategy returns fixed records.
type staticStrategy struct {
	name    string
	related []Related
}

func (s staticStrategy) Name() string { return s.name }

func (s staticStrategy) Discover(context.Context, Request) ([]Related, bool) {
	return s.related, true
}

func TestFindRelated_StepTimeoutFallsThrough(t *testing.T) {
	p := newFakeProvider()
	rec := domain.NewArticleRecord("5", "Five", nil, "", 0, "", "", 0, nil)
	e := NewEngine(mapResolver{p}, []Strategy{
		slowStrategy{},
		staticStrategy{name: "static", related: []Related{{Record: rec}}},
	}, Config{StepTimeout: 10 * time.Millisecond}, zerolog.Nop(), nil)

	start := time.Now()
	res := e.FindRelated(context.Background(), "1", domain.RelationCitations, 5)
	assert.Equal(t, "static", res.Strategy)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFindRelated_EmptySomeFallsThrough(t *testing.T) {
	p := newFakeProvider()
	rec := domain.NewArticleRecord("5", "Five", nil, "", 0, "", "", 0, nil)
	e := NewEngine(mapResolver{p}, []Strategy{
		staticStrategy{name: "empty"},
		staticStrategy{name: "only-source", related: []Related{{Record: domain.NewArticleRecord("1", "Source", nil, "", 0, "", "", 0, nil)}}},
		staticStrategy{name: "static", related: []Related{{Record: rec}, {Record: rec}}},
	}, Config{}, zerolog.Nop(), nil)

	res := e.FindRelated(context.Background(), "1", domain.RelationCitations, 5)
	assert.Equal(t, "static", res.Strategy)
	assert.Equal(t, []string{"5"}, relatedIDs(res.Related))
}

func TestFindRelated_LimitClamping(t *testing.T) {
	p := newFakeProvider()
	e := newTestEngine(p, Config{DefaultLimit: 4, MaxLimit: 8}, nil)

	e.FindRelated(context.Background(), "1", domain.RelationCitations, 0)
	assert.Equal(t, 12, p.linkMax)

	e.FindRelated(context.Background(), "1", domain.RelationCitations, 1000)
	assert.Equal(t, 24, p.linkMax)
}

func TestFindRelatedBatch(t *testing.T) {
	p := newFakeProvider()
	p.add("a", "Source A", 2020)
	p.add("b", "Source B", 2020)
	p.add("x", "Shared citing paper", 2021)
	p.links[domain.RelationCitations] = []string{"x"}

	out := newTestEngine(p, Config{BatchConcurrency: 2}, nil).
		FindRelatedBatch(context.Background(), []string{"a", "b", "a", ""}, domain.RelationCitations, 5)

	require.Len(t, out, 2)
	assert.Equal(t, []string{"x"}, relatedIDs(out["a"].Related))
	assert.Equal(t, []string{"x"}, relatedIDs(out["b"].Related))
	assert.Equal(t, "a", out["a"].SourceID)
}

func TestDirectLinkStrategy_ErrorIsNone(t *testing.T) {
	p := newFakeProvider()
	p.linkErr = errors.New("boom")
	s := NewDirectLinkStrategy(p, mapResolver{p}, zerolog.Nop())

	related, ok := s.Discover(context.Background(), Request{SourceID: "1", Relation: domain.RelationCitations, Limit: 5, FetchLimit: 15})
	assert.False(t, ok)
	assert.Nil(t, related)
}

func TestDomainAnchoredStrategy_NoMatchIsNone(t *testing.T) {
	p := newFakeProvider()
	s := NewDomainAnchoredStrategy(p, mapResolver{p}, nil, zerolog.Nop())

	_, ok := s.Discover(context.Background(), Request{
		SourceID:       "1",
		Source:         domain.NewArticleRecord("1", "Medieval trade routes", nil, "", 2010, "", "", 0, nil),
		SourceResolved: true,
		Relation:       domain.RelationReferences,
		Limit:          5,
		FetchLimit:     15,
	})
	assert.False(t, ok)
	assert.Empty(t, p.searchParams)
}
