package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-network-service/internal/domain"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(Config{}, zerolog.Nop(), nil, opts...)
}

func candidate(id string, year, citations int) Candidate {
	return Candidate{Record: domain.NewArticleRecord(id, "Paper "+id, nil, "", year, "", "", citations, nil)}
}

func f64(v float64) *float64 { return &v }

func ids(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Candidate.Record.ID
	}
	return out
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}), "length mismatch")
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector")
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.InDelta(t, 1.0, Jaccard([]string{"a"}, []string{"a", "a"}), 1e-9)
	assert.Zero(t, Jaccard(nil, nil))
	assert.Zero(t, Jaccard([]string{"a"}, nil))
}

func TestContentSimilarity(t *testing.T) {
	t.Parallel()

	t.Run("embeddings on both sides use cosine", func(t *testing.T) {
		a := Candidate{Embedding: []float32{1, 0}}
		b := Candidate{Embedding: []float32{1, 0}}
		assert.InDelta(t, 1.0, ContentSimilarity(a, b), 1e-9)
	})

	t.Run("negative cosine is clamped", func(t *testing.T) {
		a := Candidate{Embedding: []float32{1, 0}}
		b := Candidate{Embedding: []float32{-1, 0}}
		assert.Zero(t, ContentSimilarity(a, b))
	})

	t.Run("missing embedding falls back to keywords", func(t *testing.T) {
		a := Candidate{
			Record:    domain.NewArticleRecord("1", "CRISPR screening", nil, "", 0, "", "", 0, []string{"genomics"}),
			Embedding: []float32{1, 0},
		}
		b := Candidate{Record: domain.NewArticleRecord("2", "CRISPR screening", nil, "", 0, "", "", 0, []string{"genomics"})}
		assert.InDelta(t, 1.0, ContentSimilarity(a, b), 1e-9)
	})
}

func TestValidateCriteria(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	tests := []struct {
		name      string
		criteria  domain.RankingCriteria
		wantField string
	}{
		{"zero criteria", domain.RankingCriteria{}, ""},
		{"similarity above one", domain.RankingCriteria{MinSimilarity: f64(1.5)}, "min_similarity"},
		{"negative citations", domain.RankingCriteria{MinCitations: -1}, "min_citations"},
		{"novelty above one", domain.RankingCriteria{NoveltyPreference: 2}, "novelty_preference"},
		{"negative weight", domain.RankingCriteria{Weights: &domain.ScoreWeights{Content: -1}}, "weights.content"},
		{"empty allowed domain", domain.RankingCriteria{AllowedDomains: []string{""}}, "allowed_domains[0]"},
		{"year window reversed", domain.RankingCriteria{YearFrom: 2020, YearTo: 2010}, "year_from"},
		{"similarity bounds reversed", domain.RankingCriteria{MinSimilarity: f64(0.8), MaxSimilarity: f64(0.2)}, "min_similarity"},
		{"domain both allowed and denied", domain.RankingCriteria{AllowedDomains: []string{"Genomics"}, DeniedDomains: []string{"genomics"}}, "allowed_domains"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCriteria(v, tt.criteria)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestRank_InvalidCriteria(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	out, err := e.Rank(context.Background(), []Candidate{candidate("1", 2020, 1)}, domain.RankingCriteria{YearFrom: 2022, YearTo: 2020}, nil, nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.NoError(t, e.Validate(domain.RankingCriteria{}))
}

func TestRank_CollaborativeAndTemporal(t *testing.T) {
	t.Parallel()

	strong := candidate("strong", 2024, 100)
	strong.VenueQuality = 10
	strong.AuthorHIndex = 50
	weak := candidate("weak", 0, 0)

	out, err := newTestEngine().Rank(context.Background(), []Candidate{weak, strong}, domain.RankingCriteria{}, nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"strong", "weak"}, ids(out))

	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
	assert.Nil(t, out[0].Breakdown.Content, "no reference means no content term")
	require.NotNil(t, out[0].Breakdown.Collaborative)
	assert.InDelta(t, 1.0, *out[0].Breakdown.Collaborative, 1e-9)

	assert.Zero(t, out[1].Score)
	assert.Nil(t, out[1].Breakdown.Temporal, "unknown year without recency")
}

func TestRank_CollaborativeSignalsAreCapped(t *testing.T) {
	t.Parallel()

	c := candidate("1", 0, 500)
	c.VenueQuality = 5
	c.AuthorHIndex = 25

	criteria := domain.RankingCriteria{Weights: &domain.ScoreWeights{Collaborative: 1}}
	out, err := newTestEngine().Rank(context.Background(), []Candidate{c}, criteria, nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	// (1 + 0.5 + 0.5) / 3
	assert.InDelta(t, 2.0/3.0, out[0].Score, 1e-9)
}

func TestRank_TemporalHalfLife(t *testing.T) {
	t.Parallel()

	criteria := domain.RankingCriteria{Weights: &domain.ScoreWeights{Temporal: 1}}

	old := candidate("old", 2016, 0)
	withRecency := candidate("recent", 2016, 0)
	withRecency.Recency = f64(1)

	out, err := newTestEngine().Rank(context.Background(), []Candidate{old, withRecency}, criteria, nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "recent", out[0].Candidate.Record.ID)
	assert.InDelta(t, 0.75, out[0].Score, 1e-9)
	assert.InDelta(t, 0.5, out[1].Score, 1e-9)
}

func TestRank_Novelty(t *testing.T) {
	t.Parallel()

	outside := candidate("outside", 0, 0)
	outside.Domain = "ecology"
	familiar := candidate("familiar", 0, 100)
	familiar.Domain = "genomics"

	criteria := domain.RankingCriteria{Weights: &domain.ScoreWeights{Novelty: 1}}
	profile := &Profile{Domains: []string{"Genomics"}}

	out, err := newTestEngine().Rank(context.Background(), []Candidate{familiar, outside}, criteria, nil, profile)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"outside", "familiar"}, ids(out))
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
	assert.InDelta(t, 0.5, out[1].Score, 1e-9)
}

func TestRank_NoveltyPreferenceWeightsDefaults(t *testing.T) {
	t.Parallel()

	c := candidate("1", 0, 0)
	c.Domain = "ecology"

	// collaborative 0 (w 0.3), temporal absent, novelty 1.0 (w 0.5).
	criteria := domain.RankingCriteria{NoveltyPreference: 0.5}
	out, err := newTestEngine().Rank(context.Background(), []Candidate{c}, criteria, nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.5/0.8, out[0].Score, 1e-9)
}

func TestRank_TiesBrokenByID(t *testing.T) {
	t.Parallel()

	out, err := newTestEngine().Rank(context.Background(), []Candidate{
		candidate("c", 2020, 10),
		candidate("a", 2020, 10),
		candidate("b", 2020, 10),
	}, domain.RankingCriteria{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(out))
}

func TestRank_Filters(t *testing.T) {
	t.Parallel()

	a := candidate("a", 2015, 50)
	a.Domain = "genomics"
	a.Methodologies = []string{"RCT"}
	a.VenueQuality = 4
	b := candidate("b", 0, 50)
	b.Domain = "genomics"
	c := candidate("c", 2018, 2)
	c.Domain = "oncology"

	tests := []struct {
		name     string
		criteria domain.RankingCriteria
		want     []string
	}{
		{"min citations", domain.RankingCriteria{MinCitations: 10}, []string{"a", "b"}},
		{"year window drops unknown year", domain.RankingCriteria{YearFrom: 2010, YearTo: 2020}, []string{"a", "c"}},
		{"allowed domains", domain.RankingCriteria{AllowedDomains: []string{"Oncology"}}, []string{"c"}},
		{"denied domains", domain.RankingCriteria{DeniedDomains: []string{"genomics"}}, []string{"c"}},
		{"methodologies", domain.RankingCriteria{Methodologies: []string{"rct"}}, []string{"a"}},
		{"venue quality", domain.RankingCriteria{MinVenueQuality: 1}, []string{"a"}},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Rank(context.Background(), []Candidate{a, b, c}, tt.criteria, nil, nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(out))
		})
	}
}

func TestRank_SimilarityBoundsNeedReference(t *testing.T) {
	t.Parallel()

	reference := Candidate{Record: domain.NewArticleRecord("ref", "Gut microbiome dysbiosis", nil, "", 2020, "", "", 0, nil)}
	near := Candidate{Record: domain.NewArticleRecord("near", "Gut microbiome dysbiosis", nil, "", 2020, "", "", 0, nil)}
	far := Candidate{Record: domain.NewArticleRecord("far", "Quantum annealing hardware", nil, "", 2020, "", "", 0, nil)}

	criteria := domain.RankingCriteria{MinSimilarity: f64(0.5)}
	e := newTestEngine()

	out, err := e.Rank(context.Background(), []Candidate{far, near}, criteria, &reference, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"near"}, ids(out))
	require.NotNil(t, out[0].Breakdown.Content)
	assert.InDelta(t, 1.0, *out[0].Breakdown.Content, 1e-9)

	out, err = e.Rank(context.Background(), []Candidate{far, near}, criteria, nil, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2, "similarity bounds are ignored without a reference")
}

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
	texts   []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *fakeEmbedder) Name() string  { return "fake" }
func (f *fakeEmbedder) Model() string { return "fake-model" }

func TestEnricher_FillsMissingEmbeddings(t *testing.T) {
	t.Parallel()

	provider := &fakeEmbedder{vectors: map[string][]float32{
		"Reference":  {1, 0},
		"Aligned":    {1, 0},
		"Orthogonal": {0, 1},
	}}
	enricher := NewEnricher(provider, zerolog.Nop(), nil)

	reference := Candidate{Record: domain.NewArticleRecord("ref", "Reference", nil, "", 0, "", "", 0, nil)}
	aligned := Candidate{Record: domain.NewArticleRecord("a", "Aligned", nil, "", 0, "", "", 0, nil)}
	orthogonal := Candidate{Record: domain.NewArticleRecord("o", "Orthogonal", nil, "", 0, "", "", 0, nil)}
	preset := Candidate{Record: domain.NewArticleRecord("p", "Preset", nil, "", 0, "", "", 0, nil), Embedding: []float32{0.5, 0.5}}

	input := []Candidate{orthogonal, aligned, preset}
	out, ref := enricher.Enrich(context.Background(), input, &reference)

	require.NotNil(t, ref)
	assert.Equal(t, []float32{1, 0}, ref.Embedding)
	assert.Equal(t, []float32{0, 1}, out[0].Embedding)
	assert.Equal(t, []float32{1, 0}, out[1].Embedding)
	assert.Equal(t, []float32{0.5, 0.5}, out[2].Embedding)
	assert.NotContains(t, provider.texts, "Preset")
	assert.Nil(t, input[0].Embedding, "input slice is not modified")
	assert.Nil(t, reference.Embedding, "reference is not modified")

	e := newTestEngine(WithEnricher(enricher))
	scored, err := e.Rank(context.Background(), []Candidate{orthogonal, aligned}, domain.RankingCriteria{Weights: &domain.ScoreWeights{Content: 1}}, &reference, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "o"}, ids(scored))
	assert.InDelta(t, 1.0, scored[0].Score, 1e-9)
	assert.InDelta(t, 0.0, scored[1].Score, 1e-9)
}

func TestEnricher_ProviderFailureKeepsInput(t *testing.T) {
	t.Parallel()

	provider := &fakeEmbedder{err: errors.New("quota exceeded")}
	enricher := NewEnricher(provider, zerolog.Nop(), nil)

	reference := Candidate{Record: domain.NewArticleRecord("ref", "Reference", nil, "", 0, "", "", 0, nil)}
	input := []Candidate{candidate("1", 2020, 0)}

	out, ref := enricher.Enrich(context.Background(), input, &reference)
	assert.Equal(t, 1, provider.calls)
	assert.Same(t, &reference, ref)
	assert.Nil(t, out[0].Embedding)
}

func TestEnricher_SkipsWithoutReference(t *testing.T) {
	t.Parallel()

	provider := &fakeEmbedder{}
	enricher := NewEnricher(provider, zerolog.Nop(), nil)

	out, ref := enricher.Enrich(context.Background(), []Candidate{candidate("1", 2020, 0)}, nil)
	assert.Nil(t, ref)
	assert.Len(t, out, 1)
	assert.Zero(t, provider.calls)
}
