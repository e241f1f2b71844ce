package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-network-service/internal/cache"
	"github.com/helixir/citation-network-service/internal/config"
	"github.com/helixir/citation-network-service/internal/domain"
)

const efetchBody = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>100</PMID>
      <Article>
        <Journal><Title>Nature</Title><JournalIssue><PubDate><Year>2021</Year></PubDate></JournalIssue></Journal>
        <ArticleTitle>Gut microbiome and mood</ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.PubMed.BaseURL = baseURL
	cfg.PubMed.RateLimit = 100
	cfg.Cache.SnapshotPath = filepath.Join(t.TempDir(), "snapshots.db")
	cfg.Embedding.Enabled = false
	return cfg
}

func TestNew_WiresCachedResolver(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(efetchBody))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	a, err := New(ctx, cfg, zerolog.Nop(), Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Collections)
	assert.Equal(t, RecordCacheName, a.RecordCache.Name())
	assert.Equal(t, RelatedCacheName, a.RelatedCache.Name())
	assert.Equal(t, "PubMed", a.Provider.Name())

	recs := a.Resolver.Resolve(ctx, []string{"100"})
	require.Len(t, recs, 1)
	assert.Equal(t, "Gut microbiome and mood", recs[0].Title)

	recs = a.Resolver.Resolve(ctx, []string{"100"})
	require.Len(t, recs, 1)
	assert.Equal(t, int32(1), fetches.Load())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Close(shutdownCtx))

	// A second App over the same snapshot file starts warm.
	b, err := New(ctx, cfg, zerolog.Nop(), Options{})
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx))
	defer func() { _ = b.Close(shutdownCtx) }()

	rec, ok := b.RecordCache.Lookup(cache.Key(cache.OpRecord, map[string]string{"id": "100"}))
	require.True(t, ok)
	assert.Equal(t, "100", rec.ID)
}

func TestNew_OpenAlexProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "ids.openalex:W42", r.URL.Query().Get("filter"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"count":1},"results":[{"id":"https://openalex.org/W42","display_name":"Sleep and memory","publication_year":2019}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Provider = config.ProviderOpenAlex
	cfg.OpenAlex.BaseURL = srv.URL
	cfg.OpenAlex.RateLimit = 100
	ctx := context.Background()

	a, err := New(ctx, cfg, zerolog.Nop(), Options{})
	require.NoError(t, err)
	defer func() { _ = a.Close(ctx) }()
	assert.Equal(t, "OpenAlex", a.Provider.Name())

	recs := a.Resolver.Resolve(ctx, []string{"W42"})
	require.Len(t, recs, 1)
	assert.Equal(t, "Sleep and memory", recs[0].Title)
	assert.Equal(t, 2019, recs[0].Year)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Provider = "scopus"

	_, err := New(context.Background(), cfg, zerolog.Nop(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNew_SnapshotStoreFailureFallsBackToMemory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(efetchBody))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Cache.SnapshotPath = filepath.Join(t.TempDir(), "missing-dir", "snapshots.db")
	ctx := context.Background()

	a, err := New(ctx, cfg, zerolog.Nop(), Options{})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Nil(t, a.snapshots)
	require.NoError(t, a.Start(ctx))

	recs := a.Resolver.Resolve(ctx, []string{"100"})
	require.Len(t, recs, 1)
	_, ok := a.RecordCache.Lookup(cache.Key(cache.OpRecord, map[string]string{"id": "100"}))
	assert.True(t, ok)

	assert.NoError(t, a.Close(ctx))
}

func TestNew_EmbeddingRequiresKey(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Embedding.Enabled = true
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.OpenAI.APIKey = ""

	_, err := New(context.Background(), cfg, zerolog.Nop(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestNew_BadLexiconPath(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Discovery.LexiconPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, zerolog.Nop(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load lexicon")
}

func TestMigrate_NoDatabase(t *testing.T) {
	a := &App{Config: &config.Config{}, Logger: zerolog.Nop()}
	assert.NoError(t, a.Migrate())
}
