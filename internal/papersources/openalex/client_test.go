package openalex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/papersources"
)

func newTestClient(serverURL string, opts ...Option) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     sourceName,
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
	opts = append([]Option{WithHTTPClient(httpClient)}, opts...)
	return New(Config{BaseURL: serverURL, Email: "test@example.com"}, opts...)
}

func sampleWork() Work {
	return Work{
		ID:              "https://openalex.org/W2741809807",
		DOI:             "https://doi.org/10.1038/NATURE12373",
		DisplayName:     "CRISPR-Cas Systems for <i>Editing</i> Genomes",
		PublicationYear: 2014,
		CitedByCount:    5000,
		Authorships: []Authorship{
			{AuthorPosition: "first", Author: AuthorInfo{DisplayName: "John Smith"}},
			{AuthorPosition: "last", Author: AuthorInfo{DisplayName: "Jane Doe"}},
		},
		PrimaryLocation: &Location{Source: &Source{DisplayName: "Nature"}},
		ReferencedWorks: []string{
			"https://openalex.org/W1",
			"https://openalex.org/W2",
			"https://openalex.org/W1",
			"https://openalex.org/W2741809807",
		},
		Keywords: []Concept{{DisplayName: "Gene Editing", Score: 0.9}},
		Concepts: []Concept{
			{DisplayName: "Biology", Score: 0.8},
			{DisplayName: "Chemistry", Score: 0.1},
		},
		AbstractInvertedIndex: map[string][]int{
			"CRISPR": {0},
			"edits":  {1},
			"genes":  {2},
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

type recordingObserver struct {
	mu        sync.Mutex
	endpoints []string
	errs      int
}

func (o *recordingObserver) ObserveUpstream(source, endpoint string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.endpoints = append(o.endpoints, source+"/"+endpoint)
	if err != nil {
		o.errs++
	}
}

func TestNew(t *testing.T) {
	c := New(Config{BaseURL: "http://example.test/"})
	assert.Equal(t, "http://example.test", c.config.BaseURL)
	assert.Equal(t, DefaultRateLimit, c.config.RateLimit)
	assert.Equal(t, DefaultMaxResults, c.config.MaxResults)
	assert.Equal(t, "OpenAlex", c.Name())
}

func TestClient_Search(t *testing.T) {
	t.Run("returns short ids with filters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "gene editing", q.Get("search"))
			assert.Equal(t, "15", q.Get("per_page"))
			assert.Equal(t, "test@example.com", q.Get("mailto"))
			assert.Equal(t, "from_publication_date:2010-01-01", q.Get("filter"))
			writeJSON(t, w, ListResponse{Results: []Work{
				{ID: "https://openalex.org/W1"},
				{ID: "https://openalex.org/W2"},
				{ID: "https://openalex.org/W1"},
			}})
		}))
		defer server.Close()

		from := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
		ids, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{
			Query:      "gene editing",
			MaxResults: 15,
			DateFrom:   &from,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"W1", "W2"}, ids)
	})

	t.Run("per_page is capped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "200", r.URL.Query().Get("per_page"))
			writeJSON(t, w, ListResponse{})
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "x", MaxResults: 5000})
		require.NoError(t, err)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := New(Config{}).Search(context.Background(), papersources.SearchParams{Query: ""})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestClient_FetchRecords(t *testing.T) {
	t.Run("converts works", func(t *testing.T) {
		obs := &recordingObserver{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ids.openalex:W2741809807|W9", r.URL.Query().Get("filter"))
			untitled := Work{ID: "https://openalex.org/W9"}
			writeJSON(t, w, ListResponse{Results: []Work{sampleWork(), untitled}})
		}))
		defer server.Close()

		records, err := newTestClient(server.URL, WithObserver(obs)).FetchRecords(context.Background(),
			[]string{"https://openalex.org/W2741809807", "W9", "12345", "W9"})
		require.NoError(t, err)
		require.Len(t, records, 1)

		rec := records[0]
		assert.Equal(t, "W2741809807", rec.ID)
		assert.Equal(t, "CRISPR-Cas Systems for Editing Genomes", rec.Title)
		assert.Equal(t, []string{"John Smith", "Jane Doe"}, rec.Authors)
		assert.Equal(t, "Nature", rec.Venue)
		assert.Equal(t, 2014, rec.Year)
		assert.Equal(t, "10.1038/nature12373", rec.DOI)
		assert.Equal(t, 5000, rec.CitationCount)
		assert.Equal(t, "CRISPR edits genes", rec.Abstract)
		assert.Contains(t, rec.Keywords, "gene editing")
		assert.Contains(t, rec.Keywords, "biology")
		assert.NotContains(t, rec.Keywords, "chemistry")

		assert.Equal(t, []string{"OpenAlex/works"}, obs.endpoints)
	})

	t.Run("chunks large id lists", func(t *testing.T) {
		var mu sync.Mutex
		var chunks []int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ids := strings.Split(strings.TrimPrefix(r.URL.Query().Get("filter"), "ids.openalex:"), "|")
			mu.Lock()
			chunks = append(chunks, len(ids))
			mu.Unlock()
			writeJSON(t, w, ListResponse{})
		}))
		defer server.Close()

		ids := make([]string, 0, 120)
		for i := 0; i < 120; i++ {
			ids = append(ids, "W"+strings.Repeat("1", i+1))
		}
		_, err := newTestClient(server.URL).FetchRecords(context.Background(), ids)
		require.NoError(t, err)
		assert.Equal(t, []int{50, 50, 20}, chunks)
	})

	t.Run("no valid ids makes no request", func(t *testing.T) {
		records, err := New(Config{BaseURL: "http://127.0.0.1:1"}).FetchRecords(context.Background(), []string{"12345", ""})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("server error is an upstream error", func(t *testing.T) {
		obs := &recordingObserver{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, WithObserver(obs)).FetchRecords(context.Background(), []string{"W1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
		assert.Equal(t, 1, obs.errs)
	})

	t.Run("bad json is malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results": [`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).FetchRecords(context.Background(), []string{"W1"})
		require.Error(t, err)
		var malformed *domain.MalformedResponseError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestClient_Links(t *testing.T) {
	t.Run("citations use the cites filter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			assert.Equal(t, "cites:W2741809807", r.URL.Query().Get("filter"))
			assert.Equal(t, "2", r.URL.Query().Get("per_page"))
			writeJSON(t, w, ListResponse{Results: []Work{
				{ID: "https://openalex.org/W5"},
				{ID: "https://openalex.org/W2741809807"},
				{ID: "https://openalex.org/W6"},
			}})
		}))
		defer server.Close()

		ids, err := newTestClient(server.URL).Links(context.Background(), "W2741809807", domain.RelationCitations, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"W5", "W6"}, ids)
	})

	t.Run("references read referenced_works", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works/W2741809807", r.URL.Path)
			writeJSON(t, w, sampleWork())
		}))
		defer server.Close()

		ids, err := newTestClient(server.URL).Links(context.Background(), "https://openalex.org/W2741809807", domain.RelationReferences, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"W1", "W2"}, ids)
	})

	t.Run("unknown work is not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Links(context.Background(), "W404", domain.RelationReferences, 0)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		c := New(Config{})
		_, err := c.Links(context.Background(), "", domain.RelationCitations, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = c.Links(context.Background(), "12345", domain.RelationCitations, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = c.Links(context.Background(), "W1", domain.RelationType("siblings"), 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestReconstructAbstract(t *testing.T) {
	assert.Empty(t, reconstructAbstract(nil))
	assert.Equal(t, "a b a", reconstructAbstract(map[string][]int{"a": {0, 2}, "b": {1}}))

	huge := map[string][]int{"x": make([]int, 100_001)}
	assert.Empty(t, reconstructAbstract(huge))
}

func TestNormalizeDOI(t *testing.T) {
	assert.Equal(t, "10.1/abc", normalizeDOI("https://doi.org/10.1/ABC"))
	assert.Equal(t, "10.1/abc", normalizeDOI("doi:10.1/abc"))
	assert.Empty(t, normalizeDOI(""))
}
