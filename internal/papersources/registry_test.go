package papersources

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-network-service/internal/domain"
)

type stubProvider struct {
	name string
}

func (s stubProvider) Name() string { return s.name }

func (stubProvider) Search(context.Context, SearchParams) ([]string, error) { return nil, nil }

func (stubProvider) FetchRecords(context.Context, []string) ([]domain.ArticleRecord, error) {
	return nil, nil
}

func (stubProvider) Links(context.Context, string, domain.RelationType, int) ([]string, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Names())

	r.Register("PubMed", stubProvider{name: "PubMed"})
	r.Register("openalex", stubProvider{name: "OpenAlex"})

	p, err := r.Get(" pubmed ")
	require.NoError(t, err)
	assert.Equal(t, "PubMed", p.Name())

	assert.Equal(t, []string{"openalex", "pubmed"}, r.Names())
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry()
	r.Register("pubmed", stubProvider{name: "first"})
	r.Register("PUBMED", stubProvider{name: "second"})

	p, err := r.Get("pubmed")
	require.NoError(t, err)
	assert.Equal(t, "second", p.Name())
	assert.Len(t, r.Names(), 1)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	r.Register("pubmed", stubProvider{name: "PubMed"})

	_, err := r.Get("scopus")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "pubmed")
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("p%d", i%5)
			r.Register(name, stubProvider{name: name})
			_, _ = r.Get(name)
			_ = r.Names()
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.Names(), 5)
}
