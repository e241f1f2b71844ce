// Package papersources provides the bibliographic provider abstractions used
// by the resolver and the discovery engine, plus the shared HTTP plumbing
// (rate limiting, retries, markup stripping) their clients are built on.
//
// Example usage:
//
//	client := pubmed.New(pubmed.Config{APIKey: key})
//	ids, err := client.Search(ctx, papersources.SearchParams{
//		Query:      "microglia neurodegeneration",
//		MaxResults: 30,
//	})
//	records, err := client.FetchRecords(ctx, ids)
package papersources

import (
	"context"
	"time"

	"github.com/helixir/citation-network-service/internal/domain"
)

// SearchParams defines the parameters for a keyword search.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// DateFrom filters papers published on or after this date.
	// If nil, no lower date bound is applied.
	DateFrom *time.Time

	// DateTo filters papers published on or before this date.
	// If nil, no upper date bound is applied.
	DateTo *time.Time

	// MaxResults limits the number of identifiers returned.
	// A value of 0 uses the source's default limit.
	MaxResults int
}

// Fetcher hydrates identifiers into records. Records that lack an ID or a
// title are dropped, so the result may be shorter than ids.
type Fetcher interface {
	FetchRecords(ctx context.Context, ids []string) ([]domain.ArticleRecord, error)
}

// Searcher runs keyword searches and returns matching identifiers in
// provider relevance order.
type Searcher interface {
	Search(ctx context.Context, params SearchParams) ([]string, error)
}

// Linker returns identifiers linked to id by citation. For
// domain.RelationCitations these are the papers citing id; for
// domain.RelationReferences the papers id cites.
type Linker interface {
	Links(ctx context.Context, id string, relation domain.RelationType, max int) ([]string, error)
}

// Provider is a complete bibliographic backend.
type Provider interface {
	Fetcher
	Searcher
	Linker

	// Name returns the human-readable name for this source.
	Name() string
}

// RequestObserver receives one call per upstream request.
// err is nil on success.
type RequestObserver interface {
	ObserveUpstream(source, endpoint string, duration time.Duration, err error)
}

// NopObserver discards observations.
type NopObserver struct{}

// ObserveUpstream implements RequestObserver.
func (NopObserver) ObserveUpstream(string, string, time.Duration, error) {}
