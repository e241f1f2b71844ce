package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-network-service/internal/discovery"
	"github.com/helixir/citation-network-service/internal/domain"
)

// Operation names used in cache keys.
const (
	OpRecord  = "record"
	OpRelated = "related"
)

// errNotCacheable marks results that are returned to the caller but not stored.
var errNotCacheable = errors.New("result not cacheable")

// RelatedFinder is the discovery surface CachedDiscovery decorates.
type RelatedFinder interface {
	FindRelated(ctx context.Context, sourceID string, relation domain.RelationType, limit int) discovery.Result
}

// CachedResolver caches hydrated records one identifier at a time, so
// overlapping requests share entries. Unresolved identifiers are not cached.
type CachedResolver struct {
	inner discovery.RecordResolver
	cache *Cache[domain.ArticleRecord]
}

var _ discovery.RecordResolver = (*CachedResolver)(nil)

// NewCachedResolver wraps inner with c.
func NewCachedResolver(inner discovery.RecordResolver, c *Cache[domain.ArticleRecord]) *CachedResolver {
	return &CachedResolver{inner: inner, cache: c}
}

// Resolve returns cached records and hydrates the rest through the wrapped
// resolver in one call. Order and dedup match the wrapped resolver.
func (r *CachedResolver) Resolve(ctx context.Context, ids []string) []domain.ArticleRecord {
	var order, missing []string
	found := make(map[string]domain.ArticleRecord, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)

		if rec, ok := r.cache.Lookup(recordKey(id)); ok {
			found[id] = rec
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		for _, rec := range r.inner.Resolve(ctx, missing) {
			found[rec.ID] = rec
			r.cache.Set(recordKey(rec.ID), rec, 0)
		}
	}

	out := make([]domain.ArticleRecord, 0, len(found))
	for _, id := range order {
		if rec, ok := found[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// ResolveOne hydrates a single identifier.
func (r *CachedResolver) ResolveOne(ctx context.Context, id string) (domain.ArticleRecord, bool) {
	recs := r.Resolve(ctx, []string{id})
	if len(recs) == 0 {
		return domain.ArticleRecord{}, false
	}
	return recs[0], true
}

func recordKey(id string) string {
	return Key(OpRecord, map[string]string{"id": id})
}

// CachedDiscovery caches discovery results per source, relation and limit.
// Empty and placeholder results are returned but never stored, so a later
// call retries the upstream.
type CachedDiscovery struct {
	inner       RelatedFinder
	cache       *Cache[discovery.Result]
	concurrency int
}

// NewCachedDiscovery wraps inner with c. concurrency bounds FindRelatedBatch.
func NewCachedDiscovery(inner RelatedFinder, c *Cache[discovery.Result], concurrency int) *CachedDiscovery {
	if concurrency <= 0 {
		concurrency = discovery.DefaultBatchConcurrency
	}
	return &CachedDiscovery{inner: inner, cache: c, concurrency: concurrency}
}

// FindRelated implements RelatedFinder.
func (d *CachedDiscovery) FindRelated(ctx context.Context, sourceID string, relation domain.RelationType, limit int) discovery.Result {
	sourceID = strings.TrimSpace(sourceID)
	params := map[string]string{
		"id":       sourceID,
		"relation": string(relation),
		"limit":    strconv.Itoa(limit),
	}

	var fresh discovery.Result
	res, ok := d.cache.Get(ctx, OpRelated, params, func(ctx context.Context) (discovery.Result, error) {
		fresh = d.inner.FindRelated(ctx, sourceID, relation, limit)
		if fresh.Strategy == "" || fresh.Strategy == discovery.StrategyPlaceholder {
			return fresh, errNotCacheable
		}
		return fresh, nil
	})
	if !ok {
		return fresh
	}
	return res
}

// FindRelatedBatch runs FindRelated for every distinct id concurrently.
func (d *CachedDiscovery) FindRelatedBatch(ctx context.Context, sourceIDs []string, relation domain.RelationType, limit int) map[string]discovery.Result {
	out := make(map[string]discovery.Result, len(sourceIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	seen := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		id := id
		g.Go(func() error {
			r := d.FindRelated(gctx, id, relation, limit)
			mu.Lock()
			out[id] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
