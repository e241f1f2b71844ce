// Package resolver hydrates article identifiers into full records by batching
// them into efetch calls against a papersources.Fetcher.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/observability"
	"github.com/helixir/citation-network-service/internal/papersources"
)

const (
	// DefaultBatchSize is the number of identifiers sent per efetch call.
	DefaultBatchSize = 20

	// MaxBatchSize is the largest batch the upstream accepts reliably.
	MaxBatchSize = 200

	// DefaultMaxConcurrentBatches bounds in-flight batch calls per Resolve.
	DefaultMaxConcurrentBatches = 3

	// DefaultBatchTimeout bounds each batch call.
	DefaultBatchTimeout = 15 * time.Second
)

// Config holds the configuration for the resolver.
type Config struct {
	// BatchSize is the number of identifiers per fetch call (1..MaxBatchSize).
	BatchSize int

	// MaxConcurrentBatches bounds concurrent fetch calls.
	MaxConcurrentBatches int

	// BatchTimeout bounds each fetch call.
	BatchTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
}

// Resolver turns identifiers into ArticleRecords. It never returns an error:
// a failed batch is logged, counted and contributes nothing.
type Resolver struct {
	fetcher papersources.Fetcher
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a Resolver. metrics may be nil.
func New(fetcher papersources.Fetcher, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  observability.Component(logger, "resolver"),
		metrics: metrics,
	}
}

// Resolve hydrates ids. Duplicates and blank identifiers are ignored; the
// result follows the order in which each identifier was first requested and
// holds at most one record per identifier.
func (r *Resolver) Resolve(ctx context.Context, ids []string) []domain.ArticleRecord {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return []domain.ArticleRecord{}
	}

	batches := chunk(unique, r.cfg.BatchSize)
	results := make([][]domain.ArticleRecord, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrentBatches)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			results[i] = r.fetchBatch(gctx, batch)
			return nil
		})
	}
	// Batch goroutines never return an error.
	_ = g.Wait()

	byID := make(map[string]domain.ArticleRecord, len(unique))
	for _, recs := range results {
		for _, rec := range recs {
			if !rec.Valid() {
				continue
			}
			if _, dup := byID[rec.ID]; !dup {
				byID[rec.ID] = rec
			}
		}
	}

	out := make([]domain.ArticleRecord, 0, len(byID))
	for _, id := range unique {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}

	r.metrics.RecordResolved(len(unique), len(out))
	if dropped := len(unique) - len(out); dropped > 0 {
		r.logger.Debug().
			Int("requested", len(unique)).
			Int("resolved", len(out)).
			Msg("some identifiers did not resolve")
	}
	return out
}

// ResolveOne hydrates a single identifier.
func (r *Resolver) ResolveOne(ctx context.Context, id string) (domain.ArticleRecord, bool) {
	recs := r.Resolve(ctx, []string{id})
	if len(recs) == 0 {
		return domain.ArticleRecord{}, false
	}
	return recs[0], true
}

func (r *Resolver) fetchBatch(ctx context.Context, ids []string) []domain.ArticleRecord {
	if ctx.Err() != nil {
		return nil
	}

	bctx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
	defer cancel()

	recs, err := r.fetcher.FetchRecords(bctx, ids)
	if err != nil {
		r.metrics.RecordResolverBatch(false)
		event := r.logger.Warn()
		if errors.Is(err, context.Canceled) {
			event = r.logger.Debug()
		}
		event.Err(err).
			Int("batch_size", len(ids)).
			Str("first_id", ids[0]).
			Str("error_type", observability.ErrorType(err)).
			Msg("batch fetch failed")
		return nil
	}

	r.metrics.RecordResolverBatch(true)
	return recs
}

// dedupe trims identifiers and keeps the first occurrence of each.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
