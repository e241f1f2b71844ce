// Package discovery finds the citation neighborhood of a paper. An Engine
// runs an ordered cascade of strategies and returns the first non-empty
// answer; the last strategy synthesizes placeholder records so callers
// always have something to render.
package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/observability"
)

const (
	// DefaultOverFetchFactor multiplies the limit for raw identifier requests
	// because hydration drops records without titles.
	DefaultOverFetchFactor = 3

	// DefaultStepTimeout bounds each cascade step.
	DefaultStepTimeout = 20 * time.Second

	// DefaultLimit applies when a caller passes no limit.
	DefaultLimit = 20

	// DefaultMaxLimit caps caller-supplied limits.
	DefaultMaxLimit = 100

	// DefaultBatchConcurrency bounds concurrent lookups in FindRelatedBatch.
	DefaultBatchConcurrency = 4
)

// Reason tags attached to discovered records.
const (
	ReasonCitesSource  = "cites source"
	ReasonCitedBy      = "cited by source"
	ReasonFoundational = "foundational work in same domain"
	ReasonTopical      = "related by topic"
	ReasonPlaceholder  = "placeholder: no upstream results"
)

// RecordResolver hydrates identifiers. *resolver.Resolver and the cached
// decorator both satisfy it.
type RecordResolver interface {
	Resolve(ctx context.Context, ids []string) []domain.ArticleRecord
}

// Related is one discovered paper.
type Related struct {
	Record     domain.ArticleRecord `json:"record"`
	Reason     string               `json:"reason"`
	Provenance domain.Provenance    `json:"provenance"`
}

// Result is the outcome of one FindRelated call.
type Result struct {
	SourceID string              `json:"source_id"`
	Relation domain.RelationType `json:"relation"`
	Related  []Related           `json:"related"`
	// Strategy names the step that produced Related; empty when none did.
	Strategy string `json:"strategy,omitempty"`
}

// Request is what a Strategy sees.
type Request struct {
	SourceID string
	// Source is the hydrated source record; SourceResolved is false when the
	// identifier did not resolve, in which case only SourceID is meaningful.
	Source         domain.ArticleRecord
	SourceResolved bool
	Relation       domain.RelationType
	Limit          int
	// FetchLimit is Limit multiplied by the over-fetch factor.
	FetchLimit int
}

// Strategy is one step of the cascade. ok=false means the strategy does not
// apply to the request or failed; an empty slice with ok=true also falls
// through to the next step.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, req Request) (related []Related, ok bool)
}

// Config holds the configuration for the discovery engine.
type Config struct {
	OverFetchFactor  int
	StepTimeout      time.Duration
	DefaultLimit     int
	MaxLimit         int
	BatchConcurrency int
}

func (c *Config) applyDefaults() {
	if c.OverFetchFactor < 1 {
		c.OverFetchFactor = DefaultOverFetchFactor
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = DefaultBatchConcurrency
	}
}

// Engine runs the strategy cascade.
type Engine struct {
	resolver   RecordResolver
	strategies []Strategy
	cfg        Config
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewEngine creates an Engine running strategies in the given order.
// metrics may be nil.
func NewEngine(resolver RecordResolver, strategies []Strategy, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Engine {
	cfg.applyDefaults()
	return &Engine{
		resolver:   resolver,
		strategies: strategies,
		cfg:        cfg,
		logger:     observability.Component(logger, "discovery"),
		metrics:    metrics,
	}
}

// FindRelated returns papers related to sourceID. It never fails: upstream
// problems make a step fall through, and a cancelled ctx yields an empty
// result. The source paper is never part of the result.
func (e *Engine) FindRelated(ctx context.Context, sourceID string, relation domain.RelationType, limit int) Result {
	sourceID = strings.TrimSpace(sourceID)
	res := Result{SourceID: sourceID, Relation: relation, Related: []Related{}}
	if sourceID == "" || !relation.IsValid() {
		return res
	}
	limit = e.clampLimit(limit)
	log := observability.WithSourceContext(e.logger, sourceID, relation)

	req := Request{
		SourceID:   sourceID,
		Relation:   relation,
		Limit:      limit,
		FetchLimit: limit * e.cfg.OverFetchFactor,
	}
	if recs := e.resolver.Resolve(ctx, []string{sourceID}); len(recs) > 0 {
		req.Source = recs[0]
		req.SourceResolved = true
	}

	for _, s := range e.strategies {
		if ctx.Err() != nil {
			log.Debug().Err(ctx.Err()).Msg("discovery cancelled")
			return res
		}

		related, ok := e.runStep(ctx, s, req)
		if !ok || len(related) == 0 {
			e.metrics.RecordDiscoveryFallback(s.Name())
			log.Debug().Str("strategy", s.Name()).Msg("strategy produced nothing")
			continue
		}
		if ctx.Err() != nil {
			return res
		}

		res.Related = related
		res.Strategy = s.Name()
		e.metrics.RecordDiscovery(string(relation), s.Name(), len(related))
		log.Debug().
			Str("strategy", s.Name()).
			Int("count", len(related)).
			Msg("discovery complete")
		return res
	}
	return res
}

func (e *Engine) runStep(ctx context.Context, s Strategy, req Request) ([]Related, bool) {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	related, ok := s.Discover(sctx, req)
	if !ok {
		return nil, false
	}
	return finalize(related, req.SourceID, req.Limit), true
}

// FindRelatedBatch runs FindRelated for every distinct id concurrently.
func (e *Engine) FindRelatedBatch(ctx context.Context, sourceIDs []string, relation domain.RelationType, limit int) map[string]Result {
	out := make(map[string]Result, len(sourceIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BatchConcurrency)
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
			r := e.FindRelated(gctx, id, relation, limit)
			mu.Lock()
			out[id] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}

// finalize drops invalid records, the source and duplicates, then caps the
// list at limit, keeping strategy order.
func finalize(related []Related, sourceID string, limit int) []Related {
	out := make([]Related, 0, min(len(related), limit))
	seen := make(map[string]struct{}, len(related))
	for _, r := range related {
		if !r.Record.Valid() || r.Record.ID == sourceID {
			continue
		}
		if _, dup := seen[r.Record.ID]; dup {
			continue
		}
		seen[r.Record.ID] = struct{}{}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// relationProvenance maps a relation to the provenance of records found for it.
func relationProvenance(relation domain.RelationType) domain.Provenance {
	if relation == domain.RelationCitations {
		return domain.ProvenanceCitationDiscovery
	}
	return domain.ProvenanceReferenceDiscovery
}
