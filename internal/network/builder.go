package network

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-network-service/internal/discovery"
	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/observability"
	"github.com/helixir/citation-network-service/internal/ranking"
)

// Builder defaults.
const (
	DefaultLimit       = 20
	DefaultMaxSources  = 25
	DefaultConcurrency = 4
)

// ReasonInCollection marks nodes taken from a stored collection.
const ReasonInCollection = "in collection"

// CollectionReader lists the articles stored in a collection.
type CollectionReader interface {
	ListArticles(ctx context.Context, collectionID uuid.UUID) ([]domain.ArticleRecord, error)
}

// RelatedFinder looks up the neighborhood of one paper.
type RelatedFinder interface {
	FindRelated(ctx context.Context, sourceID string, relation domain.RelationType, limit int) discovery.Result
}

// Ranker orders candidates; *ranking.Engine satisfies it.
type Ranker interface {
	Rank(ctx context.Context, candidates []ranking.Candidate, criteria domain.RankingCriteria, reference *ranking.Candidate, profile *ranking.Profile) ([]ranking.Scored, error)
	Validate(criteria domain.RankingCriteria) error
}

// Config holds the builder configuration.
type Config struct {
	DefaultLimit int
	MaxSources   int
	Concurrency  int
	// DropDangling removes edges with a missing endpoint before validation.
	DropDangling bool
}

func (c *Config) applyDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.MaxSources <= 0 {
		c.MaxSources = DefaultMaxSources
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// BuildRequest describes one network to assemble.
type BuildRequest struct {
	SourceIDs    []string              `json:"source_ids"`
	CollectionID *uuid.UUID            `json:"collection_id,omitempty"`
	Limit        int                   `json:"limit,omitempty"`
	Relations    []domain.RelationType `json:"relations,omitempty"`
	Filter       *NodeFilter           `json:"filter,omitempty"`

	// Rank orders nodes by relevance to the first source and scales node
	// sizes by score.
	Rank     bool                   `json:"rank,omitempty"`
	Criteria domain.RankingCriteria `json:"criteria"`
}

// Builder assembles a citation network around a set of source papers.
type Builder struct {
	collections CollectionReader
	finder      RelatedFinder
	resolver    discovery.RecordResolver
	ranker      Ranker
	validate    *validator.Validate
	cfg         Config
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// NewBuilder creates a Builder. collections and ranker may be nil; requests
// that need them are then rejected.
func NewBuilder(collections CollectionReader, finder RelatedFinder, resolver discovery.RecordResolver, ranker Ranker, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Builder {
	cfg.applyDefaults()
	return &Builder{
		collections: collections,
		finder:      finder,
		resolver:    resolver,
		ranker:      ranker,
		validate:    ranking.NewValidator(),
		cfg:         cfg,
		logger:      observability.Component(logger, "network_builder"),
		metrics:     metrics,
	}
}

type lookup struct {
	sourceID string
	relation domain.RelationType
}

// Build assembles the network described by req. Errors are returned only for
// invalid requests or a failing collection store; upstream failures degrade
// to smaller graphs. The ValidationResult describes the returned graph.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (domain.NetworkGraph, ValidationResult, error) {
	start := time.Now()

	relations, err := b.relations(req.Relations)
	if err != nil {
		return domain.NetworkGraph{}, ValidationResult{}, err
	}
	if req.Filter != nil {
		if err := ValidateFilter(b.validate, *req.Filter); err != nil {
			return domain.NetworkGraph{}, ValidationResult{}, err
		}
	}
	if req.Rank {
		if b.ranker == nil {
			return domain.NetworkGraph{}, ValidationResult{}, domain.NewValidationError("rank", "ranking is not available")
		}
		if err := b.ranker.Validate(req.Criteria); err != nil {
			return domain.NetworkGraph{}, ValidationResult{}, err
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = b.cfg.DefaultLimit
	}

	var sourceNodes []domain.NetworkNode
	var sourceIDs []string
	seen := make(map[string]bool)

	if req.CollectionID != nil {
		if b.collections == nil {
			return domain.NetworkGraph{}, ValidationResult{}, domain.NewValidationError("collection_id", "collections are not available")
		}
		articles, err := b.collections.ListArticles(ctx, *req.CollectionID)
		if err != nil {
			return domain.NetworkGraph{}, ValidationResult{}, fmt.Errorf("list collection articles: %w", err)
		}
		for _, a := range articles {
			if !a.Valid() || seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			sourceIDs = append(sourceIDs, a.ID)
			sourceNodes = append(sourceNodes, NodeFromRecord(a, domain.ProvenanceCollection, ReasonInCollection))
		}
	}

	var toResolve []string
	for _, id := range req.SourceIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sourceIDs = append(sourceIDs, id)
		toResolve = append(toResolve, id)
	}

	if len(sourceIDs) == 0 {
		return domain.NetworkGraph{}, ValidationResult{}, domain.NewValidationError("source_ids", "at least one source id or a non-empty collection is required")
	}
	if len(sourceIDs) > b.cfg.MaxSources {
		return domain.NetworkGraph{}, ValidationResult{}, domain.NewValidationError("source_ids",
			fmt.Sprintf("at most %d sources per network, got %d", b.cfg.MaxSources, len(sourceIDs)))
	}

	if len(toResolve) > 0 {
		records := b.resolver.Resolve(ctx, toResolve)
		for _, rec := range records {
			sourceNodes = append(sourceNodes, NodeFromRecord(rec, domain.ProvenanceBackendImport, ""))
		}
		if missing := len(toResolve) - len(records); missing > 0 {
			b.logger.Warn().
				Int("requested", len(toResolve)).
				Int("missing", missing).
				Msg("some source papers could not be resolved")
		}
	}

	nodeLists, edgeLists := b.discover(ctx, sourceIDs, relations, limit)
	nodeLists = append([][]domain.NetworkNode{sourceNodes}, nodeLists...)

	g := Merge(nodeLists, edgeLists)
	if b.cfg.DropDangling {
		var removed int
		g, removed = PruneDangling(g)
		if removed > 0 {
			b.logger.Debug().Int("removed", removed).Msg("dangling edges pruned")
		}
	}
	if req.Filter != nil && !req.Filter.IsZero() {
		g = Filter(g, *req.Filter)
	}
	if req.Rank {
		g, err = b.rank(ctx, g, sourceIDs[0], req.Criteria)
		if err != nil {
			return domain.NetworkGraph{}, ValidationResult{}, err
		}
	}

	result := Validate(g)
	for _, issue := range result.Errors {
		b.metrics.RecordValidationError(issue.Kind)
	}
	b.metrics.RecordNetworkAssembled(len(g.Nodes))

	b.logger.Info().
		Int("sources", len(sourceIDs)).
		Int("nodes", len(g.Nodes)).
		Int("edges", len(g.Edges)).
		Bool("valid", result.Valid).
		Dur("duration", time.Since(start)).
		Msg("network assembled")

	return g, result, nil
}

func (b *Builder) relations(requested []domain.RelationType) ([]domain.RelationType, error) {
	if len(requested) == 0 {
		return []domain.RelationType{domain.RelationCitations, domain.RelationReferences}, nil
	}
	out := make([]domain.RelationType, 0, len(requested))
	for _, r := range requested {
		if !r.IsValid() {
			return nil, domain.NewValidationError("relations", fmt.Sprintf("unsupported relation %q", r))
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// discover runs every (source, relation) lookup concurrently. Results keep
// lookup order so the merge input is deterministic.
func (b *Builder) discover(ctx context.Context, sourceIDs []string, relations []domain.RelationType, limit int) ([][]domain.NetworkNode, [][]domain.NetworkEdge) {
	lookups := make([]lookup, 0, len(sourceIDs)*len(relations))
	for _, id := range sourceIDs {
		for _, r := range relations {
			lookups = append(lookups, lookup{sourceID: id, relation: r})
		}
	}

	results := make([]discovery.Result, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, l := range lookups {
		i, l := i, l
		g.Go(func() error {
			results[i] = b.finder.FindRelated(gctx, l.sourceID, l.relation, limit)
			return nil
		})
	}
	_ = g.Wait()

	nodeLists := make([][]domain.NetworkNode, 0, len(results))
	edgeLists := make([][]domain.NetworkEdge, 0, len(results))
	for i, res := range results {
		l := lookups[i]
		nodes := make([]domain.NetworkNode, 0, len(res.Related))
		edges := make([]domain.NetworkEdge, 0, len(res.Related))
		for _, rel := range res.Related {
			nodes = append(nodes, NodeFromRecord(rel.Record, rel.Provenance, rel.Reason))
			edges = append(edges, relationEdge(l.sourceID, rel.Record.ID, l.relation))
		}
		nodeLists = append(nodeLists, nodes)
		edgeLists = append(edgeLists, edges)
	}
	return nodeLists, edgeLists
}

// relationEdge points from the citing paper to the cited one.
func relationEdge(sourceID, relatedID string, relation domain.RelationType) domain.NetworkEdge {
	if relation == domain.RelationCitations {
		return domain.NetworkEdge{Source: relatedID, Target: sourceID, Relation: domain.EdgeCites, Weight: 1}
	}
	return domain.NetworkEdge{Source: sourceID, Target: relatedID, Relation: domain.EdgeCites, Weight: 1}
}

// rank orders nodes by score against the reference source. Scored nodes come
// first with their size multiplied by (1 + score); nodes the criteria
// excluded follow in ID order with their size unchanged.
func (b *Builder) rank(ctx context.Context, g domain.NetworkGraph, referenceID string, criteria domain.RankingCriteria) (domain.NetworkGraph, error) {
	var reference *ranking.Candidate
	candidates := make([]ranking.Candidate, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID() == referenceID {
			reference = &ranking.Candidate{Record: n.Record}
			continue
		}
		candidates = append(candidates, ranking.Candidate{Record: n.Record})
	}

	scored, err := b.ranker.Rank(ctx, candidates, criteria, reference, nil)
	if err != nil {
		return g, err
	}

	index := g.NodeIndex()
	out := domain.NetworkGraph{Nodes: make([]domain.NetworkNode, 0, len(g.Nodes)), Edges: g.Edges}
	placed := make(map[string]bool, len(g.Nodes))
	if i, ok := index[referenceID]; ok {
		out.Nodes = append(out.Nodes, g.Nodes[i])
		placed[referenceID] = true
	}
	for _, s := range scored {
		i, ok := index[s.Candidate.Record.ID]
		if !ok {
			continue
		}
		n := g.Nodes[i]
		n.Size *= 1 + s.Score
		out.Nodes = append(out.Nodes, n)
		placed[n.ID()] = true
	}
	for _, n := range g.Nodes {
		if !placed[n.ID()] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	out.Stats = out.ComputeStats()
	return out, nil
}
