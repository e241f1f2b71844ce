package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/observability"
	"github.com/helixir/citation-network-service/internal/papersources"
)

// Strategy names, also used as metric labels.
const (
	StrategyDirectLink     = "direct_link"
	StrategyDomainAnchored = "domain_anchored"
	StrategyKeyword        = "keyword"
	StrategyPlaceholder    = "placeholder"
)

const (
	// DefaultPlaceholderCount is the number of synthesized fallback records.
	DefaultPlaceholderCount = 3

	// keywordQueryTerms is the number of title terms combined into a topical query.
	keywordQueryTerms = 3

	placeholderTitlePrefix = "[Placeholder] "
)

// DefaultStrategies returns the full cascade: direct links, domain-anchored
// search, keyword search, placeholders.
func DefaultStrategies(provider papersources.Provider, resolver RecordResolver, extractor KeywordExtractor, placeholders int, logger zerolog.Logger) []Strategy {
	logger = observability.Component(logger, "discovery")
	return []Strategy{
		NewDirectLinkStrategy(provider, resolver, logger),
		NewDomainAnchoredStrategy(provider, resolver, extractor, logger),
		NewKeywordStrategy(provider, resolver, logger),
		NewPlaceholderStrategy(placeholders),
	}
}

// DirectLinkStrategy follows explicit citation links.
type DirectLinkStrategy struct {
	linker   papersources.Linker
	resolver RecordResolver
	logger   zerolog.Logger
}

// NewDirectLinkStrategy creates a DirectLinkStrategy.
func NewDirectLinkStrategy(linker papersources.Linker, resolver RecordResolver, logger zerolog.Logger) *DirectLinkStrategy {
	return &DirectLinkStrategy{linker: linker, resolver: resolver, logger: logger}
}

// Name implements Strategy.
func (s *DirectLinkStrategy) Name() string { return StrategyDirectLink }

// Discover implements Strategy.
func (s *DirectLinkStrategy) Discover(ctx context.Context, req Request) ([]Related, bool) {
	ids, err := s.linker.Links(ctx, req.SourceID, req.Relation, req.FetchLimit)
	if err != nil {
		logStepFailure(ctx, s.logger, s.Name(), req, err)
		return nil, false
	}
	if len(ids) == 0 {
		return nil, true
	}

	reason := ReasonCitesSource
	if req.Relation == domain.RelationReferences {
		reason = ReasonCitedBy
	}
	return wrap(s.resolver.Resolve(ctx, ids), reason, relationProvenance(req.Relation)), true
}

// DomainAnchoredStrategy searches for older work in the source's domain.
// It only answers reference lookups for sources with a known year.
type DomainAnchoredStrategy struct {
	searcher  papersources.Searcher
	resolver  RecordResolver
	extractor KeywordExtractor
	logger    zerolog.Logger
}

// NewDomainAnchoredStrategy creates a DomainAnchoredStrategy. A nil
// extractor uses DefaultLexicon.
func NewDomainAnchoredStrategy(searcher papersources.Searcher, resolver RecordResolver, extractor KeywordExtractor, logger zerolog.Logger) *DomainAnchoredStrategy {
	if extractor == nil {
		extractor = DefaultLexicon()
	}
	return &DomainAnchoredStrategy{searcher: searcher, resolver: resolver, extractor: extractor, logger: logger}
}

// Name implements Strategy.
func (s *DomainAnchoredStrategy) Name() string { return StrategyDomainAnchored }

// Discover implements Strategy.
func (s *DomainAnchoredStrategy) Discover(ctx context.Context, req Request) ([]Related, bool) {
	if req.Relation != domain.RelationReferences || !req.SourceResolved || !req.Source.HasYear() {
		return nil, false
	}
	phrases := s.extractor.Extract(req.Source.Title)
	if len(phrases) > MaxAnchorPhrases {
		phrases = phrases[:MaxAnchorPhrases]
	}
	if len(phrases) == 0 {
		return nil, false
	}

	// Strictly before the source year.
	before := time.Date(req.Source.Year-1, time.December, 31, 0, 0, 0, 0, time.UTC)

	var ids []string
	var failed int
	for _, phrase := range phrases {
		found, err := s.searcher.Search(ctx, papersources.SearchParams{
			Query:      phrase,
			DateTo:     &before,
			MaxResults: req.FetchLimit,
		})
		if err != nil {
			failed++
			logStepFailure(ctx, s.logger, s.Name(), req, err)
			continue
		}
		ids = append(ids, found...)
	}
	if failed == len(phrases) {
		return nil, false
	}

	var kept []domain.ArticleRecord
	for _, rec := range s.resolver.Resolve(ctx, ids) {
		if rec.HasYear() && rec.Year >= req.Source.Year {
			continue
		}
		kept = append(kept, rec)
	}
	return wrap(kept, ReasonFoundational, domain.ProvenanceReferenceDiscovery), true
}

// KeywordStrategy runs an unconstrained topical search built from the
// significant terms of the source title.
type KeywordStrategy struct {
	searcher papersources.Searcher
	resolver RecordResolver
	logger   zerolog.Logger
}

// NewKeywordStrategy creates a KeywordStrategy.
func NewKeywordStrategy(searcher papersources.Searcher, resolver RecordResolver, logger zerolog.Logger) *KeywordStrategy {
	return &KeywordStrategy{searcher: searcher, resolver: resolver, logger: logger}
}

// Name implements Strategy.
func (s *KeywordStrategy) Name() string { return StrategyKeyword }

// Discover implements Strategy.
func (s *KeywordStrategy) Discover(ctx context.Context, req Request) ([]Related, bool) {
	if !req.SourceResolved {
		return nil, false
	}
	terms := domain.SignificantTerms(req.Source.Title, keywordQueryTerms)
	if len(terms) == 0 {
		return nil, false
	}

	ids, err := s.searcher.Search(ctx, papersources.SearchParams{
		Query:      strings.Join(terms, " "),
		MaxResults: req.FetchLimit,
	})
	if err != nil {
		logStepFailure(ctx, s.logger, s.Name(), req, err)
		return nil, false
	}
	return wrap(s.resolver.Resolve(ctx, ids), ReasonTopical, relationProvenance(req.Relation)), true
}

// PlaceholderStrategy synthesizes clearly labeled stand-in records. It
// always answers, so it belongs at the end of a cascade.
type PlaceholderStrategy struct {
	count int
}

// NewPlaceholderStrategy creates a PlaceholderStrategy producing up to
// count records. count <= 0 uses DefaultPlaceholderCount.
func NewPlaceholderStrategy(count int) *PlaceholderStrategy {
	if count <= 0 {
		count = DefaultPlaceholderCount
	}
	return &PlaceholderStrategy{count: count}
}

// Name implements Strategy.
func (s *PlaceholderStrategy) Name() string { return StrategyPlaceholder }

// Discover implements Strategy.
func (s *PlaceholderStrategy) Discover(_ context.Context, req Request) ([]Related, bool) {
	subject := req.SourceID
	if req.SourceResolved {
		subject = req.Source.Title
	}
	noun := "Citing work"
	if req.Relation == domain.RelationReferences {
		noun = "Referenced work"
	}

	n := min(s.count, req.Limit)
	out := make([]Related, 0, n)
	for i := 1; i <= n; i++ {
		rec := domain.NewArticleRecord(
			fmt.Sprintf("%s%s:%s:%d", domain.PlaceholderIDPrefix, req.SourceID, req.Relation, i),
			fmt.Sprintf("%s%s %d for %s", placeholderTitlePrefix, noun, i, subject),
			nil, "", 0, "", "", 0, nil,
		)
		out = append(out, Related{Record: rec, Reason: ReasonPlaceholder, Provenance: domain.ProvenancePlaceholder})
	}
	return out, true
}

func wrap(recs []domain.ArticleRecord, reason string, prov domain.Provenance) []Related {
	out := make([]Related, 0, len(recs))
	for _, r := range recs {
		out = append(out, Related{Record: r, Reason: reason, Provenance: prov})
	}
	return out
}

func logStepFailure(ctx context.Context, logger zerolog.Logger, strategy string, req Request, err error) {
	event := logger.Warn()
	if ctx.Err() != nil {
		event = logger.Debug()
	}
	event.Err(err).
		Str("strategy", strategy).
		Str("source_id", req.SourceID).
		Str("relation", string(req.Relation)).
		Str("error_type", observability.ErrorType(err)).
		Msg("discovery step failed")
}
