// Package ranking orders candidate papers by relevance to a research
// context. A score is the weighted mean of the terms that apply to a
// candidate: content similarity to a reference paper, collaborative signals
// (citations, venue, author h-index), temporal decay and novelty.
package ranking

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/observability"
)

// Default term weights and normalization caps.
const (
	DefaultContentWeight       = 0.4
	DefaultCollaborativeWeight = 0.3
	DefaultTemporalWeight      = 0.2

	DefaultCitationCap   = 100.0
	DefaultVenueCap      = 10.0
	DefaultHIndexCap     = 50.0
	DefaultHalfLifeYears = 8.0
)

// Candidate is a record plus the features ranking needs.
type Candidate struct {
	Record        domain.ArticleRecord `json:"record"`
	Embedding     []float32            `json:"embedding,omitempty"`
	Domain        string               `json:"domain,omitempty"`
	Methodologies []string             `json:"methodologies,omitempty"`
	VenueQuality  float64              `json:"venue_quality,omitempty"`
	AuthorHIndex  float64              `json:"author_h_index,omitempty"`
	// Recency is an optional external freshness signal in [0, 1].
	Recency *float64 `json:"recency,omitempty"`
}

// Profile describes the researcher the ranking is for.
type Profile struct {
	// Domains the researcher already works in; candidates outside them
	// earn the novelty bonus.
	Domains []string `json:"domains,omitempty"`
}

// Breakdown holds the per-term scores. A nil term did not apply.
type Breakdown struct {
	Content       *float64 `json:"content,omitempty"`
	Collaborative *float64 `json:"collaborative,omitempty"`
	Temporal      *float64 `json:"temporal,omitempty"`
	Novelty       *float64 `json:"novelty,omitempty"`
}

// Scored is a ranked candidate.
type Scored struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Config holds the configuration for the ranking engine.
type Config struct {
	ContentWeight       float64
	CollaborativeWeight float64
	TemporalWeight      float64

	CitationCap   float64
	VenueCap      float64
	HIndexCap     float64
	HalfLifeYears float64
}

// DefaultConfig returns the default weights and caps.
func DefaultConfig() Config {
	return Config{
		ContentWeight:       DefaultContentWeight,
		CollaborativeWeight: DefaultCollaborativeWeight,
		TemporalWeight:      DefaultTemporalWeight,
		CitationCap:         DefaultCitationCap,
		VenueCap:            DefaultVenueCap,
		HIndexCap:           DefaultHIndexCap,
		HalfLifeYears:       DefaultHalfLifeYears,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ContentWeight == 0 && c.CollaborativeWeight == 0 && c.TemporalWeight == 0 {
		c.ContentWeight, c.CollaborativeWeight, c.TemporalWeight = d.ContentWeight, d.CollaborativeWeight, d.TemporalWeight
	}
	if c.CitationCap <= 0 {
		c.CitationCap = d.CitationCap
	}
	if c.VenueCap <= 0 {
		c.VenueCap = d.VenueCap
	}
	if c.HIndexCap <= 0 {
		c.HIndexCap = d.HIndexCap
	}
	if c.HalfLifeYears <= 0 {
		c.HalfLifeYears = d.HalfLifeYears
	}
}

// Engine scores and orders candidates. It holds no per-call state.
type Engine struct {
	cfg      Config
	validate *validator.Validate
	enricher *Enricher
	logger   zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEnricher fills missing embeddings before scoring.
func WithEnricher(e *Enricher) Option {
	return func(en *Engine) { en.enricher = e }
}

// WithClock replaces time.Now for temporal decay.
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.now = now }
}

// NewEngine creates an Engine. metrics may be nil.
func NewEngine(cfg Config, logger zerolog.Logger, metrics *observability.Metrics, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:      cfg,
		validate: NewValidator(),
		logger:   observability.Component(logger, "ranking"),
		metrics:  metrics,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks criteria without ranking anything.
func (e *Engine) Validate(criteria domain.RankingCriteria) error {
	return ValidateCriteria(e.validate, criteria)
}

// Rank filters candidates by criteria and returns the survivors ordered by
// score, highest first, ties broken by record ID. reference and profile are
// optional. Invalid criteria yield a *domain.ConfigurationError.
func (e *Engine) Rank(ctx context.Context, candidates []Candidate, criteria domain.RankingCriteria, reference *Candidate, profile *Profile) ([]Scored, error) {
	if err := ValidateCriteria(e.validate, criteria); err != nil {
		return nil, err
	}
	start := time.Now()

	if e.enricher != nil {
		candidates, reference = e.enricher.Enrich(ctx, candidates, reference)
	}

	weights := e.weights(criteria)
	currentYear := e.now().Year()

	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		var b Breakdown
		var similarity float64
		if reference != nil {
			similarity = ContentSimilarity(c, *reference)
			b.Content = ptr(similarity)
		}
		if !passes(criteria, c, similarity, reference != nil) {
			continue
		}

		b.Collaborative = ptr(e.collaborative(c))
		b.Temporal = e.temporal(c, currentYear)
		b.Novelty = ptr(e.novelty(c, profile))

		out = append(out, Scored{
			Candidate: c,
			Score:     combine(b, weights),
			Breakdown: b,
		})
	}

	slices.SortStableFunc(out, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.Candidate.Record.ID, b.Candidate.Record.ID)
		}
	})

	filtered := len(candidates) - len(out)
	e.metrics.RecordRanking(filtered, time.Since(start).Seconds())
	e.logger.Debug().
		Int("candidates", len(candidates)).
		Int("filtered", filtered).
		Bool("reference", reference != nil).
		Msg("ranking complete")
	return out, nil
}

func (e *Engine) weights(c domain.RankingCriteria) domain.ScoreWeights {
	if c.Weights != nil {
		return *c.Weights
	}
	return domain.ScoreWeights{
		Content:       e.cfg.ContentWeight,
		Collaborative: e.cfg.CollaborativeWeight,
		Temporal:      e.cfg.TemporalWeight,
		Novelty:       c.NoveltyPreference,
	}
}

// collaborative is the mean of the capped citation, venue and h-index signals.
func (e *Engine) collaborative(c Candidate) float64 {
	citations := capped(float64(c.Record.CitationCount), e.cfg.CitationCap)
	venue := capped(c.VenueQuality, e.cfg.VenueCap)
	hindex := capped(c.AuthorHIndex, e.cfg.HIndexCap)
	return (citations + venue + hindex) / 3
}

// temporal halves every HalfLifeYears of age and is averaged with the
// candidate's recency signal when present. It is nil when neither the year
// nor a recency signal is known.
func (e *Engine) temporal(c Candidate, currentYear int) *float64 {
	var parts []float64
	if c.Record.HasYear() {
		age := math.Max(0, float64(currentYear-c.Record.Year))
		parts = append(parts, math.Pow(0.5, age/e.cfg.HalfLifeYears))
	}
	if c.Recency != nil {
		parts = append(parts, clamp01(*c.Recency))
	}
	if len(parts) == 0 {
		return nil
	}
	var sum float64
	for _, p := range parts {
		sum += p
	}
	return ptr(sum / float64(len(parts)))
}

// novelty rewards candidates outside the profile's domains and less-cited work.
func (e *Engine) novelty(c Candidate, profile *Profile) float64 {
	score := 0.5
	if c.Domain != "" && (profile == nil || !containsFold(profile.Domains, c.Domain)) {
		score += 0.3
	}
	score += 0.2 * (1 - capped(float64(c.Record.CitationCount), e.cfg.CitationCap))
	return clamp01(score)
}

// combine is Σ wᵢ·sᵢ / Σ wᵢ over the terms that apply with a positive weight.
func combine(b Breakdown, w domain.ScoreWeights) float64 {
	var num, den float64
	add := func(score *float64, weight float64) {
		if score == nil || weight <= 0 {
			return
		}
		num += weight * *score
		den += weight
	}
	add(b.Content, w.Content)
	add(b.Collaborative, w.Collaborative)
	add(b.Temporal, w.Temporal)
	add(b.Novelty, w.Novelty)
	if den == 0 {
		return 0
	}
	return num / den
}

func capped(v, limit float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Min(v/limit, 1)
}

func ptr(v float64) *float64 {
	return &v
}
