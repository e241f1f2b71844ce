package ranking

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-network-service/internal/embedding"
	"github.com/helixir/citation-network-service/internal/observability"
)

// Enricher fills missing candidate embeddings through an embedding provider.
// Failures are logged and leave the input unchanged; ranking then falls back
// to keyword similarity.
type Enricher struct {
	provider embedding.Provider
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewEnricher creates an Enricher. metrics may be nil.
func NewEnricher(provider embedding.Provider, logger zerolog.Logger, metrics *observability.Metrics) *Enricher {
	return &Enricher{
		provider: provider,
		logger:   observability.Component(logger, "ranking_enricher"),
		metrics:  metrics,
	}
}

// Enrich returns copies of candidates and reference with embeddings filled in
// for every entry that lacks one. Nothing is requested without a reference,
// since embeddings only feed the content term.
func (e *Enricher) Enrich(ctx context.Context, candidates []Candidate, reference *Candidate) ([]Candidate, *Candidate) {
	if e == nil || e.provider == nil || reference == nil {
		return candidates, reference
	}

	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	ref := *reference

	// targets[i] receives the vector for texts[i].
	var (
		texts   []string
		targets []*Candidate
	)
	if len(ref.Embedding) == 0 {
		if text := embeddingText(ref); text != "" {
			texts = append(texts, text)
			targets = append(targets, &ref)
		}
	}
	for i := range out {
		if len(out[i].Embedding) > 0 {
			continue
		}
		if text := embeddingText(out[i]); text != "" {
			texts = append(texts, text)
			targets = append(targets, &out[i])
		}
	}
	if len(texts) == 0 {
		return candidates, reference
	}

	vecs, err := e.provider.Embed(ctx, texts)
	e.metrics.RecordEmbeddingRequest(e.provider.Model(), err)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("provider", e.provider.Name()).
			Int("texts", len(texts)).
			Msg("embedding enrichment failed, using keyword similarity")
		return candidates, reference
	}

	for i, t := range targets {
		if i < len(vecs) {
			t.Embedding = vecs[i]
		}
	}
	e.logger.Debug().Int("embedded", len(texts)).Msg("candidates enriched")
	return out, &ref
}

func embeddingText(c Candidate) string {
	parts := make([]string, 0, 2)
	if t := strings.TrimSpace(c.Record.Title); t != "" {
		parts = append(parts, t)
	}
	if a := strings.TrimSpace(c.Record.Abstract); a != "" {
		parts = append(parts, a)
	}
	return strings.Join(parts, "\n\n")
}
