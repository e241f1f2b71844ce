package domain

// ScoreWeights overrides the default weight of each ranking term.
type ScoreWeights struct {
	Content       float64 `json:"content" validate:"gte=0"`
	Collaborative float64 `json:"collaborative" validate:"gte=0"`
	Temporal      float64 `json:"temporal" validate:"gte=0"`
	Novelty       float64 `json:"novelty" validate:"gte=0"`
}

// RankingCriteria is the per-call configuration for the ranking engine.
// Zero values mean "no constraint" for every filter field.
type RankingCriteria struct {
	// MinSimilarity and MaxSimilarity bound the content similarity to the
	// reference paper. They only apply when a reference is given.
	MinSimilarity *float64 `json:"min_similarity,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxSimilarity *float64 `json:"max_similarity,omitempty" validate:"omitempty,gte=0,lte=1"`

	// AllowedDomains, when non-empty, keeps only candidates whose domain is listed.
	AllowedDomains []string `json:"allowed_domains,omitempty" validate:"dive,required"`

	// DeniedDomains drops candidates whose domain is listed.
	DeniedDomains []string `json:"denied_domains,omitempty" validate:"dive,required"`

	MinCitations    int     `json:"min_citations,omitempty" validate:"gte=0"`
	MinVenueQuality float64 `json:"min_venue_quality,omitempty" validate:"gte=0"`

	// YearFrom and YearTo form an inclusive publication year window.
	YearFrom int `json:"year_from,omitempty" validate:"gte=0"`
	YearTo   int `json:"year_to,omitempty" validate:"gte=0"`

	// Methodologies, when non-empty, keeps candidates sharing at least one.
	Methodologies []string `json:"methodologies,omitempty" validate:"dive,required"`

	// NoveltyPreference is the weight of the novelty term, in [0, 1].
	NoveltyPreference float64 `json:"novelty_preference" validate:"gte=0,lte=1"`

	// Weights replaces the default term weights when set.
	Weights *ScoreWeights `json:"weights,omitempty"`
}
