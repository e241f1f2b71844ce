package ranking

import (
	"math"

	"github.com/helixir/citation-network-service/internal/domain"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is empty or zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	denominator := math.Sqrt(normA) * math.Sqrt(normB)
	if denominator == 0 {
		return 0
	}
	return dot / denominator
}

// Jaccard returns |a ∩ b| / |a ∪ b| over two normalized term sets, or 0 when
// both are empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	union := len(set)
	var inter int
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// termSet is the set Jaccard similarity runs on: the record's keywords plus
// the significant terms of its title.
func termSet(rec domain.ArticleRecord) []string {
	return domain.UnionKeywords(rec.Keywords, domain.SignificantTerms(rec.Title, 0))
}

// ContentSimilarity compares a candidate with the reference. Embeddings are
// used when both sides carry one; otherwise keyword sets are compared.
// The result is clamped to [0, 1].
func ContentSimilarity(c, reference Candidate) float64 {
	var s float64
	if len(c.Embedding) > 0 && len(reference.Embedding) > 0 {
		s = CosineSimilarity(c.Embedding, reference.Embedding)
	} else {
		s = Jaccard(termSet(c.Record), termSet(reference.Record))
	}
	return clamp01(s)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
