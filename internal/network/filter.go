package network

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/citation-network-service/internal/domain"
)

// NodeFilter selects nodes for display. Zero values disable a criterion.
type NodeFilter struct {
	// YearFrom and YearTo form an inclusive window. Nodes with an unknown
	// year are dropped whenever either bound is set.
	YearFrom int `json:"year_from,omitempty" validate:"gte=0,lte=9999"`
	YearTo   int `json:"year_to,omitempty" validate:"gte=0,lte=9999"`

	// Provenances, when non-empty, keeps only nodes with a listed provenance.
	Provenances []domain.Provenance `json:"provenances,omitempty"`

	MinCitations int `json:"min_citations,omitempty" validate:"gte=0"`

	// Author keeps nodes with an author containing this text, ignoring case.
	Author string `json:"author,omitempty"`
}

// ValidateFilter checks field bounds and the year window. Violations are
// returned as *domain.ValidationError.
func ValidateFilter(v *validator.Validate, f NodeFilter) error {
	if err := v.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewValidationError("filter."+fe.Field(), fmt.Sprintf("failed %s=%s check", fe.Tag(), fe.Param()))
		}
		return domain.NewValidationError("filter", err.Error())
	}
	if f.YearFrom > 0 && f.YearTo > 0 && f.YearFrom > f.YearTo {
		return domain.NewValidationError("filter.year_from", "must not be after year_to")
	}
	for _, p := range f.Provenances {
		if !p.IsValid() {
			return domain.NewValidationError("filter.provenances", fmt.Sprintf("unknown provenance %d", int(p)))
		}
	}
	return nil
}

// IsZero reports whether the filter keeps every node.
func (f NodeFilter) IsZero() bool {
	return f.YearFrom == 0 && f.YearTo == 0 && len(f.Provenances) == 0 &&
		f.MinCitations == 0 && strings.TrimSpace(f.Author) == ""
}

// Match reports whether n passes every criterion.
func (f NodeFilter) Match(n domain.NetworkNode) bool {
	rec := n.Record
	if f.YearFrom > 0 || f.YearTo > 0 {
		if !rec.HasYear() {
			return false
		}
		if f.YearFrom > 0 && rec.Year < f.YearFrom {
			return false
		}
		if f.YearTo > 0 && rec.Year > f.YearTo {
			return false
		}
	}
	if len(f.Provenances) > 0 && !slices.Contains(f.Provenances, n.Provenance) {
		return false
	}
	if rec.CitationCount < f.MinCitations {
		return false
	}
	if needle := strings.ToLower(strings.TrimSpace(f.Author)); needle != "" {
		found := false
		for _, a := range rec.Authors {
			if strings.Contains(strings.ToLower(a), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Filter returns a new graph with the nodes that match f and the edges whose
// endpoints both survived. The input graph is not modified.
func Filter(g domain.NetworkGraph, f NodeFilter) domain.NetworkGraph {
	kept := make(map[string]bool, len(g.Nodes))
	out := domain.NetworkGraph{
		Nodes: make([]domain.NetworkNode, 0, len(g.Nodes)),
		Edges: make([]domain.NetworkEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		if f.Match(n) {
			kept[n.ID()] = true
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if kept[e.Source] && kept[e.Target] {
			out.Edges = append(out.Edges, e)
		}
	}
	out.Stats = out.ComputeStats()
	return out
}
