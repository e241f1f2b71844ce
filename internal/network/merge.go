// Package network assembles citation networks: it merges node and edge lists
// from several sources into one deduplicated graph, validates the graph
// invariants and filters graphs for display.
package network

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/helixir/citation-network-service/internal/domain"
)

// fieldRule resolves one field of dst over every copy of a node at once.
// Resolving a whole group, rather than folding pairs, keeps the result
// independent of input order and of how many passes produced the copies.
type fieldRule struct {
	field   string
	resolve func(dst *domain.NetworkNode, copies []domain.NetworkNode)
}

// mergeRules runs in order; provenance must come first because the
// priority rules record their source relative to dst.Provenance.
var mergeRules = []fieldRule{
	{"provenance", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Provenance = copies[0].Provenance
		for _, n := range copies[1:] {
			if n.Provenance.Outranks(dst.Provenance) {
				dst.Provenance = n.Provenance
			}
		}
	}},
	{"title", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Record.Title = longestOf(copies, func(n domain.NetworkNode) string { return n.Record.Title })
	}},
	{"label", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Label = longestOf(copies, func(n domain.NetworkNode) string { return n.Label })
	}},
	{"size", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Size = copies[0].Size
		for _, n := range copies[1:] {
			dst.Size = math.Max(dst.Size, n.Size)
		}
	}},
	{"authors", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Record.Authors = longestList(copies)
	}},
	{"abstract", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Record.Abstract = longestOf(copies, func(n domain.NetworkNode) string { return n.Record.Abstract })
	}},
	{"venue", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Record.Venue = byPriority(dst, copies, "venue", func(n domain.NetworkNode) string { return n.Record.Venue })
	}},
	{"doi", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Record.DOI = byPriority(dst, copies, "doi", func(n domain.NetworkNode) string { return n.Record.DOI })
	}},
	{"year", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Record.Year = byPriority(dst, copies, "year", func(n domain.NetworkNode) int { return n.Record.Year })
	}},
	{"citation_count", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		for _, n := range copies {
			dst.Record.CitationCount = max(dst.Record.CitationCount, n.Record.CitationCount)
		}
	}},
	{"keywords", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		lists := make([][]string, len(copies))
		for i, n := range copies {
			lists[i] = n.Record.Keywords
		}
		dst.Record.Keywords = domain.UnionKeywords(lists...)
	}},
	{"category", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Category = byPriority(dst, copies, "category", func(n domain.NetworkNode) string { return n.Category })
	}},
	{"reason", func(dst *domain.NetworkNode, copies []domain.NetworkNode) {
		dst.Reason = byPriority(dst, copies, "reason", func(n domain.NetworkNode) string { return n.Reason })
	}},
}

// MergeNodes folds two nodes with the same identity into one.
func MergeNodes(a, b domain.NetworkNode) domain.NetworkNode {
	return mergeGroup([]domain.NetworkNode{a, b})
}

func mergeGroup(copies []domain.NetworkNode) domain.NetworkNode {
	out := domain.NetworkNode{Record: domain.ArticleRecord{ID: copies[0].Record.ID}}
	for _, r := range mergeRules {
		r.resolve(&out, copies)
	}
	return out
}

// Merge folds node lists and edge lists into one graph. Nodes with the same
// ID are merged field by field; nodes without an ID are dropped. Edges are
// deduplicated on their undirected key, keeping the higher weight (the
// earlier edge on ties); self-loops are dropped. Nodes and edges come out
// sorted for deterministic output. Dangling edges are kept; see Validate.
//
// All copies of one node are resolved together, so the result depends
// neither on the order of the input lists nor on whether some copies were
// already merged by an earlier call.
func Merge(nodeLists [][]domain.NetworkNode, edgeLists [][]domain.NetworkEdge) domain.NetworkGraph {
	byID := make(map[string][]domain.NetworkNode)
	for _, list := range nodeLists {
		for _, n := range list {
			id := strings.TrimSpace(n.ID())
			if id == "" {
				continue
			}
			n.Record.ID = id
			byID[id] = append(byID[id], n)
		}
	}

	nodes := make([]domain.NetworkNode, 0, len(byID))
	for _, copies := range byID {
		nodes = append(nodes, mergeGroup(copies))
	}
	slices.SortFunc(nodes, func(a, b domain.NetworkNode) int {
		return strings.Compare(a.ID(), b.ID())
	})

	byKey := make(map[domain.EdgeKey]domain.NetworkEdge)
	for _, list := range edgeLists {
		for _, e := range list {
			if e.IsSelfLoop() {
				continue
			}
			k := e.Key()
			if prev, ok := byKey[k]; ok && prev.Weight >= e.Weight {
				continue
			}
			byKey[k] = e
		}
	}

	edges := make([]domain.NetworkEdge, 0, len(byKey))
	for _, e := range byKey {
		edges = append(edges, e)
	}
	sortEdges(edges)

	g := domain.NetworkGraph{Nodes: nodes, Edges: edges}
	g.Stats = g.ComputeStats()
	return g
}

// NodeFromRecord builds a node with the default label, size and category.
func NodeFromRecord(rec domain.ArticleRecord, prov domain.Provenance, reason string) domain.NetworkNode {
	return domain.NetworkNode{
		Record:     rec.Clone(),
		Label:      rec.Title,
		Size:       NodeSize(rec.CitationCount),
		Category:   prov.String(),
		Provenance: prov,
		Reason:     reason,
	}
}

// NodeSize is the default visual weight: 1 + ln(1 + citations).
func NodeSize(citations int) float64 {
	return 1 + math.Log1p(float64(max(citations, 0)))
}

func sortEdges(edges []domain.NetworkEdge) {
	slices.SortFunc(edges, func(a, b domain.NetworkEdge) int {
		ka, kb := a.Key(), b.Key()
		switch {
		case ka.Less(kb):
			return -1
		case kb.Less(ka):
			return 1
		default:
			return 0
		}
	})
}

// longestOf returns the longest value; equal lengths pick the lexically
// smaller.
func longestOf(copies []domain.NetworkNode, get func(domain.NetworkNode) string) string {
	best := get(copies[0])
	for _, n := range copies[1:] {
		v := get(n)
		if len(v) > len(best) || (len(v) == len(best) && v < best) {
			best = v
		}
	}
	return best
}

// longestList picks the longest author list regardless of provenance, so a
// sparse high-priority record never discards a fuller one.
func longestList(copies []domain.NetworkNode) []string {
	var best []string
	for _, n := range copies {
		v := n.Record.Authors
		if len(v) > len(best) || (len(v) == len(best) && len(v) > 0 && slices.Compare(v, best) < 0) {
			best = v
		}
	}
	if best == nil {
		return nil
	}
	return append([]string(nil), best...)
}

// byPriority returns the non-zero value with the highest field provenance,
// the smaller value on ties, and records where it came from on dst.
func byPriority[T cmp.Ordered](dst *domain.NetworkNode, copies []domain.NetworkNode, field string, get func(domain.NetworkNode) T) T {
	var (
		zero, best T
		from       domain.Provenance
		found      bool
	)
	for _, n := range copies {
		v := get(n)
		if v == zero {
			continue
		}
		p := n.SourceOf(field)
		if !found || p.Outranks(from) || (p == from && v < best) {
			best, from, found = v, p, true
		}
	}
	if found {
		dst.SetSource(field, from)
	}
	return best
}
