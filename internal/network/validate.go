package network

import (
	"fmt"
	"strings"

	"github.com/helixir/citation-network-service/internal/domain"
)

// Issue kinds reported by Validate.
const (
	KindMissingSource = "missing_source"
	KindMissingTarget = "missing_target"
	KindMissingBoth   = "missing_both"
	KindMissingID     = "missing_id"
	KindMissingTitle  = "missing_title"
	KindDuplicateNode = "duplicate_node"
	KindIsolatedNode  = "isolated_node"
)

// ValidationIssue describes one problem found in a graph.
type ValidationIssue struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
	Source  string `json:"source,omitempty"`
	Target  string `json:"target,omitempty"`
}

// ValidationResult is the outcome of Validate. Valid is false whenever
// Errors is non-empty; warnings never invalidate a graph.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// Validate checks that every edge endpoint exists as a node. Dangling
// endpoints are errors; nodes without an ID or title, duplicate IDs and
// isolated nodes are warnings. The graph is never modified.
func Validate(g domain.NetworkGraph) ValidationResult {
	res := ValidationResult{Errors: []ValidationIssue{}, Warnings: []ValidationIssue{}}

	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		id := n.ID()
		if strings.TrimSpace(id) == "" {
			res.Warnings = append(res.Warnings, ValidationIssue{
				Kind:    KindMissingID,
				Message: fmt.Sprintf("node with label %q has no id", n.Label),
			})
			continue
		}
		if ids[id] {
			res.Warnings = append(res.Warnings, ValidationIssue{
				Kind:    KindDuplicateNode,
				Message: fmt.Sprintf("node %s appears more than once", id),
				NodeID:  id,
			})
		}
		ids[id] = true
		if strings.TrimSpace(n.Record.Title) == "" {
			res.Warnings = append(res.Warnings, ValidationIssue{
				Kind:    KindMissingTitle,
				Message: fmt.Sprintf("node %s has no title", id),
				NodeID:  id,
			})
		}
	}

	connected := make(map[string]bool, len(g.Nodes))
	for _, e := range g.Edges {
		sourceOK, targetOK := ids[e.Source], ids[e.Target]
		if sourceOK && targetOK {
			connected[e.Source] = true
			connected[e.Target] = true
			continue
		}

		issue := ValidationIssue{Source: e.Source, Target: e.Target}
		switch {
		case !sourceOK && !targetOK:
			issue.Kind = KindMissingBoth
			issue.Message = fmt.Sprintf("edge %s -> %s references two missing nodes", e.Source, e.Target)
		case !sourceOK:
			issue.Kind = KindMissingSource
			issue.Message = fmt.Sprintf("edge %s -> %s references missing source node", e.Source, e.Target)
			connected[e.Target] = true
		default:
			issue.Kind = KindMissingTarget
			issue.Message = fmt.Sprintf("edge %s -> %s references missing target node", e.Source, e.Target)
			connected[e.Source] = true
		}
		res.Errors = append(res.Errors, issue)
	}

	for _, n := range g.Nodes {
		id := n.ID()
		if id == "" || connected[id] {
			continue
		}
		res.Warnings = append(res.Warnings, ValidationIssue{
			Kind:    KindIsolatedNode,
			Message: fmt.Sprintf("node %s has no edges", id),
			NodeID:  id,
		})
		// Report each isolated id once even when duplicated.
		connected[id] = true
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// PruneDangling returns a copy of g without edges whose endpoints are not
// both present, and the number of edges removed.
func PruneDangling(g domain.NetworkGraph) (domain.NetworkGraph, int) {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID()] = true
	}
	out := domain.NetworkGraph{
		Nodes: append([]domain.NetworkNode(nil), g.Nodes...),
		Edges: make([]domain.NetworkEdge, 0, len(g.Edges)),
	}
	for _, e := range g.Edges {
		if ids[e.Source] && ids[e.Target] {
			out.Edges = append(out.Edges, e)
		}
	}
	out.Stats = out.ComputeStats()
	return out, len(g.Edges) - len(out.Edges)
}
