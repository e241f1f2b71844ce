package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-network-service/internal/domain"
)

func kinds(issues []ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Kind
	}
	return out
}

func TestValidate_CleanGraph(t *testing.T) {
	t.Parallel()

	g := Merge([][]domain.NetworkNode{{node("a", "A", 0), node("b", "B", 0)}}, [][]domain.NetworkEdge{{edge("a", "b", 1)}})
	res := Validate(g)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidate_DanglingEdges(t *testing.T) {
	t.Parallel()

	g := domain.NetworkGraph{
		Nodes: []domain.NetworkNode{node("a", "A", 0)},
		Edges: []domain.NetworkEdge{
			edge("x", "a", 1),
			edge("a", "y", 1),
			edge("p", "q", 1),
		},
	}
	before := len(g.Edges)

	res := Validate(g)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{KindMissingSource, KindMissingTarget, KindMissingBoth}, kinds(res.Errors))
	assert.Equal(t, "x", res.Errors[0].Source)
	assert.Equal(t, "y", res.Errors[1].Target)
	assert.Empty(t, res.Warnings, "a is connected through its dangling edges")
	assert.Len(t, g.Edges, before, "graph is not modified")
}

func TestValidate_Warnings(t *testing.T) {
	t.Parallel()

	untitled := node("b", "", 0)
	g := domain.NetworkGraph{
		Nodes: []domain.NetworkNode{
			node("a", "A", 0),
			untitled,
			node("", "no id", 0),
			node("a", "A again", 0),
			node("c", "C", 0),
		},
		Edges: []domain.NetworkEdge{edge("a", "b", 1)},
	}

	res := Validate(g)
	assert.True(t, res.Valid, "warnings never invalidate")
	assert.ElementsMatch(t,
		[]string{KindMissingTitle, KindMissingID, KindDuplicateNode, KindIsolatedNode},
		kinds(res.Warnings))

	for _, w := range res.Warnings {
		if w.Kind == KindIsolatedNode {
			assert.Equal(t, "c", w.NodeID)
		}
	}
}

func TestPruneDangling(t *testing.T) {
	t.Parallel()

	g := domain.NetworkGraph{
		Nodes: []domain.NetworkNode{node("a", "A", 0), node("b", "B", 0)},
		Edges: []domain.NetworkEdge{edge("a", "b", 1), edge("a", "zzz", 1)},
	}

	pruned, removed := PruneDangling(g)
	assert.Equal(t, 1, removed)
	require.Len(t, pruned.Edges, 1)
	assert.Equal(t, 1, pruned.Stats.EdgeCount)
	assert.Len(t, g.Edges, 2)
	assert.True(t, Validate(pruned).Valid)
}
