package domain

import "fmt"

// RelationType selects the direction of a neighborhood lookup.
type RelationType string

const (
	// RelationCitations asks for papers that cite the source.
	RelationCitations RelationType = "citations"
	// RelationReferences asks for papers the source cites.
	RelationReferences RelationType = "references"
)

// IsValid reports whether r is a supported lookup relation.
func (r RelationType) IsValid() bool {
	return r == RelationCitations || r == RelationReferences
}

// ParseRelationType parses a relation name.
func ParseRelationType(s string) (RelationType, error) {
	r := RelationType(NormalizeKeyword(s))
	if !r.IsValid() {
		return "", NewValidationError("relation", fmt.Sprintf("must be %q or %q, got %q", RelationCitations, RelationReferences, s))
	}
	return r, nil
}

// EdgeRelation tags an edge in an assembled network.
type EdgeRelation string

const (
	// EdgeCites points from the citing paper to the cited paper.
	EdgeCites EdgeRelation = "cites"
)

// NetworkNode is a vertex in an assembled network. Identity is Record.ID.
type NetworkNode struct {
	Record     ArticleRecord `json:"record"`
	Label      string        `json:"label"`
	Size       float64       `json:"size"`
	Category   string        `json:"category"`
	Provenance Provenance    `json:"provenance"`
	Reason     string        `json:"reason,omitempty"`

	// FieldSources records which provenance supplied a priority-merged field
	// when it differs from Provenance. Nil for unmerged nodes.
	FieldSources map[string]Provenance `json:"field_sources,omitempty"`
}

// ID returns the node identity.
func (n NetworkNode) ID() string {
	return n.Record.ID
}

// SourceOf returns the provenance that supplied field.
func (n NetworkNode) SourceOf(field string) Provenance {
	if p, ok := n.FieldSources[field]; ok {
		return p
	}
	return n.Provenance
}

// SetSource records that field came from p. Entries equal to the node's own
// provenance are not stored.
func (n *NetworkNode) SetSource(field string, p Provenance) {
	if p == n.Provenance {
		delete(n.FieldSources, field)
		return
	}
	if n.FieldSources == nil {
		n.FieldSources = make(map[string]Provenance)
	}
	n.FieldSources[field] = p
}

// EdgeKey is the unordered endpoint pair used to deduplicate edges.
type EdgeKey struct {
	A string
	B string
}

// String renders the key as "a|b".
func (k EdgeKey) String() string {
	return k.A + "|" + k.B
}

// Less orders keys lexicographically by (A, B).
func (k EdgeKey) Less(other EdgeKey) bool {
	if k.A != other.A {
		return k.A < other.A
	}
	return k.B < other.B
}

// NetworkEdge connects two nodes. Direction is kept for display but the
// edge is treated as undirected for deduplication.
type NetworkEdge struct {
	Source   string       `json:"source"`
	Target   string       `json:"target"`
	Relation EdgeRelation `json:"relation"`
	Weight   float64      `json:"weight"`
}

// Key returns the ordered endpoint pair (min, max).
func (e NetworkEdge) Key() EdgeKey {
	if e.Source <= e.Target {
		return EdgeKey{A: e.Source, B: e.Target}
	}
	return EdgeKey{A: e.Target, B: e.Source}
}

// IsSelfLoop reports whether both endpoints are the same node.
func (e NetworkEdge) IsSelfLoop() bool {
	return e.Source == e.Target
}

// GraphStats summarizes a network snapshot.
type GraphStats struct {
	NodeCount    int            `json:"node_count"`
	EdgeCount    int            `json:"edge_count"`
	ByProvenance map[string]int `json:"by_provenance"`
}

// NetworkGraph is a snapshot of nodes and edges.
type NetworkGraph struct {
	Nodes []NetworkNode `json:"nodes"`
	Edges []NetworkEdge `json:"edges"`
	Stats GraphStats    `json:"stats"`
}

// NodeIndex returns a lookup from node ID to position in Nodes.
func (g NetworkGraph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		idx[n.ID()] = i
	}
	return idx
}

// ComputeStats recalculates the summary from the current nodes and edges.
func (g NetworkGraph) ComputeStats() GraphStats {
	by := make(map[string]int)
	for _, n := range g.Nodes {
		by[n.Provenance.String()]++
	}
	return GraphStats{
		NodeCount:    len(g.Nodes),
		EdgeCount:    len(g.Edges),
		ByProvenance: by,
	}
}
