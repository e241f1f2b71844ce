package domain

import (
	"fmt"
	"strings"
)

// Provenance tags where a network node came from. The numeric order is the
// merge priority: a lower value outranks a higher one.
type Provenance int

const (
	ProvenanceCollection Provenance = iota
	ProvenanceCitationDiscovery
	ProvenanceReferenceDiscovery
	ProvenanceBackendImport
	// ProvenancePlaceholder ranks below every real source so synthesized
	// records can never override fetched data.
	ProvenancePlaceholder
)

var provenanceNames = [...]string{
	ProvenanceCollection:         "collection",
	ProvenanceCitationDiscovery:  "citation_discovery",
	ProvenanceReferenceDiscovery: "reference_discovery",
	ProvenanceBackendImport:      "backend_import",
	ProvenancePlaceholder:        "placeholder",
}

// AllProvenances lists every provenance from highest to lowest priority.
func AllProvenances() []Provenance {
	return []Provenance{
		ProvenanceCollection,
		ProvenanceCitationDiscovery,
		ProvenanceReferenceDiscovery,
		ProvenanceBackendImport,
		ProvenancePlaceholder,
	}
}

// String returns the wire name of the provenance.
func (p Provenance) String() string {
	if p < 0 || int(p) >= len(provenanceNames) {
		return fmt.Sprintf("provenance(%d)", int(p))
	}
	return provenanceNames[p]
}

// Rank returns the merge priority; 0 is the highest.
func (p Provenance) Rank() int {
	return int(p)
}

// Outranks reports whether p has strictly higher merge priority than other.
func (p Provenance) Outranks(other Provenance) bool {
	return p < other
}

// IsValid reports whether p is one of the defined provenances.
func (p Provenance) IsValid() bool {
	return p >= ProvenanceCollection && p <= ProvenancePlaceholder
}

// ParseProvenance parses a wire name. Hyphens and case are tolerated.
func ParseProvenance(s string) (Provenance, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, name := range provenanceNames {
		if name == norm {
			return Provenance(i), nil
		}
	}
	return 0, NewValidationError("provenance", fmt.Sprintf("unknown provenance %q", s))
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid provenance %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provenance) UnmarshalText(text []byte) error {
	parsed, err := ParseProvenance(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
