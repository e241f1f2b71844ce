package domain

import "strings"

// MaxAuthors bounds the number of author display names kept per record.
const MaxAuthors = 10

// ArticleRecord is a normalized bibliographic record produced by a resolver.
// Treat it as immutable: constructors copy their slice arguments and the
// merge code always builds fresh values.
type ArticleRecord struct {
	// ID is the opaque provider identifier (a PMID for PubMed).
	ID string `json:"id"`

	// Title is the markup-free article title.
	Title string `json:"title"`

	// Authors holds ordered display names, capped at MaxAuthors.
	Authors []string `json:"authors,omitempty"`

	// Venue is the journal or conference name.
	Venue string `json:"venue,omitempty"`

	// Year is the publication year; 0 means unknown.
	Year int `json:"year,omitempty"`

	// Abstract is optional free text.
	Abstract string `json:"abstract,omitempty"`

	// DOI is the optional external identifier.
	DOI string `json:"doi,omitempty"`

	// CitationCount defaults to 0 when the provider does not report it.
	CitationCount int `json:"citation_count"`

	// Keywords holds MeSH descriptors and author keywords, normalized.
	Keywords []string `json:"keywords,omitempty"`
}

// NewArticleRecord builds a record, trimming fields, capping authors and
// copying slices so the caller's backing arrays are never shared.
func NewArticleRecord(id, title string, authors []string, venue string, year int, abstract, doi string, citations int, keywords []string) ArticleRecord {
	r := ArticleRecord{
		ID:            strings.TrimSpace(id),
		Title:         strings.TrimSpace(title),
		Venue:         strings.TrimSpace(venue),
		Year:          year,
		Abstract:      strings.TrimSpace(abstract),
		DOI:           strings.TrimSpace(doi),
		CitationCount: citations,
	}
	if r.Year < 0 {
		r.Year = 0
	}
	if r.CitationCount < 0 {
		r.CitationCount = 0
	}
	r.Authors = capAuthors(authors)
	r.Keywords = KeywordSet(keywords)
	return r
}

// Valid reports whether the record carries both an identifier and a title.
// Parsers discard records that are not valid.
func (r ArticleRecord) Valid() bool {
	return r.ID != "" && r.Title != ""
}

// HasYear reports whether the publication year is known.
func (r ArticleRecord) HasYear() bool {
	return r.Year > 0
}

// IsPlaceholder reports whether the record was synthesized by the discovery
// fallback rather than fetched from a provider.
func (r ArticleRecord) IsPlaceholder() bool {
	return strings.HasPrefix(r.ID, PlaceholderIDPrefix)
}

// Clone returns a deep copy of the record.
func (r ArticleRecord) Clone() ArticleRecord {
	c := r
	if r.Authors != nil {
		c.Authors = append([]string(nil), r.Authors...)
	}
	if r.Keywords != nil {
		c.Keywords = append([]string(nil), r.Keywords...)
	}
	return c
}

// PlaceholderIDPrefix marks identifiers of synthesized placeholder records.
const PlaceholderIDPrefix = "placeholder:"

func capAuthors(authors []string) []string {
	if len(authors) == 0 {
		return nil
	}
	out := make([]string, 0, min(len(authors), MaxAuthors))
	for _, a := range authors {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		out = append(out, a)
		if len(out) == MaxAuthors {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
