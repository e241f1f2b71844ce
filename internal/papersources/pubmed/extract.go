package pubmed

import (
	"strconv"
	"strings"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/papersources"
)

// Text returns the markup-free text.
func (m MarkupText) Text() string {
	return papersources.StripMarkup(m.Raw)
}

// articleToRecord converts a PubmedArticle. Every field extractor is
// optional; the record is emitted only when a PMID and a title are present.
func articleToRecord(article PubmedArticle) (domain.ArticleRecord, bool) {
	citation := article.MedlineCitation

	id, ok := extractPMID(citation)
	if !ok {
		return domain.ArticleRecord{}, false
	}
	title, ok := extractTitle(citation.Article)
	if !ok {
		return domain.ArticleRecord{}, false
	}

	venue, _ := extractVenue(citation.Article.Journal)
	year, _ := extractPublicationYear(citation.Article)
	abstract, _ := extractAbstract(citation.Article.Abstract)
	doi, _ := extractDOI(citation.Article, article.PubmedData)

	rec := domain.NewArticleRecord(
		id,
		title,
		extractAuthors(citation.Article.AuthorList),
		venue,
		year,
		abstract,
		doi,
		0,
		extractKeywords(citation),
	)
	return rec, rec.Valid()
}

func extractPMID(citation MedlineCitation) (string, bool) {
	id := strings.TrimSpace(citation.PMID.Value)
	return id, id != ""
}

// extractTitle prefers ArticleTitle and falls back to VernacularTitle.
// PubMed wraps unknown titles in brackets; those are kept as-is.
func extractTitle(article Article) (string, bool) {
	if t := article.ArticleTitle.Text(); t != "" {
		return t, true
	}
	if t := article.VernacularTitle.Text(); t != "" {
		return t, true
	}
	return "", false
}

func extractVenue(journal Journal) (string, bool) {
	venue := papersources.StripMarkup(journal.Title)
	if venue == "" {
		venue = papersources.StripMarkup(journal.ISOAbbreviation)
	}
	return venue, venue != ""
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) (string, bool) {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			if v := strings.TrimSpace(eloc.Value); v != "" {
				return v, true
			}
		}
	}

	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			if v := strings.TrimSpace(aid.Value); v != "" {
				return v, true
			}
		}
	}

	return "", false
}

// extractPublicationYear uses the journal issue date first, then the
// electronic ArticleDate, then the year prefix of a MedlineDate.
func extractPublicationYear(article Article) (int, bool) {
	pubDate := article.Journal.JournalIssue.PubDate
	if y, ok := parseYear(pubDate.Year); ok {
		return y, true
	}

	for _, ad := range article.ArticleDate {
		if y, ok := parseYear(ad.Year); ok {
			return y, true
		}
	}

	// MedlineDate can be "2020 Jan-Feb", "2020 Spring", "2020-2021", etc.
	if pubDate.MedlineDate != "" {
		parts := strings.Fields(pubDate.MedlineDate)
		if len(parts) > 0 {
			if y, ok := parseYear(strings.Split(parts[0], "-")[0]); ok {
				return y, true
			}
		}
	}

	return 0, false
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1000 || y > 9999 {
		return 0, false
	}
	return y, true
}

// extractAbstract concatenates abstract sections. Labeled sections keep
// their label as a prefix.
func extractAbstract(abstract *Abstract) (string, bool) {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return "", false
	}

	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, at := range abstract.AbstractTexts {
		text := papersources.StripMarkup(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" && len(abstract.AbstractTexts) > 1 {
			text = at.Label + ": " + text
		}
		parts = append(parts, text)
	}

	joined := strings.Join(parts, " ")
	return joined, joined != ""
}

// extractAuthors returns display names, skipping authors flagged invalid.
// The domain constructor applies the cap.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	names := make([]string, 0, min(len(authorList.Authors), domain.MaxAuthors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		var name string
		if a.CollectiveName != "" {
			name = papersources.StripMarkup(a.CollectiveName)
		} else {
			nameParts := make([]string, 0, 2)
			if a.ForeName != "" {
				nameParts = append(nameParts, a.ForeName)
			} else if a.Initials != "" {
				nameParts = append(nameParts, a.Initials)
			}
			if a.LastName != "" {
				nameParts = append(nameParts, a.LastName)
			}
			name = strings.Join(nameParts, " ")
		}

		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
		if len(names) == domain.MaxAuthors {
			break
		}
	}

	return names
}

// extractKeywords merges MeSH descriptors with author keywords.
func extractKeywords(citation MedlineCitation) []string {
	var out []string
	if citation.MeshHeadingList != nil {
		for _, mh := range citation.MeshHeadingList.MeshHeadings {
			out = append(out, mh.DescriptorName.Value)
		}
	}
	if citation.KeywordList != nil {
		for _, kw := range citation.KeywordList.Keywords {
			out = append(out, kw.Value)
		}
	}
	return out
}
