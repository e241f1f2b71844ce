package discovery

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxAnchorPhrases bounds the phrases a KeywordExtractor should return.
const MaxAnchorPhrases = 2

// KeywordExtractor derives canonical search phrases from a paper title.
type KeywordExtractor interface {
	Extract(title string) []string
}

// LexiconEntry maps title substrings to one canonical search phrase.
type LexiconEntry struct {
	Phrase string   `yaml:"phrase"`
	Match  []string `yaml:"match"`
}

// Lexicon is an ordered substring table. Earlier entries win when a title
// matches more than MaxAnchorPhrases of them.
type Lexicon struct {
	Entries []LexiconEntry `yaml:"entries"`
}

var _ KeywordExtractor = (*Lexicon)(nil)

// Extract returns up to MaxAnchorPhrases distinct phrases whose substrings
// occur in title, compared case-insensitively.
func (l *Lexicon) Extract(title string) []string {
	if l == nil {
		return nil
	}
	lower := strings.ToLower(title)
	if strings.TrimSpace(lower) == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, e := range l.Entries {
		if _, ok := seen[e.Phrase]; ok {
			continue
		}
		for _, m := range e.Match {
			if m != "" && strings.Contains(lower, strings.ToLower(m)) {
				seen[e.Phrase] = struct{}{}
				out = append(out, e.Phrase)
				break
			}
		}
		if len(out) == MaxAnchorPhrases {
			break
		}
	}
	return out
}

// ParseLexicon decodes a YAML lexicon:
//
//	entries:
//	  - phrase: "CRISPR gene editing"
//	    match: ["crispr", "cas9"]
func ParseLexicon(data []byte) (*Lexicon, error) {
	var l Lexicon
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing lexicon: %w", err)
	}
	for i, e := range l.Entries {
		if strings.TrimSpace(e.Phrase) == "" {
			return nil, fmt.Errorf("lexicon entry %d: phrase is required", i)
		}
		if len(e.Match) == 0 {
			return nil, fmt.Errorf("lexicon entry %d (%s): at least one match is required", i, e.Phrase)
		}
	}
	return &l, nil
}

// LoadLexicon reads a YAML lexicon from path.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon %s: %w", path, err)
	}
	return ParseLexicon(data)
}

// DefaultLexicon returns the built-in biomedical lexicon.
func DefaultLexicon() *Lexicon {
	return &Lexicon{Entries: []LexiconEntry{
		{Phrase: "CRISPR gene editing", Match: []string{"crispr", "cas9", "gene editing", "genome editing"}},
		{Phrase: "Alzheimer disease", Match: []string{"alzheimer", "amyloid", "tauopathy"}},
		{Phrase: "Parkinson disease", Match: []string{"parkinson", "alpha-synuclein"}},
		{Phrase: "gut microbiome", Match: []string{"microbiome", "microbiota"}},
		{Phrase: "coronavirus infections", Match: []string{"covid", "sars-cov-2", "coronavirus"}},
		{Phrase: "cancer immunotherapy", Match: []string{"immunotherapy", "checkpoint inhibitor", "car-t", "car t"}},
		{Phrase: "neoplasms", Match: []string{"cancer", "tumor", "tumour", "carcinoma", "oncolog"}},
		{Phrase: "diabetes mellitus", Match: []string{"diabetes", "diabetic", "insulin resistance"}},
		{Phrase: "stem cells", Match: []string{"stem cell", "pluripotent"}},
		{Phrase: "single-cell sequencing", Match: []string{"single-cell", "single cell", "scrna"}},
		{Phrase: "antimicrobial resistance", Match: []string{"antibiotic resistan", "antimicrobial resistan", "multidrug-resistant"}},
		{Phrase: "machine learning", Match: []string{"deep learning", "machine learning", "neural network"}},
		{Phrase: "cardiovascular diseases", Match: []string{"cardiovascular", "heart failure", "myocardial"}},
		{Phrase: "neuroinflammation", Match: []string{"microglia", "neuroinflammation", "astrocyte"}},
	}}
}
