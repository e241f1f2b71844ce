package domain

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// whitespaceRegex matches one or more whitespace characters (spaces, tabs, newlines).
var whitespaceRegex = regexp.MustCompile(`\s+`)

// stopWords are dropped when deriving search terms from a title.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "between": {},
	"by": {}, "can": {}, "do": {}, "does": {}, "during": {}, "for": {}, "from": {},
	"has": {}, "have": {}, "how": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"new": {}, "not": {}, "of": {}, "on": {}, "or": {}, "our": {}, "study": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "this": {}, "to": {}, "under": {}, "using": {},
	"via": {}, "was": {}, "were": {}, "what": {}, "when": {}, "which": {}, "with": {},
	"within": {}, "without": {},
}

// NormalizeKeyword normalizes a keyword string by:
// - Converting to lowercase
// - Trimming leading/trailing whitespace
// - Collapsing multiple whitespace characters into a single space
func NormalizeKeyword(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// KeywordSet normalizes keywords and removes empties and duplicates while
// keeping first-seen order. It returns nil for an empty result.
func KeywordSet(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		n := NormalizeKeyword(k)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// UnionKeywords merges keyword lists into a sorted normalized set.
func UnionKeywords(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	set := KeywordSet(all)
	sort.Strings(set)
	return set
}

// SignificantTerms splits a title into lowercase terms, dropping stop words,
// punctuation, pure numbers and terms shorter than three characters.
// At most max terms are returned; max <= 0 means no limit.
func SignificantTerms(title string, max int) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len(f) < 3 || isNumeric(f) {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
