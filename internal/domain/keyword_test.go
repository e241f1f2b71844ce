package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyword_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase conversion",
			input:    "Machine Learning",
			expected: "machine learning",
		},
		{
			name:     "trim both ends",
			input:    "  protein folding  ",
			expected: "protein folding",
		},
		{
			name:     "collapse multiple spaces",
			input:    "gene   expression   analysis",
			expected: "gene expression analysis",
		},
		{
			name:     "mixed whitespace",
			input:    "  CRISPR \t  CAS9  \n  ",
			expected: "crispr cas9",
		},
		{
			name:     "only whitespace",
			input:    "   \t\n  ",
			expected: "",
		},
		{
			name:     "unicode characters preserved",
			input:    "Müller cells",
			expected: "müller cells",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeKeyword(tt.input))
		})
	}
}

func TestKeywordSet(t *testing.T) {
	t.Run("dedups normalized forms keeping first order", func(t *testing.T) {
		got := KeywordSet([]string{"Humans", " humans ", "Neoplasms", "", "Gene  Expression"})
		assert.Equal(t, []string{"humans", "neoplasms", "gene expression"}, got)
	})

	t.Run("empty input returns nil", func(t *testing.T) {
		assert.Nil(t, KeywordSet(nil))
		assert.Nil(t, KeywordSet([]string{" ", ""}))
	})
}

func TestUnionKeywords(t *testing.T) {
	got := UnionKeywords([]string{"b", "A"}, []string{"a", "c"}, nil)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSignificantTerms(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		max      int
		expected []string
	}{
		{
			name:     "drops stop words and punctuation",
			title:    "The Role of Microglia in Alzheimer's Disease",
			max:      0,
			expected: []string{"role", "microglia", "alzheimer", "disease"},
		},
		{
			name:     "drops numbers and short tokens",
			title:    "A 2019 survey of T cells in IL-2 signaling",
			max:      0,
			expected: []string{"survey", "cells", "il-2", "signaling"},
		},
		{
			name:     "respects max",
			title:    "Deep learning for protein structure prediction",
			max:      2,
			expected: []string{"deep", "learning"},
		},
		{
			name:     "empty title",
			title:    "",
			max:      3,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SignificantTerms(tt.title, tt.max))
		})
	}
}
