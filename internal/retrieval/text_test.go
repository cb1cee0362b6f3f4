package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryWordsFiltersStopwords(t *testing.T) {
	words := queryWords("What is the time complexity of quicksort?")

	assert.NotContains(t, words, "what")
	assert.NotContains(t, words, "the")
	assert.Contains(t, words, "time")
	assert.Contains(t, words, "complexity")
	assert.Contains(t, words, "quicksort")
}

func TestContentKeywordsDropsShortTokens(t *testing.T) {
	keywords := contentKeywords("go vs c: big o notation")

	for _, kw := range keywords {
		assert.Greater(t, len(kw), 2)
	}
	assert.Contains(t, keywords, "big")
	assert.Contains(t, keywords, "notation")
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestJaccardSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, jaccardSimilarity("binary search tree", "binary search tree"), 1e-9)
	assert.InDelta(t, 0.0, jaccardSimilarity("binary search", "linked list"), 1e-9)
	assert.InDelta(t, 0.0, jaccardSimilarity("", "anything"), 1e-9)

	// {binary, search, tree} vs {binary, search}: 2 shared of 3 total.
	assert.InDelta(t, 2.0/3.0, jaccardSimilarity("binary search tree", "binary search"), 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.7, clamp01(0.7))
}
