package retrieval

import (
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "do": true, "does": true,
	"for": true, "from": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "its": true, "me": true, "my": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "will": true, "with": true, "you": true,
	"your": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits text into word tokens. It uses the prose
// tokenizer and falls back to a regexp split if the document fails to build.
func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return wordPattern.FindAllString(strings.ToLower(text), -1)
	}

	var words []string
	for _, tok := range doc.Tokens() {
		w := strings.ToLower(tok.Text)
		if wordPattern.MatchString(w) {
			words = append(words, wordPattern.FindString(w))
		}
	}
	return words
}

// queryWords returns stopword-filtered tokens.
func queryWords(text string) []string {
	var words []string
	for _, w := range tokenize(text) {
		if !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

// contentKeywords returns stopword-filtered tokens longer than two
// characters, used for chunk re-scoring.
func contentKeywords(text string) []string {
	var words []string
	for _, w := range queryWords(text) {
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// sanitizeContent strips markup from chunks scraped out of HTML sources.
// Plain text passes through with whitespace collapsed.
func sanitizeContent(content string) string {
	if !strings.Contains(content, "<") || !strings.Contains(content, ">") {
		return strings.TrimSpace(whitespacePattern.ReplaceAllString(content, " "))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(whitespacePattern.ReplaceAllString(content, " "))
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Text()
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccardSimilarity is the lexical last-resort similarity: word-set overlap
// over union.
func jaccardSimilarity(a, b string) float64 {
	setA := map[string]bool{}
	for _, w := range queryWords(a) {
		setA[w] = true
	}
	setB := map[string]bool{}
	for _, w := range queryWords(b) {
		setB[w] = true
	}

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
