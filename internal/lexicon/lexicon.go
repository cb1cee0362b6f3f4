// Package lexicon supplies the antonym pairs used for negative-keyword
// penalties during chunk re-scoring. The pairs are domain vocabulary, so
// they load from an external yaml file; a small built-in set covers common
// curricular opposites when no file is configured.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Lexicon struct {
	antonyms map[string]string
}

type fileFormat struct {
	Antonyms map[string]string `yaml:"antonyms"`
}

func defaultPairs() map[string]string {
	return map[string]string{
		"maximum":     "minimum",
		"increase":    "decrease",
		"positive":    "negative",
		"converge":    "diverge",
		"ascending":   "descending",
		"synchronous": "asynchronous",
	}
}

// Load reads antonym pairs from path. An empty path yields the built-in set.
// Pairs are symmetric: loading a->b also registers b->a.
func Load(path string) (*Lexicon, error) {
	pairs := defaultPairs()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read lexicon file: %w", err)
		}

		var parsed fileFormat
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse lexicon file: %w", err)
		}
		pairs = parsed.Antonyms
	}

	antonyms := make(map[string]string, len(pairs)*2)
	for a, b := range pairs {
		a = strings.ToLower(strings.TrimSpace(a))
		b = strings.ToLower(strings.TrimSpace(b))
		if a == "" || b == "" {
			continue
		}
		antonyms[a] = b
		antonyms[b] = a
	}

	return &Lexicon{antonyms: antonyms}, nil
}

func New(pairs map[string]string) *Lexicon {
	l := &Lexicon{antonyms: make(map[string]string, len(pairs)*2)}
	for a, b := range pairs {
		l.antonyms[strings.ToLower(a)] = strings.ToLower(b)
		l.antonyms[strings.ToLower(b)] = strings.ToLower(a)
	}
	return l
}

// Antonym returns the registered opposite of word, if any.
func (l *Lexicon) Antonym(word string) (string, bool) {
	opposite, ok := l.antonyms[strings.ToLower(word)]
	return opposite, ok
}

func (l *Lexicon) Size() int {
	return len(l.antonyms)
}
