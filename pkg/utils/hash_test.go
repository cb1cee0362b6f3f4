package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
	assert.Len(t, HashString("abc"), 32)
}

func TestQueryHashNormalization(t *testing.T) {
	base := QueryHash("what is recursion")

	tests := []struct {
		name  string
		query string
		same  bool
	}{
		{"identical", "what is recursion", true},
		{"leading and trailing space", "  what is recursion  ", true},
		{"collapsed whitespace", "what   is \t recursion", true},
		{"case folded", "What IS Recursion", true},
		{"different words", "what is iteration", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, base, QueryHash(tt.query))
			} else {
				assert.NotEqual(t, base, QueryHash(tt.query))
			}
		})
	}
}
