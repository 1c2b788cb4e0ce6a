package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// TestModerator_Censor
// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	dictionary := []string{"scammer", "freebie", "paypal"}
	mod, err := NewModerator(dictionary, replacementChar)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "That seller is a scammer for sure",
			expected: "That seller is a ******* for sure",
			words:    []string{"scammer"},
		},
		{
			name:     "Multiple occurrences and preserved spacing",
			input:    "scammer scammer scammer",
			expected: "******* ******* *******",
			words:    []string{"scammer", "scammer", "scammer"},
		},
		{
			name: "Leet speak and internal punctuation",
			// s . c . 4 . m . m . € r spans 12 original characters
			input:    "he is a s.c.4.m.m.€r !",
			expected: "he is a ************ !",
			words:    []string{"scammer"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "pay me on P-A-Y-P-A-L",
			expected: "pay me on ***********",
			words:    []string{"paypal"},
		},
		{
			name:     "Accents and special characters (UTF-8)",
			input:    "Un été avec un scammer",
			expected: "Un été avec un *******",
			words:    []string{"scammer"},
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "grab the freebie!",
			expected: "grab the *******!",
			words:    []string{"freebie"},
		},
		{
			name:     "Nothing to censor",
			input:    "this lamp is in great condition",
			expected: "this lamp is in great condition",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			masked, found := mod.Censor(tt.input)
			req.Equal(tt.expected, masked)
			req.Len(found, len(tt.words))
		})
	}
}

func TestLoadWordlists(t *testing.T) {
	req := require.New(t)

	data, err := LoadWordlists()
	req.NoError(err)
	req.NotEmpty(data.Words)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
}
