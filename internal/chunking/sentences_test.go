package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentencesTilesText(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"simple", "First sentence. Second sentence. Third."},
		{"mixed terminators", "Really? Yes! Definitely. Done"},
		{"decimals stay together", "The value is 3.14 exactly. Next sentence."},
		{"closing quotes", `He said "stop." Then he left.`},
		{"newlines between sentences", "Line one.\nLine two.\n\nLine three."},
		{"unterminated tail", "Complete sentence. trailing fragment without period"},
		{"single fragment", "no terminator at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sents := splitSentences(tt.text)
			require.NotEmpty(t, sents)

			var b strings.Builder
			prev := 0
			for _, s := range sents {
				assert.Equal(t, prev, s.start, "spans must be contiguous")
				assert.Greater(t, s.end, s.start)
				b.WriteString(tt.text[s.start:s.end])
				prev = s.end
			}
			assert.Equal(t, len(tt.text), sents[len(sents)-1].end)
			assert.Equal(t, tt.text, b.String(), "concatenated spans must reproduce the source")
		})
	}
}

func TestSplitSentencesEmpty(t *testing.T) {
	assert.Empty(t, splitSentences(""))
}

func TestSplitSentencesDecimalNotSplit(t *testing.T) {
	sents := splitSentences("Pi is 3.14159 here. Second.")
	require.Len(t, sents, 2)
	assert.Equal(t, "Pi is 3.14159 here. ", "Pi is 3.14159 here. Second."[sents[0].start:sents[0].end])
}
