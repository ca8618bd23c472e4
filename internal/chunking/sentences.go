package chunking

// sentence is a half-open byte span [start, end) within the source text.
// Spans tile the text exactly: trailing whitespace belongs to the sentence
// it follows, so concatenating spans reproduces the source byte for byte.
type sentence struct {
	start int
	end   int
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// splitSentences segments text at terminal punctuation followed by
// whitespace. The final span absorbs any unterminated remainder.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0
	i := 0
	n := len(text)

	for i < n {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			i++
			continue
		}

		j := i + 1
		for j < n && (text[j] == '"' || text[j] == '\'' || text[j] == ')') {
			j++
		}
		if j < n && !isSpace(text[j]) {
			// Abbreviation, decimal, or mid-token punctuation.
			i = j
			continue
		}
		for j < n && isSpace(text[j]) {
			j++
		}
		out = append(out, sentence{start: start, end: j})
		start = j
		i = j
	}

	if start < n {
		out = append(out, sentence{start: start, end: n})
	}
	return out
}

// spanText returns the exact source text covered by sentences[from:to].
func spanText(text string, sents []sentence, from, to int) string {
	return text[sents[from].start:sents[to-1].end]
}
