package chunk

import "strings"

// Tokenizer is the tokenization capability used for chunk budgeting and
// overlap measurement. Size and overlap are expressed in its tokens.
type Tokenizer interface {
	// Tokens splits text into its token sequence.
	Tokens(text string) []string

	// Count returns the number of tokens in text.
	Count(text string) int
}

// WordTokenizer tokenizes on whitespace boundaries. It is deterministic
// and cheap, which keeps chunk boundaries reproducible across runs.
type WordTokenizer struct{}

// Tokens returns the whitespace-delimited tokens of text.
func (WordTokenizer) Tokens(text string) []string {
	return strings.Fields(text)
}

// Count returns the number of whitespace-delimited tokens in text.
func (WordTokenizer) Count(text string) int {
	count := 0
	inToken := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
			inToken = false
			continue
		}
		if !inToken {
			count++
			inToken = true
		}
	}
	return count
}
