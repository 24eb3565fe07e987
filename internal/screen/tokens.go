package screen

import (
	"strings"
	"unicode"
)

// Token is a single whitespace-delimited word of a captured screen
type Token struct {
	Text string
	Line int
}

// Tokens is the ordered token list every extractor works on
type Tokens []Token

// Tokenize splits a captured screen into tokens, dropping empty runs and
// preserving order. Each token remembers the 0-based line it came from.
func Tokenize(blob string) Tokens {
	blob = strings.ReplaceAll(blob, "\r\n", "\n")

	tokens := make(Tokens, 0, len(blob)/4)
	for lineNo, line := range strings.Split(blob, "\n") {
		for _, word := range strings.FieldsFunc(line, unicode.IsSpace) {
			tokens = append(tokens, Token{Text: word, Line: lineNo})
		}
	}
	return tokens
}

// Texts returns the token texts only
func (t Tokens) Texts() []string {
	texts := make([]string, len(t))
	for i, tok := range t {
		texts[i] = tok.Text
	}
	return texts
}

// index returns the position of the first occurrence of the keyword sequence
func (t Tokens) index(keyword []string) int {
	if len(keyword) == 0 {
		return -1
	}
	for i := 0; i+len(keyword) <= len(t); i++ {
		matched := true
		for j, kw := range keyword {
			if t[i+j].Text != kw {
				matched = false
				break
			}
		}
		if matched {
			return i
		}
	}
	return -1
}
