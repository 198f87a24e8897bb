// Package analysis turns raw text into the parsed form consumed by
// parsed-mode scoring handlers.
package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Analyzer produces the parsed form of a text. Implementations must be safe
// for concurrent use.
type Analyzer interface {
	Analyze(text string) []string
}

// Standard splits on Unicode word boundaries and lowercases terms.
type Standard struct {
	// StopWords are dropped after lowercasing.
	StopWords map[string]struct{}
}

// NewStandard returns a Standard analyzer with the given stop words.
func NewStandard(stopWords ...string) *Standard {
	a := &Standard{}
	if len(stopWords) > 0 {
		a.StopWords = make(map[string]struct{}, len(stopWords))
		for _, w := range stopWords {
			a.StopWords[strings.ToLower(w)] = struct{}{}
		}
	}
	return a
}

// Analyze returns the lowercased word terms of text. The result is never nil.
func (a *Standard) Analyze(text string) []string {
	terms := []string{}
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isWordRune(r) {
			i += size
			continue
		}
		start := i
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !isWordRune(r) {
				break
			}
			i += size
		}
		term := strings.ToLower(text[start:i])
		if _, stop := a.StopWords[term]; stop {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Whitespace splits on Unicode white space without normalization.
type Whitespace struct{}

func (Whitespace) Analyze(text string) []string {
	terms := strings.Fields(text)
	if terms == nil {
		return []string{}
	}
	return terms
}

// ByName returns a built-in analyzer: "standard" (default) or "whitespace".
func ByName(name string) (Analyzer, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return NewStandard(), true
	case "whitespace":
		return Whitespace{}, true
	default:
		return nil, false
	}
}
