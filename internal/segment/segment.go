// Package segment splits text into pre-tokenization chunks.
//
// A Segmenter never loses characters: the chunks it returns always
// concatenate back to the input. When the pattern does not cover the input
// completely, the text is split into one chunk per character instead.
package segment

import (
	"fmt"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

const (
	// GPT4Pattern is the cl100k pre-tokenization pattern, written without
	// possessive quantifiers so regexp2 can compile it.
	GPT4Pattern = `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`

	// GPT2Pattern is the byte-level pre-tokenization pattern used by GPT-2.
	GPT2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`
)

// Segmenter splits text with a compiled pattern.
// The zero value treats every text as a single chunk.
type Segmenter struct {
	pattern string
	re      *regexp2.Regexp
}

// New compiles pattern. An empty pattern yields a whole-text segmenter.
func New(pattern string) (*Segmenter, error) {
	s := &Segmenter{pattern: pattern}
	if pattern == "" {
		return s, nil
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	s.re = re

	return s, nil
}

// MustNew is like New but panics if the pattern does not compile.
func MustNew(pattern string) *Segmenter {
	s, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return s
}

// Pattern returns the source pattern.
func (s *Segmenter) Pattern() string {
	if s == nil {
		return ""
	}
	return s.pattern
}

// Split returns the chunks of text in order. Bytes that are not valid
// UTF-8 become chunks of their own and the valid runs between them are
// matched separately.
func (s *Segmenter) Split(text string) []string {
	if s == nil || s.re == nil || text == "" {
		return []string{text}
	}

	if utf8.ValidString(text) {
		return s.split(text)
	}

	var chunks []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != utf8.RuneError || size != 1 {
			i += size
			continue
		}
		if start < i {
			chunks = append(chunks, s.split(text[start:i])...)
		}
		chunks = append(chunks, text[i:i+1])
		i++
		start = i
	}
	if start < len(text) {
		chunks = append(chunks, s.split(text[start:])...)
	}

	return chunks
}

// split matches valid UTF-8 text.
func (s *Segmenter) split(text string) []string {
	runes := []rune(text)
	chunks, err := Matches(s.re, runes)
	if err != nil {
		return perRune(runes)
	}

	var covered int
	for _, c := range chunks {
		covered += len([]rune(c))
	}
	if covered != len(runes) {
		return perRune(runes)
	}

	return chunks
}

// Matches returns every match of re over runes, in order.
func Matches(re *regexp2.Regexp, runes []rune) ([]string, error) {
	var chunks []string

	m, err := re.FindRunesMatch(runes)
	for ; m != nil; m, err = re.FindNextMatch(m) {
		if m.Length == 0 {
			continue
		}
		chunks = append(chunks, string(runes[m.Index:m.Index+m.Length]))
	}
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

func perRune(runes []rune) []string {
	chunks := make([]string, len(runes))
	for i, r := range runes {
		chunks[i] = string(r)
	}
	return chunks
}
