// Package estimate approximates token counts without a trained vocabulary.
//
// Text is cut into whitespace, number, word and punctuation segments and each
// segment is priced on its own: whitespace is free, CJK costs one token per
// character, numbers and short segments cost one token, punctuation runs cost
// one token per two characters and words cost their length divided by a
// characters-per-token ratio chosen by script.
package estimate

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/born-ml/tokencodec/internal/parallel"
)

// segmentPattern never leaves a character unmatched: every rune is either
// whitespace, part of a word class or part of the complement run.
const segmentPattern = `\s+|\p{N}+(?:[.,]\p{N}+)*|[\p{L}\p{M}\p{N}_]+|[^\s\p{L}\p{M}\p{N}_]+`

var numericPattern = regexp2.MustCompile(`^\p{N}+(?:[.,]\p{N}+)*$`, regexp2.None)

// ErrInvalidRatio is returned by New for non-positive characters-per-token values.
var ErrInvalidRatio = errors.New("characters per token must be positive")

// ScriptRatio overrides the characters-per-token ratio for words matching Pattern.
type ScriptRatio struct {
	Name    string
	Pattern string
	Ratio   float64
}

// Config is the estimator configuration. Scripts are tried in order and the
// first match wins; CharsPerToken applies when none matches.
type Config struct {
	CharsPerToken float64
	Scripts       []ScriptRatio
}

// DefaultConfig returns the built-in ratios.
func DefaultConfig() Config {
	return Config{
		CharsPerToken: 6.0,
		Scripts: []ScriptRatio{
			{Name: "latin-diacritics", Pattern: `[\u00C0-\u00D6\u00D8-\u00F6\u00F8-\u024F]`, Ratio: 4.0},
			{Name: "cyrillic", Pattern: `[\u0400-\u04FF]`, Ratio: 3.5},
			{Name: "greek", Pattern: `[\u0370-\u03FF]`, Ratio: 3.5},
			{Name: "arabic-hebrew", Pattern: `[\u0590-\u06FF]`, Ratio: 3.0},
		},
	}
}

type script struct {
	name  string
	re    *regexp2.Regexp
	ratio float64
}

// Estimator prices text with a fixed Config. It is safe for concurrent use.
type Estimator struct {
	charsPerToken float64
	segments      *regexp2.Regexp
	scripts       []script
}

// New compiles the script patterns of cfg.
func New(cfg Config) (*Estimator, error) {
	if cfg.CharsPerToken <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, cfg.CharsPerToken)
	}

	e := &Estimator{
		charsPerToken: cfg.CharsPerToken,
		segments:      regexp2.MustCompile(segmentPattern, regexp2.None),
	}

	for _, s := range cfg.Scripts {
		if s.Ratio <= 0 {
			return nil, fmt.Errorf("%w: script %s has %v", ErrInvalidRatio, s.Name, s.Ratio)
		}
		re, err := regexp2.Compile(s.Pattern, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("compile script %s: %w", s.Name, err)
		}
		e.scripts = append(e.scripts, script{name: s.Name, re: re, ratio: s.Ratio})
	}

	return e, nil
}

var defaultEstimator = sync.OnceValue(func() *Estimator {
	e, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return e
})

// Default returns the shared estimator built from DefaultConfig.
func Default() *Estimator {
	return defaultEstimator()
}

// Estimate returns the approximate number of tokens in text.
func (e *Estimator) Estimate(text string) (int, error) {
	segs, err := e.split(text)
	if err != nil {
		return 0, err
	}

	var total int
	for _, s := range segs {
		total += s.tokens
	}
	return total, nil
}

// WithinLimit reports whether text is estimated at no more than limit tokens.
func (e *Estimator) WithinLimit(text string, limit int) (bool, error) {
	n, err := e.Estimate(text)
	if err != nil {
		return false, err
	}
	return n <= limit, nil
}

// EstimateAll estimates every text, spreading the work per cfg.
// Results are in input order; the first error encountered is returned.
func (e *Estimator) EstimateAll(texts []string, cfg parallel.Config) ([]int, error) {
	type result struct {
		n   int
		err error
	}

	results := parallel.Map(texts, func(text string) result {
		n, err := e.Estimate(text)
		return result{n, err}
	}, cfg)

	counts := make([]int, len(results))
	for i, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("estimate text %d: %w", i, r.err)
		}
		counts[i] = r.n
	}
	return counts, nil
}

// Fallback is the estimate used when Estimate fails: one token per four
// characters, rounded up.
func Fallback(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// segment is a piece of text with its character offset and token price
type segment struct {
	runes  []rune
	start  int
	tokens int
}

func (e *Estimator) split(text string) ([]segment, error) {
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	var segs []segment

	m, err := e.segments.FindRunesMatch(runes)
	for ; m != nil; m, err = e.segments.FindNextMatch(m) {
		if m.Length == 0 {
			continue
		}
		r := runes[m.Index : m.Index+m.Length]
		n, err := e.price(r)
		if err != nil {
			return nil, err
		}
		segs = append(segs, segment{runes: r, start: m.Index, tokens: n})
	}
	if err != nil {
		return nil, fmt.Errorf("segment text: %w", err)
	}

	return segs, nil
}

// price classifies one segment.
func (e *Estimator) price(r []rune) (int, error) {
	switch {
	case every(r, unicode.IsSpace):
		return 0, nil
	case contains(r, isCJK):
		return len(r), nil
	}

	numeric, err := numericPattern.MatchRunes(r)
	if err != nil {
		return 0, fmt.Errorf("classify segment: %w", err)
	}

	switch {
	case numeric, len(r) <= 3:
		return 1, nil
	case contains(r, isPunct):
		return (len(r) + 1) / 2, nil
	case every(r, isWord):
		ratio, err := e.ratio(r)
		if err != nil {
			return 0, err
		}
		return max(1, int(math.Floor(float64(len(r))/ratio))), nil
	default:
		return len(r), nil
	}
}

func (e *Estimator) ratio(r []rune) (float64, error) {
	for _, s := range e.scripts {
		ok, err := s.re.MatchRunes(r)
		if err != nil {
			return 0, fmt.Errorf("detect script %s: %w", s.name, err)
		}
		if ok {
			return s.ratio, nil
		}
	}
	return e.charsPerToken, nil
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) || r == '_'
}

func every(r []rune, f func(rune) bool) bool {
	for _, c := range r {
		if !f(c) {
			return false
		}
	}
	return true
}

func contains(r []rune, f func(rune) bool) bool {
	for _, c := range r {
		if f(c) {
			return true
		}
	}
	return false
}
