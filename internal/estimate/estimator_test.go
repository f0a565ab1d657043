package estimate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tokencodec/internal/parallel"
)

func TestEstimate(t *testing.T) {
	e := Default()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t  ", 0},
		{"cjk one token per character", "你好世界", 4},
		{"mixed cjk and latin", "hi 你好", 3},
		{"greeting", "Hello, world!", 4},
		{"grouped number", "12,345.67", 1},
		{"short word", "cat", 1},
		{"long word", "internationalization", 3},
		{"punctuation run", "----------", 5},
		{"latin diacritics", "Übermäßig", 2},
		{"cyrillic", "Здравствуйте", 3},
		{"control characters", "\x01\x02\x03\x04", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Estimate(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimate_SmallerThanCharacterCount(t *testing.T) {
	text := "Hello, world!"
	got, err := Default().Estimate(text)
	require.NoError(t, err)
	assert.Positive(t, got)
	assert.Less(t, got, len(text))
}

func TestNew(t *testing.T) {
	t.Run("custom ratio", func(t *testing.T) {
		e, err := New(Config{CharsPerToken: 2})
		require.NoError(t, err)

		got, err := e.Estimate("abcdef")
		require.NoError(t, err)
		assert.Equal(t, 3, got)
	})

	t.Run("first matching script wins", func(t *testing.T) {
		e, err := New(Config{
			CharsPerToken: 6,
			Scripts: []ScriptRatio{
				{Name: "x", Pattern: `x`, Ratio: 1},
				{Name: "any", Pattern: `.`, Ratio: 2},
			},
		})
		require.NoError(t, err)

		got, err := e.Estimate("xxxxxx")
		require.NoError(t, err)
		assert.Equal(t, 6, got)

		got, err = e.Estimate("abcdef")
		require.NoError(t, err)
		assert.Equal(t, 3, got)
	})

	t.Run("non-positive ratio", func(t *testing.T) {
		_, err := New(Config{CharsPerToken: 0})
		assert.ErrorIs(t, err, ErrInvalidRatio)

		_, err = New(Config{CharsPerToken: 4, Scripts: []ScriptRatio{{Name: "bad", Pattern: `a`, Ratio: -1}}})
		assert.ErrorIs(t, err, ErrInvalidRatio)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := New(Config{CharsPerToken: 4, Scripts: []ScriptRatio{{Name: "bad", Pattern: `[`, Ratio: 1}}})
		assert.Error(t, err)
	})
}

func TestWithinLimit(t *testing.T) {
	e := Default()

	ok, err := e.WithinLimit("Hello, world!", 4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.WithinLimit("Hello, world!", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSliceByTokens(t *testing.T) {
	e := Default()

	tests := []struct {
		name       string
		text       string
		start, end int
		want       string
	}{
		{"first token", "Hello world again", 0, 1, "Hello "},
		{"middle token", "Hello world again", 1, 2, "world "},
		{"negative start", "Hello world again", -1, 3, "again"},
		{"negative end", "Hello world again", 0, -1, "Hello world "},
		{"end past total", "Hello world again", 0, 100, "Hello world again"},
		{"empty range", "Hello world again", 2, 1, ""},
		{"interpolated end", "internationalization", 0, 1, "intern"},
		{"interpolated start", "internationalization", 1, 3, "ationalization"},
		{"empty text", "", 0, 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.SliceByTokens(tt.text, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateAll(t *testing.T) {
	texts := []string{"", "你好世界", "Hello, world!", strings.Repeat("word ", 50)}
	cfg := parallel.Config{Enabled: true, NumWorkers: 2, MinChunkSize: 1}

	got, err := Default().EstimateAll(texts, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 4, 50}, got)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, 0, Fallback(""))
	assert.Equal(t, 1, Fallback("abc"))
	assert.Equal(t, 2, Fallback("abcde"))
	assert.Equal(t, 1, Fallback("你好世界"))
}
