package bpe

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountPairs(t *testing.T) {
	got := CountPairs([]int{1, 2, 3, 1, 2})
	assert.Equal(t, map[Pair]int{{1, 2}: 2, {2, 3}: 1, {3, 1}: 1}, got)

	assert.Empty(t, CountPairs(nil))
	assert.Empty(t, CountPairs([]int{7}))
}

func TestPairStats_BestPrefersFirstSeen(t *testing.T) {
	s := newPairStats()
	s.add([]int{5, 6, 1, 2, 5, 6, 1, 2}, 1)

	p, count, ok := s.best()
	assert.True(t, ok)
	assert.Equal(t, Pair{5, 6}, p)
	assert.Equal(t, 2, count)

	_, _, ok = newPairStats().best()
	assert.False(t, ok)
}

func TestApplyMerge(t *testing.T) {
	tests := []struct {
		name string
		ids  []int
		pair Pair
		want []int
	}{
		{"replaces every occurrence", []int{1, 2, 3, 1, 2}, Pair{1, 2}, []int{4, 3, 4}},
		{"leftmost wins on overlap", []int{1, 1, 1}, Pair{1, 1}, []int{4, 1}},
		{"runs pair up", []int{1, 1, 1, 1}, Pair{1, 1}, []int{4, 4}},
		{"no match", []int{1, 2}, Pair{2, 1}, []int{1, 2}},
		{"empty", []int{}, Pair{1, 2}, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := slices.Clone(tt.ids)
			assert.Equal(t, tt.want, ApplyMerge(tt.ids, tt.pair, 4))
			assert.Equal(t, in, tt.ids, "input must not change")
		})
	}
}

func TestRenderToken(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("hello"), "hello"},
		{[]byte("a\nb"), `a\u000ab`},
		{[]byte{0x7f}, `\u007f`},
		{[]byte{0xff}, "�"},
		{[]byte("héllo"), "héllo"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RenderToken(tt.in))
	}
}

func TestPair_String(t *testing.T) {
	assert.Equal(t, "(97, 98)", Pair{97, 98}.String())
}
