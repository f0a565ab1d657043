package bpe

import (
	"fmt"
	"strings"
)

// Pair is an ordered pair of adjacent token ids.
type Pair struct {
	A, B int
}

func (p Pair) String() string {
	return fmt.Sprintf("(%d, %d)", p.A, p.B)
}

// CountPairs counts every adjacent pair in ids.
func CountPairs(ids []int) map[Pair]int {
	counts := make(map[Pair]int)
	for i := 0; i+1 < len(ids); i++ {
		counts[Pair{ids[i], ids[i+1]}]++
	}
	return counts
}

// pairStats counts pairs and remembers the order in which each pair was
// first seen, so that ties on the maximum resolve the same way every run.
type pairStats struct {
	counts map[Pair]int
	order  []Pair
}

func newPairStats() *pairStats {
	return &pairStats{counts: make(map[Pair]int)}
}

func (s *pairStats) add(ids []int, weight int) {
	for i := 0; i+1 < len(ids); i++ {
		p := Pair{ids[i], ids[i+1]}
		if _, ok := s.counts[p]; !ok {
			s.order = append(s.order, p)
		}
		s.counts[p] += weight
	}
}

// best returns the first pair, in first-seen order, holding the highest count.
func (s *pairStats) best() (Pair, int, bool) {
	var (
		top   Pair
		count int
	)
	for _, p := range s.order {
		if c := s.counts[p]; c > count {
			top, count = p, c
		}
	}
	return top, count, count > 0
}

// ApplyMerge replaces every non-overlapping occurrence of p in ids with id,
// scanning left to right. The input slice is not modified.
func ApplyMerge(ids []int, p Pair, id int) []int {
	out := make([]int, 0, len(ids))
	for i := 0; i < len(ids); {
		if i+1 < len(ids) && ids[i] == p.A && ids[i+1] == p.B {
			out = append(out, id)
			i += 2
			continue
		}
		out = append(out, ids[i])
		i++
	}
	return out
}

// RenderToken makes a token printable for vocabulary dumps. Control bytes
// are escaped as \u00XX and invalid UTF-8 becomes U+FFFD.
func RenderToken(b []byte) string {
	var sb strings.Builder
	for _, r := range strings.ToValidUTF8(string(b), "�") {
		if r < 32 || r == 127 {
			fmt.Fprintf(&sb, "\\u%04x", r)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
