package bpe

import (
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// replacement is U+FFFD, rendered for ids with no known bytes.
var replacement = []byte("�")

// buildVocab derives id -> bytes from the base bytes, the merges and the
// special tokens. Merges are replayed by ascending id, so both operands of a
// merge are always resolved before the merge itself.
func buildVocab(merges *orderedmap.OrderedMap[Pair, int], special *orderedmap.OrderedMap[string, int]) map[int][]byte {
	vocab := make(map[int][]byte, 256+merges.Len()+special.Len())
	for i := range 256 {
		vocab[i] = []byte{byte(i)}
	}

	byID := make([]Merge, 0, merges.Len())
	for pair := merges.Oldest(); pair != nil; pair = pair.Next() {
		byID = append(byID, Merge{Pair: pair.Key, ID: pair.Value})
	}
	sortMerges(byID)

	for _, m := range byID {
		vocab[m.ID] = concat(operand(vocab, m.A), operand(vocab, m.B))
	}

	for pair := special.Oldest(); pair != nil; pair = pair.Next() {
		vocab[pair.Value] = []byte(pair.Key)
	}

	return vocab
}

func operand(vocab map[int][]byte, id int) []byte {
	if b, ok := vocab[id]; ok {
		return b
	}
	return replacement
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func sortMerges(merges []Merge) {
	slices.SortFunc(merges, func(a, b Merge) int { return a.ID - b.ID })
}
