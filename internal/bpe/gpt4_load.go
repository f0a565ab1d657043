package bpe

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/pkoukk/tiktoken-go"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// loadTiktoken builds a GPT-4 tokenizer from a tiktoken rank file. A rank
// file only lists tokens, so the merge that produced each token is recovered
// by running BPE over its bytes with every rank below its own: the last step
// leaves exactly two parts, and those are the merge operands.
func loadTiktoken(path string) (*Tokenizer, error) {
	ranks, err := tiktoken.NewDefaultBpeLoader().LoadTiktokenBpe(path)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken ranks: %w", err)
	}

	var shuffle [256]byte
	for b := range 256 {
		rank, ok := ranks[string([]byte{byte(b)})]
		if !ok || rank < 0 || rank > 255 {
			return nil, &FormatError{Path: path, Details: fmt.Sprintf("byte %#02x has no rank below 256", b)}
		}
		shuffle[b] = byte(rank)
	}
	if _, err := permutation(shuffleInts(shuffle)); err != nil {
		return nil, &FormatError{Path: path, Details: err.Error()}
	}

	type ranked struct {
		token string
		rank  int
	}
	tokens := make([]ranked, 0, len(ranks))
	for token, rank := range ranks {
		if len(token) > 1 {
			tokens = append(tokens, ranked{token, rank})
		}
	}
	slices.SortFunc(tokens, func(a, b ranked) int { return a.rank - b.rank })

	merges := orderedmap.New[Pair, int]()
	for _, tok := range tokens {
		parts := splitByRank(ranks, []byte(tok.token), tok.rank)
		if len(parts) != 2 {
			return nil, &FormatError{Path: path, Details: fmt.Sprintf("token of rank %d does not split into a merge", tok.rank)}
		}
		merges.Set(Pair{ranks[string(parts[0])], ranks[string(parts[1])]}, tok.rank)
	}

	t := NewGPT4()
	t.setShuffle(shuffle)
	t.install(merges, t.special)

	slog.Debug("loaded tiktoken vocabulary", "path", path, "merges", merges.Len())
	return t, nil
}

// splitByRank merges adjacent parts of token, lowest rank first, using only
// ranks strictly below maxRank.
func splitByRank(ranks map[string]int, token []byte, maxRank int) [][]byte {
	parts := make([][]byte, len(token))
	for i := range token {
		parts[i] = token[i : i+1]
	}

	for len(parts) > 1 {
		at, lowest := -1, maxRank
		for i := 0; i+1 < len(parts); i++ {
			rank, ok := ranks[string(parts[i])+string(parts[i+1])]
			if ok && rank < lowest {
				at, lowest = i, rank
			}
		}
		if at < 0 {
			break
		}

		joined := make([]byte, 0, len(parts[at])+len(parts[at+1]))
		joined = append(joined, parts[at]...)
		joined = append(joined, parts[at+1]...)
		parts = slices.Replace(parts, at, at+2, joined)
	}
	return parts
}

func shuffleInts(shuffle [256]byte) []int {
	out := make([]int, len(shuffle))
	for i, b := range shuffle {
		out[i] = int(b)
	}
	return out
}
