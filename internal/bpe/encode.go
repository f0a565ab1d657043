package bpe

import (
	"cmp"
	"strings"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/born-ml/tokencodec/internal/logutil"
)

// fragment is a piece of input that is either a special token or plain text
type fragment struct {
	text    string
	id      int
	special bool
}

// symbol is one token in a chunk being encoded, linked to its neighbours
type symbol struct {
	id         int
	prev, next int
	dead       bool
}

// candidate is a mergeable adjacent pair found while encoding
type candidate struct {
	pair        Pair
	id          int
	left, right int
}

// Encode converts text to token ids. Special tokens are matched first, the
// rest is segmented and each chunk is merged independently, always applying
// the earliest learned merge available.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, frag := range t.splitSpecial(text) {
		if frag.special {
			ids = append(ids, frag.id)
			continue
		}

		for _, chunk := range t.segmenter.Split(frag.text) {
			ids = t.encodeChunk([]byte(chunk), ids)
		}
	}

	logutil.Trace("encoded", "kind", t.kind, "bytes", len(text), "tokens", len(ids))
	return ids
}

// splitSpecial cuts text around special tokens. At each position the first
// registered special token that prefixes the remaining text wins.
func (t *Tokenizer) splitSpecial(text string) []fragment {
	if t.special.Len() == 0 {
		return []fragment{{text: text}}
	}

	var frags []fragment
	start := 0
	for i := 0; i < len(text); {
		s, id, ok := t.matchSpecial(text[i:])
		if !ok {
			i++
			continue
		}

		if start < i {
			frags = append(frags, fragment{text: text[start:i]})
		}
		frags = append(frags, fragment{text: s, id: id, special: true})
		i += len(s)
		start = i
	}

	if start < len(text) {
		frags = append(frags, fragment{text: text[start:]})
	}

	return frags
}

func (t *Tokenizer) matchSpecial(s string) (string, int, bool) {
	for pair := t.special.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != "" && strings.HasPrefix(s, pair.Key) {
			return pair.Key, pair.Value, true
		}
	}
	return "", 0, false
}

// encodeChunk appends the tokens of chunk to ids.
func (t *Tokenizer) encodeChunk(chunk []byte, ids []int) []int {
	if t.shuffle != nil {
		for i, b := range chunk {
			chunk[i] = t.shuffle[b]
		}
	}

	switch len(chunk) {
	case 0:
		return ids
	case 1:
		return append(ids, int(chunk[0]))
	}

	symbols := make([]symbol, len(chunk))
	for i, b := range chunk {
		symbols[i] = symbol{id: int(b), prev: i - 1, next: i + 1}
	}

	// earliest merge first, leftmost among equals
	queue := heap.NewWith(func(a, b candidate) int {
		if c := cmp.Compare(a.id, b.id); c != 0 {
			return c
		}
		return cmp.Compare(a.left, b.left)
	})

	push := func(left, right int) {
		if left < 0 || right >= len(symbols) {
			return
		}
		p := Pair{symbols[left].id, symbols[right].id}
		if id, ok := t.merges.Get(p); ok {
			queue.Push(candidate{pair: p, id: id, left: left, right: right})
		}
	}

	for i := range len(symbols) - 1 {
		push(i, i+1)
	}

	for !queue.Empty() {
		c, _ := queue.Pop()

		left, right := &symbols[c.left], &symbols[c.right]
		if left.dead || right.dead || left.next != c.right ||
			left.id != c.pair.A || right.id != c.pair.B {
			continue
		}

		left.id = c.id
		left.next = right.next
		right.dead = true
		if right.next < len(symbols) {
			symbols[right.next].prev = c.left
		}

		push(left.prev, c.left)
		push(c.left, left.next)
	}

	for i := 0; i < len(symbols); i = symbols[i].next {
		ids = append(ids, symbols[i].id)
	}

	return ids
}

// Decode converts ids back to text. Ids without a vocabulary entry decode to
// U+FFFD, and byte sequences that are not valid UTF-8 are replaced the same way.
func (t *Tokenizer) Decode(ids []int) string {
	return strings.ToValidUTF8(string(t.DecodeBytes(ids)), "�")
}

// DecodeBytes is Decode without UTF-8 validation.
func (t *Tokenizer) DecodeBytes(ids []int) []byte {
	out := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		if s, ok := t.specialID[id]; ok {
			out = append(out, s...)
			continue
		}

		b, ok := t.vocab[id]
		if !ok {
			out = append(out, replacement...)
			continue
		}

		if t.inverse == nil {
			out = append(out, b...)
			continue
		}
		for _, c := range b {
			out = append(out, t.inverse[c])
		}
	}

	logutil.Trace("decoded", "kind", t.kind, "tokens", len(ids), "bytes", len(out))
	return out
}
