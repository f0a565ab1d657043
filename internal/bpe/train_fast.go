package bpe

import (
	"cmp"
	"maps"
	"slices"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TrainFast learns the same kind of merges as Train, but counts each
// distinct chunk once and updates pair counts incrementally around merge
// sites instead of rescanning the corpus. Ties on the best count go to the
// pair that was seen first.
func (t *Tokenizer) TrainFast(text string, vocabSize int, verbose bool) (Result, error) {
	return t.train(text, vocabSize, Convergence{}, true, verbose)
}

// TrainFastUntilConvergence is TrainFast bounded by c instead of a fixed size.
func (t *Tokenizer) TrainFastUntilConvergence(text string, c Convergence, verbose bool) (Result, error) {
	return t.train(text, c.MaxVocabSize, c, true, verbose)
}

// word is a distinct chunk and the number of times it occurs
type word struct {
	ids    []int
	weight int
}

// entry is a heap snapshot of a pair count; it is stale once the count moves
type entry struct {
	pair  Pair
	count int
	seen  int
}

type fastCounter struct {
	words  []word
	counts map[Pair]int
	seen   map[Pair]int
	where  map[Pair]map[int]struct{}
	queue  *heap.Heap[entry]
	tokens int
}

func newFastCounter(chunks []string) *fastCounter {
	weights := orderedmap.New[string, int]()
	for _, c := range chunks {
		if c == "" {
			continue
		}
		w, _ := weights.Get(c)
		weights.Set(c, w+1)
	}

	f := &fastCounter{
		words:  make([]word, 0, weights.Len()),
		counts: make(map[Pair]int),
		seen:   make(map[Pair]int),
		where:  make(map[Pair]map[int]struct{}),
		queue: heap.NewWith(func(a, b entry) int {
			if c := cmp.Compare(b.count, a.count); c != 0 {
				return c
			}
			return cmp.Compare(a.seen, b.seen)
		}),
	}

	var order []Pair
	for pair := weights.Oldest(); pair != nil; pair = pair.Next() {
		wi := len(f.words)
		w := word{ids: bytesToIDs(pair.Key), weight: pair.Value}
		f.words = append(f.words, w)
		f.tokens += len(w.ids) * w.weight

		for i := 0; i+1 < len(w.ids); i++ {
			p := Pair{w.ids[i], w.ids[i+1]}
			if f.note(p) {
				order = append(order, p)
			}
			f.counts[p] += w.weight
			f.mark(p, wi)
		}
	}

	for _, p := range order {
		f.queue.Push(entry{pair: p, count: f.counts[p], seen: f.seen[p]})
	}

	return f
}

// note assigns p its first-seen rank and reports whether p is new.
func (f *fastCounter) note(p Pair) bool {
	if _, ok := f.seen[p]; ok {
		return false
	}
	f.seen[p] = len(f.seen)
	return true
}

func (f *fastCounter) mark(p Pair, wi int) {
	set, ok := f.where[p]
	if !ok {
		set = make(map[int]struct{})
		f.where[p] = set
	}
	set[wi] = struct{}{}
}

func (f *fastCounter) best() (Pair, int, bool) {
	for !f.queue.Empty() {
		e, _ := f.queue.Pop()
		if count := f.counts[e.pair]; count > 0 && count == e.count {
			return e.pair, e.count, true
		}
	}
	return Pair{}, 0, false
}

// merge rewrites only the words containing p. Around each merge site
// (l, a, b, r) the pairs (l, a), (a, b) and (b, r) lose the word's weight
// and (l, id), (id, r) gain it. The left neighbour is read from the
// rewritten output so back-to-back sites are not counted twice.
func (f *fastCounter) merge(p Pair, id int) int {
	deltas := make(map[Pair]int)
	var order []Pair
	add := func(q Pair, v int) {
		if _, ok := deltas[q]; !ok {
			order = append(order, q)
		}
		deltas[q] += v
	}

	for _, wi := range slices.Sorted(maps.Keys(f.where[p])) {
		w := &f.words[wi]
		ids := w.ids
		out := make([]int, 0, len(ids))

		for i := 0; i < len(ids); {
			if i+1 >= len(ids) || ids[i] != p.A || ids[i+1] != p.B {
				out = append(out, ids[i])
				i++
				continue
			}

			add(p, -w.weight)
			if len(out) > 0 {
				l := out[len(out)-1]
				add(Pair{l, p.A}, -w.weight)
				add(Pair{l, id}, w.weight)
				f.mark(Pair{l, id}, wi)
			}
			if i+2 < len(ids) {
				r := ids[i+2]
				add(Pair{p.B, r}, -w.weight)
				add(Pair{id, r}, w.weight)
				f.mark(Pair{id, r}, wi)
			}

			out = append(out, id)
			f.tokens -= w.weight
			i += 2
		}

		w.ids = out
	}
	delete(f.where, p)

	for _, q := range order {
		v := deltas[q]
		if v == 0 {
			continue
		}
		f.note(q)

		count := f.counts[q] + v
		if count <= 0 {
			delete(f.counts, q)
			continue
		}
		f.counts[q] = count
		f.queue.Push(entry{pair: q, count: count, seen: f.seen[q]})
	}

	return f.tokens
}

func (f *fastCounter) total() int {
	return f.tokens
}
