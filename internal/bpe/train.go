package bpe

import (
	"fmt"
	"log/slog"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// StopReason says why a training run ended.
type StopReason int

const (
	// StopVocabSize means the requested number of merges was learned.
	StopVocabSize StopReason = iota
	// StopNoPairs means no adjacent pair was left to merge.
	StopNoPairs
	// StopMinFrequency means the best pair was rarer than Convergence.MinFrequency.
	StopMinFrequency
	// StopMinImprovement means the last merge shrank the text by less than
	// Convergence.MinImprovement. That merge is not kept.
	StopMinImprovement
)

func (r StopReason) String() string {
	switch r {
	case StopVocabSize:
		return "reached the target vocabulary size"
	case StopNoPairs:
		return "no pairs left to merge"
	case StopMinFrequency:
		return "best pair below minimum frequency"
	case StopMinImprovement:
		return "compression gain below minimum improvement"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Result summarizes a training run.
type Result struct {
	VocabSize   int        // Vocabulary size after training, special tokens included
	Merges      int        // Number of merges learned
	Stop        StopReason // Why training ended
	Reason      string     // Human readable explanation, for logs only
	InputBytes  int        // Bytes of training text
	TokensAfter int        // Length of the training text in tokens after the last kept merge
}

// CompressionRatio is bytes per token of the training text.
func (r Result) CompressionRatio() float64 {
	if r.TokensAfter == 0 {
		return 0
	}
	return float64(r.InputBytes) / float64(r.TokensAfter)
}

// Summary is a one-line description of the run for logs and the CLI.
func (r Result) Summary() string {
	return fmt.Sprintf("vocabulary size %d (%d merges), %.2f bytes/token: %s",
		r.VocabSize, r.Merges, r.CompressionRatio(), r.Reason)
}

// Convergence stops training once further merges stop paying off.
type Convergence struct {
	MinFrequency   int     // Stop when the best pair occurs fewer times than this
	MinImprovement float64 // Stop when a merge shrinks the token count by less than this fraction
	MaxVocabSize   int     // Hard upper bound on the vocabulary size
}

// DefaultConvergence returns the convergence settings used by the CLI.
func DefaultConvergence() Convergence {
	return Convergence{
		MinFrequency:   2,
		MinImprovement: 0.0001,
		MaxVocabSize:   32768,
	}
}

// pairCounter is the state a training run merges over. The baseline
// rescans everything, the fast variant tracks counts incrementally.
type pairCounter interface {
	// best returns the most frequent pair and its count.
	best() (Pair, int, bool)
	// merge replaces every occurrence of p with id and returns the new token total.
	merge(p Pair, id int) int
	// total returns the current number of tokens.
	total() int
}

type limits struct {
	maxMerges      int
	minFrequency   int
	minImprovement float64
}

// Train learns vocabSize-256 merges from text by rescanning all pair counts
// after every merge.
func (t *Tokenizer) Train(text string, vocabSize int, verbose bool) (Result, error) {
	return t.train(text, vocabSize, Convergence{}, false, verbose)
}

// TrainUntilConvergence is Train bounded by c instead of a fixed size.
func (t *Tokenizer) TrainUntilConvergence(text string, c Convergence, verbose bool) (Result, error) {
	return t.train(text, c.MaxVocabSize, c, false, verbose)
}

func (t *Tokenizer) train(text string, vocabSize int, c Convergence, fast, verbose bool) (Result, error) {
	if t.kind == KindGPT4 || t.kind == KindHeuristic {
		return Result{}, fmt.Errorf("%w: %s", ErrNotTrainable, t.kind)
	}
	if vocabSize < 256 {
		return Result{}, fmt.Errorf("%w: got %d", ErrVocabSizeTooSmall, vocabSize)
	}

	chunks := t.segmenter.Split(text)

	var counter pairCounter
	if fast {
		counter = newFastCounter(chunks)
	} else {
		counter = newScanCounter(chunks)
	}

	lim := limits{
		maxMerges:      vocabSize - 256,
		minFrequency:   c.MinFrequency,
		minImprovement: c.MinImprovement,
	}

	merges, res := run(counter, lim, verbose)
	res.InputBytes = len(text)

	t.install(merges, t.special)
	res.VocabSize = len(t.vocab)

	slog.Debug("training finished", "kind", t.kind, "fast", fast, "merges", res.Merges,
		"vocab", res.VocabSize, "reason", res.Reason)
	return res, nil
}

// run is the merge loop shared by both trainers. Stopping conditions are
// checked in order: no pairs, minimum frequency, then minimum improvement
// after the tentative merge. A merge that fails the improvement check is
// discarded.
func run(counter pairCounter, lim limits, verbose bool) (*orderedmap.OrderedMap[Pair, int], Result) {
	merges := orderedmap.New[Pair, int]()
	vocab := make(map[int][]byte, 256+lim.maxMerges)
	for i := range 256 {
		vocab[i] = []byte{byte(i)}
	}

	res := Result{Stop: StopVocabSize}
	before := counter.total()
	for i := range lim.maxMerges {
		p, freq, ok := counter.best()
		if !ok {
			res.Stop = StopNoPairs
			res.Reason = fmt.Sprintf("%s after %d merges", StopNoPairs, i)
			break
		}

		if lim.minFrequency > 0 && freq < lim.minFrequency {
			res.Stop = StopMinFrequency
			res.Reason = fmt.Sprintf("%s: pair %s occurs %d times, minimum is %d",
				StopMinFrequency, p, freq, lim.minFrequency)
			break
		}

		id := 256 + i
		after := counter.merge(p, id)
		if lim.minImprovement > 0 && before > 0 {
			gain := float64(before-after) / float64(before)
			if gain < lim.minImprovement {
				res.Stop = StopMinImprovement
				res.Reason = fmt.Sprintf("%s: merging %s would shrink the text by %.6f, minimum is %.6f",
					StopMinImprovement, p, gain, lim.minImprovement)
				break
			}
		}
		before = after

		merges.Set(p, id)
		vocab[id] = concat(vocab[p.A], vocab[p.B])

		if verbose {
			slog.Info("merge", "step", i+1, "of", lim.maxMerges, "pair", p.String(), "id", id,
				"token", RenderToken(vocab[id]), "count", freq)
		}
	}

	if res.Stop == StopVocabSize {
		res.Reason = fmt.Sprintf("%s with %d merges", StopVocabSize, merges.Len())
	}
	res.Merges = merges.Len()
	res.TokensAfter = before

	return merges, res
}

// scanCounter is the baseline: every call to best recounts all pairs.
type scanCounter struct {
	chunks [][]int
	tokens int
}

func newScanCounter(chunks []string) *scanCounter {
	s := &scanCounter{chunks: make([][]int, 0, len(chunks))}
	for _, c := range chunks {
		ids := bytesToIDs(c)
		s.chunks = append(s.chunks, ids)
		s.tokens += len(ids)
	}
	return s
}

func (s *scanCounter) best() (Pair, int, bool) {
	stats := newPairStats()
	for _, ids := range s.chunks {
		stats.add(ids, 1)
	}
	return stats.best()
}

func (s *scanCounter) merge(p Pair, id int) int {
	s.tokens = 0
	for i, ids := range s.chunks {
		s.chunks[i] = ApplyMerge(ids, p, id)
		s.tokens += len(s.chunks[i])
	}
	return s.tokens
}

func (s *scanCounter) total() int {
	return s.tokens
}

func bytesToIDs(s string) []int {
	ids := make([]int, len(s))
	for i := range len(s) {
		ids[i] = int(s[i])
	}
	return ids
}
