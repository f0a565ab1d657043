package bpe

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/tokencodec/internal/estimate"
	"github.com/born-ml/tokencodec/internal/segment"
)

// Kind selects one of the fixed tokenizer variants.
type Kind int

const (
	// KindByte trains on raw bytes of the whole text.
	KindByte Kind = iota
	// KindRegex splits text with a pre-tokenization pattern before training.
	KindRegex
	// KindGPT4 uses externally supplied merges and a byte shuffle.
	KindGPT4
	// KindHeuristic estimates token counts without merges.
	KindHeuristic
)

var kindNames = map[Kind]string{
	KindByte:      "byte",
	KindRegex:     "regex",
	KindGPT4:      "gpt4",
	KindHeuristic: "heuristic",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a name such as "regex" to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	switch s {
	case "basic":
		return KindByte, nil
	case "cl100k", "cl100k_base":
		return KindGPT4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Merge is a learned rule: Pair becomes ID.
type Merge struct {
	Pair
	ID int
}

// Tokenizer is a byte-level BPE tokenizer of one Kind.
//
// Merges and vocabulary are replaced as a whole when training or loading
// finishes; after that a Tokenizer is read-only and safe for concurrent
// Encode, Decode and Count calls.
type Tokenizer struct {
	kind      Kind
	merges    *orderedmap.OrderedMap[Pair, int]
	vocab     map[int][]byte
	segmenter *segment.Segmenter

	special   *orderedmap.OrderedMap[string, int]
	specialID map[int]string

	// byte shuffle for KindGPT4, nil otherwise
	shuffle *[256]byte
	inverse *[256]byte

	estimator *estimate.Estimator
}

// New creates an untrained tokenizer of the given kind with its default
// pattern. KindGPT4 starts with the identity byte shuffle and no merges.
func New(kind Kind) (*Tokenizer, error) {
	switch kind {
	case KindByte:
		return newTokenizer(kind, segment.MustNew("")), nil
	case KindRegex:
		return NewRegex(segment.GPT4Pattern)
	case KindGPT4:
		return NewGPT4(), nil
	case KindHeuristic:
		return NewHeuristic(estimate.Default()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
}

// NewRegex creates a KindRegex tokenizer splitting text with pattern.
func NewRegex(pattern string) (*Tokenizer, error) {
	seg, err := segment.New(pattern)
	if err != nil {
		return nil, err
	}
	return newTokenizer(KindRegex, seg), nil
}

// NewHeuristic creates a KindHeuristic tokenizer backed by e.
func NewHeuristic(e *estimate.Estimator) *Tokenizer {
	t := newTokenizer(KindHeuristic, segment.MustNew(""))
	t.estimator = e
	return t
}

func newTokenizer(kind Kind, seg *segment.Segmenter) *Tokenizer {
	t := &Tokenizer{
		kind:      kind,
		merges:    orderedmap.New[Pair, int](),
		segmenter: seg,
		special:   orderedmap.New[string, int](),
		specialID: make(map[int]string),
	}
	t.vocab = buildVocab(t.merges, t.special)
	return t
}

// Kind returns the tokenizer variant.
func (t *Tokenizer) Kind() Kind {
	return t.kind
}

// Pattern returns the pre-tokenization pattern, empty for whole-text.
func (t *Tokenizer) Pattern() string {
	return t.segmenter.Pattern()
}

// Merges returns the merges in priority order.
func (t *Tokenizer) Merges() []Merge {
	merges := make([]Merge, 0, t.merges.Len())
	for pair := t.merges.Oldest(); pair != nil; pair = pair.Next() {
		merges = append(merges, Merge{Pair: pair.Key, ID: pair.Value})
	}
	return merges
}

// NumMerges returns the number of learned merges.
func (t *Tokenizer) NumMerges() int {
	return t.merges.Len()
}

// VocabSize returns the number of ids with a vocabulary entry.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// Token returns the bytes of id as they appear in decoded text.
func (t *Tokenizer) Token(id int) ([]byte, bool) {
	if s, ok := t.specialID[id]; ok {
		return []byte(s), true
	}
	b, ok := t.vocab[id]
	if !ok {
		return nil, false
	}
	return t.unshuffle(b), true
}

// SpecialTokens returns the special tokens in matching order.
func (t *Tokenizer) SpecialTokens() []Special {
	specials := make([]Special, 0, t.special.Len())
	for pair := t.special.Oldest(); pair != nil; pair = pair.Next() {
		specials = append(specials, Special{Text: pair.Key, ID: pair.Value})
	}
	return specials
}

// Special is a literal string that always encodes to a reserved id.
type Special struct {
	Text string
	ID   int
}

// RegisterSpecialTokens adds special tokens after any already present.
// Earlier tokens win when several match at the same position.
func (t *Tokenizer) RegisterSpecialTokens(specials ...Special) {
	special := orderedmap.New[string, int]()
	for pair := t.special.Oldest(); pair != nil; pair = pair.Next() {
		special.Set(pair.Key, pair.Value)
	}
	for _, s := range specials {
		special.Set(s.Text, s.ID)
	}
	t.install(t.merges, special)
}

// Estimator returns the estimator of a KindHeuristic tokenizer, nil otherwise.
func (t *Tokenizer) Estimator() *estimate.Estimator {
	return t.estimator
}

// Count returns the number of tokens in text: the heuristic estimate for
// KindHeuristic, the exact encoded length otherwise.
func (t *Tokenizer) Count(text string) (int, error) {
	if t.kind == KindHeuristic {
		return t.estimator.Estimate(text)
	}
	return len(t.Encode(text)), nil
}

// install replaces merges, special tokens and the derived vocabulary.
func (t *Tokenizer) install(merges *orderedmap.OrderedMap[Pair, int], special *orderedmap.OrderedMap[string, int]) {
	specialID := make(map[int]string, special.Len())
	for pair := special.Oldest(); pair != nil; pair = pair.Next() {
		specialID[pair.Value] = pair.Key
	}

	t.merges = merges
	t.special = special
	t.specialID = specialID
	t.vocab = buildVocab(merges, special)
}

func (t *Tokenizer) unshuffle(b []byte) []byte {
	if t.inverse == nil {
		return b
	}
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = t.inverse[c]
	}
	return out
}
