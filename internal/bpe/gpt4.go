package bpe

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/tokencodec/internal/segment"
)

// Special tokens of the cl100k encoding.
const (
	EndOfText   = "<|endoftext|>"
	FimPrefix   = "<|fim_prefix|>"
	FimMiddle   = "<|fim_middle|>"
	FimSuffix   = "<|fim_suffix|>"
	EndOfPrompt = "<|endofprompt|>"
)

// GPT4SpecialTokens is the fixed special token table in matching order.
var GPT4SpecialTokens = []Special{
	{Text: EndOfText, ID: 100257},
	{Text: FimPrefix, ID: 100258},
	{Text: FimMiddle, ID: 100259},
	{Text: FimSuffix, ID: 100260},
	{Text: EndOfPrompt, ID: 100276},
}

// NewGPT4 returns a KindGPT4 tokenizer with the identity byte shuffle and no
// merges. Use LoadGPT4 to get a usable vocabulary.
func NewGPT4() *Tokenizer {
	t := newTokenizer(KindGPT4, segment.MustNew(segment.GPT4Pattern))

	var identity [256]byte
	for i := range identity {
		identity[i] = byte(i)
	}
	t.setShuffle(identity)
	t.RegisterSpecialTokens(GPT4SpecialTokens...)
	return t
}

// setShuffle installs a byte permutation and its inverse.
func (t *Tokenizer) setShuffle(shuffle [256]byte) {
	var inverse [256]byte
	for i, b := range shuffle {
		inverse[b] = byte(i)
	}
	t.shuffle = &shuffle
	t.inverse = &inverse
}

// ByteShuffle returns the byte permutation applied before encoding, and
// false for kinds without one.
func (t *Tokenizer) ByteShuffle() ([256]byte, bool) {
	if t.shuffle == nil {
		return [256]byte{}, false
	}
	return *t.shuffle, true
}

// LoadGPT4 reads a GPT-4 vocabulary: either a JSON export written by
// ExportJSON or a tiktoken rank file (base64 token and rank per line).
func LoadGPT4(path string) (*Tokenizer, error) {
	format, err := DetectVocabFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		f, err := os.Open(path) //nolint:gosec // G304: path comes from the caller
		if err != nil {
			return nil, fmt.Errorf("open vocabulary: %w", err)
		}
		defer f.Close()
		return ReadGPT4JSON(path, f)
	default:
		return loadTiktoken(path)
	}
}

// VocabFormat identifies a GPT-4 vocabulary file layout.
type VocabFormat string

const (
	// FormatJSON is the export written by ExportJSON.
	FormatJSON VocabFormat = "json"
	// FormatTiktoken is a tiktoken rank file.
	FormatTiktoken VocabFormat = "tiktoken"
)

// DetectVocabFormat decides the format by extension, then by content.
func DetectVocabFormat(path string) (VocabFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".tiktoken":
		return FormatTiktoken, nil
	}

	f, err := os.Open(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return "", fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read vocabulary: %w", err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(head[:n])), "{") {
		return FormatJSON, nil
	}
	return FormatTiktoken, nil
}

// vocabJSON is the JSON export layout. Merge i has id 256+i.
type vocabJSON struct {
	Merges        [][2]int                            `json:"merges"`
	ByteShuffle   []int                               `json:"byte_shuffle"`
	SpecialTokens *orderedmap.OrderedMap[string, int] `json:"special_tokens"`
}

// ExportJSON writes merges, byte shuffle and special tokens as JSON.
func (t *Tokenizer) ExportJSON(w io.Writer) error {
	out := vocabJSON{
		Merges:        make([][2]int, 0, t.merges.Len()),
		ByteShuffle:   make([]int, 256),
		SpecialTokens: t.special,
	}

	for i, m := range t.mergesByID() {
		if m.ID != 256+i {
			return fmt.Errorf("%w: merge %d has id %d", ErrNonContiguousMerges, i, m.ID)
		}
		out.Merges = append(out.Merges, [2]int{m.A, m.B})
	}

	shuffle, ok := t.ByteShuffle()
	for i := range out.ByteShuffle {
		out.ByteShuffle[i] = i
		if ok {
			out.ByteShuffle[i] = int(shuffle[i])
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

// ReadGPT4JSON parses a JSON export. Special tokens from the file replace
// the fixed table when present; their order in the file is the matching order.
func ReadGPT4JSON(name string, r io.Reader) (*Tokenizer, error) {
	in := vocabJSON{SpecialTokens: orderedmap.New[string, int]()}
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, &FormatError{Path: name, Details: fmt.Sprintf("decode json: %v", err)}
	}

	t := NewGPT4()

	if len(in.ByteShuffle) > 0 {
		shuffle, err := permutation(in.ByteShuffle)
		if err != nil {
			return nil, &FormatError{Path: name, Details: err.Error()}
		}
		t.setShuffle(shuffle)
	}

	merges := orderedmap.New[Pair, int]()
	for i, m := range in.Merges {
		id := 256 + i
		if m[0] < 0 || m[1] < 0 || m[0] >= id || m[1] >= id {
			return nil, &FormatError{Path: name, Details: fmt.Sprintf("merge %d refers to unknown ids %v", i, m)}
		}
		merges.Set(Pair{m[0], m[1]}, id)
	}

	special := t.special
	if in.SpecialTokens != nil && in.SpecialTokens.Len() > 0 {
		special = in.SpecialTokens
	}

	t.install(merges, special)
	return t, nil
}

func permutation(values []int) ([256]byte, error) {
	var (
		out  [256]byte
		seen [256]bool
	)
	if len(values) != 256 {
		return out, fmt.Errorf("byte_shuffle has %d entries, want 256", len(values))
	}
	for i, v := range values {
		if v < 0 || v > 255 || seen[v] {
			return out, fmt.Errorf("byte_shuffle is not a permutation at index %d", i)
		}
		seen[v] = true
		out[i] = byte(v)
	}
	return out, nil
}

func (t *Tokenizer) mergesByID() []Merge {
	merges := t.Merges()
	sortMerges(merges)
	return merges
}
