package bpe

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/tokencodec/internal/segment"
)

// ModelVersion is the first line of every .model file.
const ModelVersion = "minbpe v1"

// Save writes prefix.model, which Load reads back, and prefix.vocab, a
// human readable listing that is never parsed.
func (t *Tokenizer) Save(prefix string) error {
	if err := writeFile(prefix+".model", t.WriteModel); err != nil {
		return err
	}
	return writeFile(prefix+".vocab", t.WriteVocab)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteModel writes the model format: version, pattern, special tokens,
// then one "a b id" line per merge in priority order.
func (t *Tokenizer) WriteModel(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s\n%s\n%d\n", ModelVersion, t.Pattern(), t.special.Len()); err != nil {
		return err
	}
	for pair := t.special.Oldest(); pair != nil; pair = pair.Next() {
		if _, err := fmt.Fprintf(w, "%s %d\n", pair.Key, pair.Value); err != nil {
			return err
		}
	}
	for pair := t.merges.Oldest(); pair != nil; pair = pair.Next() {
		if _, err := fmt.Fprintf(w, "%d %d %d\n", pair.Key.A, pair.Key.B, pair.Value); err != nil {
			return err
		}
	}
	return nil
}

// WriteVocab writes one line per id: "[a][b] -> [token] id" for merged
// tokens and "[token] id" for bytes and special tokens.
func (t *Tokenizer) WriteVocab(w io.Writer) error {
	parents := make(map[int]Pair, t.merges.Len())
	for pair := t.merges.Oldest(); pair != nil; pair = pair.Next() {
		parents[pair.Value] = pair.Key
	}

	for _, id := range slices.Sorted(maps.Keys(t.vocab)) {
		tok, _ := t.Token(id)
		s := RenderToken(tok)

		var err error
		if p, ok := parents[id]; ok {
			a, _ := t.Token(p.A)
			b, _ := t.Token(p.B)
			_, err = fmt.Fprintf(w, "[%s][%s] -> [%s] %d\n", RenderToken(a), RenderToken(b), s, id)
		} else {
			_, err = fmt.Fprintf(w, "[%s] %d\n", s, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the tokenizer's pattern, special tokens and merges with the
// contents of a .model file. The vocabulary is always rebuilt from the merges.
func (t *Tokenizer) Load(path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	return t.ReadModel(path, f)
}

// ReadModel is Load reading from r; name is used in error messages.
func (t *Tokenizer) ReadModel(name string, r io.Reader) error {
	if t.kind == KindHeuristic {
		return fmt.Errorf("%w: %s has no merges to load", ErrNotTrainable, t.kind)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		line++
		return strings.TrimRight(scanner.Text(), "\r"), true
	}
	bad := func(format string, args ...any) error {
		return &FormatError{Path: name, Line: line, Details: fmt.Sprintf(format, args...)}
	}

	version, ok := next()
	if !ok {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read model: %w", err)
		}
		return bad("empty file")
	}
	if version != ModelVersion {
		return fmt.Errorf("%w: %q in %s", ErrInvalidVersion, version, name)
	}

	pattern, ok := next()
	if !ok {
		return bad("missing pattern line")
	}
	seg, err := segment.New(pattern)
	if err != nil {
		return bad("%v", err)
	}

	countLine, ok := next()
	if !ok {
		return bad("missing special token count")
	}
	count, err := strconv.Atoi(strings.TrimSpace(countLine))
	if err != nil || count < 0 {
		return bad("invalid special token count %q", countLine)
	}

	special := orderedmap.New[string, int]()
	for range count {
		s, ok := next()
		if !ok {
			return bad("expected %d special tokens", count)
		}
		i := strings.LastIndexByte(s, ' ')
		if i <= 0 {
			return bad("invalid special token line %q", s)
		}
		id, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return bad("invalid special token id in %q", s)
		}
		special.Set(s[:i], id)
	}

	var merges []Merge
	for {
		s, ok := next()
		if !ok {
			break
		}
		if strings.TrimSpace(s) == "" {
			continue
		}

		fields := strings.Fields(s)
		if len(fields) != 3 {
			return bad("expected \"a b id\", got %q", s)
		}
		var m Merge
		for i, dst := range []*int{&m.A, &m.B, &m.ID} {
			if *dst, err = strconv.Atoi(fields[i]); err != nil {
				return bad("invalid merge %q", s)
			}
		}
		if m.ID < 256 {
			return bad("merge id %d collides with byte tokens", m.ID)
		}
		merges = append(merges, m)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read model: %w", err)
	}

	// lines may come in any order; priority is the merge id
	sortMerges(merges)
	ordered := orderedmap.New[Pair, int]()
	for i, m := range merges {
		if i > 0 && merges[i-1].ID == m.ID {
			return &FormatError{Path: name, Details: fmt.Sprintf("duplicate merge id %d", m.ID)}
		}
		ordered.Set(m.Pair, m.ID)
	}

	t.segmenter = seg
	t.install(ordered, special)
	return nil
}

// LoadModel creates a tokenizer of kind and loads path into it.
func LoadModel(kind Kind, path string) (*Tokenizer, error) {
	t, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := t.Load(path); err != nil {
		return nil, err
	}
	return t, nil
}
