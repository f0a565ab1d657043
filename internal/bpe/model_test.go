package bpe

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func TestSaveLoad(t *testing.T) {
	for _, kind := range []Kind{KindByte, KindRegex} {
		t.Run(kind.String(), func(t *testing.T) {
			tok := newKind(t, kind)
			tok.RegisterSpecialTokens(Special{Text: "<|end of text|>", ID: 100000})
			_, err := tok.TrainFast(corpus, 320, false)
			require.NoError(t, err)

			prefix := filepath.Join(t.TempDir(), "tok")
			require.NoError(t, tok.Save(prefix))

			loaded, err := LoadModel(kind, prefix+".model")
			require.NoError(t, err)

			assert.Equal(t, tok.Pattern(), loaded.Pattern())
			assert.Equal(t, tok.Merges(), loaded.Merges())
			assert.Equal(t, tok.SpecialTokens(), loaded.SpecialTokens())
			assert.Equal(t, tok.VocabSize(), loaded.VocabSize())

			text := corpus[:500] + "<|end of text|>"
			assert.Equal(t, tok.Encode(text), loaded.Encode(text))

			_, err = os.Stat(prefix + ".vocab")
			assert.NoError(t, err)
		})
	}
}

func TestWriteVocab(t *testing.T) {
	tok := newKind(t, KindByte)
	_, err := tok.Train(fixture, 259, false)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, tok.WriteVocab(&sb))
	lines := strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n")

	require.Len(t, lines, 259)
	assert.Equal(t, `[\u0000] 0`, lines[0])
	assert.Equal(t, "[a] 97", lines[97])
	assert.Equal(t, "[a][a] -> [aa] 256", lines[256])
	assert.Equal(t, "[aa][a] -> [aaa] 257", lines[257])
	assert.Equal(t, "[aaa][b] -> [aaab] 258", lines[258])
}

func TestWriteModel(t *testing.T) {
	tok := newKind(t, KindByte)
	tok.RegisterSpecialTokens(Special{Text: "<|end|>", ID: 300})
	_, err := tok.Train(fixture, 258, false)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, tok.WriteModel(&sb))
	assert.Equal(t, "minbpe v1\n\n1\n<|end|> 300\n97 97 256\n256 97 257\n", sb.String())
}

func TestReadModel(t *testing.T) {
	t.Run("merges in any order", func(t *testing.T) {
		tok := newKind(t, KindByte)
		require.NoError(t, tok.ReadModel("test", stringsReader("minbpe v1\n\n0\n256 97 257\n97 97 256\n\n")))

		assert.Equal(t, []Merge{{Pair{97, 97}, 256}, {Pair{256, 97}, 257}}, tok.Merges())
		b, ok := tok.Token(257)
		require.True(t, ok)
		assert.Equal(t, "aaa", string(b))
	})

	t.Run("missing operand renders as replacement", func(t *testing.T) {
		tok := newKind(t, KindByte)
		require.NoError(t, tok.ReadModel("test", stringsReader("minbpe v1\n\n0\n97 400 256\n")))

		b, ok := tok.Token(256)
		require.True(t, ok)
		assert.Equal(t, "a�", string(b))
	})

	t.Run("windows line endings", func(t *testing.T) {
		tok := newKind(t, KindByte)
		require.NoError(t, tok.ReadModel("test", stringsReader("minbpe v1\r\n\r\n0\r\n97 97 256\r\n")))
		assert.Equal(t, 1, tok.NumMerges())
	})

	tests := []struct {
		name    string
		input   string
		wantErr error
		line    int
	}{
		{"empty file", "", ErrMalformedModel, 0},
		{"wrong version", "minbpe v2\n\n0\n", ErrInvalidVersion, 0},
		{"missing pattern", "minbpe v1\n", ErrMalformedModel, 1},
		{"bad special count", "minbpe v1\n\nabc\n", ErrMalformedModel, 3},
		{"missing special", "minbpe v1\n\n2\n<|a|> 300\n", ErrMalformedModel, 4},
		{"bad special id", "minbpe v1\n\n1\n<|a|> x\n", ErrMalformedModel, 4},
		{"short merge", "minbpe v1\n\n0\n97 98\n", ErrMalformedModel, 4},
		{"bad merge", "minbpe v1\n\n0\n97 b 256\n", ErrMalformedModel, 4},
		{"merge id in byte range", "minbpe v1\n\n0\n97 98 200\n", ErrMalformedModel, 4},
		{"duplicate merge id", "minbpe v1\n\n0\n97 98 256\n98 99 256\n", ErrMalformedModel, 0},
		{"bad pattern", "minbpe v1\n(\n0\n", ErrMalformedModel, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := newKind(t, KindByte)
			err := tok.ReadModel("test.model", stringsReader(tt.input))
			require.ErrorIs(t, err, tt.wantErr)

			var ferr *FormatError
			if errors.As(err, &ferr) {
				assert.Equal(t, tt.line, ferr.Line)
				assert.Equal(t, "test.model", ferr.Path)
			}
			assert.Zero(t, tok.NumMerges())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadModel(KindByte, filepath.Join(t.TempDir(), "missing.model"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Heuristic(t *testing.T) {
	tok := newKind(t, KindHeuristic)
	err := tok.ReadModel("test", stringsReader("minbpe v1\n\n0\n"))
	assert.ErrorIs(t, err, ErrNotTrainable)
}
