package bpe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tokencodec/internal/segment"
)

func TestEncode_Untrained(t *testing.T) {
	tok := newKind(t, KindByte)
	assert.Equal(t, []int{104, 105}, tok.Encode("hi"))
	assert.Empty(t, tok.Encode(""))
}

func TestEncode_EarliestMergeWins(t *testing.T) {
	// "bc" was learned before "ab", so "abc" must become a + bc.
	tok := newKind(t, KindByte)
	require.NoError(t, tok.ReadModel("test", stringsReader(
		"minbpe v1\n\n0\n98 99 256\n97 98 257\n")))

	assert.Equal(t, []int{97, 256}, tok.Encode("abc"))
	assert.Equal(t, []int{257}, tok.Encode("ab"))
}

func TestEncode_RespectsSegments(t *testing.T) {
	tok, err := NewRegex(segment.GPT2Pattern)
	require.NoError(t, err)
	require.NoError(t, tok.ReadModel("test", stringsReader(
		"minbpe v1\n"+segment.GPT2Pattern+"\n0\n111 32 256\n")))

	// "o " never forms because the space starts the next chunk.
	assert.Equal(t, []int{103, 111, 32, 103, 111}, tok.Encode("go go"))
}

func TestEncode_SpecialTokens(t *testing.T) {
	tok := newKind(t, KindByte)
	tok.RegisterSpecialTokens(
		Special{Text: "<|x", ID: 500},
		Special{Text: "<|x|>", ID: 501},
		Special{Text: "<|end|>", ID: 502},
	)

	tests := []struct {
		name string
		text string
		want []int
	}{
		{"only special", "<|end|>", []int{502}},
		{"around text", "a<|end|>b", []int{97, 502, 98}},
		{"first table entry wins", "<|x|>", []int{500, 124, 62}},
		{"adjacent specials", "<|end|><|end|>", []int{502, 502}},
		{"partial match is text", "<|en", []int{60, 124, 101, 110}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := tok.Encode(tt.text)
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.text, tok.Decode(ids))
		})
	}
}

func TestDecode_UnknownID(t *testing.T) {
	tok := newKind(t, KindByte)
	assert.Equal(t, "h�i", tok.Decode([]int{104, 99999, 105}))
	assert.Equal(t, "�", tok.Decode([]int{-1}))
}

func TestDecode_InvalidUTF8(t *testing.T) {
	tok := newKind(t, KindByte)
	assert.Equal(t, "�", tok.Decode([]int{0xff}))
	assert.Equal(t, []byte{0xff}, tok.DecodeBytes([]int{0xff}))

	// a multi-byte character split over tokens decodes once joined
	ids := tok.Encode("é")
	require.Len(t, ids, 2)
	assert.Equal(t, "é", tok.Decode(ids))
}
