package hftokenizer

import (
	"testing"

	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WordPiece tokenizer with a small Nheengatu vocabulary, special tokens first.
var testWordPieceJSON = []byte(`{
  "added_tokens": [
    {"id": 0, "content": "[PAD]", "special": true},
    {"id": 1, "content": "[UNK]", "special": true},
    {"id": 2, "content": "[CLS]", "special": true},
    {"id": 3, "content": "[SEP]", "special": true},
    {"id": 4, "content": "[MASK]", "special": true}
  ],
  "normalizer": {"type": "BertNormalizer", "lowercase": true},
  "pre_tokenizer": {"type": "BertPreTokenizer"},
  "decoder": {"type": "WordPiece", "prefix": "##"},
  "model": {
    "type": "WordPiece", "unk_token": "[UNK]", "continuing_subword_prefix": "##", "max_input_chars_per_word": 100,
    "vocab": {
      "[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3, "[MASK]": 4,
      "ara": 5, "puranga": 6, "mba": 7, "e": 8, "'": 9, "paran": 10, "##a": 11, "yauar": 12, "##ete": 13,
      "kuyera": 14, "##ra": 15
    }
  }
}`)

func newTestWordPiece(t *testing.T) *Tokenizer {
	tok, err := NewFromContent(nil, testWordPieceJSON)
	require.NoError(t, err)
	return tok
}

func TestNewFromContent(t *testing.T) {
	assert.Equal(t, "WordPiece", newTestWordPiece(t).GetTokenizerType())

	bpe, err := NewFromContent(nil, testBPETokenizerJSON)
	require.NoError(t, err)
	assert.Equal(t, "BPE", bpe.GetTokenizerType())

	_, err = NewFromContent(nil, []byte("{not json"))
	require.Error(t, err)
}

func TestWordPieceEncode(t *testing.T) {
	tok := newTestWordPiece(t)
	for _, tc := range []struct {
		text string
		want []int
	}{
		{"ara", []int{5}},
		{"Ara PURANGA", []int{5, 6}},
		{"mba'e", []int{7, 9, 8}},
		{"paranã", []int{10, 11}},   // accents are stripped by the uncased normalizer
		{"yauareté", []int{12, 13}}, // yauar ##ete
		{"kuyera tata", []int{14, 1}},
		{"", nil},
	} {
		t.Run(tc.text, func(t *testing.T) {
			got := tok.Encode(tc.text)
			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWordPieceDecode(t *testing.T) {
	tok := newTestWordPiece(t)
	assert.Equal(t, "parana", tok.Decode([]int{10, 11}))
	assert.Equal(t, "ara puranga", tok.Decode([]int{5, 6}))
	assert.Equal(t, "yauarete kuyera", tok.Decode([]int{12, 13, 14}))
	assert.Equal(t, "ara", tok.Decode([]int{5, 999}), "unknown ids are skipped")
}

func TestSpecialTokenID(t *testing.T) {
	tok := newTestWordPiece(t)
	for _, tc := range []struct {
		token api.SpecialToken
		want  int
	}{
		{api.TokUnknown, 1},
		{api.TokPad, 0},
		{api.TokMask, 4},
		{api.TokClassification, 2},
		{api.TokBeginningOfSentence, 2}, // [CLS] stands in for BOS
		{api.TokEndOfSentence, 3},       // and [SEP] for EOS
	} {
		got, err := tok.SpecialTokenID(tc.token)
		require.NoError(t, err, tc.token.String())
		assert.Equal(t, tc.want, got, tc.token.String())
	}

	bpe, err := NewFromContent(nil, testBPETokenizerJSON)
	require.NoError(t, err)
	_, err = bpe.SpecialTokenID(api.TokMask)
	require.Error(t, err)
}

func TestVocabularyLookups(t *testing.T) {
	tok := newTestWordPiece(t)
	assert.Equal(t, 16, tok.VocabSize())

	id, ok := tok.TokenToID("puranga")
	require.True(t, ok)
	assert.Equal(t, 6, id)
	_, ok = tok.TokenToID("tata")
	assert.False(t, ok)

	token, ok := tok.IDToToken(13)
	require.True(t, ok)
	assert.Equal(t, "##ete", token)

	vocab := tok.GetVocab()
	assert.Len(t, vocab, 16)
	assert.Equal(t, 2, vocab["[CLS]"])
	vocab["ara"] = 100
	id, _ = tok.TokenToID("ara")
	assert.Equal(t, 5, id, "GetVocab returns a copy")

	added := tok.AddedTokensList()
	require.Len(t, added, 5)
	for i := 1; i < len(added); i++ {
		assert.Less(t, added[i-1].ID, added[i].ID)
	}
}

func TestBertPreTokenize(t *testing.T) {
	pt := &PreTokenizer{Type: "BertPreTokenizer"}
	for _, tc := range []struct {
		text string
		want []string
	}{
		{"Ara puranga!", []string{"Ara", "puranga", "!"}},
		{"mba'e paranã", []string{"mba", "'", "e", "paranã"}},
		{"yauareté, kuyera.", []string{"yauareté", ",", "kuyera", "."}},
		{"  tata  ", []string{"tata"}},
	} {
		t.Run(tc.text, func(t *testing.T) {
			var got []string
			for _, w := range pt.apply(newNormalized(tc.text, 0)) {
				got = append(got, w.text)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCleanText(t *testing.T) {
	for in, want := range map[string]string{
		"ara puranga":  "ara puranga",
		"ara\tpuranga": "ara puranga",
		"ara\npuranga": "ara puranga",
		"ara\x00ranga": "araranga",
		"nhe'eng":      "nhe'eng",
	} {
		assert.Equal(t, want, cleanText(newNormalized(in, 0)).text, "%q", in)
	}
}

func TestIsPunctuation(t *testing.T) {
	// ASCII symbols such as '~' count as punctuation.
	for _, r := range ".,!?;:\"'-()~" {
		assert.True(t, isPunctuation(r), "%q", r)
	}
	for _, r := range "aã1 " {
		assert.False(t, isPunctuation(r), "%q", r)
	}
}

func TestEmptyVocab(t *testing.T) {
	tok, err := NewFromContent(nil, []byte(`{"model": {"type": "WordPiece", "vocab": {}, "unk_token": "[UNK]"}}`))
	require.NoError(t, err)
	assert.Empty(t, tok.Encode("ara"), "no unknown token id to fall back to")
}
