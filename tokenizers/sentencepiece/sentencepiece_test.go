package sentencepiece

import (
	"testing"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepoID is a public model with a fairseq SentencePiece model.
const testRepoID = "xlm-roberta-base"

// loadTokenizer downloads the SentencePiece model of testRepoID, or skips the test when the Hub is
// not reachable.
func loadTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	repo := hub.New(testRepoID)
	if found, err := HasModelFile(repo); err != nil || !found {
		t.Skip("SentencePiece model of " + testRepoID + " not reachable")
	}
	tok, err := New(nil, repo)
	require.NoError(t, err)
	return tok.(*Tokenizer)
}

// fairseqTokenizer has no processor: enough to test the id mapping.
func fairseqTokenizer() *Tokenizer {
	return &Tokenizer{
		Info:    &esentencepiece.ModelInfo{VocabularySize: 100, UnknownID: 0, BeginningOfSentenceID: 1, EndOfSentenceID: 2, PadID: -1},
		fairseq: true,
	}
}

func TestFairseqIDMapping(t *testing.T) {
	tok := fairseqTokenizer()
	assert.Equal(t, fairseqUnk, tok.toModelID(0))
	assert.Equal(t, 4, tok.toModelID(3))
	// Pieces shifted by one, plus <mask>: 250002 for xlm-roberta-base.
	assert.Equal(t, 102, tok.VocabSize())

	id, ok := tok.fromModelID(4)
	require.True(t, ok)
	assert.Equal(t, 3, id)
	id, ok = tok.fromModelID(fairseqUnk)
	require.True(t, ok)
	assert.Equal(t, 0, id)
	for _, special := range []int{fairseqBOS, fairseqPad, fairseqEOS, 101} {
		_, ok = tok.fromModelID(special)
		assert.False(t, ok, "special id %d has no SentencePiece piece", special)
	}

	plain := &Tokenizer{Info: tok.Info}
	assert.Equal(t, 7, plain.toModelID(7))
	assert.Equal(t, 100, plain.VocabSize())
}

func TestSpecialTokenID(t *testing.T) {
	tok := fairseqTokenizer()
	for token, want := range map[api.SpecialToken]int{
		api.TokUnknown:             fairseqUnk,
		api.TokPad:                 fairseqPad,
		api.TokBeginningOfSentence: fairseqBOS,
		api.TokClassification:      fairseqBOS,
		api.TokEndOfSentence:       fairseqEOS,
		api.TokMask:                101,
	} {
		got, err := tok.SpecialTokenID(token)
		require.NoError(t, err, token.String())
		assert.Equal(t, want, got, token.String())
	}
	_, err := tok.SpecialTokenID(api.TokSpecialTokensCount)
	require.Error(t, err)

	plain := &Tokenizer{Info: tok.Info}
	_, err = plain.SpecialTokenID(api.TokMask)
	require.Error(t, err)
	got, err := plain.SpecialTokenID(api.TokEndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestFindSubstring(t *testing.T) {
	assert.Equal(t, 4, findSubstring("ara ara", "ara", 1))
	assert.Equal(t, 0, findSubstring("paranã", "par", 0))
	assert.Equal(t, -1, findSubstring("paranã", "ã", 20))
	assert.Equal(t, -1, findSubstring("tata", "yy", 0))
}

func TestEncodeWithSpans(t *testing.T) {
	tok := loadTokenizer(t)
	for _, text := range []string{
		"tata",
		"Yauareté paranã rupi",
		"mba'e  puranga",
		"Kuyera imiráwara.",
	} {
		t.Run(text, func(t *testing.T) {
			result := tok.EncodeWithSpans(text)
			assert.Equal(t, tok.Encode(text), result.IDs)
			require.Len(t, result.Spans, len(result.IDs))
			for i, span := range result.Spans {
				assert.GreaterOrEqual(t, span.Start, 0, "token %d", i)
				assert.LessOrEqual(t, span.Start, span.End, "token %d", i)
				assert.LessOrEqual(t, span.End, len(text), "token %d", i)
			}
		})
	}

	result := tok.EncodeWithSpans("")
	assert.Empty(t, result.IDs)
	assert.Empty(t, result.Spans)
}

func TestEncodeForModel(t *testing.T) {
	tok := loadTokenizer(t)
	var _ api.TokenizerWithSpans = tok

	enc := tok.EncodeForModel("tata")
	require.GreaterOrEqual(t, len(enc.IDs), 3)
	assert.Equal(t, fairseqBOS, enc.IDs[0])
	assert.Equal(t, fairseqEOS, enc.IDs[len(enc.IDs)-1])
	assert.Equal(t, "tata", tok.Decode(enc.IDs))
	for _, id := range enc.IDs[1 : len(enc.IDs)-1] {
		piece, ok := tok.IDToToken(id)
		assert.True(t, ok)
		assert.NotEmpty(t, piece)
	}
}
