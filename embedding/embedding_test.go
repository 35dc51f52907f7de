package embedding

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nheengatu-lab/yrlkit/dataset"
	"github.com/nheengatu-lab/yrlkit/models/bert"
	"github.com/nheengatu-lab/yrlkit/tokenizers"
	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clsID = 101
	sepID = 102
)

// fakeTokenizer emits one token per rune (id = code point), or one per space separated word
// (id = byte length), wrapped in [CLS] and [SEP] unless bare is set.
type fakeTokenizer struct {
	words bool
	bare  bool
}

func (f fakeTokenizer) EncodeForModel(text string) api.EncodingResult {
	var res api.EncodingResult
	if !f.bare {
		res.IDs = append(res.IDs, clsID)
		res.Spans = append(res.Spans, api.TokenSpan{})
	}
	if f.words {
		pos := 0
		for _, w := range strings.Split(text, " ") {
			res.IDs = append(res.IDs, len(w))
			res.Spans = append(res.Spans, api.TokenSpan{Start: pos, End: pos + len(w)})
			pos += len(w) + 1
		}
	} else {
		for i, r := range text {
			res.IDs = append(res.IDs, int(r))
			res.Spans = append(res.Spans, api.TokenSpan{Start: i, End: i + utf8.RuneLen(r)})
		}
	}
	if !f.bare {
		res.IDs = append(res.IDs, sepID)
		res.Spans = append(res.Spans, api.TokenSpan{})
	}
	return res
}

// fakeModel returns the hidden state [id, position] for each token.
type fakeModel struct {
	calls [][]int
}

func (m *fakeModel) Forward(ctx context.Context, ids []int) (*bert.Hidden, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls = append(m.calls, ids)
	h := &bert.Hidden{Rows: len(ids), Cols: 2, Data: make([]float32, 2*len(ids))}
	for i, id := range ids {
		h.Data[2*i] = float32(id)
		h.Data[2*i+1] = float32(i)
	}
	return h, nil
}

func (m *fakeModel) HiddenSize() int { return 2 }

func mean(values ...float64) float32 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return float32(sum / float64(len(values)))
}

func TestWordEmbedding(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	e := NewExtractor(fakeTokenizer{}, model)
	assert.Equal(t, 2, e.Dim)

	vec, err := e.WordEmbedding(ctx, "Ara puranga", "PURANGA")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{mean('p', 'u', 'r', 'a', 'n', 'g', 'a'), 8}, vec, 1e-4)
	require.Len(t, model.calls, 1)
	assert.Len(t, model.calls[0], 13)

	// Multi-byte runes: spans are byte offsets.
	vec, err = e.WordEmbedding(ctx, "rio paranã", "Paranã")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{mean('p', 'a', 'r', 'a', 'n', 'ã'), 7.5}, vec, 1e-4)

	// Whole text as its own context.
	vec, err = e.WordEmbedding(ctx, "tata", "tata")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{mean('t', 'a', 't', 'a'), 2.5}, vec, 1e-4)
}

func TestWordEmbeddingFallbacks(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	e := NewExtractor(fakeTokenizer{}, model)

	vec, err := e.WordEmbedding(ctx, "", "ara")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, vec)
	vec, err = e.WordEmbedding(ctx, "ara", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, vec)
	assert.Empty(t, model.calls)

	// Not in the text: isolated embedding, without [CLS] and [SEP].
	vec, err = e.WordEmbedding(ctx, "ara puranga", "tata")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{mean('t', 'a', 't', 'a'), 2.5}, vec, 1e-4)
	assert.Equal(t, []int{clsID, 't', 'a', 't', 'a', sepID}, model.calls[0])

	// No token inside the word: "pura" is part of the token "puranga".
	words := NewExtractor(fakeTokenizer{words: true}, &fakeModel{})
	vec, err = words.WordEmbedding(ctx, "ara puranga", "pura")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{4, 1}, vec, 1e-4)
}

func TestIsolatedEmbeddingShortSequences(t *testing.T) {
	e := NewExtractor(fakeTokenizer{bare: true}, &fakeModel{})
	vec, err := e.IsolatedEmbedding(context.Background(), "ab")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{mean('a', 'b'), 0.5}, vec, 1e-4)

	vec, err = e.IsolatedEmbedding(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, vec)
}

func TestIndexFold(t *testing.T) {
	for _, tc := range []struct {
		text, word string
		start, end int
		found      bool
	}{
		{"Ara Puranga", "puranga", 4, 11, true},
		{"PARANÃ", "paranã", 0, 7, true},
		{"xİy", "i", 1, 3, true},
		{"ara", "arara", 0, 0, false},
		{"ara", "u", 0, 0, false},
	} {
		start, end, found := indexFold(tc.text, tc.word)
		assert.Equal(t, tc.found, found, "indexFold(%q, %q)", tc.text, tc.word)
		if tc.found {
			assert.Equal(t, [2]int{tc.start, tc.end}, [2]int{start, end}, "indexFold(%q, %q)", tc.text, tc.word)
		}
	}
}

func TestRunAndRecords(t *testing.T) {
	entries := []dataset.Entry{
		{NheengatuText: "ara", PortugueseText: "dia", Category: "Tempo", Metadata: dataset.Metadata{RawNheengatu: "Ara", SourceLine: 2}},
		{NheengatuText: "tata", PortugueseText: "fogo", Metadata: dataset.Metadata{RawNheengatu: "Tata", SourceLine: 3}},
	}
	yrl := NewExtractor(fakeTokenizer{}, &fakeModel{})
	pt := NewExtractor(fakeTokenizer{words: true}, &fakeModel{})
	records, err := Run(context.Background(), entries, yrl, pt)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ara", records[0].NheengatuText)
	assert.Equal(t, "dia", records[0].PortugueseText)
	assert.Equal(t, "Tempo", records[0].Category)
	assert.Equal(t, entries[1].Metadata, records[1].Metadata)
	assert.InDeltaSlice(t, []float32{mean('a', 'r', 'a'), 2}, records[0].VectorYrl, 1e-4)
	assert.InDeltaSlice(t, []float32{4, 1}, records[1].VectorPt, 1e-4)

	path := filepath.Join(t.TempDir(), "embeddings.json")
	require.NoError(t, WriteRecords(path, records))
	loaded, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, entries, yrl, pt)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadRecordsWithoutVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.json")
	require.NoError(t, WriteRecords(path, []Record{{NheengatuText: "ara", VectorYrl: []float32{1}}}))
	_, err := ReadRecords(path)
	require.ErrorIs(t, err, ErrNoVector)

	_, err = ReadRecords(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, dataset.ErrFileNotFound)
}

type fakeWordTokenizer struct{}

func (fakeWordTokenizer) Tokenize(text string) tokenizers.Encoding {
	return tokenizers.Encoding{Text: text, Tokens: []string{text[:2], "##" + text[2:]}, IDs: []int{7, 8}}
}

func (fakeWordTokenizer) VocabSize() int { return 30000 }

func TestInspectModel(t *testing.T) {
	ins := InspectModel(fakeWordTokenizer{}, bert.Description{ModelType: "bert"}, []string{"tata", "paranã"})
	assert.Equal(t, 30000, ins.VocabSize)
	assert.Equal(t, "bert", ins.Model.ModelType)
	require.Len(t, ins.Rows, 2)
	assert.Equal(t, TokenRow{Word: "paranã", Tokens: []string{"pa", "##ranã"}, IDs: []int{7, 8}}, ins.Rows[1])
}
