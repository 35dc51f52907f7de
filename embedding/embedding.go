// Package embedding extracts contextual word embeddings: the mean of the last hidden states of the
// tokens that make up a word inside a text.
package embedding

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/nheengatu-lab/yrlkit/models/bert"
	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/pkg/errors"
)

// Tokenizer encodes a text with the special tokens of the model and the byte span of each token.
type Tokenizer interface {
	EncodeForModel(text string) api.EncodingResult
}

// HiddenStater runs a model and returns its last hidden state, one row per token.
type HiddenStater interface {
	Forward(ctx context.Context, ids []int) (*bert.Hidden, error)
	HiddenSize() int
}

// Extractor pairs a tokenizer with the model it was trained for.
type Extractor struct {
	Tokenizer Tokenizer
	Model     HiddenStater

	// Dim is the size of the returned vectors, including the zero vectors of empty inputs.
	Dim int
}

// NewExtractor creates an Extractor producing vectors of the model hidden size.
func NewExtractor(tok Tokenizer, model HiddenStater) *Extractor {
	return &Extractor{Tokenizer: tok, Model: model, Dim: model.HiddenSize()}
}

// WordEmbedding returns the embedding of word as it appears in text.
//
// The word is located case-insensitively; the hidden states of the tokens whose spans fall inside
// it are averaged. If the word is not in the text, or no token falls entirely inside it, the
// embedding of the word on its own is returned. Empty text or word give a zero vector.
func (e *Extractor) WordEmbedding(ctx context.Context, text, word string) ([]float32, error) {
	if text == "" || word == "" {
		return make([]float32, e.Dim), nil
	}
	start, end, found := indexFold(text, word)
	if !found {
		return e.IsolatedEmbedding(ctx, word)
	}

	enc := e.Tokenizer.EncodeForModel(text)
	var rows []int
	for i, span := range enc.Spans {
		if span.Empty() {
			continue
		}
		if span.Start >= start && span.End <= end {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return e.IsolatedEmbedding(ctx, word)
	}

	hidden, err := e.Model.Forward(ctx, enc.IDs)
	if err != nil {
		return nil, errors.WithMessagef(err, "encoding %q", text)
	}
	return meanRows(hidden, rows), nil
}

// IsolatedEmbedding returns the embedding of word encoded on its own: the mean of the hidden
// states without the first and last (special) tokens, or of all of them for sequences of up to two
// tokens.
func (e *Extractor) IsolatedEmbedding(ctx context.Context, word string) ([]float32, error) {
	if word == "" {
		return make([]float32, e.Dim), nil
	}
	enc := e.Tokenizer.EncodeForModel(word)
	hidden, err := e.Model.Forward(ctx, enc.IDs)
	if err != nil {
		return nil, errors.WithMessagef(err, "encoding %q", word)
	}
	first, last := 0, hidden.Rows
	if hidden.Rows > 2 {
		first, last = 1, hidden.Rows-1
	}
	rows := make([]int, 0, last-first)
	for i := first; i < last; i++ {
		rows = append(rows, i)
	}
	return meanRows(hidden, rows), nil
}

func meanRows(hidden *bert.Hidden, rows []int) []float32 {
	sum := make([]float64, hidden.Cols)
	for _, r := range rows {
		for j, v := range hidden.Row(r) {
			sum[j] += float64(v)
		}
	}
	mean := make([]float32, hidden.Cols)
	for j, v := range sum {
		mean[j] = float32(v / float64(len(rows)))
	}
	return mean
}

// indexFold returns the byte range of the first occurrence of word in text, ignoring case.
func indexFold(text, word string) (start, end int, found bool) {
	for start = 0; start < len(text); {
		if end, ok := hasPrefixFold(text[start:], word); ok {
			return start, start + end, true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		start += size
	}
	return 0, 0, false
}

// hasPrefixFold reports whether s starts with prefix, ignoring case, and the length in bytes of
// the matching part of s.
func hasPrefixFold(s, prefix string) (int, bool) {
	pos := 0
	for _, pr := range prefix {
		if pos >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[pos:])
		if unicode.ToLower(sr) != unicode.ToLower(pr) {
			return 0, false
		}
		pos += size
	}
	return pos, true
}
