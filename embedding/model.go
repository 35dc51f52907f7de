package embedding

import (
	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/models/bert"
	"github.com/nheengatu-lab/yrlkit/tokenizers"
	"k8s.io/klog/v2"
)

// Model is a tokenizer and encoder loaded from the same repository.
type Model struct {
	Repo      *hub.Repo
	Tokenizer *tokenizers.Tokenizer
	Encoder   *bert.Encoder
}

// LoadModel loads the tokenizer and the encoder weights of repo.
func LoadModel(repo *hub.Repo) (*Model, error) {
	klog.Infof("loading model %s", repo)
	tok, err := tokenizers.New(repo)
	if err != nil {
		return nil, err
	}
	enc, err := bert.Load(repo)
	if err != nil {
		return nil, err
	}
	if size := tok.VocabSize(); size > enc.Config.VocabSize {
		klog.Warningf("tokenizer of %s has %d tokens but the model only %d embeddings: ids beyond it will fail",
			repo, size, enc.Config.VocabSize)
	}
	klog.Infof("model %s loaded", repo)
	return &Model{Repo: repo, Tokenizer: tok, Encoder: enc}, nil
}

// Extractor returns an Extractor over the model.
func (m *Model) Extractor() *Extractor {
	return NewExtractor(m.Tokenizer, m.Encoder)
}

// TokenRow is the tokenization of one test word.
type TokenRow struct {
	Word   string
	Tokens []string
	IDs    []int
}

// Inspection summarizes a model and how its tokenizer splits some test words.
type Inspection struct {
	Model     bert.Description
	VocabSize int
	Rows      []TokenRow
}

// WordTokenizer is the part of *tokenizers.Tokenizer used by InspectModel.
type WordTokenizer interface {
	Tokenize(text string) tokenizers.Encoding
	VocabSize() int
}

// InspectModel tokenizes the words, without special tokens, for the model inspection report.
func InspectModel(tok WordTokenizer, desc bert.Description, words []string) Inspection {
	ins := Inspection{Model: desc, VocabSize: tok.VocabSize()}
	for _, w := range words {
		enc := tok.Tokenize(w)
		ins.Rows = append(ins.Rows, TokenRow{Word: w, Tokens: enc.Tokens, IDs: enc.IDs})
	}
	return ins
}
