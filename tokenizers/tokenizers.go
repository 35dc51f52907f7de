// Package tokenizers loads the tokenizer of a model repository and offers the views the research
// commands need: ids, token strings, byte spans and unknown-token detection.
//
// Implementations live in the hftokenizer (tokenizer.json or vocab.txt) and sentencepiece packages;
// New picks one based on the files in the repository.
package tokenizers

import (
	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/nheengatu-lab/yrlkit/tokenizers/hftokenizer"
	"github.com/nheengatu-lab/yrlkit/tokenizers/sentencepiece"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TokenizerConstructor creates a tokenizer implementation for a repository.
type TokenizerConstructor func(config *api.Config, repo *hub.Repo) (api.Tokenizer, error)

// Tokenizer wraps an implementation with the repository configuration.
type Tokenizer struct {
	api.ModelEncoder

	// Name of the repository the tokenizer was loaded from.
	Name string

	// Implementation used: "hftokenizer" or "sentencepiece".
	Implementation string

	Config *api.Config
}

// Encoding is the result of tokenizing a text.
type Encoding struct {
	Text   string
	IDs    []int
	Tokens []string
	Spans  []api.TokenSpan

	// UnknownCount is the number of unknown tokens ([UNK], <unk>) in IDs.
	UnknownCount int
}

// HasUnknown returns whether the text produced at least one unknown token.
func (e Encoding) HasUnknown() bool {
	return e.UnknownCount > 0
}

// LoadConfig reads tokenizer_config.json from the repo. It returns an empty config if the file is absent.
func LoadConfig(repo *hub.Repo) (*api.Config, error) {
	config := &api.Config{}
	found, err := repo.LookupFile("tokenizer_config.json")
	if err != nil {
		return nil, err
	}
	if !found {
		return config, nil
	}
	if err := repo.ReadJSON("tokenizer_config.json", config); err != nil {
		return nil, err
	}
	return config, nil
}

// New loads the tokenizer of the repo.
func New(repo *hub.Repo) (*Tokenizer, error) {
	config, err := LoadConfig(repo)
	if err != nil {
		return nil, err
	}
	var (
		implementation string
		constructor    TokenizerConstructor
	)
	// All lookups share one repo listing: its error is reported by HasModelFile.
	hasJSON, _ := repo.LookupFile("tokenizer.json")
	hasVocab, _ := repo.LookupFile("vocab.txt")
	hasSentencePiece, err := sentencepiece.HasModelFile(repo)
	switch {
	case err != nil:
		return nil, err
	case hasJSON || hasVocab:
		implementation, constructor = "hftokenizer", hftokenizer.New
	case hasSentencePiece:
		implementation, constructor = "sentencepiece", sentencepiece.New
	default:
		return nil, errors.Errorf("no tokenizer files found in %s", repo)
	}
	tok, err := constructor(config, repo)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading tokenizer of %s", repo)
	}
	encoder, ok := tok.(api.ModelEncoder)
	if !ok {
		return nil, errors.Errorf("tokenizer %T of %s can't encode for models", tok, repo)
	}
	klog.V(1).Infof("loaded tokenizer of %s using %s", repo, implementation)
	return &Tokenizer{ModelEncoder: encoder, Name: repo.ID, Implementation: implementation, Config: config}, nil
}

// UnknownID returns the id of the unknown token, if the tokenizer has one.
func (t *Tokenizer) UnknownID() (int, bool) {
	id, err := t.SpecialTokenID(api.TokUnknown)
	return id, err == nil && id >= 0
}

// Tokens returns the string form of the ids: the vocabulary entries when available,
// the decoded text of each id otherwise.
func (t *Tokenizer) Tokens(ids []int) []string {
	tokens := make([]string, len(ids))
	vocab, hasVocab := t.ModelEncoder.(api.Vocabulary)
	for i, id := range ids {
		if hasVocab {
			if token, ok := vocab.IDToToken(id); ok {
				tokens[i] = token
				continue
			}
		}
		tokens[i] = t.Decode([]int{id})
	}
	return tokens
}

// Tokenize encodes text without the special tokens the model adds.
func (t *Tokenizer) Tokenize(text string) Encoding {
	return t.newEncoding(text, t.EncodeWithSpans(text))
}

// TokenizeForModel encodes text the way the model receives it, with its special tokens.
func (t *Tokenizer) TokenizeForModel(text string) Encoding {
	return t.newEncoding(text, t.EncodeForModel(text))
}

func (t *Tokenizer) newEncoding(text string, enc api.EncodingResult) Encoding {
	e := Encoding{Text: text, IDs: enc.IDs, Spans: enc.Spans, Tokens: t.Tokens(enc.IDs)}
	if unk, ok := t.UnknownID(); ok {
		for _, id := range enc.IDs {
			if id == unk {
				e.UnknownCount++
			}
		}
	}
	return e
}

// VocabSize returns the vocabulary size, or 0 if the implementation doesn't report it.
func (t *Tokenizer) VocabSize() int {
	if vocab, ok := t.ModelEncoder.(api.Vocabulary); ok {
		return vocab.VocabSize()
	}
	return 0
}
