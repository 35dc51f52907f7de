// Package sentencepiece implements a tokenizers.Tokenizer based on SentencePiece tokenizer.
package sentencepiece

import (
	"strings"
	"sync"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/pkg/errors"
)

// ModelFileNames are the SentencePiece model files looked for, in order.
// "sentencepiece.bpe.model" is the fairseq convention (XLM-RoBERTa, CamemBERT), whose ids are
// shifted to make room for the fairseq special tokens.
var ModelFileNames = []string{"tokenizer.model", "spiece.model", "sentencepiece.bpe.model"}

const fairseqModelFile = "sentencepiece.bpe.model"

// fairseq special tokens: <s>=0, <pad>=1, </s>=2, <unk>=3; regular pieces are shifted by one,
// and <mask> takes the id after the last piece.
const (
	fairseqBOS    = 0
	fairseqPad    = 1
	fairseqEOS    = 2
	fairseqUnk    = 3
	fairseqOffset = 1
)

// HasModelFile returns whether the repo has one of the SentencePiece ModelFileNames, or the
// error listing the repo.
func HasModelFile(repo *hub.Repo) (bool, error) {
	for _, name := range ModelFileNames {
		found, err := repo.LookupFile(name)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// New creates a SentencePiece tokenizer based on the first of ModelFileNames found in the repo,
// which must be a SentencePiece Model proto.
//
// It implements a tokenizer.TokenizerConstructor function signature.
func New(config *api.Config, repo *hub.Repo) (api.Tokenizer, error) {
	for _, name := range ModelFileNames {
		found, err := repo.LookupFile(name)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		tokenizerFile, err := repo.DownloadFile(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "can't download %s file", name)
		}
		return NewFromFile(tokenizerFile, name == fairseqModelFile)
	}
	return nil, errors.Errorf("no SentencePiece model (%s) found in repo %s", strings.Join(ModelFileNames, ", "), repo)
}

// NewFromFile creates the tokenizer from a local SentencePiece model file. With fairseq set, the
// ids follow the fairseq layout used by XLM-RoBERTa.
func NewFromFile(filePath string, fairseq bool) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", filePath)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
		fairseq:   fairseq,
	}, nil
}

// Tokenizer implements tokenizers.Tokenizer interface based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	fairseq bool

	// pieces seen while encoding, by (shifted) id.
	pieces sync.Map
}

// Compile time assert that sentencepiece.Tokenizer implements the api interfaces.
var (
	_ api.Tokenizer    = &Tokenizer{}
	_ api.ModelEncoder = &Tokenizer{}
)

func (p *Tokenizer) toModelID(spmID int) int {
	if !p.fairseq {
		return spmID
	}
	if spmID == p.Info.UnknownID {
		return fairseqUnk
	}
	return spmID + fairseqOffset
}

func (p *Tokenizer) fromModelID(id int) (int, bool) {
	if !p.fairseq {
		return id, true
	}
	switch id {
	case fairseqBOS, fairseqPad, fairseqEOS, p.fairseqMask():
		return 0, false
	case fairseqUnk:
		return p.Info.UnknownID, true
	}
	return id - fairseqOffset, true
}

func (p *Tokenizer) fairseqMask() int {
	return p.Info.VocabularySize + fairseqOffset
}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	return p.EncodeWithSpans(text).IDs
}

// EncodeWithSpans returns the text encoded into a sequence of ids along with their byte spans.
// It implements api.TokenizerWithSpans.
func (p *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	spans := make([]api.TokenSpan, len(tokens))

	// Track position in original text by matching token pieces.
	pos := 0
	for i, tok := range tokens {
		ids[i] = p.toModelID(tok.ID)
		p.pieces.Store(ids[i], tok.Text)

		// SentencePiece uses U+2581 (lower one eighth block) as the space replacement.
		matchPiece, hasLeadingSpace := strings.CutPrefix(tok.Text, "▁")
		if hasLeadingSpace {
			for pos < len(text) && (text[pos] == ' ' || text[pos] == '\t' || text[pos] == '\n' || text[pos] == '\r') {
				pos++
			}
		}

		start := pos
		if matchPiece == "" {
			// The token represents just the space.
			if hasLeadingSpace && start > 0 && text[start-1] == ' ' {
				spans[i] = api.TokenSpan{Start: start - 1, End: pos}
			} else {
				spans[i] = api.TokenSpan{Start: pos, End: pos}
			}
			continue
		}
		if foundAt := findSubstring(text, matchPiece, pos); foundAt >= 0 {
			start = foundAt
			pos = foundAt + len(matchPiece)
		} else {
			// Normalized piece (e.g. unknown or NFKC-changed characters): advance by its length.
			pos = min(pos+len(matchPiece), len(text))
		}
		spans[i] = api.TokenSpan{Start: start, End: pos}
	}
	return api.EncodingResult{IDs: ids, Spans: spans}
}

// EncodeForModel wraps the encoding with the beginning and end of sentence tokens, when the model
// defines them.
func (p *Tokenizer) EncodeForModel(text string) api.EncodingResult {
	enc := p.EncodeWithSpans(text)
	var out api.EncodingResult
	if bos, err := p.SpecialTokenID(api.TokBeginningOfSentence); err == nil && bos >= 0 {
		out.IDs = append(out.IDs, bos)
		out.Spans = append(out.Spans, api.TokenSpan{})
	}
	out.IDs = append(out.IDs, enc.IDs...)
	out.Spans = append(out.Spans, enc.Spans...)
	if eos, err := p.SpecialTokenID(api.TokEndOfSentence); err == nil && eos >= 0 {
		out.IDs = append(out.IDs, eos)
		out.Spans = append(out.Spans, api.TokenSpan{})
	}
	return out
}

// findSubstring finds the first occurrence of substr in s starting from position start.
// Returns the byte position of the match, or -1 if not found.
func findSubstring(s, substr string, start int) int {
	if start >= len(s) {
		return -1
	}
	idx := strings.Index(s[start:], substr)
	if idx < 0 {
		return -1
	}
	return start + idx
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	spmIDs := make([]int, 0, len(ids))
	for _, id := range ids {
		if spmID, ok := p.fromModelID(id); ok {
			spmIDs = append(spmIDs, spmID)
		}
	}
	return p.Processor.Decode(spmIDs)
}

// IDToToken returns the piece for the id, if it was produced by a previous encoding.
// Otherwise, it falls back to the decoded text of the id.
func (p *Tokenizer) IDToToken(id int) (string, bool) {
	if piece, ok := p.pieces.Load(id); ok {
		return piece.(string), true
	}
	if _, ok := p.fromModelID(id); !ok {
		return "", false
	}
	return p.Decode([]int{id}), true
}

// VocabSize returns the number of ids, including the fairseq special tokens (and <mask>) when used.
func (p *Tokenizer) VocabSize() int {
	if p.fairseq {
		return p.fairseqMask() + 1
	}
	return p.Info.VocabularySize
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if p.fairseq {
		switch token {
		case api.TokUnknown:
			return fairseqUnk, nil
		case api.TokPad:
			return fairseqPad, nil
		case api.TokBeginningOfSentence, api.TokClassification:
			return fairseqBOS, nil
		case api.TokEndOfSentence:
			return fairseqEOS, nil
		case api.TokMask:
			return p.fairseqMask(), nil
		}
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
	switch token {
	case api.TokUnknown:
		return p.Info.UnknownID, nil
	case api.TokPad:
		return p.Info.PadID, nil
	case api.TokBeginningOfSentence:
		return p.Info.BeginningOfSentenceID, nil
	case api.TokEndOfSentence:
		return p.Info.EndOfSentenceID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}
