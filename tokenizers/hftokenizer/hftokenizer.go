// Package hftokenizer implements a tokenizer for HuggingFace's tokenizer.json format.
// This format is used by the HuggingFace Tokenizers library (the "fast" tokenizers)
// and supports WordPiece (BERT), BPE (GPT-2, RoBERTa), and Unigram (XLM-RoBERTa) models.
//
// Besides the ids, it keeps track of where each token comes from in the original text, through
// normalization and pre-tokenization, so accented and combining characters map back correctly.
package hftokenizer

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TokenizerJSON represents the structure of HuggingFace's tokenizer.json file.
type TokenizerJSON struct {
	Version       string          `json:"version"`
	Truncation    json.RawMessage `json:"truncation"`
	Padding       json.RawMessage `json:"padding"`
	AddedTokens   []AddedToken    `json:"added_tokens"`
	Normalizer    *Normalizer     `json:"normalizer"`
	PreTokenizer  *PreTokenizer   `json:"pre_tokenizer"`
	PostProcessor *PostProcessor  `json:"post_processor"`
	Decoder       *Decoder        `json:"decoder"`
	Model         Model           `json:"model"`
}

// AddedToken represents a special token added to the vocabulary.
type AddedToken struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	SingleWord bool   `json:"single_word"`
	Lstrip     bool   `json:"lstrip"`
	Rstrip     bool   `json:"rstrip"`
	Normalized bool   `json:"normalized"`
	Special    bool   `json:"special"`
}

// tokenModel is implemented by wordPiece, bpe and unigram.
type tokenModel interface {
	tokenize(word string) []modelToken
	vocab() *vocabulary
}

func (v *vocabulary) vocab() *vocabulary { return v }

// Tokenizer implements the api.Tokenizer interface for HuggingFace tokenizer.json files.
type Tokenizer struct {
	config    *api.Config
	tokenizer *TokenizerJSON
	model     tokenModel
	vocab     vocabulary // model vocabulary plus added tokens

	// Added tokens, longest first, matched in the raw text before normalization.
	addedByLength []AddedToken
	addedTokens   map[string]int

	// Special token IDs, -1 if not defined.
	unkID  int
	padID  int
	bosID  int
	eosID  int
	clsID  int
	sepID  int
	maskID int
}

// Compile time assert that Tokenizer implements the api interfaces.
var (
	_ api.ModelEncoder = &Tokenizer{}
	_ api.Vocabulary   = &Tokenizer{}
)

// New creates a HuggingFace tokenizer from the repo's tokenizer.json file or, for older BERT
// repositories, from its vocab.txt.
// It implements the tokenizers.TokenizerConstructor function signature.
func New(config *api.Config, repo *hub.Repo) (api.Tokenizer, error) {
	hasJSON, err := repo.LookupFile("tokenizer.json")
	if err != nil {
		return nil, err
	}
	if hasJSON {
		tokenizerFile, err := repo.DownloadFile("tokenizer.json")
		if err != nil {
			return nil, errors.WithMessage(err, "can't download tokenizer.json file")
		}
		return NewFromFile(config, tokenizerFile)
	}
	if hasVocab, _ := repo.LookupFile("vocab.txt"); hasVocab {
		vocabFile, err := repo.DownloadFile("vocab.txt")
		if err != nil {
			return nil, errors.WithMessage(err, "can't download vocab.txt file")
		}
		return NewFromVocabFile(config, vocabFile)
	}
	return nil, errors.Errorf("neither \"tokenizer.json\" nor \"vocab.txt\" found in repo %s", repo)
}

// NewFromFile creates a HuggingFace tokenizer from a local tokenizer.json file path.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent creates a HuggingFace tokenizer from tokenizer.json content.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	return newFromJSON(config, &tj)
}

// NewFromVocabFile creates a BERT WordPiece tokenizer from a vocab.txt file, one token per line,
// the id being the line number. Lower casing follows config's do_lower_case, true if not set.
func NewFromVocabFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read vocab file %q", filePath)
	}
	lines := strings.Split(strings.TrimRight(string(content), "\r\n"), "\n")
	vocab := make(map[string]int, len(lines))
	for id, line := range lines {
		vocab[strings.TrimRight(line, "\r")] = id
	}
	rawVocab, err := json.Marshal(vocab)
	if err != nil {
		return nil, errors.Wrap(err, "encoding vocab")
	}

	lowercase := config.LowerCase(true)
	tj := &TokenizerJSON{
		Normalizer:   &Normalizer{Type: "BertNormalizer", Lowercase: lowercase},
		PreTokenizer: &PreTokenizer{Type: "BertPreTokenizer"},
		Decoder:      &Decoder{Type: "WordPiece", Prefix: "##"},
		Model: Model{
			Type:                    "WordPiece",
			Vocab:                   rawVocab,
			UnkToken:                "[UNK]",
			ContinuingSubwordPrefix: "##",
			MaxInputCharsPerWord:    100,
		},
	}
	if config != nil {
		tj.Normalizer.StripAccents = config.StripAccents
		if config.UnkToken != "" {
			tj.Model.UnkToken = string(config.UnkToken)
		}
	}
	for _, special := range []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]"} {
		if id, ok := vocab[special]; ok {
			tj.AddedTokens = append(tj.AddedTokens, AddedToken{ID: id, Content: special, Special: true})
		}
	}
	cls, hasCls := vocab["[CLS]"]
	sep, hasSep := vocab["[SEP]"]
	if hasCls && hasSep {
		tj.PostProcessor = &PostProcessor{
			Type: "BertProcessing",
			Cls:  &TokenAndID{Token: "[CLS]", ID: cls},
			Sep:  &TokenAndID{Token: "[SEP]", ID: sep},
		}
	}
	return newFromJSON(config, tj)
}

func newFromJSON(config *api.Config, tj *TokenizerJSON) (*Tokenizer, error) {
	t := &Tokenizer{
		config:      config,
		tokenizer:   tj,
		addedTokens: make(map[string]int),
		unkID:       -1,
		padID:       -1,
		bosID:       -1,
		eosID:       -1,
		clsID:       -1,
		sepID:       -1,
		maskID:      -1,
	}

	var err error
	switch tj.Model.Type {
	case "WordPiece":
		t.model, err = newWordPiece(&tj.Model)
	case "BPE":
		t.model, err = newBPE(&tj.Model)
	case "Unigram":
		t.model, err = newUnigram(&tj.Model)
	default:
		err = errors.Errorf("tokenizer model type %q not supported", tj.Model.Type)
	}
	if err != nil {
		return nil, err
	}
	if tj.Normalizer != nil {
		if err := tj.Normalizer.prepare(); err != nil {
			return nil, errors.WithMessage(err, "normalizer")
		}
	}
	if tj.PreTokenizer != nil {
		if err := tj.PreTokenizer.prepare(); err != nil {
			return nil, errors.WithMessage(err, "pre-tokenizer")
		}
	}
	if tj.Decoder != nil {
		if err := tj.Decoder.prepare(); err != nil {
			return nil, errors.WithMessage(err, "decoder")
		}
	}

	// Combined vocabulary.
	t.vocab = newVocabulary()
	modelVocab := t.model.vocab()
	for token, id := range modelVocab.tokenToID {
		t.vocab.add(token, id)
	}
	for _, at := range tj.AddedTokens {
		t.addedTokens[at.Content] = at.ID
		t.vocab.add(at.Content, at.ID)
		if at.Content != "" {
			t.addedByLength = append(t.addedByLength, at)
		}
	}
	sort.SliceStable(t.addedByLength, func(i, j int) bool {
		return len(t.addedByLength[i].Content) > len(t.addedByLength[j].Content)
	})

	t.resolveSpecialTokens()
	klog.V(2).Infof("loaded %s tokenizer with %d tokens", tj.Model.Type, t.VocabSize())
	return t, nil
}

// resolveSpecialTokens maps special tokens from the model, added tokens and config to their IDs.
func (t *Tokenizer) resolveSpecialTokens() {
	switch m := t.model.(type) {
	case *wordPiece:
		t.unkID = m.unkID
	case *bpe:
		t.unkID = m.unkID
	case *unigram:
		t.unkID = m.unkID
	}

	setIfUnset := func(target *int, id int) {
		if *target < 0 {
			*target = id
		}
	}
	for _, at := range t.tokenizer.AddedTokens {
		if !at.Special {
			continue
		}
		switch at.Content {
		case "[UNK]", "<unk>":
			setIfUnset(&t.unkID, at.ID)
		case "[PAD]", "<pad>":
			setIfUnset(&t.padID, at.ID)
		case "[CLS]":
			setIfUnset(&t.clsID, at.ID)
		case "[SEP]":
			setIfUnset(&t.sepID, at.ID)
		case "<s>":
			setIfUnset(&t.clsID, at.ID)
			setIfUnset(&t.bosID, at.ID)
		case "</s>":
			setIfUnset(&t.sepID, at.ID)
			setIfUnset(&t.eosID, at.ID)
		case "[MASK]", "<mask>":
			setIfUnset(&t.maskID, at.ID)
		}
	}

	// Config values take precedence over the conventional names.
	if t.config == nil {
		return
	}
	fromConfig := func(target *int, token api.TokenContent) {
		if token == "" {
			return
		}
		if id, ok := t.vocab.tokenToID[string(token)]; ok {
			*target = id
		}
	}
	fromConfig(&t.unkID, t.config.UnkToken)
	fromConfig(&t.padID, t.config.PadToken)
	fromConfig(&t.clsID, t.config.ClsToken)
	fromConfig(&t.sepID, t.config.SepToken)
	fromConfig(&t.maskID, t.config.MaskToken)
	fromConfig(&t.bosID, t.config.BosToken)
	fromConfig(&t.eosID, t.config.EosToken)
}

// Encode converts text to a sequence of token IDs, without the special tokens the model expects.
func (t *Tokenizer) Encode(text string) []int {
	return t.EncodeWithSpans(text).IDs
}

// EncodeWithSpans returns the token ids and their byte spans in text.
func (t *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	var result api.EncodingResult
	for _, seg := range t.splitAddedTokens(text) {
		if seg.addedID >= 0 {
			result.IDs = append(result.IDs, seg.addedID)
			result.Spans = append(result.Spans, api.TokenSpan{Start: seg.start, End: seg.end})
			continue
		}
		n := newNormalized(text[seg.start:seg.end], seg.start)
		if t.tokenizer.Normalizer != nil {
			n = t.tokenizer.Normalizer.apply(n)
		}
		var words []normalized
		if t.tokenizer.PreTokenizer != nil {
			words = t.tokenizer.PreTokenizer.apply(n)
		} else {
			words = splitFunc(n, unicode.IsSpace, nil)
		}
		for _, word := range words {
			for _, tok := range t.model.tokenize(word.text) {
				orig := word.original(tok.start, tok.end)
				result.IDs = append(result.IDs, tok.id)
				result.Spans = append(result.Spans, api.TokenSpan{Start: orig.start, End: orig.end})
			}
		}
	}
	return result
}

// EncodeForModel encodes text and adds the special tokens configured by the post-processor,
// e.g. [CLS] ... [SEP]. Special tokens have empty spans.
func (t *Tokenizer) EncodeForModel(text string) api.EncodingResult {
	enc := t.EncodeWithSpans(text)
	if t.tokenizer.PostProcessor == nil {
		return enc
	}
	return t.tokenizer.PostProcessor.process(text, enc)
}

type segment struct {
	start, end int
	addedID    int // -1 for regular text
}

// splitAddedTokens separates the added tokens occurring verbatim in text from the regular text.
func (t *Tokenizer) splitAddedTokens(text string) []segment {
	if len(t.addedByLength) == 0 {
		return []segment{{0, len(text), -1}}
	}
	var segments []segment
	last := 0
	for pos := 0; pos < len(text); {
		matched := false
		for _, at := range t.addedByLength {
			if strings.HasPrefix(text[pos:], at.Content) {
				if pos > last {
					segments = append(segments, segment{last, pos, -1})
				}
				segments = append(segments, segment{pos, pos + len(at.Content), at.ID})
				pos += len(at.Content)
				last = pos
				matched = true
				break
			}
		}
		if !matched {
			pos++
		}
	}
	if last < len(text) {
		segments = append(segments, segment{last, len(text), -1})
	}
	return segments
}

// Decode converts a sequence of token IDs back to text.
func (t *Tokenizer) Decode(ids []int) string {
	var tokens []string
	for _, id := range ids {
		if token, ok := t.vocab.idToToken[id]; ok {
			tokens = append(tokens, token)
		}
	}
	if t.tokenizer.Decoder == nil {
		return t.defaultDecode(tokens)
	}
	return strings.Join(t.tokenizer.Decoder.decode(tokens), "")
}

func (t *Tokenizer) defaultDecode(tokens []string) string {
	prefix := t.tokenizer.Model.ContinuingSubwordPrefix
	if prefix == "" {
		prefix = "##"
	}
	var result strings.Builder
	for i, token := range tokens {
		if strings.HasPrefix(token, prefix) {
			result.WriteString(strings.TrimPrefix(token, prefix))
		} else {
			if i > 0 {
				result.WriteString(" ")
			}
			result.WriteString(token)
		}
	}
	return result.String()
}

// SpecialTokenID returns the ID for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		if t.unkID >= 0 {
			return t.unkID, nil
		}
	case api.TokPad:
		if t.padID >= 0 {
			return t.padID, nil
		}
	case api.TokBeginningOfSentence:
		if t.bosID >= 0 {
			return t.bosID, nil
		}
		// Fall back to CLS for BERT-style models
		if t.clsID >= 0 {
			return t.clsID, nil
		}
	case api.TokEndOfSentence:
		if t.eosID >= 0 {
			return t.eosID, nil
		}
		// Fall back to SEP for BERT-style models
		if t.sepID >= 0 {
			return t.sepID, nil
		}
	case api.TokMask:
		if t.maskID >= 0 {
			return t.maskID, nil
		}
	case api.TokClassification:
		if t.clsID >= 0 {
			return t.clsID, nil
		}
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// VocabSize returns the number of distinct token ids.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab.idToToken)
}

// GetVocab returns the full vocabulary mapping.
func (t *Tokenizer) GetVocab() map[string]int {
	vocab := make(map[string]int, len(t.vocab.tokenToID))
	for k, v := range t.vocab.tokenToID {
		vocab[k] = v
	}
	return vocab
}

// GetTokenizerType returns the model type (WordPiece, BPE, Unigram).
func (t *Tokenizer) GetTokenizerType() string {
	return t.tokenizer.Model.Type
}

// TokenToID converts a token string to its ID.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	id, ok := t.vocab.tokenToID[token]
	return id, ok
}

// IDToToken converts a token ID to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.vocab.idToToken[id]
	return token, ok
}

// AddedTokensList returns the list of added tokens sorted by ID.
func (t *Tokenizer) AddedTokensList() []AddedToken {
	result := make([]AddedToken, len(t.tokenizer.AddedTokens))
	copy(result, t.tokenizer.AddedTokens)
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
