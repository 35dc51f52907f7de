// Package api defines the Tokenizer API.
// It breaks the cyclic dependency between the `tokenizers` package, which picks an implementation
// for a model repository, and the implementations themselves.
package api

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// TokenSpan represents the byte span of a token in the original text.
// Start and End are byte offsets (not rune offsets), suitable for slicing
// Go strings directly: originalText[span.Start:span.End].
//
// Special tokens added for the model ([CLS], </s>, ...) have an empty span (Start == End == 0).
type TokenSpan struct {
	Start int // start byte position (inclusive)
	End   int // end byte position (exclusive)
}

// Empty returns whether the span covers no text.
func (s TokenSpan) Empty() bool {
	return s.Start == s.End
}

// EncodingResult contains tokens with their spans in the original text.
type EncodingResult struct {
	IDs   []int       // token IDs
	Spans []TokenSpan // byte spans for each token (use originalText[span.Start:span.End] to extract)
}

// Tokenizer interface allows one to convert text to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// TokenizerWithSpans extends Tokenizer with span tracking capability.
// It maps tokens back to byte positions in the original text, which is how a word is located
// among the tokens of its context sentence.
type TokenizerWithSpans interface {
	Tokenizer

	// EncodeWithSpans returns tokens along with their byte spans in the original text.
	EncodeWithSpans(text string) EncodingResult
}

// ModelEncoder is implemented by tokenizers that know how to frame a sequence the way the model
// was trained, e.g. "[CLS] ... [SEP]" for BERT or "<s> ... </s>" for RoBERTa.
type ModelEncoder interface {
	TokenizerWithSpans

	// EncodeForModel returns the ids ready to feed the model, with the special tokens added.
	EncodeForModel(text string) EncodingResult
}

// Vocabulary is implemented by tokenizers that can list the string form of their tokens.
type Vocabulary interface {
	// VocabSize returns the number of distinct ids.
	VocabSize() int

	// IDToToken returns the string form of the token, as stored in the vocabulary (e.g. "##ra" or "▁tata").
	IDToToken(id int) (string, bool)
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	TokBeginningOfSentence: "beginning_of_sentence",
	TokEndOfSentence:       "end_of_sentence",
	TokUnknown:             "unknown",
	TokPad:                 "pad",
	TokMask:                "mask",
	TokClassification:      "classification",
	TokSpecialTokensCount:  "special_tokens_count",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || int(t) >= len(specialTokenNames) {
		return "SpecialToken(" + strconv.Itoa(int(t)) + ")"
	}
	return specialTokenNames[t]
}

// Config holds the fields of tokenizer_config.json that the tokenizers use.
// Special tokens may be given as plain strings or as {"content": "..."} objects; both are accepted.
type Config struct {
	TokenizerClass string `json:"tokenizer_class"`
	DoLowerCase    *bool  `json:"do_lower_case"`
	StripAccents   *bool  `json:"strip_accents"`
	ModelMaxLength int64  `json:"-"`

	BosToken  TokenContent `json:"bos_token"`
	EosToken  TokenContent `json:"eos_token"`
	UnkToken  TokenContent `json:"unk_token"`
	SepToken  TokenContent `json:"sep_token"`
	PadToken  TokenContent `json:"pad_token"`
	ClsToken  TokenContent `json:"cls_token"`
	MaskToken TokenContent `json:"mask_token"`
}

// UnmarshalJSON implements json.Unmarshaler. model_max_length is often a huge float (1e30) meaning
// "unlimited", which is mapped to 0.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	var aux struct {
		*plain
		ModelMaxLength float64 `json:"model_max_length"`
	}
	aux.plain = (*plain)(c)
	if err := json.Unmarshal(data, &aux); err != nil {
		return errors.Wrap(err, "parsing tokenizer config")
	}
	if aux.ModelMaxLength > 0 && aux.ModelMaxLength < 1<<40 {
		c.ModelMaxLength = int64(aux.ModelMaxLength)
	}
	return nil
}

// LowerCase returns the do_lower_case setting, or def if it was not set.
func (c *Config) LowerCase(def bool) bool {
	if c == nil || c.DoLowerCase == nil {
		return def
	}
	return *c.DoLowerCase
}

// TokenContent is a special token string as found in tokenizer_config.json.
type TokenContent string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TokenContent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TokenContent(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Wrapf(err, "invalid special token %s", data)
	}
	*t = TokenContent(obj.Content)
	return nil
}
