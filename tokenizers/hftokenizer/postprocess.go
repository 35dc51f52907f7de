package hftokenizer

import (
	"encoding/json"
	"unicode"
	"unicode/utf8"

	"github.com/nheengatu-lab/yrlkit/tokenizers/api"
	"github.com/pkg/errors"
)

// PostProcessor represents the post-processor configuration: how special tokens frame a sequence.
type PostProcessor struct {
	Type string `json:"type"`

	// BertProcessing and RobertaProcessing.
	Sep         *TokenAndID `json:"sep"`
	Cls         *TokenAndID `json:"cls"`
	TrimOffsets *bool       `json:"trim_offsets"`

	// TemplateProcessing.
	Single        []PostProcItem                  `json:"single"`
	Pair          []PostProcItem                  `json:"pair"`
	SpecialTokens map[string]PostProcSpecialToken `json:"special_tokens"`

	// Sequence.
	Processors []PostProcessor `json:"processors"`
}

// TokenAndID is the ["[SEP]", 102] pair used by BertProcessing and RobertaProcessing.
type TokenAndID struct {
	Token string
	ID    int
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TokenAndID) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return errors.Errorf("expected [token, id] pair, got %s", data)
	}
	if err := json.Unmarshal(pair[0], &t.Token); err != nil {
		return errors.Wrapf(err, "parsing token of %s", data)
	}
	if err := json.Unmarshal(pair[1], &t.ID); err != nil {
		return errors.Wrapf(err, "parsing id of %s", data)
	}
	return nil
}

// PostProcItem is an item in post-processing templates.
type PostProcItem struct {
	SpecialToken *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"SpecialToken,omitempty"`
	Sequence *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"Sequence,omitempty"`
}

// PostProcSpecialToken defines a special token for post-processing.
type PostProcSpecialToken struct {
	ID     string   `json:"id"`
	IDs    []int    `json:"ids"`
	Tokens []string `json:"tokens"`
}

// process frames a single sequence for the model. text is the original input, used to trim offsets.
func (p *PostProcessor) process(text string, enc api.EncodingResult) api.EncodingResult {
	switch p.Type {
	case "BertProcessing":
		return frame(enc, p.Cls, p.Sep)
	case "RobertaProcessing":
		if boolOr(p.TrimOffsets, true) {
			enc = trimOffsets(text, enc)
		}
		return frame(enc, p.Cls, p.Sep)
	case "ByteLevel":
		if boolOr(p.TrimOffsets, true) {
			enc = trimOffsets(text, enc)
		}
		return enc
	case "TemplateProcessing":
		var out api.EncodingResult
		for _, item := range p.Single {
			switch {
			case item.Sequence != nil:
				out.IDs = append(out.IDs, enc.IDs...)
				out.Spans = append(out.Spans, enc.Spans...)
			case item.SpecialToken != nil:
				if special, ok := p.SpecialTokens[item.SpecialToken.ID]; ok {
					for _, id := range special.IDs {
						out.IDs = append(out.IDs, id)
						out.Spans = append(out.Spans, api.TokenSpan{})
					}
				}
			}
		}
		return out
	case "Sequence":
		for i := range p.Processors {
			enc = p.Processors[i].process(text, enc)
		}
		return enc
	default:
		return enc
	}
}

func frame(enc api.EncodingResult, cls, sep *TokenAndID) api.EncodingResult {
	var out api.EncodingResult
	if cls != nil {
		out.IDs = append(out.IDs, cls.ID)
		out.Spans = append(out.Spans, api.TokenSpan{})
	}
	out.IDs = append(out.IDs, enc.IDs...)
	out.Spans = append(out.Spans, enc.Spans...)
	if sep != nil {
		out.IDs = append(out.IDs, sep.ID)
		out.Spans = append(out.Spans, api.TokenSpan{})
	}
	return out
}

// trimOffsets removes leading and trailing white space of the original text from the token spans.
func trimOffsets(text string, enc api.EncodingResult) api.EncodingResult {
	spans := make([]api.TokenSpan, len(enc.Spans))
	for i, s := range enc.Spans {
		for s.Start < s.End {
			r, size := utf8.DecodeRuneInString(text[s.Start:s.End])
			if !unicode.IsSpace(r) {
				break
			}
			s.Start += size
		}
		for s.End > s.Start {
			r, size := utf8.DecodeLastRuneInString(text[s.Start:s.End])
			if !unicode.IsSpace(r) {
				break
			}
			s.End -= size
		}
		spans[i] = s
	}
	return api.EncodingResult{IDs: enc.IDs, Spans: spans}
}
