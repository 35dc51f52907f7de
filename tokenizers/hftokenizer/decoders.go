package hftokenizer

import (
	"regexp"
	"strconv"
	"strings"
)

// Decoder represents the decoder configuration.
type Decoder struct {
	Type string `json:"type"`

	// WordPiece.
	Prefix  string `json:"prefix"`
	Cleanup *bool  `json:"cleanup"`

	// BPEDecoder.
	Suffix string `json:"suffix"`

	// Metaspace.
	Replacement    string `json:"replacement"`
	PrependScheme  string `json:"prepend_scheme"`
	AddPrefixSpace *bool  `json:"add_prefix_space"`

	// Replace.
	Pattern *Pattern `json:"pattern"`
	Content string   `json:"content"`

	// Strip.
	Start int `json:"start"`
	Stop  int `json:"stop"`

	// Sequence.
	Decoders []Decoder `json:"decoders"`

	re *regexp.Regexp
}

func (d *Decoder) prepare() error {
	var err error
	if d.Type == "Replace" {
		if d.re, err = d.Pattern.compile(); err != nil {
			return err
		}
	}
	for i := range d.Decoders {
		if err := d.Decoders[i].prepare(); err != nil {
			return err
		}
	}
	return nil
}

// decode transforms the list of token strings; the result is joined by the caller.
func (d *Decoder) decode(tokens []string) []string {
	switch d.Type {
	case "WordPiece":
		prefix := d.Prefix
		if prefix == "" {
			prefix = "##"
		}
		out := make([]string, len(tokens))
		for i, tok := range tokens {
			switch {
			case i == 0:
				out[i] = strings.TrimPrefix(tok, prefix)
			case strings.HasPrefix(tok, prefix):
				out[i] = strings.TrimPrefix(tok, prefix)
			default:
				out[i] = " " + tok
			}
			if boolOr(d.Cleanup, true) {
				out[i] = cleanupDecoded(out[i])
			}
		}
		return out
	case "ByteLevel":
		return []string{byteLevelDecode(strings.Join(tokens, ""))}
	case "Metaspace":
		replacement := d.Replacement
		if replacement == "" {
			replacement = defaultMetaspace
		}
		stripFirst := d.PrependScheme != "never" && boolOr(d.AddPrefixSpace, true)
		out := make([]string, len(tokens))
		for i, tok := range tokens {
			tok = strings.ReplaceAll(tok, replacement, " ")
			if i == 0 && stripFirst {
				tok = strings.TrimPrefix(tok, " ")
			}
			out[i] = tok
		}
		return out
	case "BPEDecoder":
		suffix := d.Suffix
		if suffix == "" {
			suffix = "</w>"
		}
		out := make([]string, len(tokens))
		for i, tok := range tokens {
			replacement := " "
			if i == len(tokens)-1 {
				replacement = ""
			}
			out[i] = strings.ReplaceAll(tok, suffix, replacement)
		}
		return out
	case "Replace":
		if d.Pattern == nil {
			return tokens
		}
		out := make([]string, len(tokens))
		for i, tok := range tokens {
			if d.re != nil {
				out[i] = d.re.ReplaceAllLiteralString(tok, d.Content)
			} else {
				out[i] = strings.ReplaceAll(tok, d.Pattern.String, d.Content)
			}
		}
		return out
	case "Strip":
		out := make([]string, len(tokens))
		for i, tok := range tokens {
			for n := 0; n < d.Start && d.Content != "" && strings.HasPrefix(tok, d.Content); n++ {
				tok = tok[len(d.Content):]
			}
			for n := 0; n < d.Stop && d.Content != "" && strings.HasSuffix(tok, d.Content); n++ {
				tok = tok[:len(tok)-len(d.Content)]
			}
			out[i] = tok
		}
		return out
	case "ByteFallback":
		return byteFallbackDecode(tokens)
	case "Fuse":
		return []string{strings.Join(tokens, "")}
	case "Sequence":
		for i := range d.Decoders {
			tokens = d.Decoders[i].decode(tokens)
		}
		return tokens
	default:
		return tokens
	}
}

// byteFallbackDecode joins consecutive <0xXX> tokens into the bytes they represent.
func byteFallbackDecode(tokens []string) []string {
	var out []string
	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			out = append(out, strings.ToValidUTF8(string(pending), "�"))
			pending = pending[:0]
		}
	}
	for _, tok := range tokens {
		if len(tok) == 6 && strings.HasPrefix(tok, "<0x") && strings.HasSuffix(tok, ">") {
			if b, err := strconv.ParseUint(tok[3:5], 16, 8); err == nil {
				pending = append(pending, byte(b))
				continue
			}
		}
		flush()
		out = append(out, tok)
	}
	flush()
	return out
}

func byteLevelDecode(text string) string {
	result := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			result = append(result, string(r)...)
		}
	}
	return string(result)
}

var cleanupReplacer = strings.NewReplacer(
	" .", ".", " ?", "?", " !", "!", " ,", ",", " ' ", "'",
	" n't", "n't", " 'm", "'m", " 's", "'s", " 've", "'ve", " 're", "'re",
)

// cleanupDecoded removes the spaces the WordPiece decoder puts before punctuation.
func cleanupDecoded(s string) string {
	return cleanupReplacer.Replace(s)
}
