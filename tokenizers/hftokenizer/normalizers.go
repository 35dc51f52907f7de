package hftokenizer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Normalizer represents the normalizer configuration.
type Normalizer struct {
	Type string `json:"type"`

	// BertNormalizer options. Nil booleans take the HuggingFace defaults.
	CleanText          *bool `json:"clean_text"`
	HandleChineseChars *bool `json:"handle_chinese_chars"`
	StripAccents       *bool `json:"strip_accents"`
	Lowercase          bool  `json:"lowercase"`

	// Replace.
	Pattern *Pattern `json:"pattern"`
	Content string   `json:"content"`

	// Prepend.
	Prepend string `json:"prepend"`

	// Strip.
	StripLeft  bool `json:"strip_left"`
	StripRight bool `json:"strip_right"`

	// Sequence.
	Normalizers []Normalizer `json:"normalizers"`

	re *regexp.Regexp
}

// Pattern for regex-based operations.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// compile converts Regex into a Go regexp. It returns nil for literal patterns.
func (p *Pattern) compile() (*regexp.Regexp, error) {
	if p == nil || p.Regex == "" {
		return nil, nil
	}
	re, err := regexp.Compile(p.Regex)
	if err != nil {
		return nil, errors.Wrapf(err, "pattern %q is not supported", p.Regex)
	}
	return re, nil
}

// prepare compiles the patterns of the normalizer tree.
func (n *Normalizer) prepare() error {
	if n == nil {
		return nil
	}
	var err error
	if n.Type == "Replace" {
		if n.re, err = n.Pattern.compile(); err != nil {
			return err
		}
	}
	for i := range n.Normalizers {
		if err := n.Normalizers[i].prepare(); err != nil {
			return err
		}
	}
	return nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func (n *Normalizer) apply(s normalized) normalized {
	switch n.Type {
	case "Lowercase":
		return s.mapRunes(func(r rune) string { return string(unicode.ToLower(r)) })
	case "NFD":
		return s.unicodeNormalize(norm.NFD)
	case "NFC":
		return s.unicodeNormalize(norm.NFC)
	case "NFKC", "Precompiled":
		// The precompiled SentencePiece charsmap is, for the models we use, an NFKC variant.
		return s.unicodeNormalize(norm.NFKC)
	case "NFKD":
		return s.unicodeNormalize(norm.NFKD)
	case "StripAccents":
		return removeAccents(s)
	case "BertNormalizer":
		if boolOr(n.CleanText, true) {
			s = cleanText(s)
		}
		if boolOr(n.HandleChineseChars, true) {
			s = padChineseChars(s)
		}
		if boolOr(n.StripAccents, n.Lowercase) {
			s = removeAccents(s.unicodeNormalize(norm.NFD))
		}
		if n.Lowercase {
			s = s.mapRunes(func(r rune) string { return string(unicode.ToLower(r)) })
		}
		return s
	case "Replace":
		if n.Pattern == nil {
			return s
		}
		return s.replace(n.re, n.Pattern.String, n.Content)
	case "Prepend":
		return s.prepend(n.Prepend)
	case "Strip":
		return s.strip(n.StripLeft, n.StripRight)
	case "Sequence":
		for i := range n.Normalizers {
			s = n.Normalizers[i].apply(s)
		}
		return s
	default:
		return s
	}
}

func cleanText(s normalized) normalized {
	return s.mapRunes(func(r rune) string {
		if r == 0 || r == 0xFFFD || isControl(r) {
			return ""
		}
		if isWhitespace(r) {
			return " "
		}
		return string(r)
	})
}

func padChineseChars(s normalized) normalized {
	if !strings.ContainsFunc(s.text, isChineseChar) {
		return s
	}
	return s.mapRunes(func(r rune) string {
		if isChineseChar(r) {
			return " " + string(r) + " "
		}
		return string(r)
	})
}

func removeAccents(s normalized) normalized {
	return s.mapRunes(func(r rune) string {
		if unicode.Is(unicode.Mn, r) {
			return ""
		}
		return string(r)
	})
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r) || unicode.In(r, unicode.Cf)
}

func isPunctuation(r rune) bool {
	// ASCII symbols are treated as punctuation too.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
