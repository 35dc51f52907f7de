package hftokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PreTokenizer represents the pre-tokenizer configuration.
type PreTokenizer struct {
	Type string `json:"type"`

	// ByteLevel and (legacy) Metaspace.
	AddPrefixSpace *bool `json:"add_prefix_space"`
	UseRegex       *bool `json:"use_regex"`

	// Metaspace.
	Replacement   string `json:"replacement"`
	PrependScheme string `json:"prepend_scheme"`
	Split         *bool  `json:"split"`

	// Split.
	Pattern  *Pattern `json:"pattern"`
	Behavior string   `json:"behavior"`
	Invert   bool     `json:"invert"`

	// Digits.
	IndividualDigits bool `json:"individual_digits"`

	// Sequence.
	PreTokenizers []PreTokenizer `json:"pretokenizers"`

	re *regexp.Regexp
}

const defaultMetaspace = "▁"

var (
	// Unicode-aware version of `\w+|[^\w\s]+`.
	whitespaceRegex = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+|[^\p{L}\p{M}\p{N}_\s]+`)

	// GPT-2 split pattern. Go's regexp has no look-ahead, so `\s+(?!\S)` is folded into `\s+`.
	byteLevelRegex = regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)
)

func (p *PreTokenizer) prepare() error {
	var err error
	if p.Type == "Split" {
		if p.re, err = p.Pattern.compile(); err != nil {
			return err
		}
	}
	for i := range p.PreTokenizers {
		if err := p.PreTokenizers[i].prepare(); err != nil {
			return err
		}
	}
	return nil
}

// apply splits s into words. The words keep their alignment to the original text.
func (p *PreTokenizer) apply(s normalized) []normalized {
	switch p.Type {
	case "BertPreTokenizer":
		return splitFunc(s, isWhitespace, isPunctuation)
	case "WhitespaceSplit":
		return splitFunc(s, unicode.IsSpace, nil)
	case "Whitespace":
		return splitMatches(s, whitespaceRegex.FindAllStringIndex(s.text, -1), "Removed", true)
	case "Punctuation":
		return splitFunc(s, nil, isPunctuation)
	case "Digits":
		if p.IndividualDigits {
			return splitFunc(s, nil, unicode.IsDigit)
		}
		return splitMatches(s, digitsRegex.FindAllStringIndex(s.text, -1), "Isolated", false)
	case "Metaspace":
		return p.metaspace(s)
	case "ByteLevel":
		return p.byteLevel(s)
	case "Split":
		var matches [][]int
		if p.re != nil {
			matches = p.re.FindAllStringIndex(s.text, -1)
		} else if p.Pattern != nil && p.Pattern.String != "" {
			matches = literalMatches(s.text, p.Pattern.String)
		}
		return splitMatches(s, matches, p.Behavior, p.Invert)
	case "Sequence":
		words := []normalized{s}
		for i := range p.PreTokenizers {
			var next []normalized
			for _, w := range words {
				next = append(next, p.PreTokenizers[i].apply(w)...)
			}
			words = next
		}
		return words
	default:
		return splitFunc(s, unicode.IsSpace, nil)
	}
}

var digitsRegex = regexp.MustCompile(`\p{Nd}+`)

// splitFunc splits on runes for which remove is true (dropping them) and isolates runes for which
// isolate is true. Either function can be nil.
func splitFunc(s normalized, remove, isolate func(rune) bool) []normalized {
	var words []normalized
	start := -1
	for i, r := range s.text {
		size := utf8.RuneLen(r)
		if size < 0 {
			size = 1
		}
		switch {
		case remove != nil && remove(r):
			if start >= 0 {
				words = append(words, s.slice(start, i))
				start = -1
			}
		case isolate != nil && isolate(r):
			if start >= 0 {
				words = append(words, s.slice(start, i))
				start = -1
			}
			words = append(words, s.slice(i, i+size))
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, s.slice(start, len(s.text)))
	}
	return words
}

func literalMatches(text, literal string) [][]int {
	var matches [][]int
	for pos := 0; pos < len(text); {
		idx := strings.Index(text[pos:], literal)
		if idx < 0 {
			break
		}
		matches = append(matches, []int{pos + idx, pos + idx + len(literal)})
		pos += idx + len(literal)
	}
	return matches
}

// splitMatches splits s using the matched ranges, following the HuggingFace split behaviors:
// Removed, Isolated, MergedWithPrevious, MergedWithNext and Contiguous.
// With invert, the matches are the words and everything else is the delimiter.
func splitMatches(s normalized, matches [][]int, behavior string, invert bool) []normalized {
	// Build alternating (range, isDelimiter) pieces.
	type piece struct {
		start, end int
		delim      bool
	}
	var pieces []piece
	last := 0
	for _, m := range matches {
		if m[0] == m[1] {
			continue
		}
		if m[0] > last {
			pieces = append(pieces, piece{last, m[0], invert})
		}
		pieces = append(pieces, piece{m[0], m[1], !invert})
		last = m[1]
	}
	if last < len(s.text) {
		pieces = append(pieces, piece{last, len(s.text), invert})
	}

	var words []normalized
	switch behavior {
	case "Removed":
		for _, p := range pieces {
			if !p.delim {
				words = append(words, s.slice(p.start, p.end))
			}
		}
	case "MergedWithPrevious":
		start := -1
		for _, p := range pieces {
			if start < 0 {
				start = p.start
			}
			if p.delim {
				words = append(words, s.slice(start, p.end))
				start = -1
			}
		}
		if start >= 0 {
			words = append(words, s.slice(start, len(s.text)))
		}
	case "MergedWithNext":
		start := 0
		for _, p := range pieces {
			if p.delim && p.start > start {
				words = append(words, s.slice(start, p.start))
				start = p.start
			}
		}
		if start < len(s.text) {
			words = append(words, s.slice(start, len(s.text)))
		}
	case "Contiguous":
		for i := 0; i < len(pieces); {
			j := i + 1
			for j < len(pieces) && pieces[j].delim && pieces[i].delim {
				j++
			}
			words = append(words, s.slice(pieces[i].start, pieces[j-1].end))
			i = j
		}
	default: // Isolated
		for _, p := range pieces {
			words = append(words, s.slice(p.start, p.end))
		}
	}
	return words
}

// metaspace replaces spaces by the replacement character ("▁") and splits each word so it starts with it.
func (p *PreTokenizer) metaspace(s normalized) []normalized {
	replacement := p.Replacement
	if replacement == "" {
		replacement = defaultMetaspace
	}
	s = s.replace(nil, " ", replacement)
	scheme := p.PrependScheme
	if scheme == "" {
		scheme = "always"
		if !boolOr(p.AddPrefixSpace, true) {
			scheme = "never"
		}
	}
	// "first" only applies to the first section of the input, which is what we always receive.
	if scheme != "never" && !strings.HasPrefix(s.text, replacement) {
		s = s.prepend(replacement)
	}
	if !boolOr(p.Split, true) {
		return []normalized{s}
	}
	return splitMatches(s, literalMatches(s.text, replacement), "MergedWithNext", false)
}

// byteLevel splits with the GPT-2 pattern and maps every byte to its printable rune.
func (p *PreTokenizer) byteLevel(s normalized) []normalized {
	if boolOr(p.AddPrefixSpace, true) && s.text != "" && !strings.HasPrefix(s.text, " ") {
		s = s.prepend(" ")
	}
	words := []normalized{s}
	if boolOr(p.UseRegex, true) {
		words = splitMatches(s, byteLevelRegex.FindAllStringIndex(s.text, -1), "Isolated", false)
	}
	for i, w := range words {
		words[i] = toByteLevel(w)
	}
	return words
}

func toByteLevel(s normalized) normalized {
	var b builder
	for i := 0; i < len(s.text); i++ {
		b.writeRune(byteToUnicode[s.text[i]], s.align[i])
	}
	return b.result()
}

// GPT-2 byte to printable unicode mapping.
var (
	byteToUnicode [256]rune
	unicodeToByte = make(map[rune]byte, 256)
)

func init() {
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF) {
			byteToUnicode[b] = rune(b)
		} else {
			byteToUnicode[b] = rune(256 + n)
			n++
		}
		unicodeToByte[byteToUnicode[b]] = byte(b)
	}
}
