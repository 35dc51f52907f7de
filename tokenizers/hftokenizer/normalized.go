package hftokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// normalized is a string being transformed by normalizers and pre-tokenizers, that remembers
// for each of its bytes which byte range of the original text it came from.
type normalized struct {
	text  string
	align []span // one entry per byte of text
}

// span is a [start, end) byte range in the original text.
type span struct {
	start, end int
}

func (s span) union(o span) span {
	return span{min(s.start, o.start), max(s.end, o.end)}
}

// newNormalized wraps original text that starts at byte offset in the full input.
func newNormalized(text string, offset int) normalized {
	n := normalized{text: text, align: make([]span, len(text))}
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		for j := range size {
			n.align[i+j] = span{offset + i, offset + i + size}
		}
		i += size
	}
	return n
}

// original returns the span in the original text of the normalized bytes [start, end).
func (n normalized) original(start, end int) span {
	if start >= end || start >= len(n.align) {
		return span{}
	}
	return span{n.align[start].start, n.align[end-1].end}
}

func (n normalized) slice(start, end int) normalized {
	return normalized{text: n.text[start:end], align: n.align[start:end]}
}

// builder accumulates a transformed normalized string.
type builder struct {
	sb    strings.Builder
	align []span
}

func (b *builder) write(s string, from span) {
	b.sb.WriteString(s)
	for range len(s) {
		b.align = append(b.align, from)
	}
}

func (b *builder) writeRune(r rune, from span) {
	size, _ := b.sb.WriteRune(r)
	for range size {
		b.align = append(b.align, from)
	}
}

func (b *builder) result() normalized {
	return normalized{text: b.sb.String(), align: b.align}
}

// mapRunes replaces each rune by the output of fn, which may be empty (removal) or have many runes.
func (n normalized) mapRunes(fn func(r rune) string) normalized {
	var b builder
	for i, r := range n.text {
		b.write(fn(r), n.align[i])
	}
	return b.result()
}

// unicodeNormalize applies the normalization form segment by segment, so that composed or
// decomposed characters keep pointing to the original characters they came from.
func (n normalized) unicodeNormalize(form norm.Form) normalized {
	if form.IsNormalString(n.text) {
		return n
	}
	var b builder
	for pos := 0; pos < len(n.text); {
		next := pos + form.NextBoundaryInString(n.text[pos:], true)
		if next <= pos {
			next = len(n.text)
		}
		from := n.original(pos, next)
		for _, r := range form.String(n.text[pos:next]) {
			b.writeRune(r, from)
		}
		pos = next
	}
	return b.result()
}

// replace substitutes every match of re (or of the literal if re is nil) by content.
func (n normalized) replace(re *regexp.Regexp, literal, content string) normalized {
	var matches [][]int
	if re != nil {
		matches = re.FindAllStringIndex(n.text, -1)
	} else if literal != "" {
		for pos := 0; pos < len(n.text); {
			idx := strings.Index(n.text[pos:], literal)
			if idx < 0 {
				break
			}
			matches = append(matches, []int{pos + idx, pos + idx + len(literal)})
			pos += idx + len(literal)
		}
	}
	if len(matches) == 0 {
		return n
	}
	var b builder
	last := 0
	for _, m := range matches {
		if m[0] == m[1] {
			continue
		}
		for i := last; i < m[0]; i++ {
			b.sb.WriteByte(n.text[i])
			b.align = append(b.align, n.align[i])
		}
		b.write(content, n.original(m[0], m[1]))
		last = m[1]
	}
	for i := last; i < len(n.text); i++ {
		b.sb.WriteByte(n.text[i])
		b.align = append(b.align, n.align[i])
	}
	return b.result()
}

// prepend adds s at the start, pointing to the first character.
func (n normalized) prepend(s string) normalized {
	if n.text == "" {
		return n
	}
	var b builder
	_, size := utf8.DecodeRuneInString(n.text)
	b.write(s, n.original(0, size))
	b.sb.WriteString(n.text)
	b.align = append(b.align, n.align...)
	return b.result()
}

// strip removes leading and/or trailing white space.
func (n normalized) strip(left, right bool) normalized {
	start, end := 0, len(n.text)
	if left {
		start = len(n.text) - len(strings.TrimLeftFunc(n.text, unicode.IsSpace))
	}
	if right {
		end = len(strings.TrimRightFunc(n.text, unicode.IsSpace))
	}
	if start >= end {
		return normalized{}
	}
	return n.slice(start, end)
}
