// Package textnorm holds the Unicode normalization and cleaning applied to Nheengatu text
// before tokenization, plus helpers to inspect strings code point by code point.
//
// Nheengatu orthography relies on nasal vowels (ã, ẽ, ĩ, õ, ũ, ỹ) and the apostrophe of the
// glottal stop (nhe'eng). The same word typed in NFD form tokenizes differently than its NFC
// form, hence everything is composed (NFC) first.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NFC returns s in the canonical composed form.
func NFC(s string) string {
	return norm.NFC.String(s)
}

// NFD returns s in the canonical decomposed form.
func NFD(s string) string {
	return norm.NFD.String(s)
}

// apostrophes folded to the ASCII apostrophe by Clean.
var apostrophes = strings.NewReplacer(
	"’", "'", // right single quotation mark
	"‘", "'", // left single quotation mark
	"ʼ", "'", // modifier letter apostrophe
	"´", "'", // acute accent
	"`", "'",
)

// Clean normalizes a word or phrase for tokenization:
//
//  1. NFC;
//  2. lowercase;
//  3. typographic apostrophes become "'";
//  4. anything that is not a letter, mark, number, "_", whitespace or "'" is removed;
//  5. whitespace runs are collapsed to one space, and the result is trimmed.
//
// Combining marks are kept, so nasalized letters without a precomposed form survive.
func Clean(s string) string {
	s = strings.ToLower(NFC(s))
	s = apostrophes.Replace(s)

	var sb strings.Builder
	sb.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = sb.Len() > 0
			continue
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsNumber(r), r == '_', r == '\'':
		default:
			continue
		}
		if pendingSpace {
			sb.WriteByte(' ')
			pendingSpace = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
