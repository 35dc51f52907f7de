package textnorm

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/unicode/runenames"
)

// UnknownName is used for code points without a Unicode name.
const UnknownName = "<unknown>"

// CodePoint describes one rune of a string.
type CodePoint struct {
	Char string
	Code string // "U+00E7"
	Name string
}

// Inspect returns the code points of s, in order.
func Inspect(s string) []CodePoint {
	var cps []CodePoint
	for _, r := range s {
		name := runenames.Name(r)
		if name == "" {
			name = UnknownName
		}
		cps = append(cps, CodePoint{Char: string(r), Code: fmt.Sprintf("U+%04X", r), Name: name})
	}
	return cps
}

// Comparison of two strings before and after NFC normalization.
type Comparison struct {
	A, B           string
	BytesA, BytesB int
	RunesA, RunesB int
	Equal          bool
	EqualNFC       bool
	IsNFCA, IsNFCB bool
}

// Compare reports whether a and b are equal as given and once both are normalized to NFC.
func Compare(a, b string) Comparison {
	return Comparison{
		A:        a,
		B:        b,
		BytesA:   len(a),
		BytesB:   len(b),
		RunesA:   len([]rune(a)),
		RunesB:   len([]rune(b)),
		Equal:    a == b,
		EqualNFC: NFC(a) == NFC(b),
		IsNFCA:   norm.NFC.IsNormalString(a),
		IsNFCB:   norm.NFC.IsNormalString(b),
	}
}
