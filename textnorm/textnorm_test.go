package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNFC(t *testing.T) {
	decomposed := "maçã"
	assert.Equal(t, "maçã", NFC(decomposed))
	assert.Equal(t, decomposed, NFD("maçã"))
	assert.Equal(t, "maçã", NFC(NFD("maçã")))
	// ĩ has a precomposed form.
	assert.Equal(t, "mirĩ", NFC("mirĩ"))
}

func TestClean(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"Nhe'eng", "nhe'eng"},
		{"NHE’ENGATU!", "nhe'engatu"},
		{"  ara   puranga. ", "ara puranga"},
		{"Yauaretê (onça)", "yauaretê onça"},
		{"maçã", "maçã"},
		{"pira-pitinga", "pirapitinga"},
		{"kaá\tmirĩ\n", "kaá mirĩ"},
		{"tupana_1", "tupana_1"},
		{"g\u0303", "g\u0303"},
		{"...", ""},
		{"", ""},
	} {
		assert.Equal(t, tc.want, Clean(tc.in), "Clean(%q)", tc.in)
	}
}

// Typographic apostrophes are folded, not stripped: the glottal stop in "nhe'eng" must survive.
func TestCleanFoldsApostrophes(t *testing.T) {
	assert.Equal(t, "nhe'eng", Clean("nhe\u2019eng"))
	assert.Equal(t, "nhe'eng", Clean("nhe\u2018eng"))
	assert.Equal(t, "nhe'eng", Clean("nhe\u02bceng"))
	assert.Equal(t, "nhe'eng", Clean("nhe\u00b4eng"))
	assert.Equal(t, "nhe'eng", Clean("nhe`eng"))
	assert.Equal(t, Clean("nhe'eng"), Clean("NHE\u2019ENG"))
	// g with tilde has no precomposed form: the combining mark is kept.
	assert.Equal(t, "g\u0303", Clean("G\u0303"))
}

func TestInspect(t *testing.T) {
	cps := Inspect("\u00e7\u0303\U000E0100")
	require.Len(t, cps, 3)
	assert.Equal(t, CodePoint{Char: "ç", Code: "U+00E7", Name: "LATIN SMALL LETTER C WITH CEDILLA"}, cps[0])
	assert.Equal(t, "U+0303", cps[1].Code)
	assert.Equal(t, "COMBINING TILDE", cps[1].Name)
	assert.Equal(t, "U+E0100", cps[2].Code)

	cps = Inspect("\u0378")
	require.Len(t, cps, 1)
	assert.Equal(t, UnknownName, cps[0].Name)
	assert.Empty(t, Inspect(""))
}

func TestCompare(t *testing.T) {
	c := Compare("ma\u00e7\u00e3", "mac\u0327a\u0303")
	assert.False(t, c.Equal)
	assert.True(t, c.EqualNFC)
	assert.Equal(t, 6, c.BytesA)
	assert.Equal(t, 8, c.BytesB)
	assert.Equal(t, 4, c.RunesA)
	assert.Equal(t, 6, c.RunesB)
	assert.True(t, c.IsNFCA)
	assert.False(t, c.IsNFCB)
}
