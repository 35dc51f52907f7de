package dataset

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// variantSeparators splits cells listing several variants or meanings: "pirá; pira, pirá-una".
var variantSeparators = regexp.MustCompile(`[;,/\n]\s*|,\s+`)

// entryNamespace seeds the deterministic ids of the expanded pairs.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/nheengatu-lab/yrlkit/dataset"))

// SplitVariants splits a cell on ";", ",", "/" and line breaks, trimming each item and dropping
// the empty ones.
func SplitVariants(s string) []string {
	var items []string
	for _, item := range variantSeparators.Split(s, -1) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Pair is one (word variant, meaning) combination of a row.
type Pair struct {
	ID         string
	Word       string
	Meaning    string
	Category   string
	SourceLine int
}

// Expand returns the cartesian product of the word variants and the meanings of every row, in
// row order, variants first.
func Expand(sheet *Sheet) []Pair {
	var pairs []Pair
	for _, row := range sheet.Rows {
		meanings := SplitVariants(row.Meaning)
		for _, word := range SplitVariants(row.Word) {
			for _, meaning := range meanings {
				pairs = append(pairs, Pair{
					ID:         pairID(row.Line, word, meaning),
					Word:       word,
					Meaning:    meaning,
					Category:   row.Category,
					SourceLine: row.Line,
				})
			}
		}
	}
	return pairs
}

func pairID(line int, word, meaning string) string {
	key := strconv.Itoa(line) + "\x00" + word + "\x00" + meaning
	return uuid.NewSHA1(entryNamespace, []byte(key)).String()
}
