package dataset

import (
	"strings"

	"github.com/nheengatu-lab/yrlkit/textnorm"
	"github.com/nheengatu-lab/yrlkit/tokenizers"
	"k8s.io/klog/v2"
)

// Tokenizer is what the dataset needs from a tokenizer: subword tokens and ids of a text, without
// the special tokens of the model. *tokenizers.Tokenizer implements it.
type Tokenizer interface {
	Tokenize(text string) tokenizers.Encoding
}

// Status values of the token report.
const (
	StatusOK    = "OK"
	StatusAlert = "ALERTA"
)

// Metadata links an entry back to its spreadsheet row.
type Metadata struct {
	RawNheengatu string `json:"raw_nheengatu"`
	SourceLine   int    `json:"source_line"`
}

// Entry is one expanded and tokenized word/meaning pair.
type Entry struct {
	ID             string   `json:"id,omitempty"`
	NheengatuText  string   `json:"nheengatu_text"`
	PortugueseText string   `json:"portuguese_text"`
	Tokens         []string `json:"tokens"`
	InputIDs       []int    `json:"input_ids"`
	HasUnknown     bool     `json:"tem_unk"`
	Category       string   `json:"categoria,omitempty"`
	Metadata       Metadata `json:"metadata"`
}

// Stats of the expansion.
type Stats struct {
	OriginalRows int `json:"original_rows"`
	ExpandedRows int `json:"expanded_rows"`
	UnkTokens    int `json:"unk_tokens"`
}

// Factor returns how many pairs each row produced on average.
func (s Stats) Factor() float64 {
	if s.OriginalRows == 0 {
		return 0
	}
	return float64(s.ExpandedRows) / float64(s.OriginalRows)
}

// BuildEntries cleans and tokenizes the pairs. The word goes through textnorm.Clean, the meaning is
// only trimmed. originalRows is the number of spreadsheet rows the pairs came from.
func BuildEntries(pairs []Pair, originalRows int, tok Tokenizer) ([]Entry, Stats) {
	stats := Stats{OriginalRows: originalRows}
	entries := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		word := textnorm.Clean(p.Word)
		enc := tok.Tokenize(word)
		entry := Entry{
			ID:             p.ID,
			NheengatuText:  word,
			PortugueseText: strings.TrimSpace(p.Meaning),
			Tokens:         nonNil(enc.Tokens),
			InputIDs:       nonNil(enc.IDs),
			HasUnknown:     enc.HasUnknown(),
			Category:       p.Category,
			Metadata:       Metadata{RawNheengatu: p.Word, SourceLine: p.SourceLine},
		}
		if entry.HasUnknown {
			stats.UnkTokens++
		}
		stats.ExpandedRows++
		klog.V(1).Infof("[%s] %-15s -> %q", status(entry.HasUnknown), word, entry.Tokens)
		entries = append(entries, entry)
	}
	return entries, stats
}

// ReportEntry is the token report of one spreadsheet row.
type ReportEntry struct {
	Original  string   `json:"original"`
	Processed string   `json:"processada"`
	Tokens    []string `json:"tokens"`
	IDs       []int    `json:"ids"`
	Meaning   string   `json:"significado"`
	Status    string   `json:"status"`
}

// ReportStats counts the rows of the token report.
type ReportStats struct {
	Success int `json:"sucesso"`
	Unk     int `json:"unk"`
	Total   int `json:"total"`
}

// SuccessRate is the percentage of rows without unknown tokens.
func (s ReportStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Success) / float64(s.Total)
}

// TokenReport tokenizes the cleaned word of every row, without expanding variants, and flags rows
// with unknown tokens.
func TokenReport(sheet *Sheet, tok Tokenizer) ([]ReportEntry, ReportStats) {
	var stats ReportStats
	report := make([]ReportEntry, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		processed := textnorm.Clean(row.Word)
		enc := tok.Tokenize(processed)
		entry := ReportEntry{
			Original:  row.Word,
			Processed: processed,
			Tokens:    nonNil(enc.Tokens),
			IDs:       nonNil(enc.IDs),
			Meaning:   row.Meaning,
			Status:    status(enc.HasUnknown()),
		}
		if enc.HasUnknown() {
			stats.Unk++
		} else {
			stats.Success++
		}
		stats.Total++
		report = append(report, entry)
	}
	return report, stats
}

func status(hasUnknown bool) string {
	if hasUnknown {
		return StatusAlert
	}
	return StatusOK
}

// nonNil makes empty lists serialize as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
