// Package dataset reads the Nheengatu word lists (spreadsheets with the columns "Palavra" and
// "Significado"), expands them into word/meaning pairs and writes the JSON, CSV and parquet
// artifacts of the pipeline.
package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"k8s.io/klog/v2"
)

// Required and optional column names, after header normalization.
const (
	ColumnWord     = "Palavra"
	ColumnMeaning  = "Significado"
	ColumnCategory = "Categoria"
)

var (
	// ErrFileNotFound is returned when the input file doesn't exist.
	ErrFileNotFound = errors.New("input file not found")

	// ErrMissingColumns is returned when the sheet lacks the "Palavra" or "Significado" column.
	ErrMissingColumns = errors.New("columns 'Palavra' and 'Significado' are required")
)

// Row is one line of the word list.
type Row struct {
	// Line is the spreadsheet line number: the header is line 1, the first row line 2.
	Line     int
	Word     string
	Meaning  string
	Category string
}

// Sheet is a word list loaded from a spreadsheet or from the raw parquet dataset.
type Sheet struct {
	Path    string
	Name    string
	Columns []string
	Rows    []Row
}

// Load reads a word list from path: a ".parquet" file written by WriteParquet, or a spreadsheet.
func Load(path string) (*Sheet, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return ReadParquet(path)
	}
	return ReadSheet(path, "")
}

// normalizeHeader trims and title-cases a header cell: " palavra " -> "Palavra".
func normalizeHeader(caser cases.Caser, h string) string {
	return caser.String(strings.TrimSpace(h))
}

// ReadSheet reads the word list from the named sheet of an .xlsx file, or from its first sheet
// if sheetName is empty.
//
// Rows with neither a word nor a meaning are skipped.
func ReadSheet(path, sheetName string) (*Sheet, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening spreadsheet %s", path)
	}
	defer func() { _ = f.Close() }()

	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.Errorf("spreadsheet %s has no sheets", path)
		}
		sheetName = sheets[0]
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q of %s", sheetName, path)
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrMissingColumns, "sheet %q of %s is empty", sheetName, path)
	}

	caser := cases.Title(language.Und)
	sheet := &Sheet{Path: path, Name: sheetName}
	for _, h := range rows[0] {
		sheet.Columns = append(sheet.Columns, normalizeHeader(caser, h))
	}
	wordCol := slices.Index(sheet.Columns, ColumnWord)
	meaningCol := slices.Index(sheet.Columns, ColumnMeaning)
	categoryCol := slices.Index(sheet.Columns, ColumnCategory)
	if wordCol < 0 || meaningCol < 0 {
		return nil, errors.Wrapf(ErrMissingColumns, "%s: found columns %q", path, sheet.Columns)
	}

	cell := func(row []string, col int) string {
		if col < 0 || col >= len(row) {
			return ""
		}
		return row[col]
	}
	for i, cells := range rows[1:] {
		row := Row{
			Line:     i + 2,
			Word:     cell(cells, wordCol),
			Meaning:  cell(cells, meaningCol),
			Category: strings.TrimSpace(cell(cells, categoryCol)),
		}
		if strings.TrimSpace(row.Word) == "" && strings.TrimSpace(row.Meaning) == "" {
			klog.V(2).Infof("%s: skipping empty line %d", path, row.Line)
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	klog.V(1).Infof("read %d rows from sheet %q of %s", len(sheet.Rows), sheetName, path)
	return sheet, nil
}
