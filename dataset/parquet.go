package dataset

import (
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// RawRow is the on-disk form of a Row in the raw dataset.
type RawRow struct {
	Palavra     string `parquet:"palavra"`
	Significado string `parquet:"significado"`
	Categoria   string `parquet:"categoria"`
	Linha       int64  `parquet:"linha"`
}

// WriteParquet saves the rows of the sheet as the raw dataset.
func WriteParquet(path string, sheet *Sheet) error {
	rows := make([]RawRow, len(sheet.Rows))
	for i, r := range sheet.Rows {
		rows[i] = RawRow{Palavra: r.Word, Significado: r.Meaning, Categoria: r.Category, Linha: int64(r.Line)}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// ReadParquet loads a raw dataset written by WriteParquet.
func ReadParquet(path string) (*Sheet, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrFileNotFound, "%s", path)
	}
	rows, err := parquet.ReadFile[RawRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	sheet := &Sheet{Path: path, Columns: []string{ColumnWord, ColumnMeaning, ColumnCategory}}
	for _, r := range rows {
		sheet.Rows = append(sheet.Rows, Row{Line: int(r.Linha), Word: r.Palavra, Meaning: r.Significado, Category: r.Categoria})
	}
	return sheet, nil
}
