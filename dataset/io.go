package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// utf8BOM makes spreadsheet programs detect the encoding of the CSV files.
const utf8BOM = "\ufeff"

// WriteJSON writes v to path as indented JSON, without escaping non-ASCII or HTML characters.
func WriteJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrFileNotFound, "%s", path)
		}
		return errors.Wrapf(err, "reading %s", path)
	}
	if err := json.Unmarshal(contents, v); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	return nil
}

// ReadEntries loads the expanded dataset written by the augment step.
func ReadEntries(path string) ([]Entry, error) {
	var entries []Entry
	if err := ReadJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CSVWriter writes ";" separated UTF-8 files with a BOM, the format the spreadsheets of the
// project open directly.
type CSVWriter struct {
	f *os.File
	*csv.Writer
}

// CreateCSV creates the file at path and writes the BOM and the header.
func CreateCSV(path string, header ...string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	if _, err := f.WriteString(utf8BOM); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "writing %s", path)
	}
	w := &CSVWriter{f: f, Writer: csv.NewWriter(f)}
	w.Comma = ';'
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "writing %s", path)
	}
	return w, nil
}

// Close flushes the rows and closes the file.
func (w *CSVWriter) Close() error {
	w.Flush()
	if err := w.Error(); err != nil {
		_ = w.f.Close()
		return errors.Wrapf(err, "writing %s", w.f.Name())
	}
	return errors.Wrapf(w.f.Close(), "closing %s", w.f.Name())
}

// WriteEntriesCSV writes the human-readable table of the expanded dataset: the cleaned word, the
// meaning, the unknown token flag and the raw spreadsheet variant.
func WriteEntriesCSV(path string, entries []Entry) error {
	w, err := CreateCSV(path, "nheengatu_text", "portuguese_text", "tem_unk", "raw_original")
	if err != nil {
		return err
	}
	for _, e := range entries {
		unk := "False"
		if e.HasUnknown {
			unk = "True"
		}
		if err := w.Write([]string{e.NheengatuText, e.PortugueseText, unk, e.Metadata.RawNheengatu}); err != nil {
			_ = w.Close()
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return w.Close()
}
