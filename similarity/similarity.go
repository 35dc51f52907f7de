// Package similarity measures how well the Nheengatu and Portuguese embeddings of a pair agree:
// cosine similarity per pair, summary statistics and a diagnosis of the cross-lingual alignment.
package similarity

import (
	"math"
	"strconv"

	"github.com/nheengatu-lab/yrlkit/dataset"
	"github.com/nheengatu-lab/yrlkit/embedding"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoResults is returned when there is nothing to analyze.
var ErrNoResults = errors.New("no similarity results to analyze")

// NotAvailable fills the texts and source of pairs without a value. Records read back from JSON
// don't tell a missing key from an empty string, so both are reported as NotAvailable.
const NotAvailable = "N/A"

// Cosine returns the cosine similarity of a and b, or 0 if either has norm 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Errorf("vectors of different dimensions: %d and %d", len(a), len(b))
	}
	x, y := toFloat64(a), toFloat64(b)
	normX, normY := floats.Norm(x, 2), floats.Norm(y, 2)
	if normX == 0 || normY == 0 {
		return 0, nil
	}
	return floats.Dot(x, y) / (normX * normY), nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Row is the similarity of one record.
type Row struct {
	Nheengatu  string
	Portuguese string
	Source     string
	Similarity float64
}

// Compute returns the cosine similarity of the two vectors of every record.
func Compute(records []embedding.Record) ([]Row, error) {
	rows := make([]Row, len(records))
	for i, r := range records {
		sim, err := Cosine(r.VectorYrl, r.VectorPt)
		if err != nil {
			return nil, errors.WithMessagef(err, "record %d (%q)", i, r.NheengatuText)
		}
		rows[i] = Row{
			Nheengatu:  orNotAvailable(r.NheengatuText),
			Portuguese: orNotAvailable(r.PortugueseText),
			Source:     orNotAvailable(r.Metadata.RawNheengatu),
			Similarity: sim,
		}
	}
	return rows, nil
}

func orNotAvailable(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

// Thresholds used by Analyze.
type Thresholds struct {
	// High and Low bound the pairs counted as high and low similarity (strictly above / below).
	High, Low float64

	// Strong and Moderate are compared with the mean similarity to diagnose the alignment.
	Strong, Moderate float64
}

// DefaultThresholds are the ones used in the project reports.
var DefaultThresholds = Thresholds{High: 0.5, Low: 0.2, Strong: 0.5, Moderate: 0.3}

// Diagnosis of the cross-lingual alignment.
type Diagnosis int

const (
	Critical Diagnosis = iota
	Moderate
	Strong
)

func (d Diagnosis) String() string {
	switch d {
	case Strong:
		return "strong"
	case Moderate:
		return "moderate"
	case Critical:
		return "critical"
	}
	return "Diagnosis(" + strconv.Itoa(int(d)) + ")"
}

// Summary of a set of similarity rows.
type Summary struct {
	Total          int
	Mean, Max, Min float64
	Best, Worst    Row
	High, Low      int
	Thresholds     Thresholds
	Diagnosis      Diagnosis
}

// HighPercent is the percentage of pairs above the high threshold.
func (s Summary) HighPercent() float64 {
	return 100 * float64(s.High) / float64(s.Total)
}

// LowPercent is the percentage of pairs below the low threshold.
func (s Summary) LowPercent() float64 {
	return 100 * float64(s.Low) / float64(s.Total)
}

// Analyze summarizes the rows. Best and Worst are the first rows with the maximum and minimum
// similarity.
func Analyze(rows []Row, th Thresholds) (Summary, error) {
	if len(rows) == 0 {
		return Summary{}, ErrNoResults
	}
	values := make([]float64, len(rows))
	s := Summary{Total: len(rows), Thresholds: th, Max: math.Inf(-1), Min: math.Inf(1)}
	for i, r := range rows {
		values[i] = r.Similarity
		if r.Similarity > s.Max {
			s.Max, s.Best = r.Similarity, r
		}
		if r.Similarity < s.Min {
			s.Min, s.Worst = r.Similarity, r
		}
		if r.Similarity > th.High {
			s.High++
		}
		if r.Similarity < th.Low {
			s.Low++
		}
	}
	s.Mean = stat.Mean(values, nil)
	switch {
	case s.Mean > th.Strong:
		s.Diagnosis = Strong
	case s.Mean > th.Moderate:
		s.Diagnosis = Moderate
	default:
		s.Diagnosis = Critical
	}
	return s, nil
}

// MeanSimilarity returns the mean cosine similarity of the records.
func MeanSimilarity(records []embedding.Record) (float64, error) {
	rows, err := Compute(records)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrNoResults
	}
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Similarity
	}
	return stat.Mean(values, nil), nil
}

// WriteCSV writes the rows with the header "Nheengatu;Portugues;Fonte;Similaridade" and the
// similarity with 4 decimals.
func WriteCSV(path string, rows []Row) error {
	w, err := dataset.CreateCSV(path, "Nheengatu", "Portugues", "Fonte", "Similaridade")
	if err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{r.Nheengatu, r.Portuguese, r.Source, strconv.FormatFloat(r.Similarity, 'f', 4, 64)}
		if err := w.Write(record); err != nil {
			_ = w.Close()
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return w.Close()
}
