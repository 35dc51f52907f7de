package embedding

import (
	"context"

	"github.com/nheengatu-lab/yrlkit/dataset"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNoVector is returned when a record lacks one of its two vectors.
var ErrNoVector = errors.New("record without embedding vector")

// Record holds the Nheengatu and Portuguese embeddings of a dataset entry.
type Record struct {
	NheengatuText  string           `json:"nheengatu_text"`
	PortugueseText string           `json:"portuguese_text"`
	Category       string           `json:"categoria,omitempty"`
	Metadata       dataset.Metadata `json:"metadata"`
	VectorYrl      []float32        `json:"vetor_yrl"`
	VectorPt       []float32        `json:"vetor_pt"`
}

// ProgressEvery is the number of entries between progress log lines of Run.
const ProgressEvery = 10

// Run extracts the embeddings of every entry: its Nheengatu text with the yrl extractor and its
// Portuguese text with the pt extractor. Each text is its own context.
func Run(ctx context.Context, entries []dataset.Entry, yrl, pt *Extractor) ([]Record, error) {
	records := make([]Record, 0, len(entries))
	for i, entry := range entries {
		if i%ProgressEvery == 0 {
			klog.Infof("processing item %d/%d...", i, len(entries))
		}
		vecYrl, err := yrl.WordEmbedding(ctx, entry.NheengatuText, entry.NheengatuText)
		if err != nil {
			return nil, errors.WithMessagef(err, "entry %d (line %d)", i, entry.Metadata.SourceLine)
		}
		vecPt, err := pt.WordEmbedding(ctx, entry.PortugueseText, entry.PortugueseText)
		if err != nil {
			return nil, errors.WithMessagef(err, "entry %d (line %d)", i, entry.Metadata.SourceLine)
		}
		records = append(records, Record{
			NheengatuText:  entry.NheengatuText,
			PortugueseText: entry.PortugueseText,
			Category:       entry.Category,
			Metadata:       entry.Metadata,
			VectorYrl:      vecYrl,
			VectorPt:       vecPt,
		})
	}
	return records, nil
}

// WriteRecords saves the records as indented JSON.
func WriteRecords(path string, records []Record) error {
	return dataset.WriteJSON(path, records)
}

// ReadRecords loads records written by WriteRecords. Every record must carry both vectors.
func ReadRecords(path string) ([]Record, error) {
	var records []Record
	if err := dataset.ReadJSON(path, &records); err != nil {
		return nil, err
	}
	for i, r := range records {
		if len(r.VectorYrl) == 0 || len(r.VectorPt) == 0 {
			return nil, errors.Wrapf(ErrNoVector, "%s: record %d (%q)", path, i, r.NheengatuText)
		}
	}
	return records, nil
}
