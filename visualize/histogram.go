package visualize

import (
	"fmt"
	"unicode/utf8"

	"github.com/nheengatu-lab/yrlkit/embedding"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// HistogramBins is the number of bins of the word length histogram.
const HistogramBins = 15

// WordLengths returns the length in characters (runes) of the Nheengatu text of each record.
func WordLengths(records []embedding.Record) []float64 {
	lengths := make([]float64, len(records))
	for i, r := range records {
		lengths[i] = float64(utf8.RuneCountInString(r.NheengatuText))
	}
	return lengths
}

// LengthHistogram plots the distribution of the Nheengatu word lengths, with a dashed line at the
// mean, and saves it to path. The format follows the extension (.png, .svg, .pdf).
func LengthHistogram(records []embedding.Record, path string) error {
	if len(records) == 0 {
		return errors.New("length histogram: no records")
	}
	lengths := WordLengths(records)
	mean := stat.Mean(lengths, nil)

	p := plot.New()
	p.Title.Text = "Distribuição do Tamanho das Palavras em Nheengatu (Caracteres)"
	p.X.Label.Text = "Tamanho das Palavras (em Caracteres)"
	p.Y.Label.Text = "Frequência"
	p.Add(plotter.NewGrid())

	hist, err := plotter.NewHist(plotter.Values(lengths), HistogramBins)
	if err != nil {
		return errors.Wrap(err, "length histogram")
	}
	hist.FillColor = teal
	p.Add(hist)

	maxCount := 0.0
	for _, bin := range hist.Bins {
		maxCount = max(maxCount, bin.Weight)
	}
	meanLine, err := plotter.NewLine(plotter.XYs{{X: mean, Y: 0}, {X: mean, Y: maxCount}})
	if err != nil {
		return errors.Wrap(err, "length histogram")
	}
	meanLine.Color = red
	meanLine.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	meanLine.Width = vg.Points(1.5)
	p.Add(meanLine)
	p.Legend.Add(MeanLabel(mean), meanLine)
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	klog.Infof("word length distribution saved to %s", path)
	return nil
}

// MeanLabel is the legend of the mean line.
func MeanLabel(mean float64) string {
	return fmt.Sprintf("Mean: %.1f", mean)
}
