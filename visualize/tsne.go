package visualize

import (
	"slices"

	"github.com/danaugrs/go-tsne/tsne"
	"github.com/nheengatu-lab/yrlkit/embedding"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"k8s.io/klog/v2"
)

// MinTSNERecords is the smallest number of records TSNE accepts.
const MinTSNERecords = 4

// TSNEParams configures the t-SNE optimization.
type TSNEParams struct {
	Perplexity   float64 `yaml:"perplexity"`
	LearningRate float64 `yaml:"learning_rate"`
	Iterations   int     `yaml:"iterations"`
}

// DefaultTSNEParams are tuned for word lists of about a hundred entries.
var DefaultTSNEParams = TSNEParams{Perplexity: 15, LearningRate: 200, Iterations: 500}

// EffectivePerplexity bounds the perplexity to (n-1)/3 for n points.
func (p TSNEParams) EffectivePerplexity(n int) float64 {
	return min(p.Perplexity, float64(n-1)/3)
}

// TSNE embeds the Nheengatu vectors in 2-D. Points are grouped by the record category, or
// DefaultCategory.
//
// The result is rotated onto its principal axes, so that runs, which start from a random state,
// produce plots with a comparable orientation.
func TSNE(records []embedding.Record, params TSNEParams) ([]Point, error) {
	if len(records) < MinTSNERecords {
		return nil, errors.Errorf("t-SNE needs at least %d records, got %d", MinTSNERecords, len(records))
	}
	m, err := stack(yrlVectors(records))
	if err != nil {
		return nil, errors.WithMessage(err, "t-SNE")
	}
	perplexity := params.EffectivePerplexity(len(records))
	if perplexity != params.Perplexity {
		klog.Warningf("t-SNE perplexity lowered from %g to %g for %d points", params.Perplexity, perplexity, len(records))
	}
	t := tsne.NewTSNE(2, perplexity, params.LearningRate, params.Iterations, false)
	t.EmbedData(m, nil)

	proj, err := Project2D(t.Y)
	if err != nil {
		return nil, errors.WithMessage(err, "t-SNE")
	}
	points := make([]Point, len(records))
	for i, r := range records {
		category := r.Category
		if category == "" {
			category = DefaultCategory
		}
		points[i] = Point{X: proj.At(i, 0), Y: proj.At(i, 1), Label: r.NheengatuText, Group: category}
	}
	return points, nil
}

// PlotTSNE draws the t-SNE points coloured by category, with the label of every other point.
func PlotTSNE(points []Point, path string) error {
	if len(points) == 0 {
		return errors.New("t-SNE plot: no points")
	}
	p := plot.New()
	p.Title.Text = "t-SNE: Mapa Semântico do Nheengatu (Clusters)"
	p.Add(plotter.NewGrid())

	var categories []string
	byCategory := make(map[string][]Point)
	for _, pt := range points {
		if _, ok := byCategory[pt.Group]; !ok {
			categories = append(categories, pt.Group)
		}
		byCategory[pt.Group] = append(byCategory[pt.Group], pt)
	}
	slices.Sort(categories)
	for i, category := range categories {
		scatter, err := plotter.NewScatter(xys(byCategory[category]))
		if err != nil {
			return errors.Wrap(err, "t-SNE plot")
		}
		scatter.GlyphStyle = draw.GlyphStyle{Color: plotutil.Color(i), Radius: vg.Points(5), Shape: draw.CircleGlyph{}}
		p.Add(scatter)
		p.Legend.Add(category, scatter)
	}

	var annotated plotter.XYLabels
	for i, pt := range points {
		if i%2 == 0 {
			annotated.XYs = append(annotated.XYs, plotter.XY{X: pt.X, Y: pt.Y})
			annotated.Labels = append(annotated.Labels, pt.Label)
		}
	}
	labels, err := plotter.NewLabels(annotated)
	if err != nil {
		return errors.Wrap(err, "t-SNE plot")
	}
	labels.Offset = vg.Point{X: vg.Points(4), Y: vg.Points(4)}
	p.Add(labels)

	if err := p.Save(14*vg.Inch, 10*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	klog.Infof("t-SNE plot saved to %s", path)
	return nil
}
