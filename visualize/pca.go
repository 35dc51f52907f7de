package visualize

import (
	"image/color"

	"github.com/nheengatu-lab/yrlkit/embedding"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"k8s.io/klog/v2"
)

// Project2D projects the rows of m on their first two principal components.
func Project2D(m mat.Matrix) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows < 2 || cols < 2 {
		return nil, errors.Errorf("PCA needs at least 2 rows and 2 columns, got %dx%d", rows, cols)
	}
	var pc stat.PC
	if !pc.PrincipalComponents(m, nil) {
		return nil, errors.New("PCA: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	centered := mat.DenseCopyOf(m)
	for j := 0; j < cols; j++ {
		mean := stat.Mean(mat.Col(nil, j, m), nil)
		for i := 0; i < rows; i++ {
			centered.Set(i, j, centered.At(i, j)-mean)
		}
	}
	var proj mat.Dense
	proj.Mul(centered, vecs.Slice(0, cols, 0, 2))
	return &proj, nil
}

// PCA projects the Nheengatu and the Portuguese vectors together: the first len(records) points
// are the Nheengatu ones, the following the Portuguese ones, in the same order.
func PCA(records []embedding.Record) ([]Point, error) {
	if len(records) < 2 {
		return nil, errors.Errorf("PCA needs at least 2 records, got %d", len(records))
	}
	vectors := yrlVectors(records)
	for _, r := range records {
		vectors = append(vectors, r.VectorPt)
	}
	m, err := stack(vectors)
	if err != nil {
		return nil, errors.WithMessage(err, "PCA: both languages must have the same dimension")
	}
	proj, err := Project2D(m)
	if err != nil {
		return nil, err
	}
	n := len(records)
	points := make([]Point, 2*n)
	for i, r := range records {
		points[i] = Point{X: proj.At(i, 0), Y: proj.At(i, 1), Label: r.NheengatuText, Group: LangNheengatu}
		points[n+i] = Point{X: proj.At(n+i, 0), Y: proj.At(n+i, 1), Label: r.PortugueseText, Group: LangPortuguese}
	}
	return points, nil
}

// PlotPCA draws the points returned by PCA: Nheengatu in blue, Portuguese in red and a grey line
// between the two points of each pair.
func PlotPCA(points []Point, path string) error {
	if len(points) == 0 || len(points)%2 != 0 {
		return errors.Errorf("PCA plot expects pairs of points, got %d", len(points))
	}
	n := len(points) / 2
	p := plot.New()
	p.Title.Text = "PCA: Espaços Vetoriais Nheengatu vs Português (Pré-Alinhamento)"
	p.X.Label.Text = "PC1"
	p.Y.Label.Text = "PC2"
	p.Add(plotter.NewGrid())

	for i := 0; i < n; i++ {
		a, b := points[i], points[n+i]
		line, err := plotter.NewLine(plotter.XYs{{X: a.X, Y: a.Y}, {X: b.X, Y: b.Y}})
		if err != nil {
			return errors.Wrap(err, "PCA plot")
		}
		line.Color = grey
		p.Add(line)
	}
	for _, group := range []struct {
		points []Point
		color  color.Color
		legend string
	}{
		{points[:n], blue, "Nheengatu"},
		{points[n:], red, "Português"},
	} {
		scatter, err := plotter.NewScatter(xys(group.points))
		if err != nil {
			return errors.Wrap(err, "PCA plot")
		}
		scatter.GlyphStyle = draw.GlyphStyle{Color: group.color, Radius: vg.Points(3), Shape: draw.CircleGlyph{}}
		p.Add(scatter)
		p.Legend.Add(group.legend, scatter)
	}

	if err := p.Save(12*vg.Inch, 8*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	klog.Infof("PCA plot saved to %s", path)
	return nil
}

func xys(points []Point) plotter.XYs {
	out := make(plotter.XYs, len(points))
	for i, pt := range points {
		out[i].X, out[i].Y = pt.X, pt.Y
	}
	return out
}
