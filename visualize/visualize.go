// Package visualize draws the exploratory plots of the embeddings: word length distribution, PCA
// of both languages and t-SNE clusters of the Nheengatu vectors.
package visualize

import (
	"image/color"

	"github.com/nheengatu-lab/yrlkit/embedding"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Language of a point in the PCA projection.
const (
	LangNheengatu  = "yrl"
	LangPortuguese = "pt"
)

// DefaultCategory is used for records without a category.
const DefaultCategory = "Geral"

// Point is a 2-D projection of an embedding.
type Point struct {
	X, Y  float64
	Label string

	// Group is the language (PCA) or the category (t-SNE) of the point.
	Group string
}

var (
	blue = color.NRGBA{B: 255, A: 153}
	red  = color.NRGBA{R: 255, A: 153}
	grey = color.NRGBA{R: 128, G: 128, B: 128, A: 26}
	teal = color.NRGBA{G: 128, B: 128, A: 255}
)

// stack returns the vectors as the rows of a matrix.
func stack(vectors [][]float32) (*mat.Dense, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors")
	}
	dim := len(vectors[0])
	m := mat.NewDense(len(vectors), dim, nil)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		for j, x := range v {
			m.Set(i, j, float64(x))
		}
	}
	return m, nil
}

func yrlVectors(records []embedding.Record) [][]float32 {
	vectors := make([][]float32, len(records))
	for i, r := range records {
		vectors[i] = r.VectorYrl
	}
	return vectors
}
