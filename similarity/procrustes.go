package similarity

import (
	"github.com/nheengatu-lab/yrlkit/embedding"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Procrustes returns the orthogonal matrix W minimizing ‖XW − Y‖, where the rows of X and Y are
// paired vectors: W = U·Vᵀ from the singular value decomposition XᵀY = U·Σ·Vᵀ.
func Procrustes(x, y *mat.Dense) (*mat.Dense, error) {
	rx, cx := x.Dims()
	ry, cy := y.Dims()
	if rx != ry || cx != cy {
		return nil, errors.Errorf("procrustes needs matrices of the same shape, got %dx%d and %dx%d", rx, cx, ry, cy)
	}
	var m mat.Dense
	m.Mul(x.T(), y)
	var svd mat.SVD
	if !svd.Factorize(&m, mat.SVDThin) {
		return nil, errors.New("procrustes: SVD failed to converge")
	}
	var u, v, w mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	w.Mul(&u, v.T())
	return &w, nil
}

// Vectors stacks the Nheengatu and the Portuguese vectors of the records as the rows of two
// matrices.
func Vectors(records []embedding.Record) (yrl, pt *mat.Dense, err error) {
	if len(records) == 0 {
		return nil, nil, ErrNoResults
	}
	dimYrl, dimPt := len(records[0].VectorYrl), len(records[0].VectorPt)
	yrl = mat.NewDense(len(records), dimYrl, nil)
	pt = mat.NewDense(len(records), dimPt, nil)
	for i, r := range records {
		if len(r.VectorYrl) != dimYrl || len(r.VectorPt) != dimPt {
			return nil, nil, errors.Errorf("record %d (%q) has vectors of dimensions %d/%d, expected %d/%d",
				i, r.NheengatuText, len(r.VectorYrl), len(r.VectorPt), dimYrl, dimPt)
		}
		yrl.SetRow(i, toFloat64(r.VectorYrl))
		pt.SetRow(i, toFloat64(r.VectorPt))
	}
	return yrl, pt, nil
}

// FitProjection learns the orthogonal projection of the Nheengatu vectors onto the Portuguese ones.
func FitProjection(records []embedding.Record) (*mat.Dense, error) {
	yrl, pt, err := Vectors(records)
	if err != nil {
		return nil, err
	}
	return Procrustes(yrl, pt)
}

// ApplyProjection returns copies of the records with the Nheengatu vectors multiplied by w.
func ApplyProjection(records []embedding.Record, w *mat.Dense) ([]embedding.Record, error) {
	rows, cols := w.Dims()
	projected := make([]embedding.Record, len(records))
	for i, r := range records {
		if len(r.VectorYrl) != rows {
			return nil, errors.Errorf("record %d (%q) has dimension %d, projection expects %d", i, r.NheengatuText, len(r.VectorYrl), rows)
		}
		var out mat.VecDense
		out.MulVec(w.T(), mat.NewVecDense(rows, toFloat64(r.VectorYrl)))
		vec := make([]float32, cols)
		for j := range vec {
			vec[j] = float32(out.AtVec(j))
		}
		projected[i] = r
		projected[i].VectorYrl = vec
	}
	return projected, nil
}

// ProjectionReport compares the mean similarity before and after the Procrustes projection.
type ProjectionReport struct {
	Before, After float64
	Projection    *mat.Dense
}

// EvaluateProjection fits the projection on the records and measures its effect on them.
func EvaluateProjection(records []embedding.Record) (*ProjectionReport, error) {
	before, err := MeanSimilarity(records)
	if err != nil {
		return nil, err
	}
	w, err := FitProjection(records)
	if err != nil {
		return nil, err
	}
	projected, err := ApplyProjection(records, w)
	if err != nil {
		return nil, err
	}
	after, err := MeanSimilarity(projected)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("procrustes projection: mean similarity %.4f -> %.4f", before, after)
	return &ProjectionReport{Before: before, After: after, Projection: w}, nil
}
