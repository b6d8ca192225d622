// Package matx provides the small set of matrix operations the ensemble
// and evaluation layers share: element-wise averaging across checkpoints,
// softmax folding of logit pairs, and shape validation helpers.
package matx

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Mean returns the element-wise mean of the given matrices. All matrices
// must share the same dimensions. An empty input is rejected rather than
// producing a NaN-filled result.
func Mean(ms []*mat.Dense) (*mat.Dense, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("cannot average an empty set of matrices")
	}

	rows, cols := ms[0].Dims()
	out := mat.NewDense(rows, cols, nil)
	for i, m := range ms {
		r, c := m.Dims()
		if r != rows || c != cols {
			return nil, fmt.Errorf("matrix %d has dimensions %dx%d, want %dx%d", i, r, c, rows, cols)
		}
		out.Add(out, m)
	}
	out.Scale(1/float64(len(ms)), out)

	return out, nil
}

// SoftmaxPair folds a positive/negative logit pair into the probability of
// the positive side. Shift by the max keeps the exponentials finite for
// large-magnitude scores.
func SoftmaxPair(pos, neg float64) float64 {
	m := math.Max(pos, neg)
	ep := math.Exp(pos - m)
	en := math.Exp(neg - m)
	return ep / (ep + en)
}

// FromRows builds a dense matrix from row-major nested slices, rejecting
// ragged input.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("row 0 has no columns")
	}

	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}

	return mat.NewDense(len(rows), cols, data), nil
}

// CheckShape validates that m has the expected dimensions. A negative
// expectation skips that axis.
func CheckShape(m *mat.Dense, rows, cols int, what string) error {
	r, c := m.Dims()
	if rows >= 0 && r != rows {
		return fmt.Errorf("%s has %d rows, want %d", what, r, rows)
	}
	if cols >= 0 && c != cols {
		return fmt.Errorf("%s has %d columns, want %d", what, c, cols)
	}
	return nil
}
