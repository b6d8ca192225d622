package matx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMean_SingleIsIdentity(t *testing.T) {
	p := mat.NewDense(2, 3, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})

	got, err := Mean([]*mat.Dense{p})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(p, got, 1e-12), "single-matrix mean must equal the input")
}

func TestMean_OrderIndependent(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{5, 6, 7, 8})
	c := mat.NewDense(2, 2, []float64{0, 0, 1, 1})

	fwd, err := Mean([]*mat.Dense{a, b, c})
	require.NoError(t, err)
	rev, err := Mean([]*mat.Dense{c, b, a})
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(fwd, rev, 1e-12))
	assert.InDelta(t, 2.0, fwd.At(0, 0), 1e-12)
	assert.InDelta(t, 13.0/3.0, fwd.At(1, 1), 1e-12)
}

func TestMean_Empty(t *testing.T) {
	_, err := Mean(nil)
	require.Error(t, err, "empty input must be rejected, not averaged into NaN")
}

func TestMean_ShapeMismatch(t *testing.T) {
	a := mat.NewDense(2, 2, nil)
	b := mat.NewDense(3, 2, nil)

	_, err := Mean([]*mat.Dense{a, b})
	require.Error(t, err)
}

func TestSoftmaxPair(t *testing.T) {
	assert.InDelta(t, 0.5, SoftmaxPair(0, 0), 1e-12)
	assert.InDelta(t, 1.0/(1.0+math.Exp(-2)), SoftmaxPair(1, -1), 1e-12)

	// Large logits must not overflow to NaN.
	p := SoftmaxPair(1000, -1000)
	assert.False(t, math.IsNaN(p))
	assert.InDelta(t, 1.0, p, 1e-12)
}

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 3.0, m.At(1, 0))

	_, err = FromRows([][]float64{{1, 2}, {3}})
	require.Error(t, err, "ragged rows must be rejected")

	_, err = FromRows(nil)
	require.Error(t, err)
}
