package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/labels"
)

func bootstrapFixture(t *testing.T) (*mat.Dense, *mat.Dense, labels.Set) {
	t.Helper()
	set, err := labels.New([]string{"A", "B"})
	require.NoError(t, err)

	// 12 studies, balanced classes per label, overlapping score ranges so
	// resampled AUCs vary instead of pinning at 1.0.
	pred := mat.NewDense(12, 2, []float64{
		0.90, 0.10,
		0.80, 0.20,
		0.70, 0.45,
		0.60, 0.30,
		0.35, 0.60,
		0.20, 0.25,
		0.75, 0.85,
		0.55, 0.50,
		0.40, 0.70,
		0.30, 0.65,
		0.15, 0.35,
		0.10, 0.95,
	})
	truth := mat.NewDense(12, 2, []float64{
		1, 0,
		1, 0,
		1, 0,
		1, 0,
		1, 0,
		1, 0,
		0, 1,
		0, 1,
		0, 1,
		0, 1,
		0, 1,
		0, 1,
	})
	return pred, truth, set
}

// matEqualNaN compares matrices element-wise, treating NaN as equal to NaN.
func matEqualNaN(a, b *mat.Dense) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return false
	}
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			av, bv := a.At(i, j), b.At(i, j)
			if math.IsNaN(av) && math.IsNaN(bv) {
				continue
			}
			if av != bv {
				return false
			}
		}
	}
	return true
}

func TestBootstrap_Shape(t *testing.T) {
	pred, truth, set := bootstrapFixture(t)

	res, err := Bootstrap(pred, truth, set, Options{Iterations: 50, Seed: 7})
	require.NoError(t, err)

	rows, cols := res.Samples.Dims()
	assert.Equal(t, 50, rows)
	assert.Equal(t, set.Len(), cols)
	assert.Equal(t, 50, res.Summary.Iterations)
	assert.Equal(t, DefaultConfidence, res.Summary.Confidence)

	for j := 0; j < cols; j++ {
		if math.IsNaN(res.Summary.Mean[j]) {
			// A degenerate resample poisons the column; still no panic.
			assert.True(t, math.IsNaN(res.Summary.Lower[j]))
			assert.True(t, math.IsNaN(res.Summary.Upper[j]))
			continue
		}
		assert.LessOrEqual(t, res.Summary.Lower[j], res.Summary.Upper[j])
		assert.GreaterOrEqual(t, res.Summary.Lower[j], 0.0)
		assert.LessOrEqual(t, res.Summary.Upper[j], 1.0)
	}
}

func TestBootstrap_SeedReproducible(t *testing.T) {
	pred, truth, set := bootstrapFixture(t)
	opts := Options{Iterations: 100, Confidence: 0.9, Seed: 42}

	a, err := Bootstrap(pred, truth, set, opts)
	require.NoError(t, err)
	b, err := Bootstrap(pred, truth, set, opts)
	require.NoError(t, err)

	assert.True(t, matEqualNaN(a.Samples, b.Samples), "fixed seed must reproduce the sample table bit-for-bit")
	for j := 0; j < set.Len(); j++ {
		assert.True(t, a.Summary.Mean[j] == b.Summary.Mean[j] ||
			(math.IsNaN(a.Summary.Mean[j]) && math.IsNaN(b.Summary.Mean[j])))
	}
}

func TestBootstrap_DifferentSeedsDiffer(t *testing.T) {
	pred, truth, set := bootstrapFixture(t)

	a, err := Bootstrap(pred, truth, set, Options{Iterations: 100, Seed: 1})
	require.NoError(t, err)
	b, err := Bootstrap(pred, truth, set, Options{Iterations: 100, Seed: 2})
	require.NoError(t, err)

	assert.False(t, matEqualNaN(a.Samples, b.Samples))
}

func TestBootstrap_SingleIterationCollapses(t *testing.T) {
	pred, truth, set := bootstrapFixture(t)

	res, err := Bootstrap(pred, truth, set, Options{Iterations: 1, Seed: 3})
	require.NoError(t, err)

	rows, _ := res.Samples.Dims()
	require.Equal(t, 1, rows)

	// With one resample, mean/lower/upper all collapse onto that sample.
	for j := 0; j < set.Len(); j++ {
		sample := res.Samples.At(0, j)
		if math.IsNaN(sample) {
			assert.True(t, math.IsNaN(res.Summary.Mean[j]))
			continue
		}
		assert.Equal(t, sample, res.Summary.Mean[j])
		assert.Equal(t, sample, res.Summary.Lower[j])
		assert.Equal(t, sample, res.Summary.Upper[j])
	}
}

func TestBootstrap_NaNPropagates(t *testing.T) {
	set, err := labels.New([]string{"A", "B"})
	require.NoError(t, err)

	pred := mat.NewDense(4, 2, []float64{
		0.9, 0.2,
		0.1, 0.7,
		0.8, 0.3,
		0.3, 0.9,
	})
	// Column A is all positive: every resample yields NaN for it.
	truth := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 1,
		1, 0,
		1, 1,
	})

	res, err := Bootstrap(pred, truth, set, Options{Iterations: 20, Seed: 11})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(res.Summary.Mean[0]))
	assert.True(t, math.IsNaN(res.Summary.Lower[0]))
	assert.True(t, math.IsNaN(res.Summary.Upper[0]))
}

func TestBootstrap_OptionValidation(t *testing.T) {
	pred, truth, set := bootstrapFixture(t)

	_, err := Bootstrap(pred, truth, set, Options{Iterations: -5})
	require.Error(t, err)

	_, err = Bootstrap(pred, truth, set, Options{Confidence: 1.5})
	require.Error(t, err)

	// Zero values take defaults.
	res, err := Bootstrap(pred, truth, set, Options{Iterations: 10})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfidence, res.Summary.Confidence)
}
