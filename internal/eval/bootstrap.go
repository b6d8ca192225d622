package eval

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cxr-zeroshot/internal/labels"
)

const (
	// DefaultIterations is the number of bootstrap resamples.
	DefaultIterations = 1000
	// DefaultConfidence is the default interval coverage.
	DefaultConfidence = 0.95
)

// Options controls a bootstrap run. Zero-valued Iterations and Confidence
// fall back to the package defaults; Seed is used as given so runs are
// reproducible for any fixed value.
type Options struct {
	Iterations int
	Confidence float64
	Seed       int64
}

// Summary condenses the resampled AUC distribution into mean and empirical
// percentile bounds per label. A label whose samples contain NaN (from
// single-class resamples) reports NaN throughout rather than failing.
type Summary struct {
	Labels     []string
	Mean       []float64
	Lower      []float64
	Upper      []float64
	Confidence float64
	Iterations int
}

// BootstrapResult carries the full per-iteration sample table alongside
// its summary.
type BootstrapResult struct {
	// Samples has one row per bootstrap iteration and one column per label.
	Samples *mat.Dense
	Summary Summary
}

// Bootstrap estimates confidence intervals for per-label AUC by resampling
// study rows with replacement and re-evaluating each resample.
func Bootstrap(pred, truth *mat.Dense, set labels.Set, opts Options) (*BootstrapResult, error) {
	if err := validateDims(pred, truth, set); err != nil {
		return nil, err
	}

	iterations := opts.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations < 0 {
		return nil, fmt.Errorf("bootstrap iterations must be positive, got %d", iterations)
	}
	confidence := opts.Confidence
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, fmt.Errorf("confidence must be in (0, 1), got %f", confidence)
	}

	rows, _ := pred.Dims()
	cols := set.Len()
	rng := rand.New(rand.NewSource(opts.Seed))

	log.Info().
		Int("iterations", iterations).
		Float64("confidence", confidence).
		Int64("seed", opts.Seed).
		Int("rows", rows).
		Msg("Starting bootstrap")

	samples := mat.NewDense(iterations, cols, nil)
	subPred := mat.NewDense(rows, cols, nil)
	subTruth := mat.NewDense(rows, cols, nil)
	for it := 0; it < iterations; it++ {
		for i := 0; i < rows; i++ {
			src := rng.Intn(rows)
			subPred.SetRow(i, pred.RawRowView(src))
			subTruth.SetRow(i, truth.RawRowView(src))
		}

		res, err := Evaluate(subPred, subTruth, set)
		if err != nil {
			return nil, fmt.Errorf("bootstrap iteration %d: %w", it, err)
		}
		samples.SetRow(it, res.AUC)
	}

	summary := summarize(samples, set, confidence)
	summary.Iterations = iterations

	return &BootstrapResult{Samples: samples, Summary: summary}, nil
}

// summarize reduces the sample table to mean/lower/upper rows using the
// percentile method.
func summarize(samples *mat.Dense, set labels.Set, confidence float64) Summary {
	iterations, cols := samples.Dims()
	alpha := 1 - confidence

	s := Summary{
		Labels:     set.Names(),
		Mean:       make([]float64, cols),
		Lower:      make([]float64, cols),
		Upper:      make([]float64, cols),
		Confidence: confidence,
	}

	col := make([]float64, iterations)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, samples)

		if hasNaN(col) {
			s.Mean[j] = math.NaN()
			s.Lower[j] = math.NaN()
			s.Upper[j] = math.NaN()
			continue
		}

		s.Mean[j] = stat.Mean(col, nil)

		sorted := make([]float64, iterations)
		copy(sorted, col)
		sort.Float64s(sorted)
		s.Lower[j] = stat.Quantile(alpha/2, stat.Empirical, sorted, nil)
		s.Upper[j] = stat.Quantile(1-alpha/2, stat.Empirical, sorted, nil)
	}

	return s
}

func hasNaN(vs []float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
