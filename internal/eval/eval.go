// Package eval computes per-label AUC for ensembled predictions and
// bootstrap confidence intervals around those point estimates.
//
// AUC is the area under the ROC curve, equivalent to the
// Wilcoxon-Mann-Whitney statistic: the probability that a randomly chosen
// positive study scores above a randomly chosen negative one. A label whose
// ground-truth column contains a single class has no defined AUC and
// reports NaN instead of failing the run.
package eval

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cxr-zeroshot/internal/labels"
)

// Result holds one AUC point estimate per label.
type Result struct {
	Labels []string
	AUC    []float64
}

// Evaluate computes per-label AUC for a prediction matrix against its
// aligned ground truth. Dimension mismatches fail fast with an explicit
// message since a malformed prediction array is the common failure mode at
// this boundary.
func Evaluate(pred, truth *mat.Dense, set labels.Set) (Result, error) {
	if err := validateDims(pred, truth, set); err != nil {
		return Result{}, err
	}

	rows, _ := pred.Dims()
	aucs := make([]float64, set.Len())
	scores := make([]float64, rows)
	actual := make([]float64, rows)
	for j := 0; j < set.Len(); j++ {
		mat.Col(scores, j, pred)
		mat.Col(actual, j, truth)
		aucs[j] = auc(scores, actual)
	}

	return Result{Labels: set.Names(), AUC: aucs}, nil
}

// validateDims checks prediction/truth/label alignment.
func validateDims(pred, truth *mat.Dense, set labels.Set) error {
	pr, pc := pred.Dims()
	tr, tc := truth.Dims()

	if pc != set.Len() {
		return fmt.Errorf("prediction matrix has %d columns but the label set has %d labels", pc, set.Len())
	}
	if pr != tr || pc != tc {
		return fmt.Errorf("prediction matrix is %dx%d but ground truth is %dx%d", pr, pc, tr, tc)
	}
	if pr == 0 {
		return fmt.Errorf("prediction matrix has no rows")
	}
	return nil
}

// auc computes the area under the ROC curve for one label column via
// trapezoidal integration. truth values above 0.5 count as positive.
// Returns NaN when the column is single-class.
func auc(scores, truth []float64) float64 {
	n := len(scores)
	positives := 0
	for _, v := range truth {
		if v > 0.5 {
			positives++
		}
	}
	if positives == 0 || positives == n {
		return math.NaN()
	}

	// stat.ROC requires scores in ascending order with classes alongside.
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] < scores[idx[b]]
	})

	y := make([]float64, n)
	classes := make([]bool, n)
	for k, i := range idx {
		y[k] = scores[i]
		classes[k] = truth[i] > 0.5
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
