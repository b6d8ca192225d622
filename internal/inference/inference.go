// Package inference wraps the external zero-shot scoring collaborators.
// The model forward pass lives outside this repository; a Backend turns a
// checkpoint identifier into a per-study, per-label probability matrix by
// delegating to either a local Python script or a remote scoring service.
package inference

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/labels"
	"cxr-zeroshot/internal/matx"
)

// PromptPair holds the positive/negative phrasing templates used to build
// the text prompts for each label, e.g. "{}" and "no {}".
type PromptPair struct {
	Positive string `json:"positive_template" yaml:"positive"`
	Negative string `json:"negative_template" yaml:"negative"`
}

// Backend produces a prediction matrix for a single checkpoint.
type Backend interface {
	// Predict runs inference for one checkpoint over the configured dataset.
	// The returned matrix has one row per study and one column per label,
	// holding probabilities in [0,1].
	Predict(ctx context.Context, checkpoint string) (*mat.Dense, error)
	Name() string
}

// MetricsInterface defines the metrics hooks backends report through.
type MetricsInterface interface {
	InferencesInc()
	InferenceFailuresInc()
	InferenceLatencyObserve(float64)
}

// request is the wire format both backends send to the scoring collaborator.
type request struct {
	Checkpoint       string   `json:"checkpoint"`
	Dataset          string   `json:"dataset"`
	Labels           []string `json:"labels"`
	PositiveTemplate string   `json:"positive_template"`
	NegativeTemplate string   `json:"negative_template"`
}

// response is the wire format returned by the scoring collaborator. Either
// Probabilities is populated directly, or Logits carries a raw
// positive/negative score pair per label that still needs the softmax fold.
type response struct {
	Probabilities [][]float64 `json:"probabilities,omitempty"`
	Logits        *logitPair  `json:"logits,omitempty"`
	Error         string      `json:"error,omitempty"`
}

type logitPair struct {
	Positive [][]float64 `json:"positive"`
	Negative [][]float64 `json:"negative"`
}

// toMatrix converts a scoring response into a validated probability matrix.
func (r *response) toMatrix(set labels.Set) (*mat.Dense, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("inference error: %s", r.Error)
	}

	switch {
	case len(r.Probabilities) > 0:
		m, err := matx.FromRows(r.Probabilities)
		if err != nil {
			return nil, fmt.Errorf("malformed probabilities: %w", err)
		}
		if err := matx.CheckShape(m, -1, set.Len(), "prediction matrix"); err != nil {
			return nil, err
		}
		return m, nil

	case r.Logits != nil:
		pos, err := matx.FromRows(r.Logits.Positive)
		if err != nil {
			return nil, fmt.Errorf("malformed positive logits: %w", err)
		}
		neg, err := matx.FromRows(r.Logits.Negative)
		if err != nil {
			return nil, fmt.Errorf("malformed negative logits: %w", err)
		}
		pr, pc := pos.Dims()
		if err := matx.CheckShape(neg, pr, pc, "negative logits"); err != nil {
			return nil, err
		}
		if err := matx.CheckShape(pos, -1, set.Len(), "logit matrix"); err != nil {
			return nil, err
		}

		out := mat.NewDense(pr, pc, nil)
		for i := 0; i < pr; i++ {
			for j := 0; j < pc; j++ {
				out.Set(i, j, matx.SoftmaxPair(pos.At(i, j), neg.At(i, j)))
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("inference response carries neither probabilities nor logits")
	}
}
