package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxr-zeroshot/internal/labels"
)

func testSet(t *testing.T) labels.Set {
	t.Helper()
	set, err := labels.New([]string{"Atelectasis", "Edema"})
	require.NoError(t, err)
	return set
}

func TestResponse_ToMatrix_Probabilities(t *testing.T) {
	set := testSet(t)

	resp := &response{Probabilities: [][]float64{{0.9, 0.1}, {0.2, 0.8}}}
	m, err := resp.toMatrix(set)
	require.NoError(t, err)

	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 0.8, m.At(1, 1))
}

func TestResponse_ToMatrix_LogitFold(t *testing.T) {
	set := testSet(t)

	resp := &response{Logits: &logitPair{
		Positive: [][]float64{{2, 0}},
		Negative: [][]float64{{0, 2}},
	}}
	m, err := resp.toMatrix(set)
	require.NoError(t, err)

	// Positive logit dominates the first label, negative the second.
	assert.Greater(t, m.At(0, 0), 0.8)
	assert.Less(t, m.At(0, 1), 0.2)
	assert.InDelta(t, 1.0, m.At(0, 0)+m.At(0, 1), 1e-9)
}

func TestResponse_ToMatrix_Errors(t *testing.T) {
	set := testSet(t)

	tests := []struct {
		name string
		resp *response
	}{
		{name: "error field", resp: &response{Error: "model exploded"}},
		{name: "empty response", resp: &response{}},
		{name: "wrong column count", resp: &response{Probabilities: [][]float64{{0.9}}}},
		{name: "ragged rows", resp: &response{Probabilities: [][]float64{{0.9, 0.1}, {0.2}}}},
		{name: "logit shape mismatch", resp: &response{Logits: &logitPair{
			Positive: [][]float64{{1, 2}},
			Negative: [][]float64{{1, 2}, {3, 4}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.resp.toMatrix(set)
			require.Error(t, err)
		})
	}
}

func TestNewScriptRunner_ValidationBasic(t *testing.T) {
	set := testSet(t)

	_, err := NewScriptRunner(ScriptConfig{Dataset: "data.h5", Labels: set})
	require.Error(t, err, "missing script path must be rejected")

	_, err = NewScriptRunner(ScriptConfig{ScriptPath: "/nonexistent/run.py", Dataset: "data.h5", Labels: set})
	require.Error(t, err, "missing script file must be rejected")
}
