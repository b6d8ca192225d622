package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxr-zeroshot/internal/report"
	"cxr-zeroshot/internal/runstore"
)

func storedRecord(id string, startedAt time.Time) report.RunRecord {
	auc := 0.875
	return report.RunRecord{
		ID:          id,
		StartedAt:   startedAt,
		Checkpoints: []string{"checkpoints/best_64.pt", "checkpoints/best_128.pt"},
		Labels:      []string{"Atelectasis", "Edema"},
		AUC:         []*float64{&auc, nil},
	}
}

func TestPrintHistory(t *testing.T) {
	started := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	recs := []report.RunRecord{storedRecord("20260830T120000Z", started)}

	var buf bytes.Buffer
	printHistory(&buf, recs)

	out := buf.String()
	assert.Contains(t, out, "20260830T120000Z")
	assert.Contains(t, out, "checkpoints 2")
	assert.Contains(t, out, "Atelectasis")
	assert.Contains(t, out, "0.875")
	assert.Contains(t, out, "undefined", "a nil AUC must render as undefined")
}

func TestPrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Contains(t, buf.String(), "No stored runs")
}

func TestInspectRuns(t *testing.T) {
	dataPath := t.TempDir()

	store, err := runstore.New(dataPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(storedRecord("20260829T080000Z", time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC))))
	require.NoError(t, store.Save(storedRecord("20260830T120000Z", time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))))
	require.NoError(t, store.Close())

	require.NoError(t, inspectRuns(dataPath, 5, ""))
	require.NoError(t, inspectRuns(dataPath, 0, "20260829T080000Z"))

	err = inspectRuns(dataPath, 0, "no-such-run")
	require.Error(t, err)
}

func TestInspectRuns_RequiresDataPath(t *testing.T) {
	err := inspectRuns("", 5, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data path")
}
