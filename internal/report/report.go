// Package report writes the result artifacts of an evaluation run: the
// averaged prediction matrix, the per-label AUC table, the bootstrap
// summary, and a combined JSON report. NaN (undefined AUC) encodes as an
// empty CSV cell and JSON null.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/eval"
	"cxr-zeroshot/internal/labels"
)

// RunRecord is the serializable summary of one evaluation run. AUC values
// use pointers so undefined labels marshal as null instead of breaking
// json.Marshal on NaN.
type RunRecord struct {
	ID                 string            `json:"id"`
	StartedAt          time.Time         `json:"started_at"`
	Checkpoints        []string          `json:"checkpoints"`
	Labels             []string          `json:"labels"`
	AUC                []*float64        `json:"auc"`
	Bootstrap          *BootstrapRecord  `json:"bootstrap,omitempty"`
	DatasetFingerprint string            `json:"dataset_fingerprint,omitempty"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

// BootstrapRecord is the serializable bootstrap summary.
type BootstrapRecord struct {
	Iterations int        `json:"iterations"`
	Confidence float64    `json:"confidence"`
	Seed       int64      `json:"seed"`
	Mean       []*float64 `json:"mean"`
	Lower      []*float64 `json:"lower"`
	Upper      []*float64 `json:"upper"`
}

// NewRunRecord assembles a RunRecord from evaluation outputs.
func NewRunRecord(id string, startedAt time.Time, checkpoints []string, res eval.Result, boot *eval.BootstrapResult, seed int64, datasetFP string) RunRecord {
	rec := RunRecord{
		ID:                 id,
		StartedAt:          startedAt,
		Checkpoints:        checkpoints,
		Labels:             res.Labels,
		AUC:                nullable(res.AUC),
		DatasetFingerprint: datasetFP,
		GeneratedAt:        time.Now(),
	}
	if boot != nil {
		rec.Bootstrap = &BootstrapRecord{
			Iterations: boot.Summary.Iterations,
			Confidence: boot.Summary.Confidence,
			Seed:       seed,
			Mean:       nullable(boot.Summary.Mean),
			Lower:      nullable(boot.Summary.Lower),
			Upper:      nullable(boot.Summary.Upper),
		}
	}
	return rec
}

// nullable maps NaN to nil so the slice is JSON-safe.
func nullable(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		if math.IsNaN(v) {
			continue
		}
		val := v
		out[i] = &val
	}
	return out
}

// Reporter writes result artifacts under an output directory.
type Reporter struct {
	outputPath string
}

// NewReporter creates a reporter rooted at outputPath.
func NewReporter(outputPath string) *Reporter {
	return &Reporter{outputPath: outputPath}
}

func (r *Reporter) ensureDir() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", r.outputPath, err)
	}
	return nil
}

// WriteMeanPredictions writes the averaged prediction matrix as a CSV with
// one row per study. When ids is nil, rows are numbered.
func (r *Reporter) WriteMeanPredictions(ids []string, set labels.Set, mean *mat.Dense) error {
	if err := r.ensureDir(); err != nil {
		return err
	}

	rows, cols := mean.Dims()
	if cols != set.Len() {
		return fmt.Errorf("mean prediction matrix has %d columns, want %d", cols, set.Len())
	}
	if ids != nil && len(ids) != rows {
		return fmt.Errorf("have %d study ids for %d prediction rows", len(ids), rows)
	}

	path := filepath.Join(r.outputPath, "predictions_mean.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create predictions file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := append([]string{"study_id"}, set.Names()...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for i := 0; i < rows; i++ {
		record := make([]string, 0, cols+1)
		if ids != nil {
			record = append(record, ids[i])
		} else {
			record = append(record, strconv.Itoa(i))
		}
		for j := 0; j < cols; j++ {
			record = append(record, formatCell(mean.At(i, j)))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", path).Msg("Averaged predictions written")
	return nil
}

// WriteAUC writes the per-label point estimates as a single-row table.
func (r *Reporter) WriteAUC(res eval.Result) error {
	if err := r.ensureDir(); err != nil {
		return err
	}

	path := filepath.Join(r.outputPath, "auc.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create AUC file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(append([]string{"statistic"}, res.Labels...)); err != nil {
		return err
	}
	row := []string{"auc"}
	for _, v := range res.AUC {
		row = append(row, formatCell(v))
	}
	if err := writer.Write(row); err != nil {
		return err
	}

	log.Info().Str("file", path).Msg("AUC table written")
	return nil
}

// WriteBootstrapSummary writes the mean/lower/upper rows per label.
func (r *Reporter) WriteBootstrapSummary(s eval.Summary) error {
	if err := r.ensureDir(); err != nil {
		return err
	}

	path := filepath.Join(r.outputPath, "bootstrap_summary.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bootstrap summary: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(append([]string{"statistic"}, s.Labels...)); err != nil {
		return err
	}
	for _, row := range []struct {
		name   string
		values []float64
	}{
		{"mean", s.Mean},
		{"lower", s.Lower},
		{"upper", s.Upper},
	} {
		record := []string{row.name}
		for _, v := range row.values {
			record = append(record, formatCell(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().
		Str("file", path).
		Float64("confidence", s.Confidence).
		Int("iterations", s.Iterations).
		Msg("Bootstrap summary written")
	return nil
}

// WriteJSON writes the combined run record.
func (r *Reporter) WriteJSON(rec RunRecord) error {
	if err := r.ensureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	path := filepath.Join(r.outputPath, "results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write JSON report: %w", err)
	}

	log.Info().Str("file", path).Msg("JSON report written")
	return nil
}

// PrintSummary prints the evaluation outcome to the console.
func (r *Reporter) PrintSummary(res eval.Result, s *eval.Summary) {
	fmt.Println("\n=== EVALUATION RESULTS ===")
	for i, label := range res.Labels {
		if s != nil {
			fmt.Printf("%-22s AUC %s  [%s, %s]\n", label,
				formatDisplay(res.AUC[i]), formatDisplay(s.Lower[i]), formatDisplay(s.Upper[i]))
		} else {
			fmt.Printf("%-22s AUC %s\n", label, formatDisplay(res.AUC[i]))
		}
	}
	if s != nil {
		fmt.Printf("Bootstrap: %d iterations, %.0f%% confidence\n", s.Iterations, s.Confidence*100)
	}
	fmt.Println("==========================")
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatDisplay(v float64) string {
	if math.IsNaN(v) {
		return "undefined"
	}
	return fmt.Sprintf("%.3f", v)
}
