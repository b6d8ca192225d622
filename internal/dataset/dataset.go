// Package dataset loads ground-truth pathology annotations and derives
// dataset fingerprints for cache keying.
package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/labels"
)

// GroundTruth holds the annotation matrix aligned to a label set, plus the
// study identifiers defining row order.
type GroundTruth struct {
	IDs    []string
	Matrix *mat.Dense
	set    labels.Set
}

// Labels returns the label set the matrix columns are aligned to.
func (g *GroundTruth) Labels() labels.Set { return g.set }

// Rows returns the number of studies.
func (g *GroundTruth) Rows() int { return len(g.IDs) }

// LoadGroundTruth reads a CSV annotation file. The first column is the
// study identifier; the remaining columns are selected and reordered by the
// given label set. A label missing from the header is fatal. Empty cells
// are treated as negative (0), matching the annotation convention where an
// unmentioned finding is absent.
func LoadGroundTruth(path string, set labels.Set) (*GroundTruth, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ground truth %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read ground truth header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("ground truth %s needs an id column and at least one label column", path)
	}

	// Map each label to its CSV column; header columns outside the label
	// set are ignored.
	cols := make([]int, set.Len())
	for i := range cols {
		cols[i] = -1
	}
	for col, name := range header[1:] {
		if i, ok := set.Index(name); ok {
			cols[i] = col + 1
		}
	}
	for i, col := range cols {
		if col < 0 {
			return nil, fmt.Errorf("ground truth %s is missing label column %q", path, set.At(i))
		}
	}

	var ids []string
	var data []float64
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ground truth row %d: %w", row, err)
		}

		ids = append(ids, record[0])
		for i, col := range cols {
			cell := record[col]
			if cell == "" {
				data = append(data, 0)
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("ground truth row %d, label %q: %w", row, set.At(i), err)
			}
			data = append(data, v)
		}
		row++
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("ground truth %s contains no rows", path)
	}

	log.Info().
		Str("file", path).
		Int("studies", len(ids)).
		Int("labels", set.Len()).
		Msg("Ground truth loaded")

	return &GroundTruth{
		IDs:    ids,
		Matrix: mat.NewDense(len(ids), set.Len(), data),
		set:    set,
	}, nil
}

// Fingerprint returns a hex sha256 digest of the file contents. It feeds
// into cache keys so a changed dataset cannot be shadowed by a stale cache.
func Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for fingerprinting: %w", path, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
