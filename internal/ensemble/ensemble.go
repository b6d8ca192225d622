// Package ensemble runs a set of model checkpoints over the dataset and
// averages their per-label probability predictions, caching each
// checkpoint's matrix on disk keyed by a content hash of everything that
// shaped it.
package ensemble

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/inference"
	"cxr-zeroshot/internal/labels"
	"cxr-zeroshot/internal/matx"
)

// MetricsInterface defines the metrics hooks the ensembler reports through.
type MetricsInterface interface {
	CacheHitsInc()
	CacheMissesInc()
}

// Config wires an Ensembler.
type Config struct {
	Backend inference.Backend
	Labels  labels.Set
	// DatasetFingerprint folds the dataset identity into cache keys.
	DatasetFingerprint string
	Templates          inference.PromptPair
	// Rows, when positive, is the expected study count used to validate
	// inference output and cache entries.
	Rows int
	// Cache is optional; nil runs every checkpoint fresh.
	Cache   *Cache
	Metrics MetricsInterface
}

// Ensembler produces per-checkpoint prediction matrices and their mean.
type Ensembler struct {
	backend   inference.Backend
	set       labels.Set
	datasetFP string
	templates inference.PromptPair
	rows      int
	cache     *Cache
	metrics   MetricsInterface
}

// Output holds the result of one ensemble run. Members are ordered by
// the sorted checkpoint list in Checkpoints.
type Output struct {
	Checkpoints []string
	Members     []*mat.Dense
	Mean        *mat.Dense
}

// New builds an Ensembler from its configuration.
func New(cfg Config) (*Ensembler, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("inference backend is required")
	}
	if cfg.Labels.Len() == 0 {
		return nil, fmt.Errorf("label set is required")
	}

	return &Ensembler{
		backend:   cfg.Backend,
		set:       cfg.Labels,
		datasetFP: cfg.DatasetFingerprint,
		templates: cfg.Templates,
		rows:      cfg.Rows,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
	}, nil
}

// Run scores every checkpoint and averages the results. Checkpoints are
// processed in sorted order so cache naming and logs are reproducible; the
// averaged matrix itself does not depend on input order.
func (e *Ensembler) Run(ctx context.Context, checkpoints []string) (*Output, error) {
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("at least one checkpoint is required")
	}

	sorted := make([]string, len(checkpoints))
	copy(sorted, checkpoints)
	sort.Strings(sorted)

	log.Info().
		Int("checkpoints", len(sorted)).
		Str("backend", e.backend.Name()).
		Bool("cache", e.cache != nil).
		Msg("Starting ensemble run")

	members := make([]*mat.Dense, 0, len(sorted))
	for _, checkpoint := range sorted {
		m, err := e.predictions(ctx, checkpoint)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	mean, err := matx.Mean(members)
	if err != nil {
		return nil, fmt.Errorf("average ensemble predictions: %w", err)
	}

	rows, cols := mean.Dims()
	log.Info().
		Int("members", len(members)).
		Int("rows", rows).
		Int("cols", cols).
		Msg("Ensemble averaging complete")

	return &Output{Checkpoints: sorted, Members: members, Mean: mean}, nil
}

// predictions returns the matrix for one checkpoint, from cache when
// possible.
func (e *Ensembler) predictions(ctx context.Context, checkpoint string) (*mat.Dense, error) {
	var key string
	if e.cache != nil {
		key = e.cacheKey(checkpoint)
		m, hit, err := e.cache.Load(key, e.set, e.rows)
		if err != nil {
			return nil, err
		}
		if hit {
			if e.metrics != nil {
				e.metrics.CacheHitsInc()
			}
			if e.rows <= 0 {
				r, _ := m.Dims()
				e.rows = r
			}
			log.Debug().Str("checkpoint", checkpoint).Str("key", key).Msg("Cache hit")
			return m, nil
		}
		if e.metrics != nil {
			e.metrics.CacheMissesInc()
		}
	}

	m, err := e.backend.Predict(ctx, checkpoint)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpoint, err)
	}
	expRows := e.rows
	if expRows <= 0 {
		// Row count is unknown until the first matrix arrives.
		expRows = -1
	}
	if err := matx.CheckShape(m, expRows, e.set.Len(), "predictions for "+checkpoint); err != nil {
		return nil, err
	}
	if e.rows <= 0 {
		// First matrix pins the row count for the rest of the run.
		r, _ := m.Dims()
		e.rows = r
	}

	if e.cache != nil {
		if err := e.cache.Save(key, checkpoint, e.set, m); err != nil {
			return nil, err
		}
		log.Debug().Str("checkpoint", checkpoint).Str("key", key).Msg("Cached predictions")
	}

	return m, nil
}

// cacheKey derives the cache file name for a checkpoint. The hash covers
// the checkpoint identity, dataset fingerprint, label set, and prompt
// templates, so any change in one of them misses the old entry instead of
// silently reusing it.
func (e *Ensembler) cacheKey(checkpoint string) string {
	h := sha256.New()
	for _, part := range []string{
		checkpoint,
		e.datasetFP,
		e.set.Fingerprint(),
		e.templates.Positive,
		e.templates.Negative,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	digest := hex.EncodeToString(h.Sum(nil))

	base := filepath.Base(checkpoint)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%s", base, digest[:16])
}
