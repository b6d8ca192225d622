package ensemble

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"cxr-zeroshot/internal/labels"
)

// cacheEntry is the on-disk format of one cached prediction matrix. Labels
// and dimensions travel with the data so a load can be validated against
// the current run instead of trusted verbatim.
type cacheEntry struct {
	Checkpoint string    `json:"checkpoint"`
	Labels     []string  `json:"labels"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Data       []float64 `json:"data"` // row-major
}

// Cache stores one prediction matrix per checkpoint under a directory.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir. An empty dir disables caching
// and is represented by a nil cache at the Ensembler level.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	return &Cache{dir: dir}, nil
}

// Path returns the cache file location for a key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Load reads and validates a cached matrix. A missing file is a miss, not
// an error; anything else wrong with a declared cache file is fatal.
func (c *Cache) Load(key string, set labels.Set, rows int) (*mat.Dense, bool, error) {
	path := c.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache %s: %w", path, err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("parse cache %s: %w", path, err)
	}

	cached, err := labels.New(entry.Labels)
	if err != nil {
		return nil, false, fmt.Errorf("cache %s carries invalid labels: %w", path, err)
	}
	if !cached.Equal(set) {
		return nil, false, fmt.Errorf("cache %s was written for labels [%s], want [%s]", path, cached, set)
	}
	if entry.Cols != set.Len() {
		return nil, false, fmt.Errorf("cache %s has %d columns, want %d", path, entry.Cols, set.Len())
	}
	if rows > 0 && entry.Rows != rows {
		return nil, false, fmt.Errorf("cache %s has %d rows, want %d", path, entry.Rows, rows)
	}
	if len(entry.Data) != entry.Rows*entry.Cols {
		return nil, false, fmt.Errorf("cache %s is truncated: %d values for %dx%d", path, len(entry.Data), entry.Rows, entry.Cols)
	}

	return mat.NewDense(entry.Rows, entry.Cols, entry.Data), true, nil
}

// Save writes a matrix to the cache, creating intermediate directories and
// publishing via temp-file rename so a crashed run never leaves a partial
// entry behind.
func (c *Cache) Save(key, checkpoint string, set labels.Set, m *mat.Dense) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory %s: %w", c.dir, err)
	}

	rows, cols := m.Dims()
	entry := cacheEntry{
		Checkpoint: checkpoint,
		Labels:     set.Names(),
		Rows:       rows,
		Cols:       cols,
		Data:       make([]float64, 0, rows*cols),
	}
	for i := 0; i < rows; i++ {
		entry.Data = append(entry.Data, m.RawRowView(i)...)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish cache entry: %w", err)
	}

	return nil
}
