// Package runstore persists evaluation run records so successive runs can
// be compared. It uses BoltDB with a single bucket keyed by run ID; IDs are
// timestamp-prefixed, so byte order is chronological.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"cxr-zeroshot/internal/report"
)

const runsBucket = "runs"

// Store provides persistent storage for evaluation run records.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the run database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataPath, err)
	}
	dbPath := filepath.Join(dataPath, "cxr-runs.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores a run record keyed by its ID.
func (s *Store) Save(rec report.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run record has no ID")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal run record: %w", err)
		}
		return b.Put([]byte(rec.ID), data)
	})
}

// Get retrieves a run record by ID.
func (s *Store) Get(id string) (report.RunRecord, error) {
	var rec report.RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run %s not found", id)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// List returns up to limit records, most recent first. A non-positive
// limit returns everything.
func (s *Store) List(limit int) ([]report.RunRecord, error) {
	var records []report.RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec report.RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})

	return records, err
}
