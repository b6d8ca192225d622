package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cxr-zeroshot/internal/report"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(id string) report.RunRecord {
	auc := 0.85
	return report.RunRecord{
		ID:          id,
		StartedAt:   time.Now(),
		Checkpoints: []string{"best_64.pt"},
		Labels:      []string{"Edema"},
		AUC:         []*float64{&auc},
	}
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "cxr-runs.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)

	rec := sampleRecord("20260115T120000_abcd")
	if err := store.Save(rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("Expected ID %s, got %s", rec.ID, got.ID)
	}
	if len(got.AUC) != 1 || got.AUC[0] == nil || *got.AUC[0] != 0.85 {
		t.Errorf("AUC did not round-trip: %v", got.AUC)
	}
}

func TestStore_SaveWithoutID(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(report.RunRecord{}); err == nil {
		t.Error("Expected error saving record without ID")
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get("nope"); err == nil {
		t.Error("Expected error for missing run")
	}
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("20260115T12000%d_run", i)
		if err := store.Save(sampleRecord(id)); err != nil {
			t.Fatalf("Failed to save record %d: %v", i, err)
		}
	}

	records, err := store.List(3)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].ID != "20260115T120004_run" {
		t.Errorf("Expected most recent run first, got %s", records[0].ID)
	}

	all, err := store.List(0)
	if err != nil {
		t.Fatalf("Failed to list all records: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Expected 5 records, got %d", len(all))
	}
}
