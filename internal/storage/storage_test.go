package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agrocast/internal/monitor"
)

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

	// Check if database file was created
	dbPath := filepath.Join(tempDir, "agrocast-data.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := "/nonexistent/path/that/does/not/exist"

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	err = store.Close()
	if err != nil {
		t.Errorf("Error closing store: %v", err)
	}

	// Test closing already closed store
	err = store.Close()
	if err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	err := store.Close()
	if err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestStoreYield(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	record := YieldRecord{
		Region:     "semi_arid",
		Crop:       "maize",
		Season:     time.Now(),
		YieldTPH:   4.2,
		RainfallMM: 520,
		AvgTempC:   24.5,
		SoilPH:     6.3,
	}

	err = store.StoreYield(record)
	if err != nil {
		t.Errorf("Failed to store yield: %v", err)
	}
}

func TestGetYields(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	now := time.Now()
	records := []YieldRecord{
		{Region: "semi_arid", Crop: "maize", Season: now, YieldTPH: 4.0},
		{Region: "semi_arid", Crop: "maize", Season: now.Add(time.Hour), YieldTPH: 4.3},
		{Region: "semi_arid", Crop: "wheat", Season: now.Add(2 * time.Hour), YieldTPH: 3.1},
		{Region: "tropical", Crop: "maize", Season: now.Add(3 * time.Hour), YieldTPH: 5.2},
	}
	for _, r := range records {
		if err := store.StoreYield(r); err != nil {
			t.Fatalf("Failed to store yield: %v", err)
		}
	}

	got, err := store.GetYields("semi_arid", "maize", now.Add(-time.Hour), now.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("Failed to get yields: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 yields, got %d", len(got))
	}
	if got[0].YieldTPH != 4.0 || got[1].YieldTPH != 4.3 {
		t.Errorf("Yields out of order: %v", got)
	}

	// Other region/crop combinations stay invisible.
	for _, r := range got {
		if r.Region != "semi_arid" || r.Crop != "maize" {
			t.Errorf("Unexpected record in result: %+v", r)
		}
	}
}

func TestGetYields_TimeRangeFiltering(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	base := time.Now()
	for i := 0; i < 5; i++ {
		record := YieldRecord{
			Region:   "temperate",
			Crop:     "wheat",
			Season:   base.Add(time.Duration(i) * time.Hour),
			YieldTPH: float64(i),
		}
		if err := store.StoreYield(record); err != nil {
			t.Fatalf("Failed to store yield: %v", err)
		}
	}

	got, err := store.GetYields("temperate", "wheat", base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Failed to get yields: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 yields in range, got %d", len(got))
	}
}

func TestYieldSeries(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	base := time.Now()
	want := []float64{3.5, 4.0, 4.5}
	for i, y := range want {
		record := YieldRecord{
			Region:   "highland",
			Crop:     "sorghum",
			Season:   base.Add(time.Duration(i) * time.Hour),
			YieldTPH: y,
		}
		if err := store.StoreYield(record); err != nil {
			t.Fatalf("Failed to store yield: %v", err)
		}
	}

	series, err := store.YieldSeries("highland", "sorghum", base.Add(-time.Hour), base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("Failed to get series: %v", err)
	}
	if len(series) != len(want) {
		t.Fatalf("Expected %d values, got %d", len(want), len(series))
	}
	for i, v := range series {
		if v != want[i] {
			t.Errorf("series[%d] = %f, want %f", i, v, want[i])
		}
	}
}

func TestSaveLoadSnapshot(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	// No snapshot yet.
	snap, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if snap != nil {
		t.Error("Expected nil snapshot before any save")
	}

	m := monitor.New(store, nil)
	id := m.TrackPrediction("regression", "semi_arid", "maize", 4.0, 0.8, nil)
	if _, err := m.RecordActualYield(id, 4.1); err != nil {
		t.Fatalf("Failed to record actual: %v", err)
	}
	if err := m.Persist(); err != nil {
		t.Fatalf("Failed to persist: %v", err)
	}

	snap, err = store.LoadSnapshot()
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if snap == nil {
		t.Fatal("Expected snapshot after save")
	}
	if len(snap.Predictions) != 1 {
		t.Errorf("Expected 1 prediction, got %d", len(snap.Predictions))
	}
	if len(snap.ActualResults) != 1 {
		t.Errorf("Expected 1 actual result, got %d", len(snap.ActualResults))
	}
	if snap.ModelAccuracy["regression"] == nil {
		t.Error("Expected regression ledger in snapshot")
	}

	// Restore into a fresh monitor.
	fresh := monitor.New(store, nil)
	if err := fresh.Restore(); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	rec, err := fresh.Prediction(id)
	if err != nil {
		t.Fatalf("Prediction missing after restore: %v", err)
	}
	if !rec.Verified {
		t.Error("Expected restored prediction to be verified")
	}
}

func TestStoreGetReports(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	base := time.Now()
	for i := 0; i < 3; i++ {
		report := monitor.Report{
			GeneratedAt:      base.Add(time.Duration(i) * time.Hour),
			TotalPredictions: i + 1,
		}
		if err := store.StoreReport(report); err != nil {
			t.Fatalf("Failed to store report: %v", err)
		}
	}

	reports, err := store.GetReports(base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to get reports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(reports))
	}
	if reports[0].TotalPredictions != 1 || reports[1].TotalPredictions != 2 {
		t.Errorf("Reports out of order: %+v", reports)
	}
}
