// Package storage provides persistent data storage for the agrocast
// prediction service. It uses BoltDB as the underlying storage engine to
// store historical yield observations, monitor snapshots, and performance
// reports.
//
// The package provides thread-safe operations for storing and retrieving
// time-series data with efficient range queries and automatic bucket
// management.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"agrocast/internal/monitor"
)

const (
	yieldsBucket    = "yields"    // Bucket name for historical yield observations
	snapshotsBucket = "snapshots" // Bucket name for monitor state snapshots
	reportsBucket   = "reports"   // Bucket name for performance reports
)

// snapshotKey is the fixed key the latest monitor snapshot lives under.
const snapshotKey = "latest"

// Store provides persistent storage for prediction data using BoltDB.
// It manages multiple buckets for different data types and provides
// efficient time-range queries for historical analysis.
type Store struct {
	db *bbolt.DB
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
// Returns an error if the database cannot be opened or buckets cannot be
// created.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "agrocast-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{yieldsBucket, snapshotsBucket, reportsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
// It should be called when the storage is no longer needed to ensure
// proper cleanup of database resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveSnapshot persists the monitor snapshot, replacing any previous one.
func (s *Store) SaveSnapshot(snap *monitor.Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(snapshotsBucket))

		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		return b.Put([]byte(snapshotKey), data)
	})
}

// LoadSnapshot returns the last persisted monitor snapshot, or nil when none
// has been saved yet.
func (s *Store) LoadSnapshot() (*monitor.Snapshot, error) {
	var snap *monitor.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(snapshotsBucket))
		data := b.Get([]byte(snapshotKey))
		if data == nil {
			return nil
		}
		snap = &monitor.Snapshot{}
		if err := json.Unmarshal(data, snap); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// StoreReport appends a performance report keyed by its generation time.
func (s *Store) StoreReport(report monitor.Report) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(reportsBucket))

		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}

		key := fmt.Sprintf("%020d", report.GeneratedAt.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// GetReports retrieves performance reports generated within a time range,
// inclusive of both ends, ordered by generation time.
func (s *Store) GetReports(start, end time.Time) ([]monitor.Report, error) {
	var reports []monitor.Report

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(reportsBucket))
		c := b.Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var report monitor.Report
			if err := json.Unmarshal(v, &report); err != nil {
				continue // Skip malformed records
			}
			reports = append(reports, report)
		}
		return nil
	})

	return reports, err
}
