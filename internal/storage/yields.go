package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// YieldRecord is one historical yield observation used for model fitting
// and validation.
type YieldRecord struct {
	Region     string    `json:"region"`
	Crop       string    `json:"crop"`
	Season     time.Time `json:"season"`
	YieldTPH   float64   `json:"yield_tph"`
	RainfallMM float64   `json:"rainfall_mm"`
	AvgTempC   float64   `json:"avg_temp_c"`
	SoilPH     float64   `json:"soil_ph"`
}

// yieldKey builds the "region|crop_timestamp" key used for prefix scans.
func yieldKey(region, crop string, season time.Time) []byte {
	return []byte(fmt.Sprintf("%s|%s_%020d", region, crop, season.UnixNano()))
}

// StoreYield stores a yield observation keyed by region, crop, and season.
func (s *Store) StoreYield(record YieldRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(yieldsBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal yield record: %w", err)
		}
		return b.Put(yieldKey(record.Region, record.Crop, record.Season), data)
	})
}

// GetYields retrieves yield observations for a region and crop within a
// season range, inclusive of both ends, ordered by season.
func (s *Store) GetYields(region, crop string, start, end time.Time) ([]YieldRecord, error) {
	var records []YieldRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(yieldsBucket))
		c := b.Cursor()

		prefix := []byte(fmt.Sprintf("%s|%s_", region, crop))
		startKey := yieldKey(region, crop, start)
		endKey := yieldKey(region, crop, end)

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var record YieldRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue // Skip malformed records
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}

// YieldSeries returns just the yield values for a region and crop ordered by
// season, for feeding the time-series and clustering models.
func (s *Store) YieldSeries(region, crop string, start, end time.Time) ([]float64, error) {
	records, err := s.GetYields(region, crop, start, end)
	if err != nil {
		return nil, err
	}
	series := make([]float64, len(records))
	for i, r := range records {
		series[i] = r.YieldTPH
	}
	return series, nil
}
