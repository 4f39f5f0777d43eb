package correlation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/internal/metrics"
	"pairwatch/pkg/errors"
)

const snapshotVersion = 1

// snapshotFile is the on-disk state envelope. Everything the engine holds in
// memory goes into one file so a restart resumes where it left off.
type snapshotFile struct {
	Version      int                                `json:"version"`
	SavedAt      time.Time                          `json:"saved_at"`
	Coefficients []domain.Record                    `json:"coefficients"`
	PriceData    map[string]market_data.PriceSeries `json:"price_data"`
	TickCache    []CachedTicks                      `json:"tick_cache"`
	History      []domain.HistoryEntry              `json:"history"`
}

// Save writes the full engine state to path. The file is written to a temp
// file in the same directory and renamed into place, so a crash mid-write
// never leaves a partial snapshot behind.
func (s *Service) Save(path string) error {
	err := s.save(path)
	metrics.RecordSnapshot("save", err)
	if err == nil {
		s.log.Debugf("Saved state to %s", path)
	}
	return err
}

func (s *Service) save(path string) error {
	s.mu.RLock()
	snap := snapshotFile{
		Version:      snapshotVersion,
		SavedAt:      time.Now().UTC(),
		Coefficients: make([]domain.Record, 0, len(s.records)),
		PriceData:    s.priceData,
		History:      s.history,
	}
	for _, record := range s.records {
		snap.Coefficients = append(snap.Coefficients, *record)
	}
	s.mu.RUnlock()

	snap.TickCache = s.cache.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling snapshot")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writing snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "syncing snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing snapshot")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replacing snapshot")
	}
	return nil
}

// Load replaces the engine state wholesale with the snapshot at path
func (s *Service) Load(path string) error {
	err := s.load(path)
	metrics.RecordSnapshot("load", err)
	return err
}

func (s *Service) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading snapshot %s", path)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Wrapf(errors.ErrSnapshotCorrupt, "decoding %s: %v", path, err)
	}
	if snap.Version != snapshotVersion {
		return errors.Wrapf(errors.ErrSnapshotVersion, "snapshot %s has version %d, want %d", path, snap.Version, snapshotVersion)
	}

	records := make([]*domain.Record, 0, len(snap.Coefficients))
	byKey := make(map[string]*domain.Record, len(snap.Coefficients))
	for i := range snap.Coefficients {
		record := snap.Coefficients[i]
		records = append(records, &record)
		byKey[record.Key()] = &record
	}

	priceData := snap.PriceData
	if priceData == nil {
		priceData = make(map[string]market_data.PriceSeries)
	}

	s.mu.Lock()
	s.records = records
	s.byKey = byKey
	s.priceData = priceData
	s.history = snap.History
	s.mu.Unlock()

	s.cache.Restore(snap.TickCache)

	s.log.Infof("Loaded state from %s: %d pairs, %d history entries", path, len(records), len(snap.History))
	return nil
}
