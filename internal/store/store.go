package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"race-telemetry/internal/models"
)

// columns is the fixed CSV header. The on-disk column order never
// changes; rows are appended positionally against it.
var columns = []string{
	"Timestamp",
	"Device ID",
	"System Status",
	"Lap Number",
	"AFR",
	"RPM",
	"Temperature",
	"TPS",
	"MAP Value",
	"Incline",
	"Stroke",
	"Latitude",
	"Longitude",
	"Speed",
	"Satellites",
	"AI Classification",
	"Classification Text",
	"Cooling Active",
	"Fan On",
	"Current Temp",
	"Free Heap",
	"Uptime",
	"WiFi RSSI",
}

// Store is the append-only CSV store for telemetry rows. A single
// logical writer appends; readers open the file independently and may
// observe the store mid-growth relative to a concurrent append.
type Store struct {
	path string

	mu sync.Mutex // serializes appends
	f  *os.File
}

// Open opens the store at path, creating the parent directory and a
// header-only file when absent. Existing data is never rewritten.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open store file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat store file: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		w.Write(columns)
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	return &Store{path: path, f: f}, nil
}

// Close closes the append handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Append writes one row to the end of the file. The row is flushed to
// the file before Append returns; previously appended rows are never
// reordered or touched.
func (s *Store) Append(r models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := csv.NewWriter(s.f)
	w.Write(record(r))
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return s.f.Sync()
}

// Tail returns up to limit most-recently-appended rows in original
// append order, oldest of the window first. A limit at or beyond the
// total row count (or <= 0) returns the entire store.
func (s *Store) Tail(limit int) ([]models.Row, error) {
	rows, err := s.ScanAll()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

// ScanAll returns every row in append order.
func (s *Store) ScanAll() ([]models.Row, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err == io.EOF {
		return []models.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map header indices by column title so rows survive a file whose
	// columns were reordered or extended by hand.
	indices := make(map[string]int, len(header))
	for i, h := range header {
		indices[strings.TrimSpace(h)] = i
	}

	rows := []models.Row{}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		rows = append(rows, rowFromRecord(rec, indices))
	}

	return rows, nil
}

// record flattens a row into CSV field order.
func record(r models.Row) []string {
	return []string{
		r.Timestamp,
		r.DeviceID,
		r.SystemStatus,
		r.LapNumber,
		r.AFR,
		r.RPM,
		r.Temperature,
		r.TPS,
		r.MAPValue,
		r.Incline,
		r.Stroke,
		r.Latitude,
		r.Longitude,
		r.Speed,
		r.Satellites,
		r.AIClassification,
		r.ClassificationText,
		r.CoolingActive,
		r.FanOn,
		r.CurrentTemp,
		r.FreeHeap,
		r.Uptime,
		r.WiFiRSSI,
	}
}

// rowFromRecord rebuilds a row from one CSV record. Missing columns
// read as "" per the lenient decoding policy.
func rowFromRecord(rec []string, indices map[string]int) models.Row {
	get := func(title string) string {
		if idx, ok := indices[title]; ok && idx < len(rec) {
			return strings.TrimSpace(rec[idx])
		}
		return ""
	}

	return models.Row{
		Timestamp:          get("Timestamp"),
		DeviceID:           get("Device ID"),
		SystemStatus:       get("System Status"),
		LapNumber:          get("Lap Number"),
		AFR:                get("AFR"),
		RPM:                get("RPM"),
		Temperature:        get("Temperature"),
		TPS:                get("TPS"),
		MAPValue:           get("MAP Value"),
		Incline:            get("Incline"),
		Stroke:             get("Stroke"),
		Latitude:           get("Latitude"),
		Longitude:          get("Longitude"),
		Speed:              get("Speed"),
		Satellites:         get("Satellites"),
		AIClassification:   get("AI Classification"),
		ClassificationText: get("Classification Text"),
		CoolingActive:      get("Cooling Active"),
		FanOn:              get("Fan On"),
		CurrentTemp:        get("Current Temp"),
		FreeHeap:           get("Free Heap"),
		Uptime:             get("Uptime"),
		WiFiRSSI:           get("WiFi RSSI"),
	}
}
