package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"race-telemetry/internal/models"
	"race-telemetry/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "data", "sensor_data.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func rowWithRPM(ts, rpm string) models.Row {
	p := models.Payload{Timestamp: ts, Sensors: &models.Sensors{}}
	r := p.Flatten()
	r.RPM = rpm
	return r
}

func TestOpenCreatesHeaderOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sensor_data.csv")
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t,
		"Timestamp,Device ID,System Status,Lap Number,AFR,RPM,Temperature,TPS,"+
			"MAP Value,Incline,Stroke,Latitude,Longitude,Speed,Satellites,"+
			"AI Classification,Classification Text,Cooling Active,Fan On,"+
			"Current Temp,Free Heap,Uptime,WiFi RSSI",
		lines[0])

	rows, err := s.ScanAll()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAppendThenTailPreservesOrder(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Append(rowWithRPM("2026-08-28T10:00:00.000Z", "1000")))
	require.NoError(t, s.Append(rowWithRPM("2026-08-28T10:00:01.000Z", "2000")))
	require.NoError(t, s.Append(rowWithRPM("2026-08-28T10:00:02.000Z", "3000")))

	rows, err := s.Tail(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2000", rows[0].RPM)
	assert.Equal(t, "3000", rows[1].RPM)
}

func TestTailBeyondTotalReturnsEverything(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Append(rowWithRPM("2026-08-28T10:00:00.000Z", "1000")))
	require.NoError(t, s.Append(rowWithRPM("2026-08-28T10:00:01.000Z", "2000")))

	rows, err := s.Tail(50)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1000", rows[0].RPM)
	assert.Equal(t, "2000", rows[1].RPM)
}

func TestScanAllRoundTrip(t *testing.T) {
	s := openStore(t)

	in := models.Payload{
		Timestamp:    "2026-08-28T10:00:00.000Z",
		DeviceID:     "esp32-01",
		SystemStatus: "NORMAL",
		Sensors:      &models.Sensors{RPM: 8500, AFR: 13.2},
		Cooling:      &models.Cooling{SystemActive: true},
	}
	require.NoError(t, s.Append(in.Flatten()))

	rows, err := s.ScanAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, "2026-08-28T10:00:00.000Z", got.Timestamp)
	assert.Equal(t, "esp32-01", got.DeviceID)
	assert.Equal(t, "NORMAL", got.SystemStatus)
	assert.Equal(t, "8500", got.RPM)
	assert.Equal(t, "13.2", got.AFR)
	assert.Equal(t, "true", got.CoolingActive)
	assert.Equal(t, "false", got.FanOn)
	assert.Equal(t, "0", got.Satellites)
}

func TestReopenAppendsWithoutRewriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.csv")

	s, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(rowWithRPM("2026-08-28T10:00:00.000Z", "1000")))
	require.NoError(t, s.Close())

	s, err = store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append(rowWithRPM("2026-08-28T10:00:01.000Z", "2000")))

	rows, err := s.ScanAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1000", rows[0].RPM)
	assert.Equal(t, "2000", rows[1].RPM)

	// Exactly one header line.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "Timestamp,"))
}

func TestScanAllToleratesShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.csv")

	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()

	// A truncated row, as a crashed writer might leave behind.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2026-08-28T10:00:00.000Z,esp32-01,NORMAL\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := s.ScanAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "esp32-01", rows[0].DeviceID)
	assert.Equal(t, "", rows[0].RPM) // missing column reads empty
}
