// Package stats computes aggregate statistics over decoded telemetry
// rows. Compute is a pure function over the row sequence; it never
// touches storage.
package stats

import (
	"math"
	"strconv"

	"race-telemetry/internal/models"
)

// Compute aggregates avg/max/min/latest for the fixed numeric field
// set over rows in append order. Empty input yields the zero summary,
// which marshals to {}.
func Compute(rows []models.Row) models.StatsSummary {
	if len(rows) == 0 {
		return models.StatsSummary{}
	}

	return models.StatsSummary{
		RPM:          fieldStats(rows, func(r models.Row) string { return r.RPM }),
		Temperature:  fieldStats(rows, func(r models.Row) string { return r.Temperature }),
		AFR:          fieldStats(rows, func(r models.Row) string { return r.AFR }),
		TPS:          fieldStats(rows, func(r models.Row) string { return r.TPS }),
		MAPValue:     fieldStats(rows, func(r models.Row) string { return r.MAPValue }),
		TotalRecords: len(rows),
		LastUpdate:   rows[len(rows)-1].Timestamp,
	}
}

func fieldStats(rows []models.Row, value func(models.Row) string) *models.FieldStats {
	fs := &models.FieldStats{}
	var sum float64

	for i, r := range rows {
		v := parseFloat(value(r))
		if i == 0 || v > fs.Max {
			fs.Max = v
		}
		if i == 0 || v < fs.Min {
			fs.Min = v
		}
		sum += v
	}

	fs.Avg = sum / float64(len(rows))
	fs.Latest = parseFloat(value(rows[len(rows)-1]))
	return fs
}

// parseFloat applies the lenient decoding policy: missing, malformed,
// or NaN-producing input reads as 0.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}
