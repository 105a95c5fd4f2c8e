// Package ingest normalizes inbound telemetry and drives the
// persist-then-broadcast pipeline.
package ingest

import (
	"log"
	"time"

	"race-telemetry/internal/models"
)

// Store persists flattened rows.
type Store interface {
	Append(models.Row) error
}

// Broadcaster fans one record out to connected viewers.
type Broadcaster interface {
	Publish(models.Payload)
}

// Service accepts one payload at a time: it assigns the server
// timestamp, flattens, appends to the store, and publishes to the
// broadcaster.
//
// The publish is deliberately not gated on the append outcome: a
// failed write still reaches live viewers while the acknowledgment
// reports the failure. This best-effort-live-view-over-durable-record
// behavior is intentional and callers must not "fix" it by suppressing
// the broadcast.
type Service struct {
	store       Store
	broadcaster Broadcaster
	now         func() time.Time
}

// New builds an ingest service over the given store and broadcaster.
func New(s Store, b Broadcaster) *Service {
	return &Service{store: s, broadcaster: b, now: time.Now}
}

// Ingest processes one payload. The returned row is what was written
// (or attempted); the error reflects only the persistence outcome.
func (s *Service) Ingest(p models.Payload) (models.Row, error) {
	// The server clock assigns the timestamp at receipt, overriding
	// any client-supplied value. Ordering across clock-skewed devices
	// follows from this.
	p.Timestamp = s.now().UTC().Format(models.TimestampLayout)

	row := p.Flatten()
	err := s.store.Append(row)
	if err != nil {
		log.Printf("error saving telemetry: %v", err)
	}

	s.broadcaster.Publish(p)
	return row, err
}
