// Package store owns the persistent set of active alerts and the
// change bus that fans store mutations out to SSE subscribers. All
// mutations run under a single writer; snapshots are copies and may be
// read concurrently.
package store

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
)

// Store is the persistent ordered list of active alert records,
// serialized as a pretty-printed JSON array.
type Store struct {
	path string
	bus  *Bus

	mu     sync.Mutex
	alerts []alert.Alert
}

// Open loads the store from path, applying the startup filter. A
// missing or empty file starts the store empty; malformed content is
// logged and discarded rather than aborting.
func Open(path string, bus *Bus) *Store {
	s := &Store{path: path, bus: bus}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Alert store unreadable, starting empty")
		}
		return s
	}
	if len(data) == 0 {
		return s
	}

	var records []alert.Alert
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Alert store malformed, starting empty")
		return s
	}

	s.alerts = applyStartupFilter(records)
	log.Info().Int("count", len(s.alerts)).Str("path", path).Msg("Loaded alert store")
	return s
}

// applyStartupFilter deduplicates records sharing an id, keeping only
// the latest-issued copy. Records without an id pass through as-is.
func applyStartupFilter(records []alert.Alert) []alert.Alert {
	latest := make(map[string]int)
	var out []alert.Alert

	for _, rec := range records {
		if rec.ID == "" {
			out = append(out, rec)
			continue
		}
		if idx, ok := latest[rec.ID]; ok {
			if issuedAfter(rec, out[idx]) {
				out[idx] = rec
			}
			continue
		}
		latest[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}

func issuedAfter(a, b alert.Alert) bool {
	if a.Issued == nil {
		return false
	}
	if b.Issued == nil {
		return true
	}
	return a.Issued.After(*b.Issued)
}

// Snapshot returns a point-in-time copy of all records.
func (s *Store) Snapshot() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]alert.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// GeometryByID returns the stored geometry for an alert id, or nil.
// Update products sometimes omit the polygon their NEW carried.
func (s *Store) GeometryByID(id string) []alert.Ring {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.alerts {
		if rec.ID == id {
			return rec.Geometry
		}
	}
	return nil
}

// Upsert replaces any stored record whose id matches an incoming one,
// appends the incoming records, persists, and publishes a NEW event per
// previously-unseen id and UPDATE per replaced id.
func (s *Store) Upsert(records []alert.Alert) {
	if len(records) == 0 {
		return
	}

	s.mu.Lock()

	incoming := make(map[string]bool, len(records))
	for _, rec := range records {
		incoming[rec.ID] = true
	}

	existed := make(map[string]bool)
	kept := s.alerts[:0:len(s.alerts)]
	for _, rec := range s.alerts {
		if rec.ID != "" && incoming[rec.ID] {
			existed[rec.ID] = true
			continue
		}
		kept = append(kept, rec)
	}
	s.alerts = append(kept, records...)

	s.persistLocked()
	s.mu.Unlock()

	for i := range records {
		rec := records[i]
		evType := EventNew
		if existed[rec.ID] {
			evType = EventUpdate
		}
		s.publish(Event{Type: evType, Alert: &rec})
		log.Info().Str("id", rec.ID).Str("name", rec.Name).Str("event", string(evType)).Msg("Alert stored")
	}
}

// DeleteByID removes the record with the given id, persists and emits
// an UPDATE. Reports whether a record was removed.
func (s *Store) DeleteByID(id string) bool {
	s.mu.Lock()

	idx := -1
	for i, rec := range s.alerts {
		if rec.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	removed := s.alerts[idx]
	s.alerts = append(s.alerts[:idx], s.alerts[idx+1:]...)
	s.persistLocked()
	s.mu.Unlock()

	s.publish(Event{Type: EventUpdate, Alert: &removed})
	log.Info().Str("id", id).Msg("Alert deleted")
	return true
}

// DeleteByVTECKey removes the first record whose identity matches the
// VTEC tuple, including any _<idx> split parts sharing the base id.
func (s *Store) DeleteByVTECKey(key alert.Key) bool {
	base := key.Office + "." + key.Phenomena + "." + key.Significance + "." + key.EventTrackingNumber

	s.mu.Lock()
	idx := -1
	for i, rec := range s.alerts {
		if rec.ID == base || strings.HasPrefix(rec.ID, base+"_") {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	removed := s.alerts[idx]
	s.alerts = append(s.alerts[:idx], s.alerts[idx+1:]...)
	s.persistLocked()
	s.mu.Unlock()

	s.publish(Event{Type: EventUpdate, Alert: &removed})
	log.Info().Str("id", removed.ID).Str("vtec_key", base).Msg("Alert deleted by VTEC key")
	return true
}

// SweepExpired drops every record whose expiry is before now. On any
// removal it persists and publishes a single bulk UPDATE. Returns the
// number of records dropped.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()

	kept := s.alerts[:0:len(s.alerts)]
	dropped := 0
	for _, rec := range s.alerts {
		if rec.Expired(now) {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	if dropped == 0 {
		s.mu.Unlock()
		return 0
	}

	s.alerts = kept
	s.persistLocked()
	s.mu.Unlock()

	s.publish(Event{Type: EventUpdate, Bulk: true})
	log.Info().Int("dropped", dropped).Msg("Expired alerts swept")
	return dropped
}

// persistLocked writes the store file. Callers hold s.mu.
func (s *Store) persistLocked() {
	data, err := json.MarshalIndent(s.alerts, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode alert store")
		return
	}
	if s.alerts == nil {
		data = []byte("[]")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to write alert store")
	}
}

func (s *Store) publish(ev Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
