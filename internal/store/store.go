// Package store keeps the most recent reading for each sensor type.
package store

import (
	"sync"

	"github.com/banshee-data/telemetry.report/internal/sensor"
)

// Store is a latest-value cache with one slot per sensor type. Slots start
// empty and are only filled by Update; there are no placeholder readings.
// The pipeline's parse loop is the single writer, the query layer reads
// concurrently. Locks are held only for a map assignment or lookup.
type Store struct {
	mu     sync.RWMutex
	latest map[sensor.Type]sensor.Reading
}

// New returns an empty Store.
func New() *Store {
	return &Store{latest: make(map[sensor.Type]sensor.Reading)}
}

// Update replaces the reading held for t. Last write wins.
func (s *Store) Update(t sensor.Type, r sensor.Reading) {
	s.mu.Lock()
	s.latest[t] = r
	s.mu.Unlock()
}

// Read returns the reading held for t, or false if none has been stored
// since the process started.
func (s *Store) Read(t sensor.Type) (sensor.Reading, bool) {
	s.mu.RLock()
	r, ok := s.latest[t]
	s.mu.RUnlock()
	return r, ok
}

// Snapshot returns a copy of every present entry.
func (s *Store) Snapshot() map[sensor.Type]sensor.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[sensor.Type]sensor.Reading, len(s.latest))
	for t, r := range s.latest {
		out[t] = r
	}
	return out
}

// Len returns the number of sensor types holding a reading.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}
