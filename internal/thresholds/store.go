// Package thresholds keeps the per-metric bounds used by the threshold detector.
package thresholds

import (
	"sort"
	"sync"

	"github.com/koperasi/anomaly-engine/internal/models"
)

// Store maps metric names to thresholds. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]models.Threshold
}

// NewStore returns a store seeded with the default cooperative metric thresholds.
func NewStore() *Store {
	s := NewEmptyStore()
	for metric, threshold := range Defaults() {
		s.entries[metric] = threshold
	}
	return s
}

// NewEmptyStore returns a store without any preset.
func NewEmptyStore() *Store {
	return &Store{entries: make(map[string]models.Threshold)}
}

// Set replaces any prior threshold for metric.
func (s *Store) Set(metric string, threshold models.Threshold) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[metric] = threshold.Clone()
}

// Get returns the threshold for metric.
func (s *Store) Get(metric string) (models.Threshold, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	threshold, ok := s.entries[metric]
	if !ok {
		return models.Threshold{}, false
	}
	return threshold.Clone(), true
}

// Delete removes the threshold for metric.
func (s *Store) Delete(metric string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, metric)
}

// Metrics lists the registered metric names in sorted order.
func (s *Store) Metrics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics := make([]string, 0, len(s.entries))
	for metric := range s.entries {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	return metrics
}

// All returns a copy of every registered threshold.
func (s *Store) All() map[string]models.Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Threshold, len(s.entries))
	for metric, threshold := range s.entries {
		out[metric] = threshold.Clone()
	}
	return out
}
