package config

import "sync"

// Store holds the live configuration shared between the control surface
// and run construction. Updates take effect on the next run; reads get a
// copy so callers never see a half-applied update.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a store seeded with cfg
func NewStore(cfg *Config) *Store {
	return &Store{cfg: *cfg}
}

// Get returns a copy of the current configuration
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update replaces the configuration. The caller validates first.
func (s *Store) Update(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
