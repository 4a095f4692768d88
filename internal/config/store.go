package config

import "sync/atomic"

// Store hands out immutable configuration snapshots. Readers call
// Current and keep using the returned pointer for the duration of one
// operation; a reload swaps the pointer without touching the old value.
type Store struct {
	cur atomic.Pointer[Config]
}

// NewStore creates a store seeded with the initial configuration.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

// Current returns the active configuration snapshot.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Replace swaps in a new configuration and returns the previous one.
func (s *Store) Replace(cfg *Config) *Config {
	return s.cur.Swap(cfg)
}
