package table

import (
	"context"
	"sync"
	"time"
)

// Fetcher returns a raw dataset payload.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Store owns the session's current table. It is the single write boundary
// shared by the foreground and background paths: every read and mutation goes
// through its lock, and a refresh swaps the whole table at once.
type Store struct {
	mu         sync.RWMutex
	table      *Table
	generation uint64
	loadedAt   time.Time
	loader     Loader
}

// NewStore wraps t, or an empty table when t is nil.
func NewStore(t *Table, loader Loader) *Store {
	if t == nil {
		t = &Table{}
	}
	return &Store{table: t, loader: loader}
}

// Snapshot returns a deep copy of the current table.
func (s *Store) Snapshot() *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Len()
}

func (s *Store) Row(i int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Row(i)
}

// RowAt returns row i together with the generation it was read from.
func (s *Store) RowAt(i int) (Record, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.table.Row(i)
	return rec, s.generation, err
}

func (s *Store) Append(rec Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Append(rec)
}

func (s *Store) Update(i int, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Update(i, rec)
}

// UpdateIf replaces row i only while the store is still at generation gen.
// It reports false, without touching the table, when a refresh intervened.
func (s *Store) UpdateIf(gen uint64, i int, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false, nil
	}
	return true, s.table.Update(i, rec)
}

// Replace installs t wholesale and advances the generation.
func (s *Store) Replace(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
	s.generation++
	s.loadedAt = time.Now()
}

// Generation counts wholesale replacements. Row indices are only comparable
// within one generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// LoadedAt is the time of the last successful Replace.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Serialize writes the current table without copying it first.
func (s *Store) Serialize() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Serialize()
}

// Refresh fetches and parses a fresh payload and replaces the table with it.
// The lock is only held for the swap. On any failure the current table stays
// in place and the error is returned.
func (s *Store) Refresh(ctx context.Context, f Fetcher) error {
	payload, err := f.Fetch(ctx)
	if err != nil {
		return err
	}
	t, err := s.loader.Load(payload)
	if err != nil {
		return err
	}
	s.Replace(t)
	return nil
}
