// Package history keeps the last loaded scan history and statistics and
// reloads them from the backend.
package history

import (
	"sync"
	"time"

	"github.com/hugh/zerogap/internal/models"
)

// Store holds the most recent successful loads. Each value is only ever
// replaced as a whole.
type Store struct {
	mu            sync.RWMutex
	entries       []models.HistoryEntry
	stats         models.Statistics
	entriesLoaded time.Time
	statsLoaded   time.Time
}

func NewStore() *Store {
	return &Store{entries: []models.HistoryEntry{}}
}

func (s *Store) Entries() []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.HistoryEntry{}, s.entries...)
}

func (s *Store) Stats() models.Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// LoadedAt returns when history and statistics were last replaced. Zero
// means never.
func (s *Store) LoadedAt() (entries, stats time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLoaded, s.statsLoaded
}

func (s *Store) SetEntries(entries []models.HistoryEntry, at time.Time) {
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.entriesLoaded = at
}

func (s *Store) SetStats(stats models.Statistics, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	s.statsLoaded = at
}
