package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/api/models"
)

// MemoryAnalyticsStore is an EntryStore held in process memory, used for
// local development and tests. It applies the same retention window as the
// ClickHouse table: expired entries are invisible to reads and pruned on write.
type MemoryAnalyticsStore struct {
	mu        sync.RWMutex
	entries   []models.AnalyticsEntry
	retention time.Duration
	now       func() time.Time
}

func NewMemoryAnalyticsStore(retention time.Duration) *MemoryAnalyticsStore {
	return &MemoryAnalyticsStore{retention: retention, now: time.Now}
}

// SetClock replaces the store's time source.
func (s *MemoryAnalyticsStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryAnalyticsStore) expired(e models.AnalyticsEntry) bool {
	return e.CreatedAt.Before(s.now().Add(-s.retention))
}

func (s *MemoryAnalyticsStore) InsertAnalyticsEntries(ctx context.Context, entries []models.AnalyticsEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !s.expired(e) {
			kept = append(kept, e)
		}
	}
	s.entries = append(kept, entries...)
	return nil
}

func (s *MemoryAnalyticsStore) GetAnalyticsEntry(ctx context.Context, id string) (*models.AnalyticsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id && !s.expired(e) {
			found := e
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAnalyticsStore) ListAnalyticsEntries(ctx context.Context, f EntryFilter) ([]models.AnalyticsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AnalyticsEntry
	for _, e := range s.entries {
		if s.expired(e) {
			continue
		}
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.EventName != "" && e.EventName != f.EventName {
			continue
		}
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := f.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
