package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/models"
)

const retention = 90 * 24 * time.Hour

func entryAt(id string, createdAt time.Time) models.AnalyticsEntry {
	return models.AnalyticsEntry{
		ID:        id,
		EventType: models.EventTypeEvent,
		EventName: "add_to_cart",
		SessionID: "sess-" + id,
		PageURL:   "https://shop.example.com/products/" + id,
		CreatedAt: createdAt,
	}
}

func TestMemoryStore_InsertThenRead(t *testing.T) {
	s := NewMemoryAnalyticsStore(retention)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertAnalyticsEntries(ctx, []models.AnalyticsEntry{entryAt("a", now)}))

	got, err := s.GetAnalyticsEntry(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "add_to_cart", got.EventName)
	assert.Equal(t, now, got.CreatedAt)

	_, err = s.GetAnalyticsEntry(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpiredEntriesAreNeverReturned(t *testing.T) {
	s := NewMemoryAnalyticsStore(retention)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertAnalyticsEntries(ctx, []models.AnalyticsEntry{
		entryAt("fresh", now),
		entryAt("old", now),
	}))

	// age one entry past the retention window directly in storage
	s.mu.Lock()
	for i := range s.entries {
		if s.entries[i].ID == "old" {
			s.entries[i].CreatedAt = now.Add(-retention - time.Minute)
		}
	}
	s.mu.Unlock()

	_, err := s.GetAnalyticsEntry(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListAnalyticsEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].ID)

	// the next write prunes it for good
	require.NoError(t, s.InsertAnalyticsEntries(ctx, nil))
	s.mu.RLock()
	assert.Len(t, s.entries, 1)
	s.mu.RUnlock()
}

func TestMemoryStore_ExpiryFollowsClock(t *testing.T) {
	s := NewMemoryAnalyticsStore(retention)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.InsertAnalyticsEntries(ctx, []models.AnalyticsEntry{entryAt("a", start)}))

	now = start.Add(89 * 24 * time.Hour)
	_, err := s.GetAnalyticsEntry(ctx, "a")
	assert.NoError(t, err)

	now = start.Add(91 * 24 * time.Hour)
	_, err = s.GetAnalyticsEntry(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListFiltersAndOrders(t *testing.T) {
	s := NewMemoryAnalyticsStore(retention)
	ctx := context.Background()
	now := time.Now().UTC()

	var entries []models.AnalyticsEntry
	for i := 0; i < 5; i++ {
		e := entryAt(fmt.Sprint(i), now.Add(time.Duration(i)*time.Second))
		if i%2 == 0 {
			e.EventType = models.EventTypePageView
			e.EventName = "page_view"
		}
		entries = append(entries, e)
	}
	require.NoError(t, s.InsertAnalyticsEntries(ctx, entries))

	views, err := s.ListAnalyticsEntries(ctx, EntryFilter{EventType: models.EventTypePageView})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "4", views[0].ID)
	assert.Equal(t, "0", views[2].ID)

	limited, err := s.ListAnalyticsEntries(ctx, EntryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	bySession, err := s.ListAnalyticsEntries(ctx, EntryFilter{SessionID: "sess-3"})
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "add_to_cart", bySession[0].EventName)
}

func TestEntryFilter_Limit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, EntryFilter{}.limit())
	assert.Equal(t, MaxListLimit, EntryFilter{Limit: 10_000}.limit())
	assert.Equal(t, 7, EntryFilter{Limit: 7}.limit())
}
