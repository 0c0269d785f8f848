// Package store persists analytics entries and operator accounts.
package store

import (
	"context"
	"errors"
	"time"

	"storefront/api/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAccountExists = errors.New("account already exists")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// EntryWriter accepts newly ingested analytics entries.
type EntryWriter interface {
	InsertAnalyticsEntries(ctx context.Context, entries []models.AnalyticsEntry) error
}

// EntryReader reads back entries that are still within the retention window.
type EntryReader interface {
	GetAnalyticsEntry(ctx context.Context, id string) (*models.AnalyticsEntry, error)
	ListAnalyticsEntries(ctx context.Context, f EntryFilter) ([]models.AnalyticsEntry, error)
}

type EntryStore interface {
	EntryWriter
	EntryReader
}

// StatsStore answers the aggregate queries behind /api/stats.
type StatsStore interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.CountByTime, error)
	GetUniqueSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.CountByTime, error)
	GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error)
	GetAverageMetadataValue(ctx context.Context, eventName, paramName string, start, end time.Time) (float64, error)
}

// EntryFilter narrows ListAnalyticsEntries. Empty fields match everything.
type EntryFilter struct {
	EventType string
	EventName string
	SessionID string
	Limit     int
}

func (f EntryFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}
