// models/analytics.go
package models

import (
	"encoding/json"
	"time"
)

const (
	EventTypePageView = "page_view"
	EventTypeEvent    = "event"
	EventTypeSearch   = "search"
)

// AnalyticsEntry is a single persisted tracking record. Everything except
// EventName, SessionID, PagePath and Metadata is stamped by the server at
// ingestion. PagePath is the route the visitor was on, lifted from the
// metadata's "path" key; PageURL is what the server saw.
type AnalyticsEntry struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	EventName string          `json:"eventName,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	PageURL   string          `json:"pageUrl"`
	PagePath  string          `json:"pagePath,omitempty"`
	UserAgent string          `json:"userAgent,omitempty"`
	IPAddress string          `json:"ipAddress,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// TrackRequest is the body of POST /api/track.
type TrackRequest struct {
	EventName string          `json:"eventName"`
	Metadata  json.RawMessage `json:"metadata"`
}

// SearchTrackRequest is the body of POST /api/track/search.
type SearchTrackRequest struct {
	EventType string          `json:"eventType"`
	Query     string          `json:"query"`
	Metadata  json.RawMessage `json:"metadata"`
}

type TopPathResult struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

type CountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}
