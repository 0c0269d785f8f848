package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/api/ingest"
	"storefront/api/metrics"
	"storefront/api/models"
	"storefront/api/store"
)

const (
	maxTrackBodyBytes = 64 << 10
	searchEventName   = "search_query"
)

// EntrySubmitter takes ownership of an accepted entry.
type EntrySubmitter interface {
	Submit(entry models.AnalyticsEntry) bool
}

type AnalyticsHandlers struct {
	ingestor EntrySubmitter
	entries  store.EntryReader
	stats    store.StatsStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewAnalyticsHandlers wires the ingestion, read and statistics endpoints.
// stats may be nil when the configured store cannot aggregate.
func NewAnalyticsHandlers(ingestor EntrySubmitter, entries store.EntryReader, stats store.StatsStore, logger *slog.Logger) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		ingestor: ingestor,
		entries:  entries,
		stats:    stats,
		logger:   logger,
		now:      time.Now,
	}
}

// TrackEvent handles POST /api/track.
func (h *AnalyticsHandlers) TrackEvent(c *gin.Context) {
	var req models.TrackRequest
	if err := readBody(c, &req); err != nil {
		h.reject(c, err)
		return
	}

	name, err := ingest.ValidateEventName(req.EventName)
	if err != nil {
		h.reject(c, err)
		return
	}
	meta, err := ingest.ParseMetadata(req.Metadata)
	if err != nil {
		h.reject(c, err)
		return
	}

	h.accept(c, ingest.EventTypeFor(name), name, meta)
}

// TrackSearch handles POST /api/track/search.
func (h *AnalyticsHandlers) TrackSearch(c *gin.Context) {
	var req models.SearchTrackRequest
	if err := readBody(c, &req); err != nil {
		h.reject(c, err)
		return
	}

	eventType := models.EventTypeSearch
	if strings.TrimSpace(req.EventType) != "" {
		t, err := ingest.ValidateEventName(req.EventType)
		if err != nil {
			h.reject(c, err)
			return
		}
		eventType = t
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		h.reject(c, ingest.Invalid(ingest.ReasonMissingQuery, "query is required"))
		return
	}

	meta, err := ingest.ParseMetadata(req.Metadata)
	if err != nil {
		h.reject(c, err)
		return
	}
	// The tracker sends the page's URL query string under "query"; keep it
	// beside the search term.
	if pageQuery := meta.String("query"); pageQuery != "" {
		meta.Set("pageQuery", pageQuery)
	}
	meta.Set("query", query)

	h.accept(c, eventType, searchEventName, meta)
}

func (h *AnalyticsHandlers) accept(c *gin.Context, eventType, eventName string, meta *ingest.Metadata) {
	entry, err := ingest.NewEntry(eventType, eventName, meta, requestInfo(c), h.now())
	if err != nil {
		h.logger.Error("Failed to build analytics entry", "eventName", eventName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event"})
		return
	}

	metrics.EventsReceived.WithLabelValues(eventType).Inc()
	h.ingestor.Submit(entry)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *AnalyticsHandlers) reject(c *gin.Context, err error) {
	reason := ingest.ReasonInvalidJSON
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		reason = verr.Reason
	}
	metrics.EventsRejected.WithLabelValues(reason).Inc()
	h.logger.Debug("Rejected tracking submission", "path", c.FullPath(), "reason", reason, "error", err)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// readBody decodes a JSON body whatever the declared Content-Type, since
// unload beacons are sent as text/plain.
func readBody(c *gin.Context, dst any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTrackBodyBytes+1))
	if err != nil {
		return ingest.Invalid(ingest.ReasonInvalidJSON, "failed to read request body")
	}
	if len(body) > maxTrackBodyBytes {
		return ingest.Invalid(ingest.ReasonBodyTooLarge, "request body exceeds %d bytes", maxTrackBodyBytes)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return ingest.Invalid(ingest.ReasonInvalidJSON, "Invalid request body")
	}
	return nil
}

func requestInfo(c *gin.Context) ingest.RequestInfo {
	pageURL := c.Request.Referer()
	if pageURL == "" {
		pageURL = c.Request.URL.Path
	}
	return ingest.RequestInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		PageURL:   pageURL,
	}
}
