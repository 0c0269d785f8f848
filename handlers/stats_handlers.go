package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/api/models"
	"storefront/api/store"
	"storefront/api/utils"
)

const (
	defaultStatsWindow = 7 * 24 * time.Hour
	readTimeout        = 10 * time.Second
)

// ListEntries handles GET /api/entries.
func (h *AnalyticsHandlers) ListEntries(c *gin.Context) {
	filter := store.EntryFilter{
		EventType: c.Query("eventType"),
		EventName: c.Query("eventName"),
		SessionID: c.Query("sessionId"),
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		filter.Limit = limit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	entries, err := h.entries.ListAnalyticsEntries(ctx, filter)
	if err != nil {
		h.logger.Error("Error listing analytics entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analytics entries"})
		return
	}
	if entries == nil {
		entries = []models.AnalyticsEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// GetEntry handles GET /api/entries/:id.
func (h *AnalyticsHandlers) GetEntry(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	entry, err := h.entries.GetAnalyticsEntry(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analytics entry not found"})
		return
	}
	if err != nil {
		h.logger.Error("Error getting analytics entry", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analytics entry"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetEventCountsOverTime handles GET /api/stats/event-counts.
func (h *AnalyticsHandlers) GetEventCountsOverTime(c *gin.Context) {
	if !h.statsAvailable(c) {
		return
	}
	interval, ok := requireInterval(c)
	if !ok {
		return
	}
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	results, err := h.stats.GetEventCountsOverTime(ctx, interval, start, end, c.Query("eventType"))
	if err != nil {
		h.logger.Error("Error getting event counts over time", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetUniqueSessionsOverTime handles GET /api/stats/unique-sessions.
func (h *AnalyticsHandlers) GetUniqueSessionsOverTime(c *gin.Context) {
	if !h.statsAvailable(c) {
		return
	}
	interval, ok := requireInterval(c)
	if !ok {
		return
	}
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	results, err := h.stats.GetUniqueSessionsOverTime(ctx, interval, start, end)
	if err != nil {
		h.logger.Error("Error getting unique sessions over time", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique session statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetTopNPagePaths handles GET /api/stats/top-paths.
func (h *AnalyticsHandlers) GetTopNPagePaths(c *gin.Context) {
	if !h.statsAvailable(c) {
		return
	}
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if limitParam := c.Query("limit"); limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	results, err := h.stats.GetTopNPagePaths(ctx, start, end, limit)
	if err != nil {
		h.logger.Error("Error getting top page paths", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top page paths statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetAverageMetadataValue handles GET /api/stats/average-metadata.
func (h *AnalyticsHandlers) GetAverageMetadataValue(c *gin.Context) {
	if !h.statsAvailable(c) {
		return
	}
	eventName := c.Query("eventName")
	paramName := c.Query("paramName")
	if eventName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventName query parameter is required"})
		return
	}
	if paramName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paramName query parameter is required (e.g., 'duration', 'depth')"})
		return
	}
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readTimeout)
	defer cancel()

	avgValue, err := h.stats.GetAverageMetadataValue(ctx, eventName, paramName, start, end)
	if err != nil {
		h.logger.Error("Error getting average metadata value",
			"eventName", eventName, "paramName", paramName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average metadata statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"eventName":    eventName,
		"paramName":    paramName,
		"startDate":    start.Format(time.RFC3339),
		"endDate":      end.Format(time.RFC3339),
		"averageValue": avgValue,
	})
}

func (h *AnalyticsHandlers) statsAvailable(c *gin.Context) bool {
	if h.stats == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Statistics require the clickhouse store driver"})
		return false
	}
	return true
}

func requireInterval(c *gin.Context) (string, bool) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return "", false
	}
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'interval'. Use one of: Minute, Hour, Day, Week, Month, Quarter, Year"})
		return "", false
	}
	return interval, true
}

// parseRange reads optional RFC 3339 start/end parameters, defaulting to the
// last seven days.
func (h *AnalyticsHandlers) parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := h.now().UTC()
	start, end := now.Add(-defaultStatsWindow), now

	if startParam := c.Query("start"); startParam != "" {
		parsed, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return time.Time{}, time.Time{}, false
		}
		start = parsed
	}
	if endParam := c.Query("end"); endParam != "" {
		parsed, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return time.Time{}, time.Time{}, false
		}
		end = parsed
	}
	if !start.Before(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'start' must be before 'end'"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
