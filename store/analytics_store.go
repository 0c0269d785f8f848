package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"storefront/api/models"
	"storefront/api/utils"
)

const entryColumns = `id, event_type, event_name, session_id, page_url, page_path, user_agent, ip_address, metadata, created_at`

// AnalyticsStore keeps analytics entries in ClickHouse. The table's TTL removes
// expired rows eventually; every read also filters them out so an expired
// entry is never returned before the merge runs.
type AnalyticsStore struct {
	db        *sql.DB
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewAnalyticsStore(db *sql.DB, retention time.Duration, logger *slog.Logger) *AnalyticsStore {
	return &AnalyticsStore{
		db:        db,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *AnalyticsStore) cutoff() time.Time {
	return s.now().UTC().Add(-s.retention)
}

func (s *AnalyticsStore) InsertAnalyticsEntries(ctx context.Context, entries []models.AnalyticsEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO analytics_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	appended := 0
	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.ID,
			e.EventType,
			e.EventName,
			e.SessionID,
			e.PageURL,
			e.PagePath,
			e.UserAgent,
			e.IPAddress,
			string(e.Metadata),
			e.CreatedAt,
		)
		if err != nil {
			s.logger.Error("Error appending entry to batch", "id", e.ID, "error", err)
			continue
		}
		appended++
	}
	if appended == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("failed to append any of %d entries", len(entries))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("Inserted analytics entries", "count", appended)
	return nil
}

func (s *AnalyticsStore) GetAnalyticsEntry(ctx context.Context, id string) (*models.AnalyticsEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM analytics_entries WHERE id = ? AND created_at >= ? LIMIT 1`

	e, err := scanEntry(s.db.QueryRowContext(ctx, query, id, s.cutoff()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics entry %s: %w", id, err)
	}
	return e, nil
}

func (s *AnalyticsStore) ListAnalyticsEntries(ctx context.Context, f EntryFilter) ([]models.AnalyticsEntry, error) {
	where := []string{"created_at >= ?"}
	args := []interface{}{s.cutoff()}

	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.EventName != "" {
		where = append(where, "event_name = ?")
		args = append(args, f.EventName)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	args = append(args, f.limit())

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_entries
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ?
	`, entryColumns, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics entries: %w", err)
	}
	defer rows.Close()

	var results []models.AnalyticsEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.logger.Error("Error scanning analytics entry row", "error", err)
			continue
		}
		results = append(results, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error while listing analytics entries: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.AnalyticsEntry, error) {
	var (
		e        models.AnalyticsEntry
		metadata string
	)
	err := row.Scan(
		&e.ID,
		&e.EventType,
		&e.EventName,
		&e.SessionID,
		&e.PageURL,
		&e.PagePath,
		&e.UserAgent,
		&e.IPAddress,
		&metadata,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata != "" {
		e.Metadata = []byte(metadata)
	}
	return &e, nil
}

// clamp keeps a query window inside the retention period.
func (s *AnalyticsStore) clamp(start time.Time) time.Time {
	if c := s.cutoff(); start.Before(c) {
		return c
	}
	return start
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{s.clamp(start), end}
	selectCols := fmt.Sprintf("toStartOf%s(created_at) AS time_bucket, count() AS total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE created_at >= ? AND created_at <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_entries
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []models.CountByTime
	for rows.Next() {
		var (
			current     models.CountByTime
			eventTypeDB string
		)
		if isFilteringByType {
			err = rows.Scan(&current.Time, &current.Count, &eventTypeDB)
			current.EventType = &eventTypeDB
		} else {
			err = rows.Scan(&current.Time, &current.Count)
		}
		if err != nil {
			s.logger.Error("Error scanning row for event counts over time", "error", err)
			continue
		}
		results = append(results, current)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetUniqueSessionsOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(created_at) AS time_bucket, uniq(session_id) AS unique_sessions
		FROM analytics_entries
		WHERE created_at >= ? AND created_at <= ? AND session_id != ''
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.db.QueryContext(ctx, query, s.clamp(start), end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique sessions over time: %w", err)
	}
	defer rows.Close()

	var results []models.CountByTime
	for rows.Next() {
		var current models.CountByTime
		if err := rows.Scan(&current.Time, &current.Count); err != nil {
			s.logger.Error("Error scanning row for unique sessions", "error", err)
			continue
		}
		results = append(results, current)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique sessions: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page_path, count() AS view_count
		FROM analytics_entries
		WHERE event_type = ? AND page_path != '' AND created_at >= ? AND created_at <= ?
		GROUP BY page_path
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, models.EventTypePageView, s.clamp(start), end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top page paths: %w", err)
	}
	defer rows.Close()

	var results []models.TopPathResult
	for rows.Next() {
		var r models.TopPathResult
		if err := rows.Scan(&r.PagePath, &r.Count); err != nil {
			s.logger.Error("Error scanning row for top page paths", "error", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top page paths: %w", err)
	}
	return results, nil
}

// GetAverageMetadataValue averages a numeric metadata key across events with
// the given name, e.g. the "duration" of page_exit events.
func (s *AnalyticsStore) GetAverageMetadataValue(ctx context.Context, eventName, paramName string, start, end time.Time) (float64, error) {
	if paramName == "" {
		return 0, fmt.Errorf("parameter name for average calculation cannot be empty")
	}

	query := `
		SELECT avg(JSONExtractFloat(metadata, ?))
		FROM analytics_entries
		WHERE event_name = ? AND created_at >= ? AND created_at <= ?
	`

	var avgValue float64
	err := s.db.QueryRowContext(ctx, query, paramName, eventName, s.clamp(start), end).Scan(&avgValue)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query average of metadata value '%s': %w", paramName, err)
	}

	// avg() over no rows is NaN, which JSON cannot carry.
	if math.IsNaN(avgValue) {
		return 0, nil
	}
	return avgValue, nil
}
