package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/api/metrics"
	"storefront/api/models"
	"storefront/api/store"
)

const DefaultMaxInFlight = 256

// Sink is where accepted entries end up.
type Sink interface {
	Name() string
	Write(ctx context.Context, entries []models.AnalyticsEntry) error
}

// StoreSink writes entries straight into an entry store.
type StoreSink struct {
	w store.EntryWriter
}

func NewStoreSink(w store.EntryWriter) *StoreSink {
	return &StoreSink{w: w}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, entries []models.AnalyticsEntry) error {
	return s.w.InsertAnalyticsEntries(ctx, entries)
}

// Ingestor writes each submitted entry to its sink on a separate goroutine,
// bounded by its own timeout rather than the request's. Failures are logged
// and counted; nothing is retried. When MaxInFlight writes are already
// running, further entries are dropped.
type Ingestor struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	slots   chan struct{}
	wg      sync.WaitGroup
}

func NewIngestor(sink Sink, timeout time.Duration, maxInFlight int, logger *slog.Logger) *Ingestor {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Ingestor{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		slots:   make(chan struct{}, maxInFlight),
	}
}

// Submit hands the entry off and returns immediately. It reports false if the
// entry was dropped because the ingestor is saturated.
func (i *Ingestor) Submit(entry models.AnalyticsEntry) bool {
	select {
	case i.slots <- struct{}{}:
	default:
		metrics.EventsDropped.Inc()
		i.logger.Warn("Ingestor saturated, dropping entry", "id", entry.ID, "eventType", entry.EventType)
		return false
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer func() { <-i.slots }()
		i.write(entry)
	}()
	return true
}

func (i *Ingestor) write(entry models.AnalyticsEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	start := time.Now()
	err := i.sink.Write(ctx, []models.AnalyticsEntry{entry})
	metrics.WriteDuration.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		metrics.EventsFailed.WithLabelValues(i.sink.Name()).Inc()
		i.logger.Error("Failed to persist analytics entry",
			"sink", i.sink.Name(),
			"id", entry.ID,
			"eventType", entry.EventType,
			"eventName", entry.EventName,
			"error", err)
		return
	}
	metrics.EventsPersisted.Inc()
	i.logger.Debug("Persisted analytics entry", "sink", i.sink.Name(), "id", entry.ID)
}

// Wait blocks until all submitted writes have finished.
func (i *Ingestor) Wait() {
	i.wg.Wait()
}
