package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/api/metrics"
	"storefront/api/models"
	"storefront/api/store"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries to a topic, keyed by session so one visitor's
// events land on the same partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		MaxAttempts:            1,
	}
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, entries []models.AnalyticsEntry) error {
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
		key := e.SessionID
		if key == "" {
			key = e.ID
		}
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: value})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d entries: %w", len(msgs), err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		Topic:           topic,
		GroupID:         groupID,
		MinBytes:        10e3, // 10KB
		MaxBytes:        10e6, // 10MB
		MaxWait:         1 * time.Second,
		ReadLagInterval: -1,
		StartOffset:     kafka.FirstOffset,
	})
}

const (
	DefaultRelayBatchSize     = 500
	DefaultRelayFlushInterval = 2 * time.Second
	DefaultRelayRetryBackoff  = time.Second
)

// Relay drains the analytics topic into the entry store in batches. Offsets
// are committed after each insert attempt whether or not it succeeded, so a
// failed batch is logged and lost rather than replayed.
type Relay struct {
	reader        messageReader
	store         store.EntryWriter
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	retryBackoff  time.Duration
	writeTimeout  time.Duration
}

func NewRelay(reader messageReader, w store.EntryWriter, writeTimeout time.Duration, logger *slog.Logger) *Relay {
	return &Relay{
		reader:        reader,
		store:         w,
		logger:        logger,
		batchSize:     DefaultRelayBatchSize,
		flushInterval: DefaultRelayFlushInterval,
		retryBackoff:  DefaultRelayRetryBackoff,
		writeTimeout:  writeTimeout,
	}
}

// Run consumes until ctx is cancelled, flushing whatever is pending on the way
// out. It returns an error only if the reader is closed underneath it.
func (r *Relay) Run(ctx context.Context) error {
	var (
		batch   []models.AnalyticsEntry
		pending []kafka.Message
	)
	deadline := time.Now().Add(r.flushInterval)

	for {
		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()

		switch {
		case err == nil:
			pending = append(pending, msg)
			var entry models.AnalyticsEntry
			if err := json.Unmarshal(msg.Value, &entry); err != nil || entry.ID == "" {
				r.logger.Warn("Skipping malformed relay message",
					"partition", msg.Partition, "offset", msg.Offset, "error", err)
			} else {
				batch = append(batch, entry)
			}
			if len(pending) < r.batchSize {
				continue
			}
		case ctx.Err() != nil:
			r.flush(context.WithoutCancel(ctx), batch, pending)
			return nil
		case errors.Is(err, context.DeadlineExceeded):
		case errors.Is(err, io.EOF):
			r.flush(ctx, batch, pending)
			return fmt.Errorf("relay reader closed: %w", err)
		default:
			r.logger.Error("Error fetching relay message", "error", err, "retryIn", r.retryBackoff)
			select {
			case <-ctx.Done():
				r.flush(context.WithoutCancel(ctx), batch, pending)
				return nil
			case <-time.After(r.retryBackoff):
			}
		}

		r.flush(ctx, batch, pending)
		batch, pending = nil, nil
		deadline = time.Now().Add(r.flushInterval)
	}
}

func (r *Relay) flush(ctx context.Context, batch []models.AnalyticsEntry, pending []kafka.Message) {
	if len(pending) == 0 {
		return
	}

	if len(batch) > 0 {
		writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
		start := time.Now()
		err := r.store.InsertAnalyticsEntries(writeCtx, batch)
		cancel()
		metrics.WriteDuration.Observe(float64(time.Since(start).Milliseconds()))

		if err != nil {
			metrics.RelayBatches.WithLabelValues("failed").Inc()
			metrics.EventsFailed.WithLabelValues("relay").Add(float64(len(batch)))
			r.logger.Error("Failed to insert relay batch", "entries", len(batch), "error", err)
		} else {
			metrics.RelayBatches.WithLabelValues("ok").Inc()
			r.logger.Debug("Inserted relay batch", "entries", len(batch))
		}
	}

	if err := r.reader.CommitMessages(ctx, pending...); err != nil {
		r.logger.Error("Error committing relay offsets", "messages", len(pending), "error", err)
	}
}

func (r *Relay) Close() error {
	return r.reader.Close()
}
