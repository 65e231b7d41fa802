package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/radar-qc-service/internal/config"
	"github.com/couchcryptid/radar-qc-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes scan-job messages from the source topic with manual offset
// commits. It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaSourceTopic,
		GroupID: cfg.KafkaGroupID,
	})
	flush := cfg.BatchFlushInterval
	if flush <= 0 {
		flush = 500 * time.Millisecond
	}
	return &Reader{reader: r, flushInterval: flush, logger: logger}
}

// ExtractBatch fetches up to batchSize messages. Each fetch waits at most the
// flush interval, so a partially filled batch is returned rather than held
// open; an empty batch with a nil error means no messages arrived in time.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawJob, error) {
	batch := make([]domain.RawJob, 0, batchSize)

	for len(batch) < batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break // flush what we have
			}
			if ctx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("fetch message: %w", err)
		}
		batch = append(batch, r.mapMessageToRawJob(msg))
	}

	return batch, nil
}

// Close shuts down the underlying consumer-group reader.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawJob converts a Kafka message into a domain RawJob with a
// commit callback bound to this reader's consumer group.
func (r *Reader) mapMessageToRawJob(msg kafkago.Message) domain.RawJob {
	raw := mapMessageToRawJob(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

func mapMessageToRawJob(msg kafkago.Message) domain.RawJob {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawJob{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
