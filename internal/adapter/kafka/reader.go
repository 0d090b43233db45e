package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tank-siting/internal/config"
	"github.com/couchcryptid/tank-siting/internal/domain"
)

// Reader consumes stage events from the source topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger

	// drainTimeout bounds how long ExtractBatch waits for messages beyond
	// the first one before handing back a partial batch.
	drainTimeout time.Duration
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSourceTopic,
		GroupID:     cfg.KafkaGroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger, drainTimeout: 250 * time.Millisecond}
}

// ExtractBatch blocks for the first stage event, then drains up to
// batchSize-1 more that are already waiting. Offsets are committed per
// message through the event's Commit hook once the caller has applied it.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.StageEvent, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	events := []domain.StageEvent{r.mapMessage(first)}

	for len(events) < batchSize {
		drainCtx, cancel := context.WithTimeout(ctx, r.drainTimeout)
		msg, err := r.reader.FetchMessage(drainCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			r.logger.Warn("fetch while draining batch failed", "error", err)
			break
		}
		events = append(events, r.mapMessage(msg))
	}
	return events, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessage converts a Kafka message into the domain's transport-neutral
// stage event, with a commit hook bound to this reader's consumer group.
func (r *Reader) mapMessage(msg kafkago.Message) domain.StageEvent {
	return domain.StageEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headerMap(msg.Headers),
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Commit: func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		},
	}
}

func headerMap(headers []kafkago.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
