package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tank-siting/internal/config"
	"github.com/couchcryptid/tank-siting/internal/domain"
)

// Writer publishes session snapshots to the sink topic for downstream report
// generation. It implements pipeline.SnapshotPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSnapshot serializes and publishes one session's refreshed snapshot.
// Keying by session keeps a session's snapshots ordered within a partition.
func (w *Writer) PublishSnapshot(ctx context.Context, snap domain.SessionSnapshot) error {
	msg, err := serializeSnapshot(snap)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeSnapshot marshals a session snapshot into a Kafka message.
func serializeSnapshot(snap domain.SessionSnapshot) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize session snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.Session),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "tank_count", Value: []byte(strconv.Itoa(len(snap.Tanks)))},
			{Key: "updated_at", Value: []byte(snap.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}
