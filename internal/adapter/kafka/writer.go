package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/road-rainfall-speed/internal/config"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes persisted road model records to a Kafka topic.
// It implements pipeline.RecordPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
	clock  clockwork.Clock
}

// NewWriter creates a Kafka producer for the configured model topic. clock
// stamps the published_at header.
func NewWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, clock: clock}
}

// PublishRecord sends one record keyed by its road, so every version of a
// road's model lands on the same partition.
func (w *Writer) PublishRecord(ctx context.Context, rec domain.RoadModelRecord) error {
	msg, err := w.message(rec)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", rec.Road, err)
	}
	w.logger.Debug("record published", "road", rec.Road, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) message(rec domain.RoadModelRecord) (kafkago.Message, error) {
	return serializeToMessage(rec, w.clock.Now())
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RoadModelRecord into a Kafka message.
func serializeToMessage(rec domain.RoadModelRecord, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize road record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(domain.NormalizeRoad(rec.Road)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "candidate_set_size", Value: []byte(strconv.Itoa(rec.CandidateSetSize))},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
