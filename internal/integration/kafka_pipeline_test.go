//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/road-rainfall-speed/internal/adapter/kafka"
	"github.com/couchcryptid/road-rainfall-speed/internal/adapter/samplefile"
	"github.com/couchcryptid/road-rainfall-speed/internal/calibration"
	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/config"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/couchcryptid/road-rainfall-speed/internal/pipeline"
	"github.com/couchcryptid/road-rainfall-speed/internal/store"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testModelTopic = "test-road-models"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := kafkatc.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkatc.WithClusterID("road-rainfall-speed-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// fixture has two roads whose single-carriageway speed drops linearly with rain.
func fixture() samplefile.Fixture {
	var f samplefile.Fixture
	for _, road := range []string{"OXFORD STREET", "M25"} {
		for i := range 12 {
			depth := float64(i) / 4
			s := domain.Sample{
				Depth:     depth,
				Speed:     40 - 4*depth,
				Nature:    domain.NatureSingleCarriageway,
				Road:      road,
				Hour:      8 + i%3,
				DayOfWeek: 1 + i%5,
			}
			f.Training = append(f.Training, s)
			if i%3 == 0 {
				f.Validation = append(f.Validation, s)
			}
		}
	}
	return f
}

// TestCalibrationPublishesRecords runs a calibration job against a real broker
// and reads every persisted record back from the model topic.
func TestCalibrationPublishesRecords(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testModelTopic)

	cfg := &config.Config{
		KafkaEnabled: true,
		KafkaBrokers: []string{broker},
		KafkaTopic:   testModelTopic,
	}
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	writer := kafka.NewWriter(cfg, clockwork.NewRealClock(), logger)
	t.Cleanup(func() { _ = writer.Close() })

	set := candidate.Default()
	dir := t.TempDir()
	files := store.NewFileStore(dir, filepath.Join(dir, "aggregate.json"), logger, metrics)
	job := pipeline.New(
		samplefile.New(fixture()),
		calibration.New(set, calibration.Options{}, logger, metrics),
		files,
		writer,
		pipeline.Options{Workers: 2, Candidates: set.Len()},
		logger,
		metrics,
	)

	report, err := job.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Failures)
	assert.Equal(t, []string{"M25", "OXFORD STREET"}, report.Calibrated)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testModelTopic,
		Partition: 0,
		MaxWait:   500 * time.Millisecond,
	})
	t.Cleanup(func() { _ = reader.Close() })

	got := make(map[string]domain.RoadModelRecord)
	for len(got) < 2 {
		readCtx, cancelRead := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		cancelRead()
		require.NoError(t, err, "read from model topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, strconv.Itoa(set.Len()), headers["candidate_set_size"])
		assert.NotEmpty(t, headers["published_at"])

		var rec domain.RoadModelRecord
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		assert.Equal(t, string(msg.Key), rec.Road)
		got[rec.Road] = rec
	}

	for road, rec := range got {
		require.NoError(t, rec.Validate(set.ParamCounts()), road)
		assert.Contains(t, rec.NatureResults, domain.NatureSingleCarriageway, road)

		stored, err := files.LoadRecord(ctx, road)
		require.NoError(t, err)
		assert.Equal(t, rec.Natures(), stored.Natures(), road)
	}
}
