// Package kafka publishes observation snapshots to a Kafka topic for
// downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/observability"
)

// SnapshotWriter produces observation messages to a Kafka topic.
type SnapshotWriter struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSnapshotWriter creates a Kafka producer for the configured topic.
func NewSnapshotWriter(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *SnapshotWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &SnapshotWriter{writer: w, logger: logger, metrics: metrics}
}

// PublishObservations serializes a snapshot into one message per tracked
// location, keyed by location name, and publishes them in a single
// WriteMessages call.
func (w *SnapshotWriter) PublishObservations(ctx context.Context, snapshot domain.ObservationSnapshot) error {
	if len(snapshot) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(snapshot))
	for name, obs := range snapshot {
		msg, err := serializeToMessage(name, obs)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish observations: %w", err)
	}
	w.metrics.SnapshotsPublished.Inc()
	return nil
}

func (w *SnapshotWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one location observation into a Kafka message.
func serializeToMessage(location string, obs domain.LocationObservation) (kafkago.Message, error) {
	data, err := json.Marshal(obs)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(domain.DatasetObservations)},
			{Key: "observed_at", Value: []byte(obs.ObservedAt.Format(time.RFC3339))},
		},
	}, nil
}
