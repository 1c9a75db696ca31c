package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces risk events to one Kafka topic. The risk topic writer
// implements pipeline.BatchLoader; the alert topic writer implements
// alert.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger.With("topic", topic)}
}

// LoadBatch publishes source risk events in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.RiskEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i], nil)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// PublishUserAlert publishes one user alert with the subscriber's channels.
func (w *Writer) PublishUserAlert(ctx context.Context, alert domain.RiskEvent, channels []domain.Channel) error {
	msg, err := serializeToMessage(alert, channels)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish user alert %s: %w", alert.ID, err)
	}
	w.logger.Debug("user alert published", "alert_id", alert.ID, "user_id", alert.UserID())
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RiskEvent into a Kafka message keyed by
// parcel so one parcel's events stay ordered.
func serializeToMessage(event domain.RiskEvent, channels []domain.Channel) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize risk event: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "kind", Value: []byte(event.Kind)},
		{Key: "band", Value: []byte(event.Band)},
		{Key: "generated_at", Value: []byte(event.GeneratedAt.Format(time.RFC3339))},
	}
	if len(channels) > 0 {
		names := make([]string, len(channels))
		for i, c := range channels {
			names[i] = string(c)
		}
		headers = append(headers, kafkago.Header{Key: "channels", Value: []byte(strings.Join(names, ","))})
	}
	return kafkago.Message{
		Key:     []byte(event.ParcelID),
		Value:   data,
		Headers: headers,
	}, nil
}
