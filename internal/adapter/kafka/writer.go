// Package kafka publishes clean station rows to a Kafka topic for
// downstream consumers. The relational store remains the source of
// truth; this is a best-effort feed.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
)

// Writer produces clean rows to a Kafka topic. It implements
// pipeline.RowPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the clean-rows topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// rowEnvelope is the published shape of one clean row.
type rowEnvelope struct {
	Station  string             `json:"station"`
	DateTime time.Time          `json:"datetime"`
	Fields   map[string]float64 `json:"fields"`
}

// PublishRows serializes and publishes a station's new clean rows in a
// single WriteMessages call.
func (w *Writer) PublishRows(ctx context.Context, stationID string, rows []domain.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(stationID, rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one clean row into a Kafka message keyed
// by station, so a partition preserves per-station ordering.
func serializeToMessage(stationID string, row domain.OutputRow) (kafkago.Message, error) {
	data, err := json.Marshal(rowEnvelope{
		Station:  stationID,
		DateTime: row.Time,
		Fields:   row.Fields,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize clean row: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(stationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station", Value: []byte(stationID)},
			{Key: "datetime", Value: []byte(row.Time.Format(time.RFC3339))},
		},
	}, nil
}
