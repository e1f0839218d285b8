package tracing

import (
	"context"
	"time"

	"legalrag/internal/ragcore"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaSink fans a trace record out onto a Kafka topic, for deployments that
// want pipeline traces joined into a broader event stream rather than (or
// alongside) a Postgres table, grounded on the teacher's kafka.Writer style
// (internal/conversation's event-sourcing broker and
// _examples/Tangerg-lynx/core/broker/kafka.go's Conn-based producer,
// generalized here to the higher-level Writer API for retry/batching).
type KafkaSink struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewKafkaSink builds a sink that publishes to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string, logger *logrus.Logger) *KafkaSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

// Close releases the underlying writer.
func (s *KafkaSink) Close() error { return s.writer.Close() }

// Append publishes trace as one JSON message, keyed by request ID so
// consumers can compact the topic down to the latest record per request.
func (s *KafkaSink) Append(ctx context.Context, trace *ragcore.Trace) error {
	rec := NewRecord(trace, time.Now())
	body, err := MarshalJSONLine(rec)
	if err != nil {
		return err
	}
	body = body[:len(body)-1]

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.RequestID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "evidence_level", Value: []byte(rec.EvidenceLevel)},
		},
	})
	if err != nil {
		s.logger.WithError(err).WithField("request_id", rec.RequestID).Warn("tracing: kafka sink append failed")
	}
	return err
}
