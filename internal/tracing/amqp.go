package tracing

import (
	"context"
	"time"

	"legalrag/internal/ragcore"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AMQPSink publishes a trace record onto a RabbitMQ exchange, the
// alternative fan-out target to KafkaSink for deployments already running
// RabbitMQ for their messaging rather than Kafka (spec §4.12 domain stack:
// "Kafka/AMQP fan-out, optional").
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *logrus.Logger
}

// NewAMQPSink dials url and opens a channel, declaring exchange as a
// fanout exchange so every bound consumer gets every trace.
func NewAMQPSink(url, exchange string, logger *logrus.Logger) (*AMQPSink, error) {
	if logger == nil {
		logger = logrus.New()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Append publishes trace to the fanout exchange.
func (s *AMQPSink) Append(ctx context.Context, trace *ragcore.Trace) error {
	rec := NewRecord(trace, time.Now())
	body, err := MarshalJSONLine(rec)
	if err != nil {
		return err
	}
	body = body[:len(body)-1]

	err = s.channel.PublishWithContext(ctx, s.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
		MessageId:   rec.RequestID,
	})
	if err != nil {
		s.logger.WithError(err).WithField("request_id", rec.RequestID).Warn("tracing: amqp sink append failed")
	}
	return err
}
