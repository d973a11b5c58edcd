package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"task-tracker/internal/metrics"
	"task-tracker/internal/models"
	"task-tracker/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// EnsureTopic creates the task events topic with the given partitions (idempotent).
// Call at startup; if it fails (e.g. no broker or topic exists), app still runs.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int) {
	if len(brokers) == 0 {
		return
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()
	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug(ctx, "Kafka create topic failed (topic may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topic ensured", "topic", topic, "partitions", partitions)
}

// MessageWriter is the subset of *kafka.Writer used by Producer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes task events keyed by user id, so one user's events stay ordered.
type Producer struct {
	w MessageWriter
}

// NewProducer returns an async producer for topic.
func NewProducer(ctx context.Context, brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 0,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info(ctx, "Kafka producer initialized", "topic", topic, "brokers", brokers)
	return NewProducerWithWriter(w)
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(w MessageWriter) *Producer {
	return &Producer{w: w}
}

// Publish encodes ev and hands it to the writer. Non-blocking with the async writer.
func (p *Producer) Publish(ctx context.Context, ev *models.TaskEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: payload,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.EventsPublished.WithLabelValues(ev.Type, outcome).Inc()
	return err
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	return p.w.Close()
}
