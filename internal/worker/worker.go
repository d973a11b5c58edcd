package worker

import (
	"context"
	"encoding/json"
	"errors"

	"task-tracker/internal/metrics"
	"task-tracker/internal/models"
	"task-tracker/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Invalidator drops cached reads derived from a user's tasks.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// MessageReader is the subset of *kafka.Reader used by the worker.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Worker consumes task events and invalidates the owner's cached reads a second
// time, after the write is visible to every replica.
type Worker struct {
	reader MessageReader
	cache  Invalidator
}

// New returns a worker reading topic as part of consumer group groupID.
// One consumer per process; scale by running more replicas (consumer group shares partitions).
func New(brokers []string, topic, groupID string, cache Invalidator) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(reader, cache)
}

// NewWithReader wraps an existing reader.
func NewWithReader(reader MessageReader, cache Invalidator) *Worker {
	return &Worker{reader: reader, cache: cache}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (w *Worker) Run(ctx context.Context) {
	defer w.reader.Close()
	logger.Info(ctx, "Task event consumer started")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info(ctx, "Task event consumer stopped")
				return
			}
			logger.Error(ctx, "Worker fetch failed", "error", err)
			continue
		}
		if err := w.handleMessage(ctx, msg.Value); err != nil {
			// Commit anyway to avoid poison pill blocking the partition
			logger.Error(ctx, "Worker handle failed", "error", err, "payload", string(msg.Value))
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "Worker commit failed", "error", err)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, payload []byte) error {
	var ev models.TaskEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	switch ev.Type {
	case models.EventTaskCreated, models.EventTaskStageChanged, models.EventTaskDeleted:
	default:
		logger.Debug(ctx, "Worker skipped unknown event", "type", ev.Type)
		return nil
	}
	if w.cache != nil {
		w.cache.InvalidateUser(ctx, ev.UserID)
	}
	metrics.EventsConsumed.WithLabelValues(ev.Type).Inc()
	logger.Debug(ctx, "Task event applied", "type", ev.Type, "task_id", ev.TaskID, "user_id", ev.UserID)
	return nil
}
