package repo

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the outbox relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

var errNoWriter = errors.New("outbox: no message writer configured")

// PollOutbox pulls unprocessed events, oldest first.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("created_at").Order("id").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka keyed by transfer reference, so every event
// of one transfer lands on the same partition.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	if r.writer == nil {
		return errNoWriter
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
		},
		Time: time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// RelayOutbox publishes one batch and marks what was sent. It returns the
// number of events delivered; a failed publish leaves the event for the
// next round.
func (r *Repository) RelayOutbox(ctx context.Context, limit int) (int, error) {
	events, err := r.PollOutbox(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		if err := r.PublishEvent(ctx, evt); err != nil {
			r.log.Errorw("publish outbox event", "id", evt.ID, "reference", evt.AggregateID, "error", err)
			continue
		}
		if err := r.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			r.log.Errorw("mark outbox processed", "id", evt.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
