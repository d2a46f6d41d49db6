// Package analytics records support events and derives dashboard statistics
// from the store.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"supportbot/internal/domain"
)

type EventStore interface {
	RecordAnalyticsEvent(ctx context.Context, e domain.AnalyticsEvent) error
}

// Sink receives a copy of every stored event.
type Sink interface {
	Publish(ctx context.Context, e domain.AnalyticsEvent) error
}

// Recorder appends events to the store, which is the system of record, and
// mirrors them to an optional sink. Sink failures are logged and dropped.
type Recorder struct {
	store  EventStore
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(store EventStore, sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, sink: sink, logger: logger, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, eventType, conversationID string, data map[string]any) error {
	e := domain.AnalyticsEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
		CreatedAt:      r.now().UTC(),
	}
	if err := r.store.RecordAnalyticsEvent(ctx, e); err != nil {
		return fmt.Errorf("record %s event: %w", eventType, err)
	}
	if r.sink != nil {
		if err := r.sink.Publish(ctx, e); err != nil {
			r.logger.Warn("analytics mirror failed",
				zap.String("event_type", eventType),
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}
	return nil
}
