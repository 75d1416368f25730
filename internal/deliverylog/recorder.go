// Package deliverylog stores an audit row for every per-channel dispatch
// outcome. Recording is strictly observational; a sink failure is logged and
// swallowed so it can never change or delay a dispatch result.
package deliverylog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"booking-notifications/internal/common/logger"
	"booking-notifications/internal/notification/dispatch"
)

// Entry is one channel outcome as persisted.
type Entry struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id"`
	EventType         string    `json:"event_type"`
	RecipientID       string    `json:"recipient_id"`
	Channel           string    `json:"channel"`
	State             string    `json:"state"`
	Reason            string    `json:"reason,omitempty"`
	Detail            string    `json:"detail,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Sink is one destination for delivery log entries.
type Sink interface {
	Write(ctx context.Context, entry *Entry) error
}

// Recorder fans an outcome out to every configured sink. It satisfies the
// dispatch Recorder interface.
type Recorder struct {
	sinks []Sink
	log   logger.Logger
}

func NewRecorder(log logger.Logger, sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks, log: log}
}

func (r *Recorder) Record(ctx context.Context, event *dispatch.Event, channel dispatch.Channel, outcome dispatch.Outcome) {
	entry := &Entry{
		ID:                uuid.New().String(),
		EventID:           event.ID,
		EventType:         event.EventType,
		RecipientID:       event.RecipientID,
		Channel:           string(channel),
		State:             string(outcome.State),
		Reason:            string(outcome.Reason),
		Detail:            outcome.Detail,
		ProviderMessageID: outcome.ProviderMessageID,
		CreatedAt:         time.Now().UTC(),
	}
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			r.log.Error("Delivery log write failed", map[string]interface{}{
				"event_id": entry.EventID,
				"channel":  entry.Channel,
				"error":    err.Error(),
			})
		}
	}
}
