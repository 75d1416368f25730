// Package dispatch coordinates a notification event across its requested
// channels: permission check, template lookup, rendering and the hand-off to
// the transport provider. Channels are processed concurrently and never
// influence each other's outcome.
package dispatch

import (
	"fmt"

	"booking-notifications/internal/common/errors"
	"booking-notifications/internal/notification/preference"
)

// Channel is a delivery channel a caller can request. Email expands into an
// HTML and a plain-text template pair internally.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Recipient carries the addresses the transports deliver to. The preference
// record is keyed by Event.RecipientID, not by address.
type Recipient struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Event is one notification request. Context feeds the template renderer
// unchanged; the orchestrator adds nothing to it.
type Event struct {
	ID          string                 `json:"id"`
	EventType   string                 `json:"event_type"`
	RecipientID string                 `json:"recipient_id"`
	Category    preference.Category    `json:"category"`
	Context     map[string]interface{} `json:"context"`
	Channels    []Channel              `json:"channels"`
	Recipient   Recipient              `json:"recipient"`
}

// Validate rejects an event before any channel work starts. Address checks
// happen here so a missing address is a caller error, not a per-channel
// transport failure.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return errors.NewEventInvalidError("event_type is required")
	}
	if e.RecipientID == "" {
		return errors.NewEventInvalidError("recipient_id is required")
	}
	if e.Category == "" {
		return errors.NewEventInvalidError("category is required")
	}
	if len(e.Channels) == 0 {
		return errors.NewEventInvalidError("at least one channel must be requested")
	}
	seen := map[Channel]bool{}
	for _, ch := range e.Channels {
		if seen[ch] {
			return errors.NewEventInvalidError(fmt.Sprintf("channel %q requested twice", ch))
		}
		seen[ch] = true
		switch ch {
		case ChannelEmail:
			if e.Recipient.Email == "" {
				return errors.NewEventInvalidError("email channel requested without an email address")
			}
		case ChannelSMS:
			if e.Recipient.Phone == "" {
				return errors.NewEventInvalidError("sms channel requested without a phone number")
			}
		default:
			return errors.NewEventInvalidError(fmt.Sprintf("unknown channel %q", ch))
		}
	}
	return nil
}
