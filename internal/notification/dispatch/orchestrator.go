// internal/notification/dispatch/orchestrator.go
package dispatch

import (
	"context"
	"sync"
	"time"

	"booking-notifications/internal/common/errors"
	"booking-notifications/internal/common/logger"
	"booking-notifications/internal/common/metrics"
	"booking-notifications/internal/notification/preference"
	"booking-notifications/internal/notification/template"
)

// Message is a fully rendered notification ready for transport hand-off.
// Email messages carry both bodies; SMS carries TextBody only.
type Message struct {
	Channel  Channel
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender is the transport boundary. Send returns the provider's message id
// when it has one. Everything after a successful Send, delivery included, is
// outside this package's responsibility.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// PermissionChecker is satisfied by preference.Resolver.
type PermissionChecker interface {
	IsAllowed(ctx context.Context, recipientID string, category preference.Category, channel string) (bool, error)
}

// Recorder receives every per-channel outcome for audit storage. Recording
// failures must not affect the outcome itself, so implementations log and
// swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, event *Event, channel Channel, outcome Outcome)
}

// Orchestrator runs the per-channel dispatch state machine. Channels run
// concurrently; a failure on one never blocks or fails another.
type Orchestrator struct {
	templates *template.Store
	prefs     PermissionChecker
	senders   map[Channel]Sender
	recorder  Recorder
	log       logger.Logger
}

func NewOrchestrator(templates *template.Store, prefs PermissionChecker, senders map[Channel]Sender, recorder Recorder, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		templates: templates,
		prefs:     prefs,
		senders:   senders,
		recorder:  recorder,
		log:       log,
	}
}

// Submit processes one event and returns an outcome for every requested
// channel. The error return is reserved for events that are invalid as a
// whole; once channel processing starts, problems surface as per-channel
// outcomes, never as an error.
func (o *Orchestrator) Submit(ctx context.Context, event *Event) (map[Channel]Outcome, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	results := make(map[Channel]Outcome, len(event.Channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ch := range event.Channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			outcome := o.dispatchChannel(ctx, event, ch)
			mu.Lock()
			results[ch] = outcome
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	for ch, outcome := range results {
		o.observe(ctx, event, ch, outcome)
	}
	return results, nil
}

func (o *Orchestrator) dispatchChannel(ctx context.Context, event *Event, ch Channel) Outcome {
	allowed, err := o.prefs.IsAllowed(ctx, event.RecipientID, event.Category, string(ch))
	if err != nil {
		return failed(ReasonPreference, err.Error())
	}
	if !allowed {
		return skipped(ReasonPreference, "recipient preference disallows this channel")
	}

	msg, outcome, ok := o.renderMessage(event, ch)
	if !ok {
		return outcome
	}

	sender, exists := o.senders[ch]
	if !exists {
		return failed(ReasonTransport, "no sender configured for channel "+string(ch))
	}

	// Last cancellation point. Once Send is entered the message may already
	// be with the provider, and an accepted hand-off is never unwound.
	if ctx.Err() != nil {
		return skipped(ReasonCanceled, ctx.Err().Error())
	}

	providerID, err := sender.Send(ctx, msg)
	if err != nil {
		sendErr := errors.NewTransportSendFailedError(string(ch), err)
		return failed(ReasonTransport, sendErr.Error())
	}
	return dispatched(providerID)
}

// renderMessage resolves and renders every template the channel needs. Email
// requires the html and text pair; either one missing fails the channel with
// missing_template.
func (o *Orchestrator) renderMessage(event *Event, ch Channel) (Message, Outcome, bool) {
	var templateChannels []string
	switch ch {
	case ChannelEmail:
		templateChannels = []string{template.ChannelEmailHTML, template.ChannelEmailText}
	case ChannelSMS:
		templateChannels = []string{template.ChannelSMS}
	}

	msg := Message{Channel: ch}
	switch ch {
	case ChannelEmail:
		msg.To = event.Recipient.Email
	case ChannelSMS:
		msg.To = event.Recipient.Phone
	}

	for _, tc := range templateChannels {
		tpl, err := o.templates.Get(event.EventType, tc)
		if err != nil {
			return Message{}, failed(ReasonMissingTemplate, err.Error()), false
		}

		start := time.Now()
		subject, body, err := tpl.Render(event.Context)
		metrics.RenderDuration.WithLabelValues(tc).Observe(time.Since(start).Seconds())
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeMissingVariable) {
				return Message{}, failed(ReasonMissingVariable, missingVariableDetail(err)), false
			}
			return Message{}, failed(ReasonRender, err.Error()), false
		}

		switch tc {
		case template.ChannelEmailHTML:
			msg.Subject = subject
			msg.HTMLBody = body
		case template.ChannelEmailText:
			msg.TextBody = body
		case template.ChannelSMS:
			msg.TextBody = body
		}
	}
	return msg, Outcome{}, true
}

func missingVariableDetail(err error) string {
	var se *errors.StandardError
	if errors.AsStandard(err, &se) {
		if name, ok := se.Metadata["variable"].(string); ok {
			return "variable not in context: " + name
		}
	}
	return err.Error()
}

func (o *Orchestrator) observe(ctx context.Context, event *Event, ch Channel, outcome Outcome) {
	fields := map[string]interface{}{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"recipient_id": event.RecipientID,
		"channel":      string(ch),
		"state":        string(outcome.State),
	}
	if outcome.Reason != "" {
		fields["reason"] = string(outcome.Reason)
	}

	switch outcome.State {
	case StateDispatched:
		metrics.NotificationsDispatched.WithLabelValues(event.EventType, string(ch)).Inc()
		o.log.Info("Notification dispatched", fields)
	case StateSkipped:
		metrics.NotificationsSkipped.WithLabelValues(event.EventType, string(ch), string(outcome.Reason)).Inc()
		o.log.Info("Notification skipped", fields)
	case StateFailed:
		metrics.NotificationsFailed.WithLabelValues(event.EventType, string(ch), string(outcome.Reason)).Inc()
		fields["detail"] = outcome.Detail
		o.log.Error("Notification failed", fields)
	}

	if o.recorder != nil {
		o.recorder.Record(ctx, event, ch, outcome)
	}
}
