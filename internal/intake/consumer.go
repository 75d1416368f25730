// Package intake consumes notification events from a Redis Stream consumer
// group and feeds them to the dispatch orchestrator. Intake is at-least-once:
// pending entries are replayed on startup, and an idempotency key written per
// event id after a successful hand-off keeps redelivered entries from
// dispatching twice.
package intake

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"booking-notifications/internal/common/logger"
	"booking-notifications/internal/common/metrics"
	"booking-notifications/internal/common/observability"
	"booking-notifications/internal/notification/dispatch"
)

const (
	payloadField         = "payload"
	idempotencyKeyPrefix = "notifications:dispatched:"
	idempotencyWindowTTL = 24 * time.Hour
	readFailureBackoff   = time.Second
	abandonedMinIdle     = time.Minute
)

// Dispatcher is satisfied by dispatch.Orchestrator.
type Dispatcher interface {
	Submit(ctx context.Context, event *dispatch.Event) (map[dispatch.Channel]dispatch.Outcome, error)
}

type Options struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
}

type Consumer struct {
	client     *redis.Client
	opts       Options
	dispatcher Dispatcher
	obs        *observability.Observability
	log        logger.Logger
}

// NewConsumer builds a consumer. obs may be nil when event-level meters are
// not wanted, as in tests.
func NewConsumer(client *redis.Client, opts Options, dispatcher Dispatcher, obs *observability.Observability, log logger.Logger) *Consumer {
	return &Consumer{client: client, opts: opts, dispatcher: dispatcher, obs: obs, log: log}
}

// Run consumes until ctx is canceled. Every entry is acknowledged exactly
// once, malformed payloads included; an unparseable entry can never become
// parseable, so retrying it would only wedge the group.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.log.Info("Intake consumer started", map[string]interface{}{
		"stream":   c.opts.Stream,
		"group":    c.opts.Group,
		"consumer": c.opts.Consumer,
	})

	if err := c.recoverPending(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("Pending entry recovery failed", map[string]interface{}{"error": err.Error()})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    c.opts.BatchSize,
			Block:    c.opts.Block,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("Intake read failed", map[string]interface{}{"error": err.Error()})
			time.Sleep(readFailureBackoff)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
				c.ack(ctx, msg.ID)
			}
		}
	}
}

// recoverPending replays entries this consumer read but never acknowledged
// before a previous shutdown, then claims entries abandoned by other
// consumers in the group. Without it a crash would leave entries parked in
// the pending list forever.
func (c *Consumer) recoverPending(ctx context.Context) error {
	for {
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, "0"},
			Count:    c.opts.BatchSize,
			Block:    -1,
		}).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return err
		}
		replayed := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				replayed++
				c.handle(ctx, msg)
				c.ack(ctx, msg.ID)
			}
		}
		if replayed == 0 {
			break
		}
		c.log.Info("Replayed pending entries", map[string]interface{}{"count": replayed})
	}
	return c.claimAbandoned(ctx)
}

func (c *Consumer) claimAbandoned(ctx context.Context) error {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.opts.Stream,
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			MinIdle:  abandonedMinIdle,
			Start:    start,
			Count:    c.opts.BatchSize,
		}).Result()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			c.handle(ctx, msg)
			c.ack(ctx, msg.ID)
		}
		if len(msgs) == 0 || next == "0-0" {
			return nil
		}
		start = next
	}
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, entryID).Err(); err != nil {
		c.log.Warn("Intake ack failed", map[string]interface{}{
			"entry_id": entryID,
			"error":    err.Error(),
		})
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		metrics.IntakeEventsMalformed.Inc()
		c.log.Warn("Intake entry has no payload field", map[string]interface{}{"entry_id": msg.ID})
		return
	}

	var event dispatch.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		metrics.IntakeEventsMalformed.Inc()
		c.log.Warn("Intake entry payload is not valid JSON", map[string]interface{}{
			"entry_id": msg.ID,
			"error":    err.Error(),
		})
		return
	}
	if event.ID == "" {
		// Producers should set an id; without one redelivery dedup is
		// impossible, so mint one and accept the single-delivery risk.
		event.ID = uuid.New().String()
	}

	key := idempotencyKeyPrefix + event.ID
	seen, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		c.log.Warn("Idempotency check failed, dispatching anyway", map[string]interface{}{
			"event_id": event.ID,
			"error":    err.Error(),
		})
	} else if seen > 0 {
		c.log.Debug("Duplicate event skipped", map[string]interface{}{"event_id": event.ID})
		return
	}

	start := time.Now()
	if _, err := c.dispatcher.Submit(ctx, &event); err != nil {
		c.obs.RecordEventProcessed(ctx, event.EventType, "rejected")
		c.log.Error("Event rejected by dispatcher", map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.EventType,
			"error":      err.Error(),
		})
		return
	}

	// The marker is written only after the hand-off succeeded. A crash in
	// between redelivers the entry on the next start, which at-least-once
	// permits; marking first would drop the event entirely.
	if err := c.client.Set(ctx, key, 1, idempotencyWindowTTL).Err(); err != nil {
		c.log.Warn("Idempotency marker write failed", map[string]interface{}{
			"event_id": event.ID,
			"error":    err.Error(),
		})
	}
	c.obs.RecordEventProcessed(ctx, event.EventType, "processed")
	c.obs.RecordEventDuration(ctx, time.Since(start), event.EventType)
}
