package intake

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-notifications/internal/common/logger"
	"booking-notifications/internal/notification/dispatch"
	"booking-notifications/internal/notification/preference"
)

type mockDispatcher struct {
	mu         sync.Mutex
	events     []*dispatch.Event
	submitFunc func(ctx context.Context, event *dispatch.Event) (map[dispatch.Channel]dispatch.Outcome, error)
}

func (m *mockDispatcher) Submit(ctx context.Context, event *dispatch.Event) (map[dispatch.Channel]dispatch.Outcome, error) {
	m.mu.Lock()
	m.events = append(m.events, event)
	fn := m.submitFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, event)
	}
	return map[dispatch.Channel]dispatch.Outcome{}, nil
}

func (m *mockDispatcher) submitted() []*dispatch.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*dispatch.Event{}, m.events...)
}

func newTestConsumer(t *testing.T) (*Consumer, *miniredis.Miniredis, *redis.Client, *mockDispatcher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	d := &mockDispatcher{}
	c := NewConsumer(client, Options{
		Stream:    "notifications:events",
		Group:     "dispatchers",
		Consumer:  "test-1",
		BatchSize: 16,
		Block:     10 * time.Millisecond,
	}, d, nil, logger.NewTestLogger(t))
	return c, mr, client, d
}

func addEvent(t *testing.T, client *redis.Client, event *dispatch.Event) {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "notifications:events",
		Values: map[string]interface{}{payloadField: string(raw)},
	}).Err())
}

func sampleEvent(id string) *dispatch.Event {
	return &dispatch.Event{
		ID:          id,
		EventType:   "appointment_reminder",
		RecipientID: "rec-1",
		Category:    preference.CategoryAppointmentReminders,
		Context:     map[string]interface{}{"court": "Court 1"},
		Channels:    []dispatch.Channel{dispatch.ChannelSMS},
		Recipient:   dispatch.Recipient{Phone: "+4915551234"},
	}
}

func runUntil(t *testing.T, c *Consumer, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("condition not reached before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_DispatchesAndAcks(t *testing.T) {
	c, _, client, d := newTestConsumer(t)
	addEvent(t, client, sampleEvent("evt-1"))

	runUntil(t, c, func() bool { return len(d.submitted()) == 1 })

	got := d.submitted()[0]
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, "appointment_reminder", got.EventType)
	assert.Equal(t, []dispatch.Channel{dispatch.ChannelSMS}, got.Channels)

	pending, err := client.XPending(context.Background(), "notifications:events", "dispatchers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count, "processed entries must be acknowledged")
}

func TestConsumer_DuplicateEventDispatchedOnce(t *testing.T) {
	c, _, client, d := newTestConsumer(t)
	addEvent(t, client, sampleEvent("evt-dup"))
	addEvent(t, client, sampleEvent("evt-dup"))
	addEvent(t, client, sampleEvent("evt-other"))

	runUntil(t, c, func() bool { return len(d.submitted()) == 2 })

	var ids []string
	for _, e := range d.submitted() {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"evt-dup", "evt-other"}, ids)
}

func TestConsumer_MalformedPayloadAckedAndSkipped(t *testing.T) {
	c, _, client, d := newTestConsumer(t)
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "notifications:events",
		Values: map[string]interface{}{payloadField: "{not json"},
	}).Err())
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "notifications:events",
		Values: map[string]interface{}{"wrong_field": "x"},
	}).Err())
	addEvent(t, client, sampleEvent("evt-good"))

	runUntil(t, c, func() bool { return len(d.submitted()) == 1 })

	assert.Equal(t, "evt-good", d.submitted()[0].ID)
	pending, err := client.XPending(context.Background(), "notifications:events", "dispatchers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count, "malformed entries are acked, not retried")
}

func TestConsumer_MintsIDWhenMissing(t *testing.T) {
	c, _, client, d := newTestConsumer(t)
	event := sampleEvent("")
	addEvent(t, client, event)

	runUntil(t, c, func() bool { return len(d.submitted()) == 1 })
	assert.NotEmpty(t, d.submitted()[0].ID)
}

func TestConsumer_ReplaysPendingEntriesOnStart(t *testing.T) {
	c, _, client, d := newTestConsumer(t)
	ctx := context.Background()
	addEvent(t, client, sampleEvent("evt-crash"))

	// A previous run read the entry but died before dispatching or acking,
	// leaving it in the pending list with no idempotency marker.
	require.NoError(t, client.XGroupCreateMkStream(ctx,
		"notifications:events", "dispatchers", "0").Err())
	_, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "dispatchers",
		Consumer: "test-1",
		Streams:  []string{"notifications:events", ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	require.NoError(t, err)

	runUntil(t, c, func() bool { return len(d.submitted()) == 1 })

	assert.Equal(t, "evt-crash", d.submitted()[0].ID)
	pending, err := client.XPending(ctx, "notifications:events", "dispatchers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count, "replayed entries must be acknowledged")
}

func TestConsumer_MarkerWrittenOnlyAfterHandOff(t *testing.T) {
	c, _, client, d := newTestConsumer(t)
	ctx := context.Background()

	var seenAtHandOff atomic.Int64
	d.submitFunc = func(ctx context.Context, event *dispatch.Event) (map[dispatch.Channel]dispatch.Outcome, error) {
		n, _ := client.Exists(ctx, idempotencyKeyPrefix+event.ID).Result()
		seenAtHandOff.Store(n)
		return map[dispatch.Channel]dispatch.Outcome{}, nil
	}
	addEvent(t, client, sampleEvent("evt-ord"))

	runUntil(t, c, func() bool { return len(d.submitted()) == 1 })

	assert.Equal(t, int64(0), seenAtHandOff.Load(),
		"marker must not exist before the dispatcher accepts the event")
	n, err := client.Exists(ctx, idempotencyKeyPrefix+"evt-ord").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "marker is written once the dispatcher accepted")
}

func TestConsumer_RejectedEventLeavesNoMarker(t *testing.T) {
	c, _, client, d := newTestConsumer(t)
	d.submitFunc = func(ctx context.Context, event *dispatch.Event) (map[dispatch.Channel]dispatch.Outcome, error) {
		return nil, errors.New("recipient_id is required")
	}
	addEvent(t, client, sampleEvent("evt-bad"))

	runUntil(t, c, func() bool { return len(d.submitted()) == 1 })

	n, err := client.Exists(context.Background(), idempotencyKeyPrefix+"evt-bad").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "a corrected re-publish must not look like a duplicate")
}

func TestConsumer_ExistingGroupIsNotAnError(t *testing.T) {
	c, _, client, _ := newTestConsumer(t)
	require.NoError(t, client.XGroupCreateMkStream(context.Background(),
		"notifications:events", "dispatchers", "0").Err())

	assert.NoError(t, c.ensureGroup(context.Background()))
}
