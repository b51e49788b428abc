package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/kafka"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
)

type memoryRepo struct {
	mu      sync.Mutex
	events  []*OutboxEvent
	retries map[string]int
}

func (r *memoryRepo) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *memoryRepo) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if e.ShouldRetry() && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			now := time.Now()
			e.PublishedAt = &now
		}
	}
	return nil
}

func (r *memoryRepo) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			e.RetryCount++
			e.LastError = errorMsg
		}
	}
	return nil
}

func (r *memoryRepo) FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error) {
	return nil, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	failOn   map[string]bool
	received []string
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[event.Type] {
		return errors.New("broker unavailable")
	}
	p.received = append(p.received, event.UnitID+":"+event.Type)
	return nil
}

func newEvent(t *testing.T, unitID, eventType string) *OutboxEvent {
	t.Helper()
	ce := cloudevents.NewEventFactory("/test").CreateUnitEvent(context.Background(), eventType, unitID, "", nil)
	e, err := NewOutboxEventFromCloudEvent(unitID, "WorkUnit", kafka.Topics.PickingEvents, ce)
	require.NoError(t, err)
	return e
}

func TestOutboxEvent_RoundTripsCloudEvent(t *testing.T) {
	e := newEvent(t, "WU-1", cloudevents.UnitClaimed)

	assert.Equal(t, cloudevents.UnitClaimed, e.EventType)
	assert.True(t, e.ShouldRetry())

	ce, err := e.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "WU-1", ce.UnitID)

	e.RetryCount = DefaultMaxRetries
	assert.False(t, e.ShouldRetry())
}

func TestPublisher_ProcessBatch_HoldsBackFailedAggregate(t *testing.T) {
	repo := &memoryRepo{}
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{
		newEvent(t, "WU-1", cloudevents.UnitClaimed),
		newEvent(t, "WU-2", cloudevents.ItemShorted),
		newEvent(t, "WU-2", cloudevents.UnitExceptionRaised),
		newEvent(t, "WU-1", cloudevents.ItemPicked),
	}))
	producer := &recordingPublisher{failOn: map[string]bool{cloudevents.ItemShorted: true}}

	p := NewPublisher(repo, producer, logging.Discard(), metrics.New(metrics.DefaultConfig("test")), nil)
	p.ProcessBatch(context.Background())

	assert.Equal(t, []string{
		"WU-1:" + cloudevents.UnitClaimed,
		"WU-1:" + cloudevents.ItemPicked,
	}, producer.received)
	assert.Equal(t, map[string]int{"published": 2, "failed": 1}, p.Stats())
	assert.Equal(t, 1, repo.events[1].RetryCount)
	assert.Nil(t, repo.events[2].PublishedAt)

	// once the broker recovers the held events go out in order
	producer.failOn = nil
	p.ProcessBatch(context.Background())
	assert.Equal(t, []string{
		"WU-2:" + cloudevents.ItemShorted,
		"WU-2:" + cloudevents.UnitExceptionRaised,
	}, producer.received[2:])
}

func TestPublisher_StartStop(t *testing.T) {
	repo := &memoryRepo{}
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{newEvent(t, "WU-9", cloudevents.UnitCreated)}))
	producer := &recordingPublisher{}

	p := NewPublisher(repo, producer, logging.Discard(), nil, &PublisherConfig{PollInterval: 5 * time.Millisecond, BatchSize: 10})
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())

	require.Eventually(t, func() bool { return p.Stats()["published"] == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
}
