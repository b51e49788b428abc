package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
)

func TestEncodeDecodeEvent(t *testing.T) {
	event := cloudevents.NewEventFactory("/pick-floor").CreateUnitEvent(context.Background(), cloudevents.UnitClaimed, "WU-1", "picker-1", map[string]string{"unitId": "WU-1"})
	event.CorrelationID = "corr-1"

	msg, err := EncodeEvent(event)
	require.NoError(t, err)
	assert.Equal(t, "unit/WU-1", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, cloudevents.UnitClaimed, headers["ce-type"])
	assert.Equal(t, "WU-1", headers["ce-wmsunitid"])
	assert.Equal(t, "corr-1", headers["ce-wmscorrelationid"])
	assert.NotContains(t, headers, "ce-traceparent")

	decoded, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "picker-1", decoded.PickerID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
}

func TestDecodeEvent_InvalidBody(t *testing.T) {
	_, err := DecodeEvent(kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func encoded(t *testing.T, eventType, unitID string, offset int64) kafka.Message {
	t.Helper()
	msg, err := EncodeEvent(cloudevents.NewEventFactory("/test").CreateUnitEvent(context.Background(), eventType, unitID, "", nil))
	require.NoError(t, err)
	msg.Offset = offset
	return msg
}

func TestConsumer_RoutesAndCommits(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		encoded(t, cloudevents.UnitClaimed, "WU-1", 1),
		{Value: []byte("garbage"), Offset: 2},
		encoded(t, cloudevents.UnitCompleted, "WU-2", 3),
		encoded(t, cloudevents.ItemPicked, "WU-3", 4),
	}}

	consumer := NewConsumer(DefaultConfig(), logging.Discard(), metrics.New(metrics.DefaultConfig("test")))
	consumer.newReader = func(string) MessageReader { return reader }

	var mu sync.Mutex
	var seen []string
	consumer.Subscribe(Topics.PickingEvents, cloudevents.UnitClaimed, func(ctx context.Context, e *cloudevents.WMSCloudEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "claimed:"+e.UnitID)
		return nil
	})
	consumer.SubscribeAll(Topics.PickingEvents, func(ctx context.Context, e *cloudevents.WMSCloudEvent) error {
		if e.Type == cloudevents.ItemPicked {
			return errors.New("downstream unavailable")
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "any:"+e.UnitID)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(reader.Committed()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"claimed:WU-1", "any:WU-2"}, seen)
	// the failed handler's message stays uncommitted
	assert.Equal(t, []int64{1, 2, 3}, reader.Committed())
	assert.NoError(t, consumer.Close())
}

type stubPublisher struct {
	err   error
	calls int
}

func (s *stubPublisher) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	s.calls++
	return s.err
}

func TestInstrumentedProducer_RecordsOutcome(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("test"))
	inner := &stubPublisher{err: errors.New("broker down")}
	producer := NewInstrumentedProducer(inner, m, logging.Discard())

	event := cloudevents.NewEventFactory("/test").CreateUnitEvent(context.Background(), cloudevents.UnitHeld, "WU-1", "", nil)
	err := producer.PublishEvent(context.Background(), Topics.PickingEvents, event)

	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, producer.Close())
}
