package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"

	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
)

func startedEvent(t *testing.T, requestID int64, command string, doc bson.D) *event.CommandStartedEvent {
	t.Helper()
	raw, err := bson.Marshal(doc)
	assert.NoError(t, err)
	return &event.CommandStartedEvent{
		Command:     raw,
		CommandName: command,
		RequestID:   requestID,
	}
}

func TestCommandMonitor_RecordsCollectionAndStatus(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("pick-floor-test"))
	monitor := NewCommandMonitor(m, logging.Discard())
	ctx := context.Background()

	monitor.Started(ctx, startedEvent(t, 1, "findAndModify", bson.D{{Key: "findAndModify", Value: "work_units"}}))
	monitor.Succeeded(ctx, &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "findAndModify", RequestID: 1, Duration: time.Millisecond},
	})

	monitor.Started(ctx, startedEvent(t, 2, "insert", bson.D{{Key: "insert", Value: "outbox_events"}}))
	monitor.Failed(ctx, &event.CommandFailedEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "insert", RequestID: 2, Duration: time.Millisecond},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MongoDBOperations.WithLabelValues("work_units", "findAndModify", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MongoDBOperations.WithLabelValues("outbox_events", "insert", "error")))
}

func TestCommandMonitor_SkipsHandshakes(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("pick-floor-test"))
	monitor := NewCommandMonitor(m, nil)
	ctx := context.Background()

	monitor.Started(ctx, startedEvent(t, 3, "hello", bson.D{{Key: "hello", Value: 1}}))
	monitor.Succeeded(ctx, &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "hello", RequestID: 3},
	})

	assert.Equal(t, 0, testutil.CollectAndCount(m.MongoDBOperations))
}
