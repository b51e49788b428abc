package mongodb

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/event"

	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
)

// monitoredCommands are the CRUD commands worth a metric; handshakes and
// heartbeats are skipped.
var monitoredCommands = map[string]bool{
	"find":          true,
	"insert":        true,
	"update":        true,
	"delete":        true,
	"findAndModify": true,
	"aggregate":     true,
	"count":         true,
	"createIndexes": true,
}

// NewCommandMonitor returns a driver monitor that records every CRUD command
// against m and logs it through logger. Either argument may be nil.
func NewCommandMonitor(m *metrics.Metrics, logger *logging.Logger) *event.CommandMonitor {
	var inFlight sync.Map // requestID -> collection

	finish := func(ctx context.Context, evt event.CommandFinishedEvent, success bool) {
		v, ok := inFlight.LoadAndDelete(evt.RequestID)
		if !ok {
			return
		}
		collection := v.(string)
		if m != nil {
			m.RecordMongoDBOperation(collection, evt.CommandName, success, evt.Duration)
		}
		if logger != nil {
			logger.DatabaseQuery(ctx, collection, evt.CommandName, evt.Duration, success)
		}
	}

	return &event.CommandMonitor{
		Started: func(_ context.Context, evt *event.CommandStartedEvent) {
			if !monitoredCommands[evt.CommandName] {
				return
			}
			collection := evt.CommandName
			if value, err := evt.Command.LookupErr(evt.CommandName); err == nil {
				if name, ok := value.StringValueOK(); ok {
					collection = name
				}
			}
			inFlight.Store(evt.RequestID, collection)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			finish(ctx, evt.CommandFinishedEvent, true)
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			finish(ctx, evt.CommandFinishedEvent, false)
		},
	}
}
