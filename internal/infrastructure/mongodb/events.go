package mongodb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/outbox"
	outboxMongo "github.com/wms-platform/pick-floor/pkg/outbox/mongodb"
)

const (
	aggregateWorkUnit = "WorkUnit"
	aggregateBinStock = "BinStock"
)

// eventRecorder turns domain events into outbox rows and, for unit events,
// timeline entries. Callers run it inside their save transaction.
type eventRecorder struct {
	outboxRepo   *outboxMongo.OutboxRepository
	timeline     *mongo.Collection
	eventFactory *cloudevents.EventFactory
}

func newEventRecorder(db *mongo.Database, eventFactory *cloudevents.EventFactory) *eventRecorder {
	return &eventRecorder{
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		timeline:     db.Collection(TimelineCollection),
		eventFactory: eventFactory,
	}
}

func (r *eventRecorder) recordUnitEvents(sessCtx mongo.SessionContext, unitID string, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	entries := make([]interface{}, 0, len(events))

	for _, event := range events {
		ce := r.eventFactory.CreateUnitEvent(sessCtx, event.EventType(), unitID, event.Actor(), event)
		oe, err := outbox.NewOutboxEventFromCloudEvent(unitID, aggregateWorkUnit, pickingTopic, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, oe)

		data, err := toDocument(event)
		if err != nil {
			return err
		}
		entries = append(entries, domain.TimelineEntry{
			ID:         ce.ID,
			UnitID:     unitID,
			EventType:  event.EventType(),
			ActorID:    event.Actor(),
			Data:       data,
			OccurredAt: event.OccurredAt(),
		})
	}

	if err := r.outboxRepo.SaveAll(sessCtx, outboxEvents); err != nil {
		return err
	}
	if _, err := r.timeline.InsertMany(sessCtx, entries); err != nil {
		return fmt.Errorf("failed to append timeline: %w", err)
	}
	return nil
}

func (r *eventRecorder) recordBinEvents(sessCtx mongo.SessionContext, bin *domain.BinStock) error {
	events := bin.GetDomainEvents()
	if len(events) == 0 {
		return nil
	}
	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		ce := r.eventFactory.CreateEvent(sessCtx, event.EventType(), "bin/"+bin.ID, event)
		oe, err := outbox.NewOutboxEventFromCloudEvent(bin.ID, aggregateBinStock, inventoryTopic, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, oe)
	}
	return r.outboxRepo.SaveAll(sessCtx, outboxEvents)
}

func toDocument(event domain.DomainEvent) (map[string]interface{}, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", event.EventType(), err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", event.EventType(), err)
	}
	return doc, nil
}

func ensure(ctx context.Context, collection *mongo.Collection, models []mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	_, err := collection.Indexes().CreateMany(ctx, models)
	return err
}
