package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/kafka"
	sharedMongo "github.com/wms-platform/pick-floor/pkg/mongodb"
	"github.com/wms-platform/pick-floor/pkg/outbox"
)

const (
	UnitsCollection    = "work_units"
	TimelineCollection = "unit_timeline"

	// completed units stay visible to devices this long so merges can settle
	completedWindow = 12 * time.Hour
)

var (
	pickingTopic   = kafka.Topics.PickingEvents
	inventoryTopic = kafka.Topics.InventoryEvents

	queueSort = bson.D{{Key: "priorityRank", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
)

// UnitRepository implements domain.UnitRepository with versioned writes
type UnitRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
	events     *eventRecorder
}

// NewUnitRepository creates a unit repository on db
func NewUnitRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *UnitRepository {
	return &UnitRepository{
		collection: db.Collection(UnitsCollection),
		db:         db,
		events:     newEventRecorder(db, eventFactory),
	}
}

// EnsureIndexes creates the queue, group, exception and timeline indexes
func (r *UnitRepository) EnsureIndexes(ctx context.Context) error {
	units := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priorityRank", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "combinedGroupId", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "exception.status", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "claimedBy", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if err := ensure(ctx, r.collection, units); err != nil {
		return fmt.Errorf("failed to create unit indexes: %w", err)
	}
	timeline := []mongo.IndexModel{
		{Keys: bson.D{{Key: "unitId", Value: 1}, {Key: "occurredAt", Value: 1}}},
	}
	if err := ensure(ctx, r.db.Collection(TimelineCollection), timeline); err != nil {
		return fmt.Errorf("failed to create timeline indexes: %w", err)
	}
	return r.events.outboxRepo.EnsureIndexes(ctx)
}

// OutboxRepository returns the outbox this repository writes to
func (r *UnitRepository) OutboxRepository() outbox.Repository {
	return r.events.outboxRepo
}

// Save persists a unit with its domain events in a single transaction
func (r *UnitRepository) Save(ctx context.Context, unit *domain.WorkUnit) error {
	return r.SaveAll(ctx, []*domain.WorkUnit{unit})
}

// SaveAll persists units and their events in one transaction. Each write is
// conditional on the version the unit was loaded at; if any unit moved on in
// the meantime nothing is written and ErrConcurrentModification is returned.
func (r *UnitRepository) SaveAll(ctx context.Context, units []*domain.WorkUnit) error {
	if len(units) == 0 {
		return nil
	}
	expected := make([]int64, len(units))
	for i, u := range units {
		expected[i] = u.Version
	}
	now := time.Now().UTC()

	err := sharedMongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
		for i, unit := range units {
			doc := *unit
			doc.Version = expected[i] + 1
			doc.UpdatedAt = now

			filter := bson.M{"_id": unit.UnitID, "version": expected[i]}
			_, err := r.collection.ReplaceOne(sessCtx, filter, &doc, options.Replace().SetUpsert(true))
			if err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return fmt.Errorf("%s: %w", unit.UnitID, domain.ErrConcurrentModification)
				}
				return fmt.Errorf("failed to save work unit %s: %w", unit.UnitID, err)
			}

			if err := r.events.recordUnitEvents(sessCtx, unit.UnitID, unit.GetDomainEvents()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	for i, unit := range units {
		unit.Version = expected[i] + 1
		unit.UpdatedAt = now
		unit.ClearDomainEvents()
	}
	return nil
}

// FindByID returns the unit or nil when it does not exist
func (r *UnitRepository) FindByID(ctx context.Context, unitID string) (*domain.WorkUnit, error) {
	var unit domain.WorkUnit
	err := r.collection.FindOne(ctx, bson.M{"_id": unitID}).Decode(&unit)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *UnitRepository) FindByIDs(ctx context.Context, unitIDs []string) ([]*domain.WorkUnit, error) {
	return r.find(ctx, bson.M{"_id": bson.M{"$in": unitIDs}}, options.Find().SetSort(queueSort))
}

func (r *UnitRepository) FindByGroupID(ctx context.Context, groupID string) ([]*domain.WorkUnit, error) {
	return r.find(ctx, bson.M{"combinedGroupId": groupID}, options.Find().SetSort(queueSort))
}

// FindQueue loads open units, plus recently completed ones when asked, and
// applies the picker's view in queue order
func (r *UnitRepository) FindQueue(ctx context.Context, query domain.QueueQuery) ([]*domain.WorkUnit, error) {
	open := bson.M{"status": bson.M{"$in": bson.A{domain.UnitStatusReady, domain.UnitStatusInProgress}}}
	filter := open
	if query.IncludeCompleted {
		filter = bson.M{"$or": bson.A{
			open,
			bson.M{"status": domain.UnitStatusCompleted, "completedAt": bson.M{"$gte": time.Now().UTC().Add(-completedWindow)}},
		}}
	}

	units, err := r.find(ctx, filter, options.Find().SetSort(queueSort))
	if err != nil {
		return nil, err
	}
	return domain.FilterQueue(units, query), nil
}

// FindNextClaimable returns the first open, unheld, unclaimed unit in queue
// order, or nil. Group children are skipped; their parent stands for them.
func (r *UnitRepository) FindNextClaimable(ctx context.Context) (*domain.WorkUnit, error) {
	filter := bson.M{
		"status":    bson.M{"$in": bson.A{domain.UnitStatusReady, domain.UnitStatusInProgress}},
		"onHold":    false,
		"claimedBy": bson.M{"$exists": false},
		"$or": bson.A{
			bson.M{"combinedGroupId": bson.M{"$exists": false}},
			bson.M{"$expr": bson.M{"$eq": bson.A{"$parentUnitId", "$_id"}}},
		},
	}

	var unit domain.WorkUnit
	err := r.collection.FindOne(ctx, filter, options.FindOne().SetSort(queueSort)).Decode(&unit)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *UnitRepository) FindWithOpenExceptions(ctx context.Context) ([]*domain.WorkUnit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "exception.raisedAt", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"exception.status": domain.ExceptionStatusOpen}, opts)
}

func (r *UnitRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.WorkUnit, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	units := make([]*domain.WorkUnit, 0)
	if err := cursor.All(ctx, &units); err != nil {
		return nil, err
	}
	return units, nil
}
