package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/pick-floor/internal/domain"
)

// TimelineRepository reads the audit entries UnitRepository appends
type TimelineRepository struct {
	collection *mongo.Collection
}

func NewTimelineRepository(db *mongo.Database) *TimelineRepository {
	return &TimelineRepository{collection: db.Collection(TimelineCollection)}
}

// FindByUnitID returns a unit's history oldest first
func (r *TimelineRepository) FindByUnitID(ctx context.Context, unitID string) ([]domain.TimelineEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"unitId": unitID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := make([]domain.TimelineEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
