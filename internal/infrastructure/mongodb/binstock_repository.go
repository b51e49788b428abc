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
	sharedMongo "github.com/wms-platform/pick-floor/pkg/mongodb"
)

const BinStockCollection = "bin_stock"

// BinStockRepository implements domain.BinStockRepository
type BinStockRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
	events     *eventRecorder
}

func NewBinStockRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *BinStockRepository {
	return &BinStockRepository{
		collection: db.Collection(BinStockCollection),
		db:         db,
		events:     newEventRecorder(db, eventFactory),
	}
}

func (r *BinStockRepository) EnsureIndexes(ctx context.Context) error {
	return ensure(ctx, r.collection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sku", Value: 1}, {Key: "locationId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "pendingReplenishmentId", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
}

// Save writes the bin conditional on its loaded version, with its events
func (r *BinStockRepository) Save(ctx context.Context, bin *domain.BinStock) error {
	expected := bin.Version
	now := time.Now().UTC()

	err := sharedMongo.WithTransaction(ctx, r.db, func(sessCtx mongo.SessionContext) error {
		doc := *bin
		doc.Version = expected + 1
		doc.UpdatedAt = now

		filter := bson.M{"_id": bin.ID, "version": expected}
		if _, err := r.collection.ReplaceOne(sessCtx, filter, &doc, options.Replace().SetUpsert(true)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("bin %s: %w", bin.ID, domain.ErrConcurrentModification)
			}
			return fmt.Errorf("failed to save bin %s: %w", bin.ID, err)
		}
		return r.events.recordBinEvents(sessCtx, bin)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	bin.Version = expected + 1
	bin.UpdatedAt = now
	bin.ClearDomainEvents()
	return nil
}

// FindByLocation returns the bin or nil when the location does not stock sku
func (r *BinStockRepository) FindByLocation(ctx context.Context, sku, locationID string) (*domain.BinStock, error) {
	var bin domain.BinStock
	err := r.collection.FindOne(ctx, bson.M{"_id": domain.BinID(sku, locationID)}).Decode(&bin)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bin, nil
}
