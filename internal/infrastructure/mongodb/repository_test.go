package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	outboxMongo "github.com/wms-platform/pick-floor/pkg/outbox/mongodb"
	pftesting "github.com/wms-platform/pick-floor/pkg/testing"
)

func newTestUnit(t *testing.T, id string, priority domain.Priority) *domain.WorkUnit {
	t.Helper()
	unit, err := domain.NewWorkUnit(id, domain.UnitKindOrder, []string{"ORD-" + id}, priority, []domain.Item{
		{SKU: "SKU-001", LocationID: "A-01-01", Quantity: 2},
		{SKU: "SKU-002", LocationID: "A-01-02", Quantity: 1},
	})
	require.NoError(t, err)
	return unit
}

func TestUnitRepository(t *testing.T) {
	db := pftesting.MongoDatabase(t, "pick_floor_test")
	ctx := context.Background()
	repo := NewUnitRepository(db, cloudevents.NewEventFactory("/pick-floor/test"))
	require.NoError(t, repo.EnsureIndexes(ctx))

	t.Run("save writes outbox and timeline", func(t *testing.T) {
		unit := newTestUnit(t, "WU-1", domain.PriorityNormal)
		require.NoError(t, repo.Save(ctx, unit))
		assert.Equal(t, int64(1), unit.Version)
		assert.Empty(t, unit.GetDomainEvents())

		require.NoError(t, unit.Claim("picker-1"))
		require.NoError(t, repo.Save(ctx, unit))

		loaded, err := repo.FindByID(ctx, "WU-1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, int64(2), loaded.Version)
		assert.Equal(t, "picker-1", loaded.ClaimedBy)
		assert.Len(t, loaded.Items, 2)

		events, err := repo.OutboxRepository().FindByAggregateID(ctx, "WU-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, cloudevents.UnitCreated, events[0].EventType)
		assert.Equal(t, cloudevents.UnitClaimed, events[1].EventType)

		entries, err := NewTimelineRepository(db).FindByUnitID(ctx, "WU-1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "picker-1", entries[1].ActorID)
		assert.Equal(t, "picker-1", entries[1].Data["pickerId"])
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		unit := newTestUnit(t, "WU-2", domain.PriorityNormal)
		require.NoError(t, repo.Save(ctx, unit))

		first, err := repo.FindByID(ctx, "WU-2")
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, "WU-2")
		require.NoError(t, err)

		require.NoError(t, first.Claim("picker-1"))
		require.NoError(t, repo.Save(ctx, first))

		require.NoError(t, second.Claim("picker-2"))
		err = repo.Save(ctx, second)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)

		loaded, err := repo.FindByID(ctx, "WU-2")
		require.NoError(t, err)
		assert.Equal(t, "picker-1", loaded.ClaimedBy)
	})

	t.Run("duplicate create is rejected", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, newTestUnit(t, "WU-3", domain.PriorityNormal)))
		err := repo.Save(ctx, newTestUnit(t, "WU-3", domain.PriorityRush))
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	})

	t.Run("save all is atomic", func(t *testing.T) {
		a := newTestUnit(t, "WU-4", domain.PriorityNormal)
		b := newTestUnit(t, "WU-5", domain.PriorityNormal)
		require.NoError(t, repo.SaveAll(ctx, []*domain.WorkUnit{a, b}))

		staleB, err := repo.FindByID(ctx, "WU-5")
		require.NoError(t, err)
		require.NoError(t, staleB.Hold("lead"))
		require.NoError(t, repo.Save(ctx, staleB))

		require.NoError(t, a.Claim("picker-1"))
		require.NoError(t, b.Claim("picker-1"))
		err = repo.SaveAll(ctx, []*domain.WorkUnit{a, b})
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)

		loadedA, err := repo.FindByID(ctx, "WU-4")
		require.NoError(t, err)
		assert.Empty(t, loadedA.ClaimedBy, "the first member rolled back with the second")
		assert.Equal(t, int64(1), loadedA.Version)

		count, err := db.Collection(outboxMongo.CollectionName).CountDocuments(ctx, bson.M{"aggregateId": "WU-4", "eventType": cloudevents.UnitClaimed})
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("queue and next claimable", func(t *testing.T) {
		_, err := db.Collection(UnitsCollection).DeleteMany(ctx, bson.M{})
		require.NoError(t, err)

		rush := newTestUnit(t, "Q-rush", domain.PriorityRush)
		normal := newTestUnit(t, "Q-normal", domain.PriorityNormal)
		held := newTestUnit(t, "Q-held", domain.PriorityRush)
		require.NoError(t, held.Hold("lead"))
		require.NoError(t, repo.SaveAll(ctx, []*domain.WorkUnit{rush, normal, held}))

		next, err := repo.FindNextClaimable(ctx)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, "Q-rush", next.UnitID)

		queue, err := repo.FindQueue(ctx, domain.QueueQuery{PickerID: "picker-1", Filter: domain.QueueFilterReady})
		require.NoError(t, err)
		ids := make([]string, 0, len(queue))
		for _, u := range queue {
			ids = append(ids, u.UnitID)
		}
		assert.Equal(t, []string{"Q-rush", "Q-normal"}, ids)

		require.NoError(t, rush.Claim("picker-2"))
		require.NoError(t, repo.Save(ctx, rush))
		next, err = repo.FindNextClaimable(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Q-normal", next.UnitID)
	})

	t.Run("open exceptions", func(t *testing.T) {
		unit := newTestUnit(t, "WU-6", domain.PriorityNormal)
		require.NoError(t, unit.Claim("picker-1"))
		_, err := unit.RecordShort(unit.Items[0].ItemID, 0, domain.ShortReasonNotFound, "", "picker-1")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, unit))

		units, err := repo.FindWithOpenExceptions(ctx)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, "WU-6", units[0].UnitID)
	})
}

func TestBinStockRepository(t *testing.T) {
	db := pftesting.MongoDatabase(t, "pick_floor_bins")
	ctx := context.Background()
	repo := NewBinStockRepository(db, cloudevents.NewEventFactory("/pick-floor/test"))
	require.NoError(t, repo.EnsureIndexes(ctx))

	bin, err := domain.NewBinStock("SKU-001", "A-01-01", 10, 40, 5, 20, 3)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, bin))

	missing, err := repo.FindByLocation(ctx, "SKU-404", "A-01-01")
	require.NoError(t, err)
	assert.Nil(t, missing)

	loaded, err := repo.FindByLocation(ctx, "SKU-001", "A-01-01")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	_, err = loaded.ConfirmCount(8, "picker-1")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, loaded))

	// the original copy is now stale
	bin.Deduct(1)
	assert.ErrorIs(t, repo.Save(ctx, bin), domain.ErrConcurrentModification)

	count, err := db.Collection(outboxMongo.CollectionName).CountDocuments(ctx, bson.M{"aggregateId": bin.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
