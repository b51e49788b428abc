package domain_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/contracts/asyncapi"
)

func loadEventContract(t *testing.T) *asyncapi.EventValidator {
	t.Helper()
	validator, err := asyncapi.NewEventValidator(filepath.Join("..", "..", "api", "asyncapi.yaml"))
	require.NoError(t, err)
	return validator
}

func TestEventContract_CoversEveryEventType(t *testing.T) {
	validator := loadEventContract(t)

	assert.ElementsMatch(t, []string{
		cloudevents.UnitCreated,
		cloudevents.UnitsCombined,
		cloudevents.UnitClaimed,
		cloudevents.UnitReleased,
		cloudevents.UnitHeld,
		cloudevents.UnitHoldReleased,
		cloudevents.UnitPriorityChanged,
		cloudevents.ItemPicked,
		cloudevents.ItemShorted,
		cloudevents.UnitCompleted,
		cloudevents.UnitExceptionRaised,
		cloudevents.UnitExceptionResolved,
		cloudevents.UnitReadyToShip,
		cloudevents.BinCountConfirmed,
		cloudevents.ReplenishmentSkipped,
	}, validator.EventTypes())
}

func contractUnit(t *testing.T, id string, items ...domain.Item) *domain.WorkUnit {
	t.Helper()
	u, err := domain.NewWorkUnit(id, domain.UnitKindOrder, []string{"ORD-" + id}, domain.PriorityNormal, items)
	require.NoError(t, err)
	return u
}

// TestEventContract_LifecycleEventsMatchSchemas drives units and a bin through
// their lifecycles and checks every emitted event against the published schema
func TestEventContract_LifecycleEventsMatchSchemas(t *testing.T) {
	validator := loadEventContract(t)
	var events []domain.DomainEvent

	// pick to ship with a short line
	unit := contractUnit(t, "WU-1",
		domain.Item{SKU: "SKU-A", LocationID: "A-01-01", Quantity: 2},
		domain.Item{SKU: "SKU-B", LocationID: "A-01-02", Quantity: 1},
	)
	require.NoError(t, unit.SetPriority(domain.PriorityRush, "lead-1"))
	require.NoError(t, unit.Hold("lead-1"))
	require.NoError(t, unit.ReleaseHold("lead-1"))
	require.NoError(t, unit.Claim("picker-1"))
	_, err := unit.RecordPick("WU-1-01", 2, domain.PickMethodScan, "picker-1")
	require.NoError(t, err)
	_, err = unit.RecordShort("WU-1-02", 0, domain.ShortReasonOutOfStock, "empty bin", "picker-1")
	require.NoError(t, err)
	require.NoError(t, unit.ResolveException(domain.ResolutionShipPartial, "lead-1", "ship what we have"))
	require.NoError(t, unit.MarkReadyToShip("lead-1"))
	events = append(events, unit.GetDomainEvents()...)

	// release and forced release
	released := contractUnit(t, "WU-2", domain.Item{SKU: "SKU-C", LocationID: "B-01-01", Quantity: 3})
	require.NoError(t, released.Claim("picker-2"))
	_, err = released.RecordPick("WU-2-01", 1, domain.PickMethodButton, "picker-2")
	require.NoError(t, err)
	require.NoError(t, released.Release("picker-2", false))
	require.NoError(t, released.Claim("picker-3"))
	require.NoError(t, released.ForceRelease("lead-1", true))
	events = append(events, released.GetDomainEvents()...)

	// combined group
	parent := contractUnit(t, "WU-3", domain.Item{SKU: "SKU-D", LocationID: "C-01-01", Quantity: 1})
	child := contractUnit(t, "WU-4", domain.Item{SKU: "SKU-E", LocationID: "C-01-02", Quantity: 1})
	require.NoError(t, domain.Combine("GRP-1", "WU-3", []*domain.WorkUnit{parent, child}))
	events = append(events, parent.GetDomainEvents()...)

	// bin counts
	bin, err := domain.NewBinStock("SKU-A", "A-01-01", 10, 5, 2, 20, 3)
	require.NoError(t, err)
	_, err = bin.ConfirmCount(1, "picker-1")
	require.NoError(t, err)
	_, err = bin.SkipReplenishment(1, "picker-1")
	require.NoError(t, err)
	events = append(events, bin.GetDomainEvents()...)

	seen := make(map[string]bool)
	for _, event := range events {
		seen[event.EventType()] = true
		assert.NoError(t, validator.ValidateData(event.EventType(), event), event.EventType())
	}

	for _, eventType := range []string{
		cloudevents.UnitCreated,
		cloudevents.UnitsCombined,
		cloudevents.UnitClaimed,
		cloudevents.UnitReleased,
		cloudevents.UnitHeld,
		cloudevents.UnitHoldReleased,
		cloudevents.UnitPriorityChanged,
		cloudevents.ItemPicked,
		cloudevents.ItemShorted,
		cloudevents.UnitCompleted,
		cloudevents.UnitExceptionRaised,
		cloudevents.UnitExceptionResolved,
		cloudevents.UnitReadyToShip,
		cloudevents.BinCountConfirmed,
		cloudevents.ReplenishmentSkipped,
	} {
		assert.True(t, seen[eventType], "no %s event emitted", eventType)
	}
}

func TestEventContract_RejectsMalformedData(t *testing.T) {
	validator := loadEventContract(t)

	tests := []struct {
		name      string
		eventType string
		data      interface{}
	}{
		{
			name:      "unknown short reason",
			eventType: cloudevents.ItemShorted,
			data: map[string]interface{}{
				"unitId": "WU-1", "itemId": "WU-1-01", "orderId": "ORD-1", "sku": "SKU-A", "locationId": "A-01-01",
				"reason": "lost", "pickedQuantity": 0, "target": 1, "pickerId": "picker-1", "shortedAt": "2024-01-01T00:00:00Z",
			},
		},
		{
			name:      "claim without picker",
			eventType: cloudevents.UnitClaimed,
			data:      map[string]interface{}{"unitId": "WU-1", "claimedAt": "2024-01-01T00:00:00Z"},
		},
		{
			name:      "unregistered type",
			eventType: "wms.picking.unit-teleported",
			data:      map[string]interface{}{"unitId": "WU-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validator.ValidateData(tt.eventType, tt.data))
		})
	}
}
