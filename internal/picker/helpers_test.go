package picker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/domain"
)

const testPicker = "picker-1"

func line(sku, location string, qty int) domain.Item {
	return domain.Item{SKU: sku, LocationID: location, Quantity: qty}
}

func newUnit(t *testing.T, id string, items ...domain.Item) *domain.WorkUnit {
	t.Helper()
	u, err := domain.NewWorkUnit(id, domain.UnitKindOrder, []string{"ORD-" + id}, domain.PriorityNormal, items)
	require.NoError(t, err)
	u.ClearDomainEvents()
	return u
}

func claimedUnit(t *testing.T, id string, items ...domain.Item) *domain.WorkUnit {
	t.Helper()
	u := newUnit(t, id, items...)
	require.NoError(t, u.Claim(testPicker))
	u.ClearDomainEvents()
	return u
}

// pickingSession returns a session that has been granted unit
func pickingSession(t *testing.T, unit *domain.WorkUnit, members ...*domain.WorkUnit) *PickingSession {
	t.Helper()
	s := NewPickingSession(testPicker)
	require.NoError(t, s.BeginClaim(unit.UnitID))
	require.NoError(t, s.ClaimSucceeded(&UnitView{Unit: unit, Members: members}))
	require.Equal(t, StatePicking, s.State())
	return s
}
