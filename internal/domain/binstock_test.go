package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBin(t *testing.T, onHand, reserve int) *BinStock {
	t.Helper()
	bin, err := NewBinStock("SKU-001", "A-01-01", onHand, reserve, 5, 20, 3)
	require.NoError(t, err)
	return bin
}

func TestBinStockDeduct(t *testing.T) {
	tests := []struct {
		name           string
		onHand         int
		qty            int
		wantOnHand     int
		wantCountCheck bool
	}{
		{"plenty left", 10, 2, 8, false},
		{"falls to threshold", 10, 7, 3, true},
		{"short of stock empties bin", 2, 5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := newBin(t, tt.onHand, 0)
			rc := bin.Deduct(tt.qty)

			assert.True(t, rc.Deducted)
			assert.Equal(t, tt.wantOnHand, bin.OnHand)
			require.NotNil(t, rc.SystemQuantity)
			assert.Equal(t, tt.wantOnHand, *rc.SystemQuantity)
			assert.Equal(t, tt.wantCountCheck, rc.BinCountNeeded)
		})
	}
}

func TestBinStockPlanReplenishment(t *testing.T) {
	tests := []struct {
		name         string
		onHand       int
		reserve      int
		auto         bool
		pending      string
		wantStatus   ReplenStatus
		wantReplen   ReplenInfo
		wantExpected int
		wantOnHand   int
	}{
		{
			name: "above minimum", onHand: 8, reserve: 50,
			wantStatus: ReplenNone, wantExpected: 8, wantOnHand: 8,
		},
		{
			name: "triggers workflow", onHand: 2, reserve: 50,
			wantStatus:   ReplenTriggered,
			wantReplen:   ReplenInfo{Triggered: true, Quantity: 18},
			wantExpected: 20, wantOnHand: 2,
		},
		{
			name: "auto bin plans without moving", onHand: 2, reserve: 10, auto: true,
			wantStatus:   ReplenTriggered,
			wantReplen:   ReplenInfo{Triggered: true, Quantity: 10},
			wantExpected: 12, wantOnHand: 2,
		},
		{
			name: "already pending", onHand: 2, reserve: 50, pending: "replen-SKU-001-A-01-01",
			wantStatus:   ReplenPending,
			wantReplen:   ReplenInfo{TaskID: "replen-SKU-001-A-01-01"},
			wantExpected: 2, wantOnHand: 2,
		},
		{
			name: "stockout", onHand: 2, reserve: 0,
			wantStatus:   ReplenStockout,
			wantReplen:   ReplenInfo{Stockout: true},
			wantExpected: 2, wantOnHand: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := newBin(t, tt.onHand, tt.reserve)
			bin.AutoReplenish = tt.auto
			bin.PendingReplenishmentID = tt.pending
			rc := &ReconciliationContext{Deducted: true, SystemQuantity: StockLevel(bin.OnHand), ExpectedQuantity: StockLevel(bin.OnHand)}

			status := bin.PlanReplenishment(rc)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReplen, rc.Replen)
			require.NotNil(t, rc.ExpectedQuantity)
			assert.Equal(t, tt.wantExpected, *rc.ExpectedQuantity)
			assert.Equal(t, tt.wantOnHand, bin.OnHand)
			if tt.wantStatus == ReplenStockout {
				assert.True(t, rc.BinCountNeeded)
			}
		})
	}
}

func TestBinStockReportShort(t *testing.T) {
	tests := []struct {
		name      string
		onHand    int
		reason    ShortReason
		wantCount bool
	}{
		{"ledger shows stock", 10, ShortReasonOutOfStock, true},
		{"not found with stock", 4, ShortReasonNotFound, true},
		{"ledger agrees bin is empty", 0, ShortReasonOutOfStock, false},
		{"damaged stock is still there", 10, ShortReasonDamaged, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := newBin(t, tt.onHand, 0)
			rc := bin.ReportShort(tt.reason)

			assert.False(t, rc.Deducted)
			require.NotNil(t, rc.SystemQuantity)
			assert.Equal(t, tt.onHand, *rc.SystemQuantity)
			assert.Equal(t, tt.wantCount, rc.BinCountNeeded)
			assert.Equal(t, tt.onHand, bin.OnHand)
		})
	}
}

func TestBinStockConfirmCountIsIdempotent(t *testing.T) {
	bin := newBin(t, 10, 0)

	first, err := bin.ConfirmCount(7, "picker-1")
	require.NoError(t, err)
	second, err := bin.ConfirmCount(7, "picker-1")
	require.NoError(t, err)

	assert.Equal(t, -3, first)
	assert.Equal(t, 0, second)
	assert.Equal(t, 7, bin.OnHand)
	assert.Equal(t, "picker-1", bin.LastCountedBy)
	assert.NotNil(t, bin.LastCountedAt)
	require.Len(t, bin.GetDomainEvents(), 2)

	_, err = bin.ConfirmCount(-1, "picker-1")
	assert.ErrorIs(t, err, ErrNegativeCount)
}

func TestBinStockSkipReplenishment(t *testing.T) {
	bin := newBin(t, 2, 50)
	bin.MarkReplenishmentPending("replen-SKU-001-A-01-01")

	pending, err := bin.SkipReplenishment(4, "picker-1")
	require.NoError(t, err)

	assert.Equal(t, "replen-SKU-001-A-01-01", pending)
	assert.Empty(t, bin.PendingReplenishmentID)
	assert.Equal(t, 4, bin.OnHand)
	event := bin.GetDomainEvents()[0].(*ReplenishmentSkippedEvent)
	assert.Equal(t, "replen-SKU-001-A-01-01", event.ReplenishmentID)
}

func TestBinStockClearPendingReplenishment(t *testing.T) {
	bin := newBin(t, 2, 50)
	bin.MarkReplenishmentPending("replen-a")

	assert.False(t, bin.ClearPendingReplenishment("replen-b"))
	assert.Equal(t, "replen-a", bin.PendingReplenishmentID)
	assert.True(t, bin.ClearPendingReplenishment("replen-a"))
	assert.Empty(t, bin.PendingReplenishmentID)
}

func TestReplenishmentWorkflowID(t *testing.T) {
	assert.Equal(t, "replen-SKU-9-B-02-03", ReplenishmentWorkflowID("SKU-9", "B-02-03"))
	assert.Equal(t, "SKU-9@B-02-03", BinID("SKU-9", "B-02-03"))
}
