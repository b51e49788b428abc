package picker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
)

func TestSession_ClaimFlow(t *testing.T) {
	s := NewPickingSession(testPicker)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.BeginClaim("WU-1"))
	assert.Equal(t, StateClaiming, s.State())
	assert.ErrorIs(t, s.BeginClaim("WU-2"), ErrSessionBusy)
	assert.Empty(t, s.ActiveUnitID(), "nothing is active until the server confirms")

	unit := claimedUnit(t, "WU-1", line("SKU-A", "A-01", 1))
	require.NoError(t, s.ClaimSucceeded(&UnitView{Unit: unit}))
	assert.Equal(t, StatePicking, s.State())
	assert.Equal(t, "WU-1", s.ActiveUnitID())
}

func TestSession_ClaimConflictReturnsToQueue(t *testing.T) {
	s := NewPickingSession(testPicker)
	require.NoError(t, s.BeginClaim("WU-1"))

	notice := s.ClaimFailed(errors.ErrClaimConflict("picker-2"))
	assert.Equal(t, StateIdle, s.State())
	assert.Contains(t, notice, "picker-2")
	assert.Nil(t, s.Unit())
}

func TestSession_ClaimGrantedToSomeoneElse(t *testing.T) {
	s := NewPickingSession(testPicker)
	require.NoError(t, s.BeginClaim("WU-1"))

	other := newUnit(t, "WU-1", line("SKU-A", "A-01", 1))
	require.NoError(t, other.Claim("picker-2"))

	err := s.ClaimSucceeded(&UnitView{Unit: other})
	assert.True(t, errors.HasCode(err, errors.CodeClaimConflict))
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_FullScanPick(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-100", "A-01", 1)))

	result, m, err := s.Scan("sku-100")
	require.NoError(t, err)
	assert.Equal(t, Matched, result.Outcome)
	require.NotNil(t, m)

	assert.Equal(t, MutationUpdateItem, m.Kind)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, 1, m.Update.Picked)
	assert.Equal(t, domain.PickMethodScan, m.Update.Method)

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, domain.ItemStatusCompleted, s.Unit().Items[0].Status)
	assert.Equal(t, domain.UnitStatusCompleted, s.Unit().Status)
	assert.Empty(t, s.Unit().GetDomainEvents())
}

func TestSession_ScanMismatchChangesNothing(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-100", "A-01", 2)))

	result, m, err := s.Scan("SKU-999")
	require.NoError(t, err)
	assert.Equal(t, NoMatch, result.Outcome)
	assert.Nil(t, m)

	result, m, err = s.Scan("S")
	require.NoError(t, err)
	assert.Equal(t, Ignored, result.Outcome)
	assert.Nil(t, m)
	assert.Equal(t, 0, s.Unit().PickedUnits())
}

func TestSession_CurrentItemIsFirstOpen(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1",
		line("SKU-A", "A-01", 1),
		line("SKU-B", "A-02", 1),
		line("SKU-C", "A-03", 1),
	))

	idx, ok := s.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	_, err := s.Pick(1, 1, domain.PickMethodButton)
	require.NoError(t, err)
	idx, _ = s.CurrentItem()
	assert.Equal(t, 0, idx)

	_, err = s.Pick(0, 1, domain.PickMethodButton)
	require.NoError(t, err)
	idx, _ = s.CurrentItem()
	assert.Equal(t, 2, idx)
}

func TestSession_PickAllAndDecrement(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 3), line("SKU-B", "A-02", 1)))

	m, err := s.Pick(0, 2, domain.PickMethodButton)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Update.Picked)

	m, err = s.Decrement(0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Update.Picked)
	assert.Equal(t, domain.PickMethodManual, m.Update.Method)

	m, err = s.PickAll(0)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Update.Picked)
	assert.Equal(t, domain.PickMethodPickAll, m.Update.Method)

	_, err = s.Decrement(0)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidTransition), "terminal items cannot be decremented")
}

func TestSession_QuantityModal(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 5)))

	require.NoError(t, s.OpenQuantity(0))
	assert.Equal(t, QuantityModal{ItemIndex: 0, Remaining: 5}, s.Modal())
	assert.ErrorIs(t, s.OpenShort(0), ErrModalOpen)

	_, _, err := s.Scan("SKU-A")
	assert.ErrorIs(t, err, ErrModalOpen)

	_, err = s.ConfirmQuantity(6)
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))
	assert.NotNil(t, s.Modal(), "invalid input keeps the dialog open")

	m, err := s.ConfirmQuantity(4)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Update.Picked)
	assert.Nil(t, s.Modal())
}

func TestSession_PartialShort(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 3), line("SKU-B", "A-02", 1)))

	require.NoError(t, s.OpenShort(0))
	m, err := s.ConfirmShort(2, domain.ShortReasonPartial, "only two on shelf")
	require.NoError(t, err)

	assert.Equal(t, domain.ItemStatusShort, m.Update.Status)
	assert.Equal(t, 2, m.Update.Picked)
	assert.Equal(t, domain.ShortReasonPartial, m.Update.Reason)
	assert.Equal(t, "only two on shelf", m.Update.Note)

	unit := s.Unit()
	assert.Equal(t, domain.ItemStatusShort, unit.Items[0].Status)
	assert.Equal(t, 2, unit.Items[0].PickedQuantity)
	assert.True(t, unit.HasOpenException())
	assert.Equal(t, StatePicking, s.State())

	assert.True(t, errors.HasCode(s.OpenEdit(0), errors.CodeInvalidTransition))
}

func TestSession_ZeroShortCompletesUnit(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2)))

	require.NoError(t, s.OpenShort(0))
	m, err := s.ConfirmShort(0, domain.ShortReasonOutOfStock, "")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Update.Picked)
	assert.Equal(t, StateCompleted, s.State())
}

func TestSession_EditRejectsAboveTargetLocally(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 3)))
	_, err := s.Pick(0, 1, domain.PickMethodScan)
	require.NoError(t, err)

	require.NoError(t, s.OpenEdit(0))
	assert.Equal(t, EditQuantityModal{ItemIndex: 0, Current: 1, Target: 3}, s.Modal())

	m, err := s.ConfirmEdit(4)
	assert.Nil(t, m)
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))
	assert.Equal(t, 1, s.Unit().Items[0].PickedQuantity)

	m, err = s.ConfirmEdit(0)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Update.Picked)
	assert.Equal(t, domain.ItemStatusPending, s.Unit().Items[0].Status)
}

func TestSession_ReleaseWithoutProgressIsImmediate(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2)))

	m, err := s.RequestRelease()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, MutationRelease, m.Kind)
	assert.False(t, m.ResetProgress)
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_ReleaseWithProgressAsks(t *testing.T) {
	for _, reset := range []bool{false, true} {
		s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 1), line("SKU-B", "A-02", 2)))
		_, err := s.Pick(0, 1, domain.PickMethodScan)
		require.NoError(t, err)

		m, err := s.RequestRelease()
		require.NoError(t, err)
		assert.Nil(t, m)
		assert.Equal(t, ReleaseModal{UnitID: "WU-1", PickedUnits: 1}, s.Modal())

		m, err = s.ConfirmRelease(reset)
		require.NoError(t, err)
		assert.Equal(t, reset, m.ResetProgress)
		assert.Equal(t, "WU-1", m.UnitID)
		assert.Equal(t, StateIdle, s.State())
		assert.Nil(t, s.Modal())
	}
}

func TestSession_BinCountGate(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2), line("SKU-B", "A-02", 1)))
	_, err := s.Pick(0, 1, domain.PickMethodScan)
	require.NoError(t, err)

	s.ApplyUpdate(&ItemUpdateResult{Reconciliation: &domain.ReconciliationContext{
		Deducted:         true,
		SKU:              "SKU-A",
		LocationID:       "A-01",
		SystemQuantity:   domain.StockLevel(3),
		ExpectedQuantity: domain.StockLevel(2),
		BinCountNeeded:   true,
		Replen:           domain.ReplenInfo{Stockout: true},
	}})

	modal, ok := s.Modal().(BinCountModal)
	require.True(t, ok)
	assert.Equal(t, "SKU-A", modal.SKU)
	assert.True(t, modal.Reconciliation.Replen.Stockout)
	assert.Contains(t, s.Notice(), "Stockout")

	m, err := s.ConfirmCount(2)
	require.NoError(t, err)
	assert.Equal(t, MutationConfirmCount, m.Kind)
	assert.Equal(t, domain.BinCount{SKU: "SKU-A", LocationID: "A-01", ActualQuantity: 2, CountedBy: testPicker}, *m.Count)
	assert.Nil(t, s.Modal())

	assert.Equal(t, 1, s.Unit().Items[0].PickedQuantity, "the gate never rolls back the pick")
}

func TestSession_BinCountWaitsBehindOpenDialog(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2), line("SKU-B", "A-02", 1)))
	_, err := s.Pick(0, 1, domain.PickMethodScan)
	require.NoError(t, err)
	require.NoError(t, s.OpenShort(1))

	s.ApplyUpdate(&ItemUpdateResult{Reconciliation: &domain.ReconciliationContext{
		Deducted: true, SKU: "SKU-A", LocationID: "A-01", BinCountNeeded: true,
	}})
	assert.IsType(t, ShortPickModal{}, s.Modal())

	s.DismissModal()
	assert.IsType(t, BinCountModal{}, s.Modal())

	m, err := s.SkipCount(0)
	require.NoError(t, err)
	assert.Equal(t, MutationSkipCount, m.Kind)
}

func TestSession_NoGateWithoutBinCountNeeded(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2)))
	s.ApplyUpdate(&ItemUpdateResult{Reconciliation: domain.NotDeducted("SKU-A", "A-01")})
	assert.Nil(t, s.Modal())
}

func TestSession_MirrorFailureKeepsLocalState(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2)))
	m, err := s.Pick(0, 1, domain.PickMethodScan)
	require.NoError(t, err)

	s.MirrorFailed(&MirrorFailure{Mutation: *m, Err: errors.ErrServiceUnavailable("api"), Retryable: true})
	assert.Contains(t, s.Notice(), "will retry")
	assert.Equal(t, 1, s.Unit().Items[0].PickedQuantity)
	assert.Equal(t, StatePicking, s.State())
}

func TestSession_ReloadAdoptsServerTruth(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2)))
	_, err := s.Pick(0, 1, domain.PickMethodScan)
	require.NoError(t, err)

	server := claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2))
	s.Reload(&UnitView{Unit: server})
	assert.Equal(t, 0, s.Unit().Items[0].PickedQuantity)
	assert.Equal(t, StatePicking, s.State())

	lost := newUnit(t, "WU-1", line("SKU-A", "A-01", 2))
	require.NoError(t, lost.Claim("lead-1"))
	s.Reload(&UnitView{Unit: lost})
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, s.Notice())
}

func TestSession_CombinedGroup(t *testing.T) {
	parent := claimedUnit(t, "WU-1", line("SKU-A", "A-01", 1))
	child := claimedUnit(t, "WU-2", line("SKU-B", "A-02", 1))
	parent.CombinedGroupID, parent.ParentUnitID = "GRP-1", "WU-1"
	child.CombinedGroupID, child.ParentUnitID = "GRP-1", "WU-1"

	s := pickingSession(t, parent, child)
	list := s.PickList()
	require.Len(t, list, 2)
	assert.Equal(t, "WU-1", list[0].UnitID)
	assert.Equal(t, "WU-2", list[1].UnitID)

	_, m, err := s.Scan("SKU-B")
	require.NoError(t, err)
	assert.Equal(t, "WU-2", m.Update.UnitID)
	assert.Equal(t, StatePicking, s.State())

	_, _, err = s.Scan("SKU-A")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s.State())
}

func TestSession_RemoteCompletionReplacesLocal(t *testing.T) {
	s := pickingSession(t, claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2)))
	_, err := s.Pick(0, 1, domain.PickMethodScan)
	require.NoError(t, err)

	remote := claimedUnit(t, "WU-1", line("SKU-A", "A-01", 2))
	_, err = remote.RecordPick("WU-1-01", 2, domain.PickMethodScan, testPicker)
	require.NoError(t, err)

	s.ApplyUpdate(&ItemUpdateResult{Unit: remote})
	assert.Same(t, remote, s.Unit())
	assert.Equal(t, StateCompleted, s.State())
}
