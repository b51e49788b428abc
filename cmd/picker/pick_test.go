package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/internal/picker"
)

const testPicker = "picker-1"

type loopFixture struct {
	loop    *pickLoop
	out     *bytes.Buffer
	session *picker.PickingSession
	sent    []*picker.Mutation
}

func newLoopFixture(t *testing.T, quantity int) *loopFixture {
	t.Helper()
	color.NoColor = true

	unit, err := domain.NewWorkUnit("WU-1", domain.UnitKindOrder, []string{"ORD-1"}, domain.PriorityNormal, []domain.Item{
		{SKU: "SKU-A", LocationID: "A-01-01", Quantity: quantity},
	})
	require.NoError(t, err)
	require.NoError(t, unit.Claim(testPicker))
	unit.ClearDomainEvents()

	session := picker.NewPickingSession(testPicker)
	require.NoError(t, session.BeginClaim("WU-1"))
	require.NoError(t, session.ClaimSucceeded(&picker.UnitView{Unit: unit}))

	f := &loopFixture{out: &bytes.Buffer{}, session: session}
	f.loop = &pickLoop{
		session: session,
		out:     f.out,
		submit: func(m *picker.Mutation) error {
			f.sent = append(f.sent, m)
			return nil
		},
		reload: func() (*picker.UnitView, error) {
			return &picker.UnitView{Unit: unit}, nil
		},
	}
	return f
}

func TestPickLoop_ScanRecordsOneUnit(t *testing.T) {
	f := newLoopFixture(t, 2)

	f.loop.scan("sku-a")

	require.Len(t, f.sent, 1)
	assert.Equal(t, picker.MutationUpdateItem, f.sent[0].Kind)
	assert.Equal(t, 1, f.sent[0].Update.Picked)
	assert.Equal(t, domain.PickMethodScan, f.sent[0].Update.Method)
	assert.Contains(t, f.out.String(), "Scanned SKUA")
}

func TestPickLoop_UnknownScanIsRejected(t *testing.T) {
	f := newLoopFixture(t, 2)

	f.loop.scan("other-sku")

	assert.Empty(t, f.sent)
	assert.Contains(t, f.out.String(), "No open item matches OTHERSKU")
}

func TestPickLoop_ShortDialog(t *testing.T) {
	f := newLoopFixture(t, 2)

	f.loop.command(":pick")
	f.loop.command(":short")
	require.IsType(t, picker.ShortPickModal{}, f.session.Modal())

	f.loop.command(":ok 1 damaged box crushed")

	require.Len(t, f.sent, 2)
	update := f.sent[1].Update
	assert.Equal(t, domain.ItemStatusShort, update.Status)
	assert.Equal(t, domain.ShortReasonDamaged, update.Reason)
	assert.Equal(t, "box crushed", update.Note)
	assert.Equal(t, picker.StateCompleted, f.session.State())
}

func TestPickLoop_OpenDialogBlocksScans(t *testing.T) {
	f := newLoopFixture(t, 3)

	f.loop.command(":qty")
	require.IsType(t, picker.QuantityModal{}, f.session.Modal())

	f.loop.scan("SKU-A")
	assert.Empty(t, f.sent)
	assert.Contains(t, f.out.String(), picker.ErrModalOpen.Error())

	f.loop.command(":ok 3")
	require.Len(t, f.sent, 1)
	assert.Equal(t, 3, f.sent[0].Update.Picked)
	assert.Equal(t, picker.StateCompleted, f.session.State())
}

func TestPickLoop_ReleaseAsksAboutProgress(t *testing.T) {
	f := newLoopFixture(t, 2)

	f.loop.command(":pick")
	f.loop.command(":release")
	require.IsType(t, picker.ReleaseModal{}, f.session.Modal())
	assert.Contains(t, f.out.String(), "Release WU-1 with 1 units picked")

	f.loop.command(":reset")
	require.Len(t, f.sent, 2)
	assert.Equal(t, picker.MutationRelease, f.sent[1].Kind)
	assert.True(t, f.sent[1].ResetProgress)
	assert.Equal(t, picker.StateIdle, f.session.State())
}

func TestPickLoop_BinCountFromMirrorResult(t *testing.T) {
	f := newLoopFixture(t, 2)

	f.loop.result(picker.Result{Update: &picker.ItemUpdateResult{
		Reconciliation: &domain.ReconciliationContext{
			Deducted:       true,
			SKU:            "SKU-A",
			LocationID:     "A-01-01",
			SystemQuantity: domain.StockLevel(1),
			BinCountNeeded: true,
		},
	}})
	assert.Contains(t, f.out.String(), "Count bin A-01-01 for SKU-A, system shows 1")

	f.loop.command(":count 4")
	require.Len(t, f.sent, 1)
	assert.Equal(t, picker.MutationConfirmCount, f.sent[0].Kind)
	assert.Equal(t, 4, f.sent[0].Count.ActualQuantity)
	assert.Nil(t, f.session.Modal())
}

func TestPickLoop_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{name: "unknown command", line: ":bogus", want: "unknown command"},
		{name: "answer without dialog", line: ":ok 1", want: picker.ErrNoModal.Error()},
		{name: "index not a number", line: ":pick x", want: "invalid syntax"},
		{name: "count without dialog", line: ":count 2", want: picker.ErrNoModal.Error()},
		{name: "count without quantity", line: ":count", want: "a quantity is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLoopFixture(t, 2)
			f.loop.command(tt.line)
			assert.Empty(t, f.sent)
			assert.Contains(t, f.out.String(), tt.want)
		})
	}
}

func TestPickLoop_Quit(t *testing.T) {
	f := newLoopFixture(t, 1)
	f.loop.command(":quit")
	assert.True(t, f.loop.quit)
}

func TestIntArg(t *testing.T) {
	n, err := intArg([]string{"pick"}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = intArg([]string{"pick", "0", "5"}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = intArg([]string{"count"}, 1, -1)
	assert.Error(t, err)
}

func TestApp_PushURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080":   "ws://localhost:8080/api/v1/ws",
		"https://floor.example":   "wss://floor.example/api/v1/ws",
		"ws://already.example:81": "ws://already.example:81/api/v1/ws",
	}
	for server, want := range tests {
		a := &app{server: server}
		assert.Equal(t, want, a.pushURL(), server)
	}
}

func TestPrintQueue(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	printQueue(&out, nil)
	assert.Contains(t, out.String(), "Queue is empty")

	unit, err := domain.NewWorkUnit("WU-7", domain.UnitKindOrder, []string{"ORD-7"}, domain.PriorityRush, []domain.Item{
		{SKU: "SKU-A", LocationID: "A-01-01", Quantity: 4},
	})
	require.NoError(t, err)
	out.Reset()
	printQueue(&out, []*domain.WorkUnit{unit})
	assert.Contains(t, out.String(), "WU-7")
	assert.Contains(t, out.String(), "rush")
	assert.Contains(t, out.String(), "0/4")
}
