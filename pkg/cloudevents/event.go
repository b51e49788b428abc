package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/tracing"
)

// Event types published by the pick floor
const (
	UnitCreated           = "wms.picking.unit-created"
	UnitsCombined         = "wms.picking.units-combined"
	UnitClaimed           = "wms.picking.unit-claimed"
	UnitReleased          = "wms.picking.unit-released"
	UnitHeld              = "wms.picking.unit-held"
	UnitHoldReleased      = "wms.picking.unit-hold-released"
	UnitPriorityChanged   = "wms.picking.unit-priority-changed"
	ItemPicked            = "wms.picking.item-picked"
	ItemShorted           = "wms.picking.item-shorted"
	UnitCompleted         = "wms.picking.unit-completed"
	UnitExceptionRaised   = "wms.picking.exception-raised"
	UnitExceptionResolved = "wms.picking.exception-resolved"
	UnitReadyToShip       = "wms.picking.unit-ready-to-ship"
	BinCountConfirmed     = "wms.inventory.bin-count-confirmed"
	ReplenishmentSkipped  = "wms.inventory.replenishment-skipped"
)

// WMSCloudEvent is a CloudEvents 1.0 envelope with the platform's extensions.
type WMSCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype,omitempty"`
	Data            interface{} `json:"data,omitempty"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	UnitID        string `json:"wmsunitid,omitempty"`
	PickerID      string `json:"wmspickerid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
}

// EventFactory stamps events with a fixed source
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// Source returns the factory's CloudEvents source
func (f *EventFactory) Source() string {
	return f.source
}

// CreateEvent builds an event, carrying the correlation ID and trace context found in ctx.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *WMSCloudEvent {
	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
	}

	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	event.TraceParent = carrier["traceparent"]

	return event
}

// CreateUnitEvent builds an event whose subject is the work unit.
func (f *EventFactory) CreateUnitEvent(ctx context.Context, eventType, unitID, pickerID string, data interface{}) *WMSCloudEvent {
	event := f.CreateEvent(ctx, eventType, "unit/"+unitID, data)
	event.UnitID = unitID
	event.PickerID = pickerID
	return event
}
