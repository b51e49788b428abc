package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/pick-floor/pkg/cloudevents"
)

// Binary-mode CloudEvents headers. The JSON body still carries the full
// envelope so consumers that ignore headers lose nothing.
const (
	headerSpecVersion   = "ce-specversion"
	headerType          = "ce-type"
	headerSource        = "ce-source"
	headerID            = "ce-id"
	headerTime          = "ce-time"
	headerContentType   = "content-type"
	headerCorrelationID = "ce-wmscorrelationid"
	headerUnitID        = "ce-wmsunitid"
	headerPickerID      = "ce-wmspickerid"
	headerTraceParent   = "ce-traceparent"
)

// EncodeEvent turns an event into a Kafka message keyed by subject, so all
// events for one unit land on one partition in order.
func EncodeEvent(event *cloudevents.WMSCloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: headerSpecVersion, Value: []byte(event.SpecVersion)},
		{Key: headerType, Value: []byte(event.Type)},
		{Key: headerSource, Value: []byte(event.Source)},
		{Key: headerID, Value: []byte(event.ID)},
		{Key: headerTime, Value: []byte(event.Time.Format(time.RFC3339Nano))},
		{Key: headerContentType, Value: []byte(event.DataContentType)},
	}
	optional := []struct{ key, value string }{
		{headerCorrelationID, event.CorrelationID},
		{headerUnitID, event.UnitID},
		{headerPickerID, event.PickerID},
		{headerTraceParent, event.TraceParent},
	}
	for _, h := range optional {
		if h.value != "" {
			headers = append(headers, kafka.Header{Key: h.key, Value: []byte(h.value)})
		}
	}

	return kafka.Message{
		Key:     []byte(event.Subject),
		Value:   data,
		Headers: headers,
		Time:    event.Time,
	}, nil
}

// DecodeEvent parses a Kafka message back into an event. Headers win over
// body fields for the extensions.
func DecodeEvent(msg kafka.Message) (*cloudevents.WMSCloudEvent, error) {
	var event cloudevents.WMSCloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, header := range msg.Headers {
		value := string(header.Value)
		switch header.Key {
		case headerCorrelationID:
			event.CorrelationID = value
		case headerUnitID:
			event.UnitID = value
		case headerPickerID:
			event.PickerID = value
		case headerTraceParent:
			event.TraceParent = value
		}
	}

	return &event, nil
}
