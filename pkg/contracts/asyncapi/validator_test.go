package asyncapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpec = `
asyncapi: 2.6.0
info:
  title: test
  version: 1.0.0
components:
  messages:
    Claimed:
      name: test.claimed
      payload:
        $ref: '#/components/schemas/Claimed'
  schemas:
    Picker:
      type: string
      minLength: 1
    Claimed:
      type: object
      required: [unitId, pickerId]
      properties:
        unitId: { type: string }
        pickerId: { $ref: '#/components/schemas/Picker' }
`

func TestEventValidator_ValidateData(t *testing.T) {
	v, err := NewEventValidatorFromBytes([]byte(testSpec))
	require.NoError(t, err)
	assert.Equal(t, []string{"test.claimed"}, v.EventTypes())

	tests := []struct {
		name    string
		data    interface{}
		wantErr bool
	}{
		{name: "valid", data: map[string]string{"unitId": "WU-1", "pickerId": "picker-1"}},
		{name: "missing field", data: map[string]string{"unitId": "WU-1"}, wantErr: true},
		{name: "ref constraint", data: map[string]string{"unitId": "WU-1", "pickerId": ""}, wantErr: true},
		{name: "struct with tags", data: struct {
			UnitID   string `json:"unitId"`
			PickerID string `json:"pickerId"`
		}{"WU-1", "picker-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateData("test.claimed", tt.data)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorContains(t, v.ValidateData("test.unknown", nil), "no schema found")
}

func TestEventValidator_RejectsMessagesWithoutLocalPayload(t *testing.T) {
	_, err := NewEventValidatorFromBytes([]byte(`
asyncapi: 2.6.0
components:
  messages:
    Broken:
      payload:
        $ref: 'https://example.com/schema.json'
`))
	assert.ErrorContains(t, err, "needs a name")
}
