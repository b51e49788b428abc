package asyncapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

const resourceURL = "asyncapi://spec.json"

// EventValidator validates CloudEvent data payloads against the message
// payload schemas of an AsyncAPI document, keyed by message name.
type EventValidator struct {
	schemas map[string]*jsonschema.Schema
}

type spec struct {
	Components struct {
		Messages map[string]struct {
			Name    string `yaml:"name"`
			Payload struct {
				Ref string `yaml:"$ref"`
			} `yaml:"payload"`
		} `yaml:"messages"`
	} `yaml:"components"`
}

// NewEventValidator loads the document at path
func NewEventValidator(path string) (*EventValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AsyncAPI spec: %w", err)
	}
	return NewEventValidatorFromBytes(data)
}

// NewEventValidatorFromBytes compiles one schema per component message
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var parsed spec
	if err := yaml.Unmarshal(specBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	// the whole document is one resource so internal $refs resolve
	var raw map[string]interface{}
	if err := yaml.Unmarshal(specBytes, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert AsyncAPI spec: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to load AsyncAPI spec: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add AsyncAPI resource: %w", err)
	}

	schemas := make(map[string]*jsonschema.Schema, len(parsed.Components.Messages))
	for key, msg := range parsed.Components.Messages {
		if msg.Name == "" || !strings.HasPrefix(msg.Payload.Ref, "#/") {
			return nil, fmt.Errorf("message %s needs a name and a local payload $ref", key)
		}
		compiled, err := compiler.Compile(resourceURL + msg.Payload.Ref)
		if err != nil {
			return nil, fmt.Errorf("failed to compile payload for %s: %w", msg.Name, err)
		}
		schemas[msg.Name] = compiled
	}
	return &EventValidator{schemas: schemas}, nil
}

// ValidateData validates an event's data against the schema for eventType
func (v *EventValidator) ValidateData(eventType string, data interface{}) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", eventType)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", eventType, err)
	}
	return nil
}

// EventTypes returns the event types with a schema, sorted
func (v *EventValidator) EventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for t := range v.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
