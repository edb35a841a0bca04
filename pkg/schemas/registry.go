package schemas

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

//go:embed definitions/*.schema.json
var definitionFiles embed.FS

type SchemaName string

const (
	TelemetryEnvelopeV1   SchemaName = "telemetry-envelope.v1"
	TelemetryRawV1        SchemaName = "telemetry-raw.v1"
	TelemetryDlqV1        SchemaName = "telemetry-dlq.v1"
	PresenceEventV1       SchemaName = "presence-event.v1"
	PresenceEventsV1      SchemaName = "presence-events.v1"
	DeviceCommandsV1      SchemaName = "device-commands.v1"
	DeviceCommandMqttV1   SchemaName = "device-command.v1"
	DeviceCommandAckV1    SchemaName = "device-command-ack.v1"
	DeviceCommandAcksV1   SchemaName = "device-command-acks.v1"
	DeviceCommandEventsV1 SchemaName = "device-command-events.v1"
	AlertEventsV1         SchemaName = "alerts-events.v1"
	AiPredictionsV1       SchemaName = "ai-predictions.v1"
)

// ValidationError carries the schema identity and the individual causes so
// callers can route to the right dead-letter reason.
type ValidationError struct {
	Schema SchemaName
	Causes []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload does not match schema '%s': %s", e.Schema, strings.Join(e.Causes, "; "))
}

// Registry holds every wire contract compiled once at startup.
type Registry struct {
	schemas map[SchemaName]*jsonschema.Schema
}

func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	reg := &Registry{schemas: map[SchemaName]*jsonschema.Schema{}}

	entries, err := definitionFiles.ReadDir("definitions")
	if err != nil {
		return nil, fmt.Errorf("could not read embedded schema definitions: %w", err)
	}

	for _, entry := range entries {
		raw, err := definitionFiles.ReadFile("definitions/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("could not read schema '%s': %w", entry.Name(), err)
		}

		schema, err := compiler.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("could not compile schema '%s': %w", entry.Name(), err)
		}

		name := SchemaName(strings.TrimSuffix(entry.Name(), ".schema.json"))
		reg.schemas[name] = schema
	}

	return reg, nil
}

// ValidateBytes checks raw JSON against the named schema. A syntax error in
// the payload is returned as-is so callers can distinguish invalid JSON from
// a schema mismatch.
func (r *Registry) ValidateBytes(name SchemaName, raw []byte) error {
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	return r.validate(name, data)
}

// ValidateStruct marshals v and checks the result against the named schema.
// It is used on outbound records, where a failure is a mapping bug rather
// than bad input.
func (r *Registry) ValidateStruct(name SchemaName, v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var data interface{}
	if err := json.Unmarshal(encoded, &data); err != nil {
		return err
	}
	return r.validate(name, data)
}

func (r *Registry) validate(name SchemaName, data interface{}) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema '%s'", name)
	}

	result := schema.Validate(data)
	if result.Valid {
		return nil
	}

	causes := []string{}
	for field, detail := range result.Errors {
		causes = append(causes, fmt.Sprintf("%s: %v", field, detail))
	}

	return &ValidationError{Schema: name, Causes: causes}
}

// IsValidationError reports whether err is a schema mismatch as opposed to a
// JSON syntax or registry error.
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
