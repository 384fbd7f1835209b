// Package transform implements JSON-schema validation followed by the
// declarative transform, with header-snapshot restoration around it
// (spec §4.F).
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr/vm"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
	"github.com/bne-group/eportal-gateway/internal/registry"
)

// Stage runs the operation's JSON-schema validator and transform program
// over the envelope's decoded payload.
type Stage struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Stage {
	return &Stage{registry: reg}
}

// Run executes the four steps of spec §4.F against e. e.PayloadJSON must
// already be populated by the Codec's decode step.
func (s *Stage) Run(e *envelope.Envelope) error {
	e.SnapshotHeaders()

	schema, err := s.registry.JSONSchema(e.Operation.JSONSchema)
	if err != nil {
		return err
	}
	if err := validate(schema, e.PayloadJSON); err != nil {
		return err
	}

	program, err := s.registry.TransformProgram(e.Operation.TransformExpr)
	if err != nil {
		return err
	}
	transformed, err := runTransform(program, e.PayloadJSON, e.Datacenter, e.Operation.Name)
	if err != nil {
		return err
	}
	e.TransformedJSON = transformed

	e.RestoreHeaders()
	return nil
}

func validate(schema *jsonschema.Schema, payloadJSON string) error {
	var instance interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(payloadJSON)))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return pipeline.Wrap(pipeline.SchemaValidationError, fmt.Errorf("decode payload for validation: %w", err))
	}
	if err := schema.Validate(instance); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return pipeline.New(pipeline.SchemaValidationError, "validation failed at %s: %v", ve.InstanceLocation, ve)
		}
		return pipeline.Wrap(pipeline.SchemaValidationError, err)
	}
	return nil
}

func runTransform(program *vm.Program, payloadJSON, datacenter, operation string) (string, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", pipeline.Wrap(pipeline.TransformError, fmt.Errorf("unmarshal payload for transform: %w", err))
	}

	env := map[string]interface{}{
		"Payload":    payload,
		"Datacenter": datacenter,
		"Operation":  operation,
	}

	result, err := vm.Run(program, env)
	if err != nil {
		return "", pipeline.Wrap(pipeline.TransformError, fmt.Errorf("run transform: %w", err))
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", pipeline.Wrap(pipeline.TransformError, fmt.Errorf("marshal transform result: %w", err))
	}
	return string(out), nil
}
