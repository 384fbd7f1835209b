package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bne-group/eportal-gateway/internal/config"
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
	"github.com/bne-group/eportal-gateway/internal/registry"
)

const testJSONSchema = `
{
  "type": "object",
  "properties": {
    "customerId": {"type": "string"}
  },
  "required": ["customerId"]
}`

const testTransform = `{"customerId": Payload.customerId, "datacenter": Datacenter, "operation": Operation}`

func newTestStage(t *testing.T) *Stage {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "payer.json"), []byte(testJSONSchema), 0o644); err != nil {
		t.Fatalf("write json schema: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "payer.jsonata"), []byte(testTransform), 0o644); err != nil {
		t.Fatalf("write transform: %v", err)
	}
	reg := registry.New(root, nil)
	return New(reg)
}

func TestRunAppliesTransformAndPreservesHeaders(t *testing.T) {
	stage := newTestStage(t)
	e := &envelope.Envelope{
		Datacenter:  "JRD",
		PayloadJSON: `{"customerId":"abc"}`,
		Operation:   config.Operation{Name: "payerQuery", JSONSchema: "payer.json", TransformExpr: "payer.jsonata"},
		Headers:     envelope.Headers{"channelId": "BNE"},
	}

	if err := stage.Run(e); err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}
	if e.TransformedJSON == "" {
		t.Fatal("expected transformed payload to be populated")
	}
	if e.Headers["channelId"] != "BNE" {
		t.Fatalf("expected original header preserved, got %+v", e.Headers)
	}
}

func TestRunFailsSchemaValidation(t *testing.T) {
	stage := newTestStage(t)
	e := &envelope.Envelope{
		Datacenter:  "JRD",
		PayloadJSON: `{}`,
		Operation:   config.Operation{Name: "payerQuery", JSONSchema: "payer.json", TransformExpr: "payer.jsonata"},
		Headers:     envelope.Headers{},
	}

	err := stage.Run(e)
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.SchemaValidationError {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
}

func TestRunFailsOnMissingTransform(t *testing.T) {
	stage := newTestStage(t)
	e := &envelope.Envelope{
		PayloadJSON: `{"customerId":"abc"}`,
		Operation:   config.Operation{Name: "payerQuery", JSONSchema: "payer.json", TransformExpr: "missing.jsonata"},
		Headers:     envelope.Headers{},
	}

	err := stage.Run(e)
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.SchemaNotFound {
		t.Fatalf("expected SchemaNotFound for missing transform resource, got %v", err)
	}
}
