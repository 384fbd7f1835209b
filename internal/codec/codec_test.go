package codec

import (
	"encoding/json"
	"testing"

	"github.com/linkedin/goavro/v2"

	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

const testSchema = `
{
  "type": "record",
  "name": "Customer",
  "fields": [
    {"name": "id", "type": "string"},
    {"name": "balance", "type": {"type": "bytes", "logicalType": "decimal", "precision": 10, "scale": 2}},
    {"name": "nickname", "type": ["null", "string"]}
  ]
}`

func mustCodec(t *testing.T) *goavro.Codec {
	t.Helper()
	c, err := goavro.NewCodec(testSchema)
	if err != nil {
		t.Fatalf("build codec: %v", err)
	}
	return c
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := mustCodec(t)

	input := `{"id":"c-1","balance":"19.99","nickname":"Bob"}`
	binary, err := Encode(input, codec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(binary, codec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(decoded), &got); err != nil {
		t.Fatalf("unmarshal decoded json: %v", err)
	}
	if got["id"] != "c-1" {
		t.Fatalf("expected id c-1, got %v", got["id"])
	}
	if got["nickname"] != "Bob" {
		t.Fatalf("expected plain unwrapped nickname Bob, got %v (%T)", got["nickname"], got["nickname"])
	}
}

func TestEncodeNullUnionBranch(t *testing.T) {
	codec := mustCodec(t)
	input := `{"id":"c-2","balance":"0.00","nickname":null}`
	binary, err := Encode(input, codec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(binary, codec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(decoded), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["nickname"] != nil {
		t.Fatalf("expected nickname null, got %v", got["nickname"])
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	codec := mustCodec(t)
	binary, err := Encode(`{"id":"c-3","balance":"1.00","nickname":null}`, codec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = Decode(append(binary, 0xFF, 0xFF), codec)
	if err == nil {
		t.Fatal("expected error for trailing bytes")
	}
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.DecodeError {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestCoerceDecimalAcceptsBase64(t *testing.T) {
	got, err := coerceDecimal("AQ==", 2)
	if err != nil {
		t.Fatalf("expected base64 decimal to coerce, got %v", err)
	}
	if _, ok := got.([]byte); !ok {
		t.Fatalf("expected []byte result, got %T", got)
	}
}

func TestCoerceDecimalScalesNumericLiteral(t *testing.T) {
	got, err := coerceDecimal("19.99", 2)
	if err != nil {
		t.Fatalf("expected numeric literal to coerce, got %v", err)
	}
	b, ok := got.([]byte)
	if !ok {
		t.Fatalf("expected []byte result, got %T", got)
	}
	// 19.99 scaled by 2 is the unscaled integer 1999 (0x07CF).
	want := []byte{0x07, 0xcf}
	if len(b) != len(want) || b[0] != want[0] || b[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, b)
	}
}

func TestCoerceDecimalScalesNegativeNumericLiteral(t *testing.T) {
	got, err := coerceDecimal("-1.00", 2)
	if err != nil {
		t.Fatalf("expected numeric literal to coerce, got %v", err)
	}
	b, ok := got.([]byte)
	if !ok {
		t.Fatalf("expected []byte result, got %T", got)
	}
	// -1.00 scaled by 2 is the unscaled integer -100, which fits in a single
	// two's-complement byte as 0x9C.
	want := []byte{0x9c}
	if len(b) != len(want) || b[0] != want[0] {
		t.Fatalf("expected %v, got %v", want, b)
	}
}

func TestCoerceDecimalRejectsExcessFractionalDigits(t *testing.T) {
	_, err := coerceDecimal("1.234", 2)
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.DecimalTypeMismatch {
		t.Fatalf("expected DecimalTypeMismatch, got %v", err)
	}
}

func TestCoerceBytesRejectsNonString(t *testing.T) {
	_, err := coerceBytes(42)
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.BytesTypeMismatch {
		t.Fatalf("expected BytesTypeMismatch, got %v", err)
	}
}
