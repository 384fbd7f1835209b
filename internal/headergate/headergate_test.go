package headergate

import (
	"testing"

	"github.com/bne-group/eportal-gateway/internal/config"
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

func TestCheckPassesWithAllRequiredHeaders(t *testing.T) {
	e := &envelope.Envelope{
		Headers: envelope.Headers{
			"messageSchema": "RequestPayerCustomerOwnAccountRetrieve",
			"channelId":     "BNE",
		},
		Operation: config.Operation{RequiredHeaders: []string{"customerId"}},
	}
	e.Headers["customerId"] = "123"

	if err := Check(e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCheckFailsOnMissingBaseHeader(t *testing.T) {
	e := &envelope.Envelope{
		Headers: envelope.Headers{"channelId": "BNE"},
	}

	err := Check(e)
	if err == nil {
		t.Fatal("expected error for missing messageSchema header")
	}
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.MissingHeader {
		t.Fatalf("expected MissingHeader, got %v", err)
	}
}

func TestCheckFailsOnBlankOperationHeader(t *testing.T) {
	e := &envelope.Envelope{
		Headers: envelope.Headers{
			"messageSchema": "x",
			"channelId":     "BNE",
			"customerId":    "   ",
		},
		Operation: config.Operation{RequiredHeaders: []string{"customerId"}},
	}

	err := Check(e)
	if err == nil {
		t.Fatal("expected error for blank required header")
	}
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.MissingHeader {
		t.Fatalf("expected MissingHeader, got %v", err)
	}
}
