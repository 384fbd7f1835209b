package dlq

import (
	"errors"
	"testing"

	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/kadapter"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

// noRouteSink never has a DLQ configured for any datacenter, exercising the
// "no dlq configured" branch without needing a live Kafka producer.
type noRouteSink struct{}

func (noRouteSink) DLQFor(string) (*kadapter.DLQ, bool) { return nil, false }

func TestHandleIgnoresUnrecognizedErrors(t *testing.T) {
	f := New(noRouteSink{})
	e := &envelope.Envelope{Datacenter: "JRD"}

	handled := f.Handle(e, errors.New("programming error"))
	if handled {
		t.Fatal("expected Handle to return false for an unrecognized error")
	}
}

func TestHandleReturnsTrueForRecognizedErrorEvenWithoutRoute(t *testing.T) {
	f := New(noRouteSink{})
	e := &envelope.Envelope{
		Datacenter: "JRD",
		SourceTopic: "mx.jrd.accountManagement.oab.payerQuery.input",
	}

	handled := f.Handle(e, pipeline.New(pipeline.DecodeError, "malformed binary record"))
	if !handled {
		t.Fatal("expected Handle to return true for a recognized pipeline error")
	}
}

func TestKeyForUsesChannelIDHeader(t *testing.T) {
	e := &envelope.Envelope{Headers: envelope.Headers{"channelId": "BNE"}}
	if got := string(keyFor(e)); got != "BNE" {
		t.Fatalf("expected key BNE, got %q", got)
	}
}

func TestKeyForNilWithoutChannelIDHeader(t *testing.T) {
	e := &envelope.Envelope{Headers: envelope.Headers{}}
	if got := keyFor(e); got != nil {
		t.Fatalf("expected nil key, got %q", got)
	}
}
