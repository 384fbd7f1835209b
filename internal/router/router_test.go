package router

import (
	"testing"

	"github.com/bne-group/eportal-gateway/internal/config"
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

func testOperation() config.Operation {
	return config.Operation{
		Name:         "payerQuery",
		OutputSchema: "requestOwnAccountInformationPayerBeS016",
		RequestTopics: config.Topics{
			Dynamic:      false,
			Static:       map[string]string{"JRD": "requestOwnAccountInformationPayerBeS016.jrd"},
		},
		ResponseTopics: config.Topics{
			Dynamic:      true,
			TopicDefault: "responsePayerCustomerOwnAccountRetrieve.{datacenter}",
		},
	}
}

func TestRouteRequestFlowUsesRequestTopics(t *testing.T) {
	e := &envelope.Envelope{
		Flow:       envelope.FlowRequest,
		Datacenter: "JRD",
		Operation:  testOperation(),
		Headers:    envelope.Headers{},
	}

	if err := Route(e); err != nil {
		t.Fatalf("expected route to succeed, got %v", err)
	}
	if e.DestinationTopic != "requestOwnAccountInformationPayerBeS016.jrd" {
		t.Fatalf("unexpected destination topic %q", e.DestinationTopic)
	}
	if e.Headers["messageSchema"] != "requestOwnAccountInformationPayerBeS016" {
		t.Fatalf("expected outbound schema header set, got %+v", e.Headers)
	}
}

func TestRouteResponseFlowUsesResponseTopics(t *testing.T) {
	e := &envelope.Envelope{
		Flow:       envelope.FlowResponse,
		Datacenter: "QRO",
		Operation:  testOperation(),
		Headers:    nil,
	}

	if err := Route(e); err != nil {
		t.Fatalf("expected route to succeed, got %v", err)
	}
	if e.DestinationTopic != "responsePayerCustomerOwnAccountRetrieve.QRO" {
		t.Fatalf("unexpected destination topic %q", e.DestinationTopic)
	}
}

func TestRouteFailsWithNoMatchingDatacenter(t *testing.T) {
	e := &envelope.Envelope{
		Flow:       envelope.FlowRequest,
		Datacenter: "QRO",
		Operation:  testOperation(),
		Headers:    envelope.Headers{},
	}

	err := Route(e)
	perr, ok := pipeline.AsError(err)
	if !ok || perr.Kind != pipeline.ProduceError {
		t.Fatalf("expected ProduceError, got %v", err)
	}
}
