// Package router selects the destination topic and outbound messageSchema
// header for a resolved envelope (spec §4.G).
package router

import (
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

// Route picks the destination topic from the operation's request or response
// topic list (depending on e.Flow) matching e.Datacenter, substituting
// {datacenter} for dynamic topics, and sets the outbound messageSchema
// header from the operation's configured output schema.
func Route(e *envelope.Envelope) error {
	var topics = e.Operation.RequestTopics
	if e.Flow == envelope.FlowResponse {
		topics = e.Operation.ResponseTopics
	}

	topic, ok := topics.Resolve(e.Datacenter)
	if !ok || topic == "" {
		return pipeline.New(pipeline.ProduceError, "no destination topic for operation %q datacenter %q", e.Operation.Name, e.Datacenter)
	}

	e.DestinationTopic = topic
	e.OutboundMessageSchema = e.Operation.OutputSchema
	if e.Headers == nil {
		e.Headers = envelope.Headers{}
	}
	e.Headers["messageSchema"] = e.OutboundMessageSchema
	return nil
}
