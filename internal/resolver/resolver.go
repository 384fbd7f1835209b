// Package resolver maps an incoming message to a channel+operation+
// datacenter configuration (spec §4.D).
package resolver

import (
	"strings"

	"github.com/bne-group/eportal-gateway/internal/config"
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

// Resolver resolves envelopes against a configuration tree.
type Resolver struct {
	cfg *config.Tree
}

func New(cfg *config.Tree) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve implements the §4.D algorithm: find the single enabled channel,
// require the messageSchema header, match it against operation name or
// binary schema name, derive the datacenter from source_topic, and store the
// result on the envelope.
func (r *Resolver) Resolve(e *envelope.Envelope) error {
	channelID, ok := r.cfg.EnabledChannelID()
	if !ok {
		return pipeline.New(pipeline.UnknownOperation, "no enabled channel configured")
	}

	schema, ok := e.Headers.Get("messageSchema")
	if !ok || strings.TrimSpace(schema) == "" {
		return pipeline.New(pipeline.MissingMessageSchema, "messageSchema header absent or blank")
	}
	e.MessageSchema = schema

	var matched *config.Operation
	for _, op := range r.cfg.AllOperations() {
		if op.Name == schema || op.BinarySchema == schema {
			o := op
			matched = &o
			break
		}
	}
	if matched == nil {
		return pipeline.New(pipeline.UnknownOperation, "no enabled operation matches messageSchema %q", schema)
	}

	datacenter := ""
	for key, dc := range r.cfg.DatacenterKeys(channelID) {
		if strings.Contains(e.SourceTopic, key) {
			datacenter = dc
			break
		}
	}

	e.ChannelID = channelID
	e.Operation = *matched
	e.Datacenter = datacenter
	return nil
}
