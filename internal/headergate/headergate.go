// Package headergate validates presence/shape of mandatory request headers,
// rejecting malformed envelopes before any decoding work begins (spec §4.E).
package headergate

import (
	"strings"

	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

// baseRequired holds the headers every operation requires regardless of its
// own RequiredHeaders list (spec §6: messageSchema, channelId).
var baseRequired = []string{"messageSchema", "channelId"}

// Check enforces per-operation required inbound headers. It performs no
// header mutation.
func Check(e *envelope.Envelope) error {
	required := append(append([]string{}, baseRequired...), e.Operation.RequiredHeaders...)
	for _, name := range required {
		v, ok := e.Headers.Get(name)
		if !ok || strings.TrimSpace(v) == "" {
			return pipeline.New(pipeline.MissingHeader, "required header %q missing or blank", name)
		}
	}
	return nil
}
