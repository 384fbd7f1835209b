// Package envelope defines the per-message in-flight state object, owned
// exclusively by the worker processing it (spec §3).
package envelope

import (
	"sync/atomic"
	"time"

	"github.com/bne-group/eportal-gateway/internal/config"
)

// Headers is a case-preserving header map (header names as received).
type Headers map[string]string

func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func (h Headers) Get(name string) (string, bool) {
	v, ok := h[name]
	return v, ok
}

// Flow distinguishes the request pipeline from the response pipeline. It
// selects the destination list (an operation's request or response topics);
// operation resolution does not depend on it, so both flows match the
// messageSchema header against the same set of enabled operations.
type Flow int

const (
	FlowRequest Flow = iota
	FlowResponse
)

// CommitHandle is the opaque per-message commit token from spec §3/§4.H: a
// closure over the Kafka adapter's consumer and this message's partition and
// offset. Invoking it exactly once advances the consumer offset.
type CommitHandle func() error

// Envelope is the in-flight, per-message state object. Immutable fields are
// set at construction by the consumer; derived fields are set by the worker
// as the pipeline advances. No envelope outlives its commit.
type Envelope struct {
	// Immutable.
	SourceTopic  string
	Partition    int32
	Offset       int64
	PayloadBytes []byte
	Headers      Headers
	MessageSchema string
	Flow         Flow
	ReceivedAt   time.Time
	Commit       CommitHandle

	// Derived, populated as the pipeline advances.
	ChannelID           string
	Operation           config.Operation
	Datacenter          string
	HeaderSnapshot      Headers
	PayloadJSON         string
	TransformedJSON     string
	OutboundPayload     []byte
	OutboundMessageSchema string
	DestinationTopic    string

	// finalized guards against a timed-out worker's abandoned goroutine and
	// the timeout path that superseded it both acting on the same envelope.
	finalized int32
}

// Finalize claims the one-time right to commit or DLQ-send this envelope. It
// returns true for the caller that wins the race — everyone else (a worker
// goroutine finishing after its task already timed out, or vice versa) gets
// false and must treat its own outcome as a no-op: the commit handle fires
// at most once per envelope.
func (e *Envelope) Finalize() bool {
	return atomic.CompareAndSwapInt32(&e.finalized, 0, 1)
}

// SnapshotHeaders copies the current header set so it can be restored after
// the transform stage (spec §4.F step 1/4: transform must not silently drop
// business headers).
func (e *Envelope) SnapshotHeaders() {
	e.HeaderSnapshot = e.Headers.Clone()
}

// RestoreHeaders re-applies the snapshot taken before the transform ran,
// preserving any header the transform stage may have dropped while still
// keeping values the transform stage itself set (outbound schema, etc.) by
// only filling in headers absent from the current set.
func (e *Envelope) RestoreHeaders() {
	if e.Headers == nil {
		e.Headers = Headers{}
	}
	for k, v := range e.HeaderSnapshot {
		if _, present := e.Headers[k]; !present {
			e.Headers[k] = v
		}
	}
}
