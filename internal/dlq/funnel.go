// Package dlq implements the DLQ Funnel: it catches recognized pipeline
// errors, publishes a diagnostic envelope to the configured DLQ topic, and
// triggers the Commit Coordinator on DLQ success (spec §4.I).
package dlq

import (
	"context"
	"reflect"
	"time"

	"github.com/bne-group/eportal-gateway/internal/commit"
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/gwlog"
	"github.com/bne-group/eportal-gateway/internal/kadapter"
	"github.com/bne-group/eportal-gateway/internal/metrics"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

// produceTimeout bounds the DLQ publish itself; it runs on its own deadline
// rather than the envelope's original task context, since by the time a
// timed-out envelope reaches Handle that context is already done.
const produceTimeout = 5 * time.Second

// Sink resolves the DLQ producer for a datacenter (the gateway has one DLQ
// per datacenter; see config.DLQ / SPEC_FULL.md §6).
type Sink interface {
	DLQFor(datacenter string) (*kadapter.DLQ, bool)
}

// Funnel routes a failed envelope to its DLQ and commits on success.
type Funnel struct {
	sink Sink
}

func New(sink Sink) *Funnel {
	return &Funnel{sink: sink}
}

// Handle implements spec §4.I steps 1-4. err must be the error returned by
// the pipeline; if it is not a *pipeline.Error, Handle returns false and
// does nothing, signalling the caller to treat it as a programming error
// instead (§9 open question, resolved: narrow the DLQ catch set).
func (f *Funnel) Handle(e *envelope.Envelope, err error) bool {
	perr, ok := pipeline.AsError(err)
	if !ok {
		return false
	}

	if !e.Finalize() {
		gwlog.L().Warnw("envelope already finalized, dropping late pipeline error",
			"sourceTopic", e.SourceTopic, "kind", perr.Kind)
		return true
	}

	metrics.PipelineErrorsTotal.WithLabelValues(string(perr.Kind)).Inc()

	d, ok := f.sink.DLQFor(e.Datacenter)
	if !ok {
		gwlog.L().Errorw("no dlq configured for datacenter, message left uncommitted for redelivery",
			"datacenter", e.Datacenter, "sourceTopic", e.SourceTopic, "kind", perr.Kind)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), produceTimeout)
	defer cancel()

	sendErr := d.Send(
		ctx,
		keyFor(e),
		e.PayloadBytes,
		e.SourceTopic,
		perr.Kind,
		perr.Error(),
		reflect.TypeOf(perr.Err).String(),
		e.Datacenter,
	)
	if sendErr != nil {
		gwlog.L().Errorw("dlq produce failed, message left uncommitted for redelivery",
			"sourceTopic", e.SourceTopic, "kind", perr.Kind, "error", sendErr)
		return true
	}

	commit.Fire(e)
	return true
}

func keyFor(e *envelope.Envelope) []byte {
	if v, ok := e.Headers.Get("channelId"); ok {
		return []byte(v)
	}
	return nil
}
