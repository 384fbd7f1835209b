// Package dispatcher wires per-topic consumers to a shared bounded queue
// drained by a fixed worker pool, each worker running the full pipeline
// (spec §4.J, §5), grounded on infrastructures/mq/kmq/consumer.go's poll
// loop and models/schedule/schedule.go's bounded-channel worker-pool idiom.
package dispatcher

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/bne-group/eportal-gateway/internal/codec"
	"github.com/bne-group/eportal-gateway/internal/commit"
	"github.com/bne-group/eportal-gateway/internal/dlq"
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/gwlog"
	"github.com/bne-group/eportal-gateway/internal/headergate"
	"github.com/bne-group/eportal-gateway/internal/kadapter"
	"github.com/bne-group/eportal-gateway/internal/metrics"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
	"github.com/bne-group/eportal-gateway/internal/registry"
	"github.com/bne-group/eportal-gateway/internal/resolver"
	"github.com/bne-group/eportal-gateway/internal/router"
	"github.com/bne-group/eportal-gateway/internal/transform"
)

// ProducerSet resolves the output producer for a destination topic. The
// gateway wires a single shared producer that serves every destination
// topic (request→EPortal and response→orchestrator alike).
type ProducerSet interface {
	ProducerFor(destinationTopic string) (*kadapter.Producer, bool)
}

// Pipeline bundles the stages common to both the request and response flows
// (spec §4.J: "request pipeline ... response pipeline ... same structure,
// different operation set and different destinations").
type Pipeline struct {
	registry  *registry.Registry
	resolver  *resolver.Resolver
	transform *transform.Stage
	producers ProducerSet
	funnel    *dlq.Funnel
}

func NewPipeline(reg *registry.Registry, res *resolver.Resolver, ts *transform.Stage, producers ProducerSet, funnel *dlq.Funnel) *Pipeline {
	return &Pipeline{registry: reg, resolver: res, transform: ts, producers: producers, funnel: funnel}
}

// Run executes Resolver → Gate → Decode → Transform → Encode → Router →
// Producer → Commit for e, routing any recognized pipeline error to the DLQ
// Funnel. It returns false if the failure was not a recognized pipeline
// error (a programming error, per §9's resolved open question) — the caller
// is expected to log and not commit in that case. ctx bounds the produce
// stage's wait for a delivery report; the caller cancels it on timeout so an
// abandoned run doesn't block indefinitely waiting on a broker response.
func (p *Pipeline) Run(ctx context.Context, e *envelope.Envelope) bool {
	if err := p.resolver.Resolve(e); err != nil {
		return p.fail(e, err)
	}
	if err := headergate.Check(e); err != nil {
		return p.fail(e, err)
	}

	binSchema, err := p.registry.BinarySchema(e.Operation.BinarySchema)
	if err != nil {
		return p.fail(e, err)
	}

	payloadJSON, err := timed("decode", func() (string, error) { return codec.Decode(e.PayloadBytes, binSchema) })
	if err != nil {
		return p.fail(e, err)
	}
	e.PayloadJSON = payloadJSON

	if err := observeStage("transform", func() error { return p.transform.Run(e) }); err != nil {
		return p.fail(e, err)
	}

	outBytes, err := timed("encode", func() ([]byte, error) { return codec.Encode(e.TransformedJSON, binSchema) })
	if err != nil {
		return p.fail(e, err)
	}
	e.OutboundPayload = outBytes

	if err := router.Route(e); err != nil {
		return p.fail(e, err)
	}

	producer, ok := p.producers.ProducerFor(e.DestinationTopic)
	if !ok {
		return p.fail(e, pipeline.New(pipeline.ProduceError, "no producer configured for topic %q", e.DestinationTopic))
	}

	key := keyBytes(e)
	produceErr := observeStage("produce", func() error {
		return producer.Produce(ctx, e.DestinationTopic, key, e.OutboundPayload, headersToKafka(e.Headers))
	})
	if produceErr != nil {
		return p.fail(e, produceErr)
	}

	if !e.Finalize() {
		gwlog.L().Warnw("envelope already finalized, dropping late successful produce",
			"sourceTopic", e.SourceTopic, "destinationTopic", e.DestinationTopic)
		return true
	}

	commit.Fire(e)
	return true
}

func (p *Pipeline) fail(e *envelope.Envelope, err error) bool {
	return p.funnel.Handle(e, err)
}

// Timeout routes e to the DLQ Funnel with ProcessingTimeout (spec §4.J/§5):
// a worker task that exceeds its per-envelope deadline is a recognized
// pipeline error, not a programming error.
func (p *Pipeline) Timeout(e *envelope.Envelope) {
	p.funnel.Handle(e, pipeline.New(pipeline.ProcessingTimeout, "worker exceeded processing timeout"))
}

// observeStage runs fn and records its latency under the pipeline stage
// histogram regardless of outcome (spec §4.J: stage latency is observable
// even on the failure path, so a slow stage shows up before it times out).
func observeStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.PipelineStageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

// timed is observeStage's variant for stages that also return a value.
func timed[T any](stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.PipelineStageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return v, err
}

func keyBytes(e *envelope.Envelope) []byte {
	if v, ok := e.Headers.Get("channelId"); ok {
		return []byte(v)
	}
	return nil
}

func headersToKafka(h envelope.Headers) []kafka.Header {
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
