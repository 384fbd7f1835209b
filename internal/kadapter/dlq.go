package kadapter

import (
	"context"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/bne-group/eportal-gateway/internal/metrics"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

// DLQ publishes diagnostic envelopes to a dead-letter topic, carrying the
// original payload bytes as the message body (spec §4.I).
type DLQ struct {
	p     *Producer
	topic string
}

func NewDLQ(p *Producer, topic string) *DLQ {
	return &DLQ{p: p, topic: topic}
}

// Send publishes the original payload bytes to the DLQ topic with diagnostic
// headers describing the failure. Diagnostic fields are headers, not a
// JSON-wrapped envelope, so the message body stays the original bytes
// (spec §4.I step 1). It blocks for the DLQ topic's own delivery report, so
// the caller only commits the source offset once the DLQ copy is confirmed.
func (d *DLQ) Send(ctx context.Context, key, payload []byte, sourceTopic string, kind pipeline.ErrorKind, errMsg string, exceptionClass string, datacenter string) error {
	headers := []kafka.Header{
		{Key: "dlq_source_topic", Value: []byte(sourceTopic)},
		{Key: "dlq_error_kind", Value: []byte(kind)},
		{Key: "dlq_error_message", Value: []byte(errMsg)},
		{Key: "dlq_exception_class", Value: []byte(exceptionClass)},
		{Key: "dlq_failed_at_unix", Value: []byte(strconv.FormatInt(time.Now().Unix(), 10))},
	}
	if err := d.p.Produce(ctx, d.topic, key, payload, headers); err != nil {
		metrics.DLQProduceFailedTotal.WithLabelValues(datacenter).Inc()
		return pipeline.Wrap(pipeline.DlqProduceError, err)
	}
	metrics.DLQMessagesTotal.WithLabelValues(datacenter, string(kind)).Inc()
	return nil
}

func (d *DLQ) Flush(timeoutMs int) int { return d.p.Flush(timeoutMs) }

func (d *DLQ) Close() {
	d.p.Flush(5000)
	d.p.Close()
}
