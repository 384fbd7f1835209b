// Package kadapter wraps github.com/confluentinc/confluent-kafka-go/v2 for
// the gateway: a manual-commit consumer yielding per-message commit handles,
// and an idempotent producer whose Produce call blocks for the delivery
// report before returning (spec §4.H/§4.K, grounded on
// infrastructures/mq/kmq/{consumer,producer}.go).
package kadapter

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/bne-group/eportal-gateway/internal/gwlog"
	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

// ProducerConfig mirrors the settings spec §6 mandates for every outbound
// producer: acks=all, idempotence, single in-flight request.
type ProducerConfig struct {
	Brokers     string
	ClientID    string
	Acks        string
	LingerMs    int
	Compression string
}

// Producer wraps *kafka.Producer with idempotent defaults. Produce waits for
// the broker's delivery report before returning, so a caller can gate a
// commit on confirmed delivery rather than on local enqueue success.
type Producer struct {
	p *kafka.Producer
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kadapter: producer brokers not configured")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("kadapter: producer client id not configured")
	}

	acks := cfg.Acks
	if acks == "" {
		acks = "all"
	}

	cm := &kafka.ConfigMap{
		"bootstrap.servers":                     cfg.Brokers,
		"client.id":                             cfg.ClientID,
		"acks":                                  acks,
		"enable.idempotence":                    true,
		"max.in.flight.requests.per.connection": 1,
	}
	if cfg.LingerMs > 0 {
		_ = cm.SetKey("linger.ms", cfg.LingerMs)
	}
	if cfg.Compression != "" {
		_ = cm.SetKey("compression.type", cfg.Compression)
	}

	kp, err := kafka.NewProducer(cm)
	if err != nil {
		return nil, fmt.Errorf("kadapter: create producer: %w", err)
	}

	producer := &Producer{p: kp}
	go producer.watchProducerEvents()
	return producer, nil
}

// watchProducerEvents drains the producer-wide event channel for events not
// tied to a specific Produce call's delivery channel (broker errors, stats).
// Per-message delivery reports never land here since every Produce call below
// supplies its own delivery channel.
func (p *Producer) watchProducerEvents() {
	for ev := range p.p.Events() {
		if kErr, ok := ev.(kafka.Error); ok {
			gwlog.L().Warnw("kafka producer error event", "error", kErr)
		}
	}
}

// Produce publishes value to topic with the given key and headers and blocks
// until the broker's delivery report arrives (or ctx is done). A non-nil
// return means the caller must not treat the message as delivered (spec
// §4.H: commit only follows a confirmed produce).
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	t := topic
	deliveryChan := make(chan kafka.Event, 1)
	err := p.p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &t, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
		Headers:        headers,
	}, deliveryChan)
	if err != nil {
		return pipeline.Wrap(pipeline.ProduceError, err)
	}

	select {
	case ev := <-deliveryChan:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return pipeline.New(pipeline.ProduceError, "unexpected delivery report event type %T", ev)
		}
		if msg.TopicPartition.Error != nil {
			return pipeline.Wrap(pipeline.ProduceError, msg.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return pipeline.Wrap(pipeline.ProduceError, ctx.Err())
	}
}

func (p *Producer) Flush(timeoutMs int) int { return p.p.Flush(timeoutMs) }

func (p *Producer) Close() { p.p.Close() }
