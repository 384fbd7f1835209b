// Package app wires the config-driven topology: per-datacenter producers,
// the DLQ funnel, and the request/response dispatcher pools.
package app

import (
	"context"
	"fmt"

	"github.com/bne-group/eportal-gateway/internal/config"
	"github.com/bne-group/eportal-gateway/internal/dispatcher"
	"github.com/bne-group/eportal-gateway/internal/dlq"
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/kadapter"
	"github.com/bne-group/eportal-gateway/internal/registry"
	"github.com/bne-group/eportal-gateway/internal/resolver"
	"github.com/bne-group/eportal-gateway/internal/transform"
)

// Gateway owns every live resource: producers, DLQ sinks, and the request
// and response dispatcher pools.
type Gateway struct {
	producer *kadapter.Producer
	dlqs     map[string]*kadapter.DLQ // datacenter -> dlq

	requestPool  *dispatcher.Pool
	responsePool *dispatcher.Pool
}

// producerSet trivially satisfies dispatcher.ProducerSet: every destination
// topic is produced through the same idempotent client (the underlying
// kafka.Producer is topic-agnostic and safe for concurrent use).
type producerSet struct{ p *kadapter.Producer }

func (s producerSet) ProducerFor(string) (*kadapter.Producer, bool) { return s.p, true }

// dlqSink satisfies dlq.Sink by datacenter.
type dlqSink struct{ byDatacenter map[string]*kadapter.DLQ }

func (s dlqSink) DLQFor(datacenter string) (*kadapter.DLQ, bool) {
	d, ok := s.byDatacenter[datacenter]
	return d, ok
}

// New builds a Gateway from cfg and an already-constructed schema/transform
// registry.
func New(cfg *config.Tree, reg *registry.Registry) (*Gateway, error) {
	channel, ok := cfg.EnabledChannel()
	if !ok {
		return nil, fmt.Errorf("app: no enabled channel")
	}

	brokers := channel.Brokers
	if brokers == "" {
		return nil, fmt.Errorf("app: no brokers configured for channel")
	}

	producer, err := kadapter.NewProducer(kadapter.ProducerConfig{
		Brokers:  brokers,
		ClientID: "eportal-gateway-producer",
	})
	if err != nil {
		return nil, fmt.Errorf("app: create producer: %w", err)
	}

	dlqs := map[string]*kadapter.DLQ{}
	for _, datacenter := range channel.Datacenter {
		topic, ok := cfg.DLQTopic(mustChannelID(cfg), datacenter)
		if !ok || topic == "" {
			continue
		}
		dlqs[datacenter] = kadapter.NewDLQ(producer, topic)
	}

	funnel := dlq.New(dlqSink{byDatacenter: dlqs})
	res := resolver.New(cfg)
	ts := transform.New(reg)
	pipeline := dispatcher.NewPipeline(reg, res, ts, producerSet{p: producer}, funnel)

	// One consumer per request input topic (spec §4.J: "two independent
	// request consumers, one per input topic").
	var requestConsumers []*kadapter.Consumer
	for _, topic := range channel.RequestInputTopics {
		c, err := kadapter.NewConsumer(kadapter.ConsumerConfig{Brokers: brokers, GroupID: channel.RequestGroupID, Topics: []string{topic}, Flow: envelope.FlowRequest})
		if err != nil {
			return nil, fmt.Errorf("app: request consumer for %q: %w", topic, err)
		}
		requestConsumers = append(requestConsumers, c)
	}

	// A single multiplexed consumer subscribed to every response input topic
	// (spec §4.J: "one response consumer, subscribing to both datacenter
	// response topics").
	var responseConsumers []*kadapter.Consumer
	if len(channel.ResponseInputTopics) > 0 {
		c, err := kadapter.NewConsumer(kadapter.ConsumerConfig{Brokers: brokers, GroupID: channel.ResponseGroupID, Topics: channel.ResponseInputTopics, Flow: envelope.FlowResponse})
		if err != nil {
			return nil, fmt.Errorf("app: response consumer: %w", err)
		}
		responseConsumers = append(responseConsumers, c)
	}

	return &Gateway{
		producer:     producer,
		dlqs:         dlqs,
		requestPool:  dispatcher.NewPool("request", pipeline, requestConsumers),
		responsePool: dispatcher.NewPool("response", pipeline, responseConsumers),
	}, nil
}

func mustChannelID(cfg *config.Tree) string {
	id, _ := cfg.EnabledChannelID()
	return id
}

// Start launches the request and response pools.
func (g *Gateway) Start(ctx context.Context) {
	g.requestPool.Start(ctx)
	g.responsePool.Start(ctx)
}

// Stop drains and closes every pool, then flushes and closes the shared
// producer and DLQ sinks.
func (g *Gateway) Stop() {
	g.requestPool.Stop()
	g.responsePool.Stop()
	g.producer.Flush(5000)
	g.producer.Close()
}
