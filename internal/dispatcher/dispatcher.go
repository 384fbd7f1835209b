package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/gwlog"
	"github.com/bne-group/eportal-gateway/internal/kadapter"
	"github.com/bne-group/eportal-gateway/internal/metrics"
)

const (
	// QueueCapacity is the bounded queue capacity between consumers and
	// workers for one pipeline (spec §4.J/§5).
	QueueCapacity = 10

	// WorkerCount is the number of concurrent workers draining one pipeline's
	// queue (spec §4.J/§5: "8 concurrent workers").
	WorkerCount = 8

	// TaskTimeout is the per-envelope processing deadline; exceeding it
	// raises ProcessingTimeout and routes through the DLQ (spec §4.J/§5).
	TaskTimeout = 30 * time.Second
)

// Pool runs one pipeline's consumer(s) → bounded queue → worker pool.
type Pool struct {
	name      string // "request" or "response", used as the metrics label
	pipeline  *Pipeline
	consumers []*kadapter.Consumer
	queue     chan *envelope.Envelope

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool with its own bounded queue and worker goroutines,
// one consumer goroutine per element of consumers (spec §4.J: one consumer
// task per input topic feeding a shared queue; the response pipeline
// instantiates a single consumer subscribed to both datacenter topics).
func NewPool(name string, pipeline *Pipeline, consumers []*kadapter.Consumer) *Pool {
	return &Pool{
		name:      name,
		pipeline:  pipeline,
		consumers: consumers,
		queue:     make(chan *envelope.Envelope, QueueCapacity),
	}
}

// Start launches the consumer and worker goroutines. It returns immediately;
// call Stop to shut the pool down.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i, c := range p.consumers {
		p.wg.Add(1)
		go p.consumeLoop(ctx, i, c)
	}
	for i := 0; i < WorkerCount; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

// Stop cancels polling, waits for consumers and workers to return, then
// processes any envelopes still queued so the queue is drained before the
// consumers close.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	for len(p.queue) > 0 {
		p.runWithTimeout(<-p.queue)
	}
	for _, c := range p.consumers {
		if err := c.Close(); err != nil {
			gwlog.L().Warnw("error closing consumer", "pipeline", p.name, "error", err)
		}
	}
}

func (p *Pool) consumeLoop(ctx context.Context, idx int, c *kadapter.Consumer) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		e, err := c.Poll(ctx)
		if err != nil {
			gwlog.L().Errorw("consumer poll error", "pipeline", p.name, "consumer", idx, "error", err)
			continue
		}
		if e == nil {
			continue
		}
		if !accept(e.Headers) {
			// Filter strictness (spec §8 invariant 6): dropped silently and
			// never reaches a worker. Its own offset is not committed, but a
			// later message committed on the same partition moves the
			// committed offset past it.
			continue
		}

		select {
		case p.queue <- e:
			metrics.DispatcherQueueDepth.WithLabelValues(p.name).Set(float64(len(p.queue)))
		case <-ctx.Done():
			return
		}
	}
}

// accept implements the messageSchema filter as a pure predicate (spec §9
// Design Note: "express it as a pure function accept(headers) → bool").
func accept(h envelope.Headers) bool {
	v, ok := h.Get("messageSchema")
	return ok && v != ""
}

func (p *Pool) workerLoop(ctx context.Context, idx int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-p.queue:
			if !ok {
				return
			}
			metrics.DispatcherQueueDepth.WithLabelValues(p.name).Set(float64(len(p.queue)))
			p.runWithTimeout(e)
		}
	}
}

func (p *Pool) runWithTimeout(e *envelope.Envelope) {
	metrics.DispatcherWorkersBusy.WithLabelValues(p.name).Inc()
	defer metrics.DispatcherWorkersBusy.WithLabelValues(p.name).Dec()

	taskCtx, cancel := context.WithTimeout(context.Background(), TaskTimeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.PipelinePanicsTotal.WithLabelValues(p.name).Inc()
				gwlog.L().Errorw("worker panic, not a recognized pipeline error: message left uncommitted",
					"pipeline", p.name, "sourceTopic", e.SourceTopic, "panic", fmt.Sprint(r))
				done <- false
				return
			}
		}()
		ok := p.pipeline.Run(taskCtx, e)
		done <- ok
	}()

	select {
	case ok := <-done:
		if !ok {
			gwlog.L().Errorw("pipeline failure not recognized: message left uncommitted",
				"pipeline", p.name, "sourceTopic", e.SourceTopic)
		}
	case <-taskCtx.Done():
		metrics.DispatcherTimeoutsTotal.WithLabelValues(p.name).Inc()
		gwlog.L().Warnw("processing timeout, routing to dlq",
			"pipeline", p.name, "sourceTopic", e.SourceTopic, "timeout", TaskTimeout)
		p.pipeline.Timeout(e)
		// taskCtx.Done() also unblocks the goroutine above if it's still
		// waiting on a delivery report; its eventual result is a no-op
		// against e's finalize guard (spec §8 invariant #1: commit fires
		// exactly once per envelope).
	}
}
