// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eportal_gateway"

var (
	DispatcherQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Current number of envelopes waiting in the worker queue.",
		},
		[]string{"pipeline"},
	)

	DispatcherWorkersBusy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "workers_busy",
			Help:      "Current number of workers processing an envelope.",
		},
		[]string{"pipeline"},
	)

	DispatcherTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "timeouts_total",
			Help:      "Envelopes that exceeded the per-task processing timeout.",
		},
		[]string{"pipeline"},
	)

	PipelineStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_seconds",
			Help:      "Latency of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PipelineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Pipeline failures by error kind.",
		},
		[]string{"kind"},
	)

	PipelinePanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "panics_total",
			Help:      "Unrecovered worker panics, treated as programming errors rather than bad messages.",
		},
		[]string{"pipeline"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "messages_total",
			Help:      "Messages routed to the DLQ, by datacenter and error kind.",
		},
		[]string{"datacenter", "kind"},
	)

	DLQProduceFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "produce_failed_total",
			Help:      "DLQ produce attempts that themselves failed (message left uncommitted for redelivery).",
		},
		[]string{"datacenter"},
	)

	KafkaCommitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "commit_total",
			Help:      "Offset commits, by outcome.",
		},
		[]string{"outcome"},
	)

	KafkaRebalanceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "rebalance_total",
			Help:      "Consumer group rebalance events.",
		},
		[]string{"group", "type"},
	)
)

var once sync.Once

// MustRegisterAll registers every collector exactly once.
func MustRegisterAll() {
	once.Do(func() {
		prometheus.MustRegister(
			DispatcherQueueDepth,
			DispatcherWorkersBusy,
			DispatcherTimeoutsTotal,
			PipelineStageSeconds,
			PipelineErrorsTotal,
			PipelinePanicsTotal,
			DLQMessagesTotal,
			DLQProduceFailedTotal,
			KafkaCommitTotal,
			KafkaRebalanceTotal,
		)
	})
}
