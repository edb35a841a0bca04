package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set holds the per-daemon registry and the counters shared by every
// pipeline daemon. Daemon-specific series hang off the same registry.
type Set struct {
	Registry *prometheus.Registry

	MessagesConsumed  *prometheus.CounterVec
	MessagesPublished *prometheus.CounterVec
	ProcessingErrors  *prometheus.CounterVec
	DeadLettered      *prometheus.CounterVec
	StoreWrites       *prometheus.CounterVec
	BatchFlushes      *prometheus.CounterVec
}

func NewSet(service string) *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": service}

	return &Set{
		Registry: reg,
		MessagesConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_messages_consumed_total",
			Help:        "Messages consumed from a broker, by topic.",
			ConstLabels: labels,
		}, []string{"topic"}),
		MessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_messages_published_total",
			Help:        "Messages published to a broker, by topic.",
			ConstLabels: labels,
		}, []string{"topic"}),
		ProcessingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_processing_errors_total",
			Help:        "Message handling failures, by stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		DeadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_dead_lettered_total",
			Help:        "Messages routed to the dead letter topic, by reason code.",
			ConstLabels: labels,
		}, []string{"reason"}),
		StoreWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_store_writes_total",
			Help:        "Rows or records written to a backing store, by store.",
			ConstLabels: labels,
		}, []string{"store"}),
		BatchFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_batch_flushes_total",
			Help:        "Batch flushes, by trigger.",
			ConstLabels: labels,
		}, []string{"trigger"}),
	}
}
