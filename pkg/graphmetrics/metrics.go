// Package graphmetrics registers the Prometheus series that observe a
// running graph from the outside: which way the supervisor routed, how
// long a worker's tool calls take, how often a thread hits the iteration
// ceiling, and how long the checkpoint store takes to persist a step.
// It carries no graph logic of its own; pkg/graph, pkg/router, pkg/worker
// and pkg/checkpoint call into a Recorder at the points spec.md already
// names as observable.
package graphmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/model"
)

// Recorder holds the counters and histograms for one process. Callers
// share a single Recorder across every thread the graph serves.
type Recorder struct {
	routingDecisionsTotal   *prometheus.CounterVec
	toolCallDuration        *prometheus.HistogramVec
	iterationCeilingTotal   *prometheus.CounterVec
	checkpointWriteDuration *prometheus.HistogramVec
}

// New builds a Recorder and registers its series with reg, the same
// promauto pattern the agent middleware's request recorder uses. Callers
// in production pass prometheus.DefaultRegisterer; tests pass a fresh
// prometheus.NewRegistry() so repeated construction doesn't collide.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		routingDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_routing_decisions_total",
				Help: "Total number of supervisor routing decisions by destination",
			},
			[]string{"next"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graph_tool_call_duration_seconds",
				Help:    "Duration of worker tool calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"worker", "tool", "sensitivity", "status"},
		),
		iterationCeilingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_iteration_ceiling_total",
				Help: "Total number of turns that ended by hitting the supervisor iteration ceiling",
			},
			[]string{"thread_ns"},
		),
		checkpointWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graph_checkpoint_write_duration_seconds",
				Help:    "Duration of checkpoint store writes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
}

// ObserveRouting records one supervisor routing decision. next is
// graphstate.End's string form or a worker name.
func (r *Recorder) ObserveRouting(next string) {
	r.routingDecisionsTotal.WithLabelValues(sanitizeLabel(next)).Inc()
}

// ObserveToolCall records one worker tool invocation's duration, including
// the case where the call itself produced an error tool-result.
func (r *Recorder) ObserveToolCall(worker, tool, sensitivity string, duration time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	r.toolCallDuration.WithLabelValues(sanitizeLabel(worker), sanitizeLabel(tool), sanitizeLabel(sensitivity), status).
		Observe(duration.Seconds())
}

// IncIterationCeiling increments the ceiling-trip counter for a checkpoint
// namespace. Namespaces are few and operator-chosen, not user data, so
// they're safe as a label.
func (r *Recorder) IncIterationCeiling(checkpointNS string) {
	if checkpointNS == "" {
		checkpointNS = "default"
	}
	r.iterationCeilingTotal.WithLabelValues(sanitizeLabel(checkpointNS)).Inc()
}

// ObserveCheckpointWrite records one Store.Put or Store.PutWrites call's
// duration, labeled by which operation it was.
func (r *Recorder) ObserveCheckpointWrite(op string, duration time.Duration) {
	r.checkpointWriteDuration.WithLabelValues(sanitizeLabel(op)).Observe(duration.Seconds())
}

// sanitizeLabel guards against label values that would make a series
// unusable (invalid UTF-8 from a misbehaving tool name, say) without
// failing the observation outright.
func sanitizeLabel(v string) string {
	if !model.LabelValue(v).IsValid() {
		return "invalid"
	}
	return v
}
