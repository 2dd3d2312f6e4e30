package graphmetrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_ObserveRouting_IncrementsByDestination(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveRouting("filesystem")
	r.ObserveRouting("filesystem")
	r.ObserveRouting("END")

	expected := `
		# HELP graph_routing_decisions_total Total number of supervisor routing decisions by destination
		# TYPE graph_routing_decisions_total counter
		graph_routing_decisions_total{next="END"} 1
		graph_routing_decisions_total{next="filesystem"} 2
	`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "graph_routing_decisions_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestRecorder_ObserveRouting_SanitizesInvalidUTF8(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveRouting(string([]byte{0xff, 0xfe}))

	if got := testutil.CollectAndCount(r.routingDecisionsTotal); got != 1 {
		t.Fatalf("expected exactly one series, got %d", got)
	}
	if got := testutil.ToFloat64(r.routingDecisionsTotal.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("expected the invalid destination to be recorded under the \"invalid\" label, got %v", got)
	}
}

func TestRecorder_ObserveToolCall_RecordsStatusLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveToolCall("filesystem", "write_file", "sensitive", 10*time.Millisecond, false)
	r.ObserveToolCall("filesystem", "write_file", "sensitive", 5*time.Millisecond, true)

	if got := testutil.CollectAndCount(r.toolCallDuration); got != 2 {
		t.Fatalf("expected separate series for ok and error status, got %d", got)
	}
}

func TestRecorder_IncIterationCeiling_DefaultsEmptyNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.IncIterationCeiling("")
	r.IncIterationCeiling("")

	if got := testutil.CollectAndCount(r.iterationCeilingTotal); got != 1 {
		t.Fatalf("expected the two empty-namespace increments to collapse into one series, got %d", got)
	}
	if got := testutil.ToFloat64(r.iterationCeilingTotal.WithLabelValues("default")); got != 2 {
		t.Fatalf("expected an empty namespace to be recorded as \"default\" and counted twice, got %v", got)
	}
}

func TestRecorder_ObserveCheckpointWrite_AcceptsAnyOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveCheckpointWrite("put", 2*time.Millisecond)
	r.ObserveCheckpointWrite("put_writes", 1*time.Millisecond)

	if got := testutil.CollectAndCount(r.checkpointWriteDuration); got != 2 {
		t.Fatalf("expected one series per op label, got %d", got)
	}
}
