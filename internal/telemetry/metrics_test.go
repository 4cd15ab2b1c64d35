package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TickDuration.WithLabelValues("n").Observe(0.001)
	m.PublishLatency.WithLabelValues("topic").Observe(0.001)
	m.ReceiveLatency.WithLabelValues("topic").Observe(0.001)
	m.Overruns.WithLabelValues("topic").Add(3)
	m.TickOverruns.WithLabelValues("sched").Inc()
	m.DroppedRecords.Add(2)
	m.ThrottledWrites.WithLabelValues("n").Inc()
	m.TopicBacklog.WithLabelValues("topic").Set(7)
	m.NodeState.WithLabelValues("n", "ready").Set(1)

	if got := testutil.ToFloat64(m.Overruns.WithLabelValues("topic")); got != 3 {
		t.Fatalf("expected Overruns=3, got %v", got)
	}
	if got := testutil.ToFloat64(m.TickOverruns.WithLabelValues("sched")); got != 1 {
		t.Fatalf("expected TickOverruns=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.DroppedRecords); got != 2 {
		t.Fatalf("expected DroppedRecords=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.ThrottledWrites.WithLabelValues("n")); got != 1 {
		t.Fatalf("expected ThrottledWrites=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.TopicBacklog.WithLabelValues("topic")); got != 7 {
		t.Fatalf("expected TopicBacklog=7, got %v", got)
	}
	if got := testutil.ToFloat64(m.NodeState.WithLabelValues("n", "ready")); got != 1 {
		t.Fatalf("expected NodeState=1, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 9 {
		t.Fatalf("expected all 9 collectors registered and gathered, got %d families", len(families))
	}
}
