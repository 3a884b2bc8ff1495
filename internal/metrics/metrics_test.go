package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordQueueOp(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordQueueOp("push", "messages", "ok")
	m.RecordQueueOp("pop", "messages", "empty")
	m.RecordQueueOp("push", "messages", "ok")

	got := testutil.ToFloat64(m.QueueOpsTotal.WithLabelValues("push", "messages", "ok"))
	if got != 2 {
		t.Errorf("Expected 2 pushes, got %v", got)
	}
}

func TestRecordWorkerRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordWorkerRun("postbacks", "noop", 0.001)
	m.RecordWorkerRun("postbacks", "drained", 0.2)

	got := testutil.ToFloat64(m.WorkerRunsTotal.WithLabelValues("postbacks", "noop"))
	if got != 1 {
		t.Errorf("Expected 1 noop run, got %v", got)
	}
}

func TestRecordNLUQueryAndRetry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordNLUQuery("dialogflow", "success", 0.4)
	m.RecordNLURetry("dialogflow")
	m.RecordNLURetry("dialogflow")

	if got := testutil.ToFloat64(m.NLURetriesTotal.WithLabelValues("dialogflow")); got != 2 {
		t.Errorf("Expected 2 retries, got %v", got)
	}
}

func TestRecordDeadLetter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordDeadLetter("action_not_registered")

	if got := testutil.ToFloat64(m.DeadLetterTotal.WithLabelValues("action_not_registered")); got != 1 {
		t.Errorf("Expected 1 dead letter, got %v", got)
	}
}
