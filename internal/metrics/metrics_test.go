package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// New registers every collector against the global default registry, so
// only one instance may be constructed per test binary run.
func TestMetricsRecording(t *testing.T) {
	m := New()

	m.CandidatesSeen.Add(3)
	if got := testutil.ToFloat64(m.CandidatesSeen); got != 3 {
		t.Errorf("CandidatesSeen = %v, want 3", got)
	}

	m.DropCandidate("lowSpread")
	m.DropCandidate("lowSpread")
	if got := testutil.ToFloat64(m.DropsByReason.WithLabelValues("lowSpread")); got != 2 {
		t.Errorf("DropsByReason[lowSpread] = %v, want 2", got)
	}

	m.RecordCycle(50 * time.Millisecond)
	if got := testutil.ToFloat64(m.CyclesCompleted); got != 1 {
		t.Errorf("CyclesCompleted = %v, want 1", got)
	}

	m.RecordExecution(100*time.Millisecond, true)
	m.RecordExecution(100*time.Millisecond, false)
	if got := testutil.ToFloat64(m.ExecutionsAttempted); got != 2 {
		t.Errorf("ExecutionsAttempted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ExecutionsSucceeded); got != 1 {
		t.Errorf("ExecutionsSucceeded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ExecutionsReverted); got != 1 {
		t.Errorf("ExecutionsReverted = %v, want 1", got)
	}

	m.RecordPairResolved("create2")
	if got := testutil.ToFloat64(m.PairsResolved.WithLabelValues("create2")); got != 1 {
		t.Errorf("PairsResolved[create2] = %v, want 1", got)
	}

	// Shutdown with no server started must be a no-op, not an error.
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on unstarted server = %v, want nil", err)
	}
}
