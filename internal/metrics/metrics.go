// Package metrics holds the scanner's Prometheus instrumentation,
// grounded on nirajvora-watcher/internal/metrics.Metrics — same New/
// StartServer/Shutdown shape, generalized to this scanner's cycle and
// drop-reason counters (spec.md §4.8/§7).
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds every Prometheus collector the scanner emits.
type Metrics struct {
	CandidatesSeen    prometheus.Counter
	DropsByReason     *prometheus.CounterVec
	OpportunitiesFound prometheus.Counter
	CycleLatency      prometheus.Histogram
	CyclesCompleted   prometheus.Counter

	ExecutionsAttempted prometheus.Counter
	ExecutionsSucceeded prometheus.Counter
	ExecutionsReverted  prometheus.Counter
	ExecutionLatency    prometheus.Histogram

	RPCEndpointRotations prometheus.Counter
	RPCRateLimits        prometheus.Counter

	PairsResolved   *prometheus.CounterVec // labeled by source: create2/factory
	DecimalsMisses  prometheus.Counter

	server *http.Server
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		CandidatesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_candidates_seen_total",
			Help: "Total number of candidate pair combos pulled from the candidate source",
		}),
		DropsByReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_candidates_dropped_total",
			Help: "Total number of candidates dropped by the evaluator, labeled by reason",
		}, []string{"reason"}),
		OpportunitiesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_opportunities_found_total",
			Help: "Total number of opportunities emitted by the evaluator",
		}),
		CycleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_cycle_latency_seconds",
			Help:    "Time to run one full scan cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		CyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_cycles_completed_total",
			Help: "Total number of scan cycles completed",
		}),
		ExecutionsAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_executions_attempted_total",
			Help: "Total number of opportunities the executor attempted to submit",
		}),
		ExecutionsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_executions_succeeded_total",
			Help: "Total number of executions whose receipt reported success",
		}),
		ExecutionsReverted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_executions_reverted_total",
			Help: "Total number of execution attempts that did not succeed (aborted, reverted or failed)",
		}),
		ExecutionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_execution_latency_seconds",
			Help:    "Duration of one execution attempt, from start to its outcome",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RPCEndpointRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_rpc_rotations_total",
			Help: "Total number of RPC endpoint rotations, forced or scheduled",
		}),
		RPCRateLimits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_rpc_rate_limits_total",
			Help: "Total number of rate-limit responses observed across all endpoints",
		}),
		PairsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_pairs_resolved_total",
			Help: "Total number of pair addresses resolved, labeled by resolution source",
		}, []string{"source"}),
		DecimalsMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_decimals_cache_misses_total",
			Help: "Total number of decimals() calls issued due to a cache miss",
		}),
	}

	prometheus.MustRegister(
		m.CandidatesSeen,
		m.DropsByReason,
		m.OpportunitiesFound,
		m.CycleLatency,
		m.CyclesCompleted,
		m.ExecutionsAttempted,
		m.ExecutionsSucceeded,
		m.ExecutionsReverted,
		m.ExecutionLatency,
		m.RPCEndpointRotations,
		m.RPCRateLimits,
		m.PairsResolved,
		m.DecimalsMisses,
	)

	return m
}

// StartServer exposes the metrics endpoint over HTTP, mirroring the
// teacher's New/StartServer pairing.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", port).Str("path", path).Msg("starting metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	return nil
}

// Shutdown gracefully stops the metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

func (m *Metrics) DropCandidate(reason string) {
	m.DropsByReason.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCycle(d time.Duration) {
	m.CycleLatency.Observe(d.Seconds())
	m.CyclesCompleted.Inc()
}

func (m *Metrics) RecordExecution(d time.Duration, succeeded bool) {
	m.ExecutionLatency.Observe(d.Seconds())
	m.ExecutionsAttempted.Inc()
	if succeeded {
		m.ExecutionsSucceeded.Inc()
	} else {
		m.ExecutionsReverted.Inc()
	}
}

func (m *Metrics) RecordPairResolved(source string) {
	m.PairsResolved.WithLabelValues(source).Inc()
}
