package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roboharbor"

// Outcome labels used by the counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)

var scanBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20}

// Recorder owns the harbor's Prometheus collectors.
//
// A nil *Recorder is valid and records nothing, so components can be built
// without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	connectedRobots      prometheus.Gauge
	pendingRegistrations prometheus.Gauge
	pendingResponses     prometheus.Gauge
	messagesDropped      *prometheus.CounterVec
	orchestrations       *prometheus.CounterVec
	reconcileScans       *prometheus.CounterVec
	reconcileDuration    prometheus.Histogram
	managedWorkloads     prometheus.Gauge
}

// New creates a Recorder with its own registry. Go runtime and process
// collectors are registered alongside the harbor collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		connectedRobots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "connected_robots",
			Help:      "Number of robots holding a live connection",
		}),
		pendingRegistrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "pending_registrations",
			Help:      "Registration waits currently outstanding",
		}),
		pendingResponses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "pending_responses",
			Help:      "Requests currently awaiting a robot reply",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "messages_dropped_total",
			Help:      "Inbound robot messages discarded without a matching request",
		}, []string{"reason"}),
		orchestrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "orchestrations_total",
			Help:      "Robot start and validation requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		reconcileScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "reconcile_scans_total",
			Help:      "Reconciliation scans by outcome",
		}, []string{"outcome"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "reconcile_scan_duration_seconds",
			Help:      "Latency distribution of reconciliation scans",
			Buckets:   scanBuckets,
		}),
		managedWorkloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "managed_workloads",
			Help:      "Active workloads labelled as managed by roboharbor at the last scan",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.connectedRobots,
		r.pendingRegistrations,
		r.pendingResponses,
		r.messagesDropped,
		r.orchestrations,
		r.reconcileScans,
		r.reconcileDuration,
		r.managedWorkloads,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) SetConnectedRobots(n int) {
	if r == nil {
		return
	}
	r.connectedRobots.Set(float64(n))
}

func (r *Recorder) SetPending(registrations, responses int) {
	if r == nil {
		return
	}
	r.pendingRegistrations.Set(float64(registrations))
	r.pendingResponses.Set(float64(responses))
}

func (r *Recorder) MessageDropped(reason string) {
	if r == nil {
		return
	}
	r.messagesDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) Orchestration(kind, outcome string) {
	if r == nil {
		return
	}
	r.orchestrations.WithLabelValues(kind, outcome).Inc()
}

// ReconcileScan records one scan. A negative managed count leaves the gauge untouched.
func (r *Recorder) ReconcileScan(outcome string, duration time.Duration, managed int) {
	if r == nil {
		return
	}
	r.reconcileScans.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	r.reconcileDuration.Observe(duration.Seconds())
	if managed >= 0 {
		r.managedWorkloads.Set(float64(managed))
	}
}
