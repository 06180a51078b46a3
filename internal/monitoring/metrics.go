package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	seatOutcomes    *prometheus.CounterVec
	holdRejections  prometheus.Counter
	confirms        *prometheus.CounterVec
	casConflicts    *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	reaperReleased  prometheus.Counter
	reaperConflicts prometheus.Counter
	reaperFailures  prometheus.Counter
	lastSweepBatch  prometheus.Gauge
}

// New registers the collectors on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		seatOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seating_seat_outcomes_total",
				Help: "Per-seat outcomes of hold, release and confirm requests",
			},
			[]string{"operation", "outcome"},
		),
		holdRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "seating_hold_batches_rejected_total",
				Help: "Hold batches rejected by the per-session seat cap",
			},
		),
		confirms: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seating_confirms_total",
				Help: "Purchase confirmations by result",
			},
			[]string{"result"},
		),
		casConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seating_cas_conflicts_total",
				Help: "Seat version conflicts seen by the engine",
			},
			[]string{"operation"},
		),
		opDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seating_operation_duration_seconds",
				Help:    "Duration of engine operations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),
		reaperReleased: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "seating_reaper_released_total",
				Help: "Expired holds returned to available by the reaper",
			},
		),
		reaperConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "seating_reaper_conflicts_total",
				Help: "Expired holds the reaper lost to a concurrent transition",
			},
		),
		reaperFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "seating_reaper_failed_sweeps_total",
				Help: "Reaper sweeps that could not list expired holds",
			},
		),
		lastSweepBatch: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "seating_reaper_last_batch_size",
				Help: "Expired holds found by the most recent sweep",
			},
		),
	}
}

func (m *Metrics) SeatOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.seatOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) HoldRejected() {
	if m == nil {
		return
	}
	m.holdRejections.Inc()
}

func (m *Metrics) Confirm(result string) {
	if m == nil {
		return
	}
	m.confirms.WithLabelValues(result).Inc()
}

func (m *Metrics) Conflict(operation string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(operation).Inc()
}

// ObserveSince records the time elapsed since start for operation.
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Sweep(found, released, conflicts int) {
	if m == nil {
		return
	}
	m.lastSweepBatch.Set(float64(found))
	m.reaperReleased.Add(float64(released))
	m.reaperConflicts.Add(float64(conflicts))
}

func (m *Metrics) SweepFailed() {
	if m == nil {
		return
	}
	m.reaperFailures.Inc()
}
