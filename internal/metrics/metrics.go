package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the polling and
// regeneration pipeline.
type Metrics struct {
	PollsTotal      *prometheus.CounterVec
	PollErrors      *prometheus.CounterVec
	SamplesStored   *prometheus.CounterVec
	RegenCycles     prometheus.Counter
	RegenJobErrors  prometheus.Counter
	RegenDuration   prometheus.Histogram
	AlertsSent      prometheus.Counter
	AlertSendErrors prometheus.Counter
}

// New registers and returns the metric set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainstats_polls_total",
			Help: "Poll ticks executed per job",
		}, []string{"job"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainstats_poll_errors_total",
			Help: "Poll ticks that failed per job",
		}, []string{"job"}),
		SamplesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainstats_samples_stored_total",
			Help: "Raw samples persisted per source",
		}, []string{"source"}),
		RegenCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainstats_regeneration_cycles_total",
			Help: "Completed statistics regeneration cycles",
		}),
		RegenJobErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainstats_regeneration_job_errors_total",
			Help: "Failed (window, granularity) regeneration jobs",
		}),
		RegenDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chainstats_regeneration_cycle_duration_seconds",
			Help:    "Wall time of a full regeneration cycle",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainstats_alerts_sent_total",
			Help: "Threshold alerts delivered",
		}),
		AlertSendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainstats_alert_send_errors_total",
			Help: "Threshold alert deliveries that failed",
		}),
	}

	reg.MustRegister(
		m.PollsTotal,
		m.PollErrors,
		m.SamplesStored,
		m.RegenCycles,
		m.RegenJobErrors,
		m.RegenDuration,
		m.AlertsSent,
		m.AlertSendErrors,
	)

	return m
}

// NewNop returns an unregistered metric set for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
