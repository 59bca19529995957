// Package metrics exposes Prometheus collectors for the job lifecycle.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	jobsSubmitted      *prometheus.CounterVec
	jobsFinished       *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	storeDegraded      prometheus.Gauge
	queueDepth         prometheus.Gauge
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		jobsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripplanner_jobs_submitted_total",
				Help: "Generation jobs accepted, by job kind.",
			},
			[]string{"kind"},
		),
		jobsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripplanner_jobs_finished_total",
				Help: "Generation jobs reaching a terminal status, by status and failure kind.",
			},
			[]string{"status", "failure_kind"},
		),
		generationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripplanner_generation_duration_seconds",
				Help:    "Wall time of LLM generation calls.",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120, 150, 180},
			},
			[]string{"provider", "outcome"},
		),
		storeDegraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "tripplanner_store_degraded",
			Help: "1 while the job store serves from the in-memory fallback.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "tripplanner_worker_queue_depth",
			Help: "Generation tasks waiting for a worker.",
		}),
	}
}

func (r *Recorder) JobSubmitted(kind string) {
	if r == nil {
		return
	}
	r.jobsSubmitted.WithLabelValues(kind).Inc()
}

func (r *Recorder) JobCompleted() {
	if r == nil {
		return
	}
	r.jobsFinished.WithLabelValues("completed", "").Inc()
}

func (r *Recorder) JobFailed(kind string) {
	if r == nil {
		return
	}
	r.jobsFinished.WithLabelValues("failed", kind).Inc()
}

func (r *Recorder) ObserveGeneration(provider, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.generationDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

// StoreDegraded matches the store.WithStateHook signature.
func (r *Recorder) StoreDegraded(degraded bool) {
	if r == nil {
		return
	}
	if degraded {
		r.storeDegraded.Set(1)
	} else {
		r.storeDegraded.Set(0)
	}
}

func (r *Recorder) QueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}
