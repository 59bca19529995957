package metrics_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/tripplanner/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewRecorder(reg)

	r.JobSubmitted("job")
	r.JobSubmitted("job")
	r.JobSubmitted("debug")
	r.JobCompleted()
	r.JobFailed("timeout")
	r.ObserveGeneration("mock", "completed", 2*time.Second)
	r.StoreDegraded(true)
	r.QueueDepth(3)

	n, err := testutil.GatherAndCount(reg,
		"tripplanner_jobs_submitted_total",
		"tripplanner_jobs_finished_total",
		"tripplanner_generation_duration_seconds",
		"tripplanner_store_degraded",
		"tripplanner_worker_queue_depth",
	)
	require.NoError(t, err)
	// 2 submitted series + 2 finished series + 1 histogram + 2 gauges
	assert.Equal(t, 7, n)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *metrics.Recorder
	assert.NotPanics(t, func() {
		r.JobSubmitted("job")
		r.JobCompleted()
		r.JobFailed("network")
		r.ObserveGeneration("mock", "failed", time.Second)
		r.StoreDegraded(false)
		r.QueueDepth(0)
	})
}
