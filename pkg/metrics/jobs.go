package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics tracks maintenance job runs in the cron worker.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	drift    prometheus.Counter
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job runs by result.",
	}, []string{"job", "result"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credits_ledger_drift_total",
		Help: "Accounts whose balance disagreed with the ledger sum during an audit sweep.",
	})
	reg.MustRegister(duration, runs, drift)
	return &JobMetrics{duration: duration, runs: runs, drift: drift}
}

func (m *JobMetrics) ObserveRun(job string, duration time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(job, result).Inc()
}

// AddDrift counts accounts found out of balance.
func (m *JobMetrics) AddDrift(accounts int) {
	if m == nil || m.drift == nil || accounts <= 0 {
		return
	}
	m.drift.Add(float64(accounts))
}
