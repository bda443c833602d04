package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "jobs_total",
		Help:      "Exclusive recording jobs by mode and result",
	}, []string{"mode", "result"})

	recordingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "duration_seconds",
		Help:      "Wall time the device was held exclusively for a recording",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"mode"})
)

// ObserveRecording records the outcome and exclusive hold time of a job.
func ObserveRecording(mode string, ok bool, held time.Duration) {
	recordings.WithLabelValues(mode, result(ok)).Inc()
	recordingSeconds.WithLabelValues(mode).Observe(held.Seconds())
}
