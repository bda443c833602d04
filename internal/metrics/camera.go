// Package metrics exposes Prometheus collectors for the capture engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gokucam"

// Supervisor states reported by the state gauge.
var supervisorStates = []string{"idle", "streaming", "recovering", "suspended"}

var (
	framesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "framebus",
		Name:      "frames_total",
		Help:      "Frames published to the bus, by payload kind",
	}, []string{"kind"})

	viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "viewers",
		Help:      "Currently attached preview viewers",
	})

	supervisorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "state",
		Help:      "1 for the current supervisor state, 0 otherwise",
	}, []string{"state"})

	degraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "degraded",
		Help:      "1 when automatic recovery gave up and the stream waits for the next viewer",
	})

	stalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "stalls_total",
		Help:      "Stall conditions signalled by the health monitor",
	}, []string{"reason"})

	recoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "recoveries_total",
		Help:      "Recovery attempts by result",
	}, []string{"result"})

	deviceOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "opens_total",
		Help:      "Device open attempts by result",
	}, []string{"result"})

	encoderActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "encoder_active",
		Help:      "1 for the encoder variant currently producing frames",
	}, []string{"encoder"})

	snapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "snapshots_total",
		Help:      "Snapshot requests by result",
	}, []string{"result"})
)

// IncFrame counts a published frame; empty payloads are counted separately.
func IncFrame(empty bool) {
	if empty {
		framesPublished.WithLabelValues("empty").Inc()
		return
	}
	framesPublished.WithLabelValues("jpeg").Inc()
}

// SetViewers sets the attached viewer count.
func SetViewers(n int) {
	viewers.Set(float64(n))
}

// SetState marks state as current and clears the others.
func SetState(state string) {
	for _, s := range supervisorStates {
		v := 0.0
		if s == state {
			v = 1
		}
		supervisorState.WithLabelValues(s).Set(v)
	}
}

// SetDegraded records whether the stream is in best-effort mode.
func SetDegraded(on bool) {
	if on {
		degraded.Set(1)
		return
	}
	degraded.Set(0)
}

// IncStall counts a stall signal by reason ("timeout", "empty").
func IncStall(reason string) {
	stalls.WithLabelValues(reason).Inc()
}

// IncRecovery counts a recovery attempt by result ("ok", "failed", "exhausted").
func IncRecovery(result string) {
	recoveries.WithLabelValues(result).Inc()
}

// IncDeviceOpen counts a device open attempt.
func IncDeviceOpen(ok bool) {
	deviceOpens.WithLabelValues(result(ok)).Inc()
}

// SetEncoder marks name as the active encoder; an empty name clears all.
func SetEncoder(name string) {
	encoderActive.Reset()
	if name != "" {
		encoderActive.WithLabelValues(name).Set(1)
	}
}

// IncSnapshot counts a snapshot request.
func IncSnapshot(ok bool) {
	snapshots.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
