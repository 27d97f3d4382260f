package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	childStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "starts_total",
			Help:      "Number of successful child spawns.",
		}, []string{"name"},
	)
	childRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of restarts after unexpected exits.",
		}, []string{"name"},
	)
	childStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "stops_total",
			Help:      "Number of requested shutdowns completed.",
		}, []string{"name"},
	)
	unexpectedExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "unexpected_exits_total",
			Help:      "Number of child exits observed while no shutdown was requested.",
		}, []string{"name"},
	)
	forcedKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "forced_kills_total",
			Help:      "Number of SIGKILL escalations after the graceful stop window.",
		}, []string{"name"},
	)
	childUptime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "child_uptime_seconds",
			Help:      "Observed uptime of a child run at the moment it exits.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "state_transitions_total",
			Help:      "Number of supervisor state transitions.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nodeguard",
			Subsystem: "supervisor",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		childStarts, childRestarts, childStops, unexpectedExits,
		forcedKills, childUptime, stateTransitions, currentStates,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// Allows double Register with the default registry.
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register
// has been called.

func IncStart(name string) {
	if regOK.Load() {
		childStarts.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		childRestarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		childStops.WithLabelValues(name).Inc()
	}
}

func IncUnexpectedExit(name string) {
	if regOK.Load() {
		unexpectedExits.WithLabelValues(name).Inc()
	}
}

func IncForcedKill(name string) {
	if regOK.Load() {
		forcedKills.WithLabelValues(name).Inc()
	}
}

func ObserveUptime(name string, seconds float64) {
	if regOK.Load() && seconds >= 0 {
		childUptime.WithLabelValues(name).Observe(seconds)
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if !regOK.Load() {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	currentStates.WithLabelValues(name, state).Set(v)
}
