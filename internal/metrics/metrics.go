package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pwa_edge"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	installs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "installs_total",
			Help:      "Controller installs by result.",
		}, []string{"result"},
	)
	precachedAssets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "precache_assets_total",
			Help:      "Static assets processed during install, by outcome (cached|skipped).",
		}, []string{"outcome"},
	)
	activations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "activations_total",
			Help:      "Number of controller activations.",
		},
	)
	deletedStores = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "stores_deleted_total",
			Help:      "Cache stores removed by activation cleanup.",
		},
	)
	activeVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "active_version",
			Help:      "Currently active cache version (1 = active).",
		}, []string{"version"},
	)
	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Intercepted requests by strategy and response source.",
		}, []string{"strategy", "source"},
	)
	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time spent serving intercepted requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"},
	)
	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync executions by kind (oneshot|periodic) and result.",
		}, []string{"kind", "result"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "notifications_total",
			Help:      "Notifications shown or clicked.",
		}, []string{"event"},
	)
	connectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clients",
			Name:      "connected",
			Help:      "Currently connected clients.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		installs, precachedAssets, activations, deletedStores, activeVersion,
		fetches, fetchDuration, syncRuns, notifications, connectedClients,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncInstall(result string) {
	if regOK.Load() {
		installs.WithLabelValues(result).Inc()
	}
}

func AddPrecached(cached, skipped int) {
	if regOK.Load() {
		precachedAssets.WithLabelValues("cached").Add(float64(cached))
		precachedAssets.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// ObserveActivation 记录一次激活，并把 version 设为唯一的 active 版本。
func ObserveActivation(version string, deleted int) {
	if regOK.Load() {
		activations.Inc()
		deletedStores.Add(float64(deleted))
		activeVersion.Reset()
		activeVersion.WithLabelValues(version).Set(1)
	}
}

func ObserveFetch(strategy, source string, elapsed time.Duration) {
	if regOK.Load() {
		fetches.WithLabelValues(strategy, source).Inc()
		fetchDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
}

func IncSync(kind string, err error) {
	if regOK.Load() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		syncRuns.WithLabelValues(kind, result).Inc()
	}
}

func IncNotification(event string) {
	if regOK.Load() {
		notifications.WithLabelValues(event).Inc()
	}
}

func SetConnectedClients(n int) {
	if regOK.Load() {
		connectedClients.Set(float64(n))
	}
}
