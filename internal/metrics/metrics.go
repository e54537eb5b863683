// Package metrics объявляет метрики Prometheus, которые отдаются на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vpnshop"

var (
	// PanelRequests считает запросы к панели по операции и результату.
	PanelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "panel_requests_total",
		Help:      "Requests to the VPN panel by operation and result.",
	}, []string{"op", "result"})

	// EntitlementOperations считает операции движка подписок.
	EntitlementOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entitlement_operations_total",
		Help:      "Entitlement engine operations by name and result.",
	}, []string{"op", "result"})

	SweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_expired_total",
		Help:      "Subscriptions demoted to expired by the sweep.",
	})

	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_failures_total",
		Help:      "Subscriptions the sweep could not disable remotely.",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of expiry sweeps.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// Result переводит ошибку в значение метки result.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
