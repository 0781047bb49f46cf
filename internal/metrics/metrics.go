// Package metrics holds the Prometheus collectors exposed on /metrics.
// A nil *Metrics is valid and records nothing, which suits one-shot CLI runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultkeeper"

type Metrics struct {
	registry *prometheus.Registry

	backups         *prometheus.CounterVec
	backupDuration  *prometheus.HistogramVec
	backupSize      *prometheus.GaugeVec
	restores        *prometheus.CounterVec
	migrations      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpRequestTime *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of backups by type and final status",
		}, []string{"type", "status"}),
		backupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Time taken to create a backup",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"type"}),
		backupSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_size_bytes",
			Help:      "Stored size of the last completed backup",
		}, []string{"type"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Total number of restores by type and final status",
		}, []string{"restore_type", "status"}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Migration steps executed by direction and outcome",
		}, []string{"direction", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		httpRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.backups,
		m.backupDuration,
		m.backupSize,
		m.restores,
		m.migrations,
		m.httpRequests,
		m.httpRequestTime,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBackup(backupType, status string, elapsed time.Duration, sizeBytes int64) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(backupType, status).Inc()
	m.backupDuration.WithLabelValues(backupType).Observe(elapsed.Seconds())
	if sizeBytes > 0 {
		m.backupSize.WithLabelValues(backupType).Set(float64(sizeBytes))
	}
}

func (m *Metrics) ObserveRestore(restoreType, status string) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(restoreType, status).Inc()
}

func (m *Metrics) ObserveMigration(direction, status string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(direction, status).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpRequestTime.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
