// metrics.go — Prometheus HTTP метрики Link Guard:
// lg_http_requests_total и lg_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lg_http_requests_total",
			Help: "Общее количество HTTP-запросов к Link Guard",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lg_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Link Guard в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware собирает количество и длительность запросов по endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

const formsPrefix = "/api/v1/forms/"

// normalizePath ограничивает кардинальность лейбла path:
// /api/v1/forms/10/settings → /api/v1/forms/{form_id}/settings,
// неизвестные пути → "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/links/sign",
		"/api/v1/downloads/authorize",
		"/api/v1/downloads/require-login",
		"/api/v1/upload-rules",
		"/api/v1/forms/settings",
		"/ui/forms":
		return path
	}

	if rest, ok := strings.CutPrefix(path, formsPrefix); ok {
		if id, suffix, found := strings.Cut(rest, "/"); found && id != "" && suffix == "settings" {
			return formsPrefix + "{form_id}/settings"
		}
	}
	return "other"
}
