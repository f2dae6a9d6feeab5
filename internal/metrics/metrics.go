// Package metrics exposes the process metrics and instruments every sub-application.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedhost_http_requests_total",
		Help: "HTTP requests by sub-application.",
	}, []string{"app", "method", "status"})

	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fedhost_http_request_duration_seconds",
		Help:    "HTTP request duration by sub-application.",
		Buckets: prometheus.DefBuckets,
	}, []string{"app", "method"})

	ActiveSites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fedhost_active_sites",
		Help: "Sites currently routed by the dispatcher.",
	})
)

// Middleware records the requests served by app. Paths are left out of the labels: site paths are unbounded.
func Middleware(app string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			requests.WithLabelValues(app, r.Method, strconv.Itoa(status)).Inc()
			duration.WithLabelValues(app, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
