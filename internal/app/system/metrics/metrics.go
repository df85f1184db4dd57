// Package metrics defines the Prometheus metrics exported by stratawiki.
//
// Metrics are registered with the default registry on package init via
// promauto and served by Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stratawiki"

// HTTPRequestDuration measures handler latency.
// Labels:
//   - route: the chi route pattern (e.g. "/api/pages/{slug}")
//   - method: HTTP method
//   - status: response status code
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route, method and status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route", "method", "status"},
)

// PageMutationsTotal counts accepted page writes.
// Label:
//   - op: "create", "update" or "delete"
var PageMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_mutations_total",
		Help:      "Total number of accepted page mutations.",
	},
	[]string{"op"},
)

// MenuMutationsTotal counts menu tree mutations.
// Labels:
//   - op: "create", "update", "reorder", "move" or "delete"
//   - result: "ok" or the error kind (e.g. "cycle", "validation")
var MenuMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "menu_mutations_total",
		Help:      "Total number of menu mutations by operation and result.",
	},
	[]string{"op", "result"},
)

// AuthFailuresTotal counts rejected credentials.
// Label:
//   - reason: "token", "broker_key" or "backend"
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of rejected session tokens and broker keys.",
	},
	[]string{"reason"},
)

// JobRunsTotal counts background job executions.
// Labels:
//   - job: the registered job name (e.g. "session-cleanup")
//   - result: "ok", "error" or "cancelled"
var JobRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Total number of background job runs by job and result.",
	},
	[]string{"job", "result"},
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records HTTPRequestDuration for every request. The route label
// is read after the handler runs so chi has resolved the pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
