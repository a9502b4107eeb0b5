package obs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civreg.org/internal/auth"
	"civreg.org/internal/ids"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civreg_auth_decisions_total",
			Help: "Authorization verdicts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civreg_tokens_issued_total",
			Help: "Session tokens issued, by kind (login, refresh).",
		},
		[]string{"kind"},
	)
)

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, authDecisions, tokensIssued)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts an authorization verdict. It has the shape of
// auth.DecisionObserver.
func ObserveDecision(operation string, err error) {
	authDecisions.WithLabelValues(operation, DecisionOutcome(err)).Inc()
}

// DecisionOutcome classifies an authorization error for metrics.
func DecisionOutcome(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, auth.ErrScopeMisconfigured):
		return "misconfigured"
	case errors.Is(err, auth.ErrPermissionDenied):
		return "deny"
	case errors.Is(err, auth.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

// TokenIssued counts a token of kind.
func TokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

// Instrument records request count, latency and in-flight gauge.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		path := routePath(r)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

func routePath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return CanonicalPath(r.URL.Path)
}

// CanonicalPath collapses identifier segments so unrouted paths do not
// explode label cardinality.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		if ids.Valid(seg) {
			segs[i] = "{id}"
			continue
		}
		if _, err := strconv.Atoi(seg); err == nil && seg != "" {
			segs[i] = "{id}"
		}
	}
	return strings.Join(segs, "/")
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
