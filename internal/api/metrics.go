package api

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

// metrics holds the HTTP-side collectors of the relay: plain request
// counters per route plus the outcome of every websocket upgrade attempt.
type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	upgrades *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		requests: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_relay_http_requests_total",
				Help: "HTTP requests served, by matched route and status code.",
			},
			[]string{"method", "route", "code"},
		)),
		duration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_relay_http_request_duration_seconds",
				Help:    "Time to serve plain HTTP requests. Upgraded websockets are excluded.",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"route"},
		)),
		upgrades: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_relay_ws_upgrades_total",
				Help: "Websocket upgrade attempts by result.",
			},
			[]string{"result"},
		)),
	}
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor so several servers can be built in one process.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.Handler()
}

// instrument records every request served by mux under the route pattern
// that matched it, so path parameters and junk paths never become labels.
func (m *metrics) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeLabel(mux, r)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		mux.ServeHTTP(rec, r)

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		if isUpgradeRequest(r) {
			m.upgrades.WithLabelValues(upgradeResult(rec)).Inc()
			return
		}
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel returns the pattern mux would dispatch r to.
func routeLabel(mux *http.ServeMux, r *http.Request) string {
	if _, pattern := mux.Handler(r); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

func isUpgradeRequest(r *http.Request) bool {
	return r.Header.Get("Upgrade") != ""
}

func upgradeResult(rec *statusRecorder) string {
	switch {
	case rec.hijacked:
		return "upgraded"
	case rec.status == http.StatusForbidden:
		return "forbidden"
	default:
		return "rejected"
	}
}

// statusRecorder captures the final status code and whether the connection
// was taken over by the websocket upgrader.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// Hijack hands the connection to the websocket upgrader; the recorded status
// becomes 101.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("statusRecorder: underlying ResponseWriter does not support hijacking")
	}
	sr.status = http.StatusSwitchingProtocols
	sr.hijacked = true
	return h.Hijack()
}
