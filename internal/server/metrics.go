package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type metrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	siteVisits     prometheus.Counter
	deployments    *prometheus.CounterVec
	viewerSessions prometheus.Gauge
	// activityDropped counts activity entries lost before reaching the log.
	activityDropped *prometheus.CounterVec
}

// newMetrics registers collectors on the default registry. A second server
// in the same process reuses the collectors already registered.
func newMetrics() *metrics {
	m := &metrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitedrop",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitedrop",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitedrop",
			Subsystem: "http",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"}),
		siteVisits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitedrop",
			Subsystem: "sites",
			Name:      "visits_total",
			Help:      "Counted public site visits",
		}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitedrop",
			Subsystem: "sites",
			Name:      "deployment_operations_total",
			Help:      "Successful deployment lifecycle operations",
		}, []string{"operation"}),
		viewerSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitedrop",
			Subsystem: "viewer",
			Name:      "sessions_active",
			Help:      "Open viewer websocket sessions",
		}),
		activityDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitedrop",
			Subsystem: "activity",
			Name:      "dropped_total",
			Help:      "Activity entries that were not recorded",
		}, []string{"reason"}),
	}

	m.requestTotal = registerCollector(m.requestTotal)
	m.requestLatency = registerCollector(m.requestLatency)
	m.rateLimitHits = registerCollector(m.rateLimitHits)
	m.siteVisits = registerCollector(m.siteVisits)
	m.deployments = registerCollector(m.deployments)
	m.viewerSessions = registerCollector(m.viewerSessions)
	m.activityDropped = registerCollector(m.activityDropped)
	return m
}

func registerCollector[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) recordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *metrics) recordRateLimitHit(route, key string) {
	m.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

// instrument records metrics and one request log line per call.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		s.metrics.recordRequest(r.Method, route, status, duration)

		fields := []any{
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if recorder.userID != "" {
			fields = append(fields, "user_id", recorder.userID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("http_request", fields...)
		default:
			s.logger.Debug("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	userID string
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}
