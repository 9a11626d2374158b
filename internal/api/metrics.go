package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SmartInclusion/SmartInclusion/internal/store"
)

const metricsNamespace = "smartinclusion"

type metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	ussdOutcomes   *prometheus.CounterVec
	broadcasts     prometheus.Counter
	broadcastQueue prometheus.Counter
	outboxSends    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ussdOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ussd_responses_total",
			Help:      "USSD responses by kind (CON or END).",
		}, []string{"kind"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Accepted broadcast requests.",
		}),
		broadcastQueue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_messages_queued_total",
			Help:      "Per-farmer broadcast messages queued in the outbox.",
		}),
		outboxSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbox_sends_total",
			Help:      "Outbox delivery attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.requests, m.duration, m.ussdOutcomes, m.broadcasts, m.broadcastQueue, m.outboxSends)
	return m
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *metrics) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

func (m *metrics) handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// countSends wraps an outbox send function with delivery counters.
func (m *metrics) countSends(send store.OutboxSendFunc) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		err := send(ctx, msg)
		result := "sent"
		if err != nil {
			result = "failed"
		}
		m.outboxSends.WithLabelValues(result).Inc()
		return err
	}
}
