// Package metrics defines the gateway's Prometheus instrumentation,
// per spec.md's ambient metrics stack (SPEC_FULL.md §10.3).
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crohr/smart-git-proxy/internal/gitcontext"
)

// Metrics holds every counter/histogram the controller and backend
// record against, labelled by service (upload-pack/receive-pack),
// advertisement (bool), backend (fs/http), and final status.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	ResponsesTotal  *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	BackendErrors   *prometheus.CounterVec
	ServeLatency    *prometheus.HistogramVec
}

// New builds and registers a Metrics against the default registry.
func New() *Metrics {
	m := build()
	prometheus.MustRegister(
		m.RequestsTotal,
		m.ResponsesTotal,
		m.RejectionsTotal,
		m.BackendErrors,
		m.ServeLatency,
	)
	return m
}

// NewUnregistered builds a Metrics without registering it, for tests
// that construct a Controller repeatedly and would otherwise panic on
// double registration against the default registry.
func NewUnregistered() *Metrics {
	return build()
}

func build() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_git_gateway_requests_total",
			Help: "requests received, by service and advertisement",
		}, []string{"service", "advertisement"}),
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_git_gateway_responses_total",
			Help: "responses sent, by service, backend and status",
		}, []string{"service", "backend", "status"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_git_gateway_rejections_total",
			Help: "rejections by reason (404/403/401/400)",
		}, []string{"reason"}),
		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_git_gateway_backend_errors_total",
			Help: "backend serve errors, by backend and kind",
		}, []string{"backend", "kind"}),
		ServeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smart_git_gateway_serve_seconds",
			Help:    "end-to-end serve latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "backend"}),
	}
}

// Observer returns a controller.CompleteObserver that records a
// request's final status against m. It is registered as an onComplete
// observer rather than wired into the controller directly, so metrics
// recording follows the same signal-dispatch path as any other
// observer (SPEC_FULL.md §4.7).
func (m *Metrics) Observer() func(ctx context.Context, gctx *gitcontext.Context) error {
	return func(_ context.Context, gctx *gitcontext.Context) error {
		service := gctx.Service().WireName()
		if service == "" {
			service = "unknown"
		}
		backendKind, _ := gctx.Get("backend_kind")
		kind, _ := backendKind.(string)
		if kind == "" {
			kind = "unknown"
		}
		m.RequestsTotal.WithLabelValues(service, strconv.FormatBool(gctx.Advertisement())).Inc()
		m.ResponsesTotal.WithLabelValues(service, kind, strconv.Itoa(gctx.StatusCode())).Inc()
		if gctx.Status() == gitcontext.Rejected {
			m.RejectionsTotal.WithLabelValues(strconv.Itoa(gctx.StatusCode())).Inc()
		}
		if errKind, ok := gctx.Get("backend_error_kind"); ok {
			reason, _ := errKind.(string)
			if reason == "" {
				reason = "unknown"
			}
			m.BackendErrors.WithLabelValues(kind, reason).Inc()
		}
		if startedAt, ok := gctx.Get("serve_started_at"); ok {
			if t, ok := startedAt.(time.Time); ok {
				m.ServeLatency.WithLabelValues(service, kind).Observe(time.Since(t).Seconds())
			}
		}
		return nil
	}
}
