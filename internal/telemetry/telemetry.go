// Package telemetry exposes live attack counters on an optional
// Prometheus endpoint. It is side-channel observability; the report
// pipeline never reads from it.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BegleyBrothers/swanling/internal/metrics"
)

// Metrics is the collector set for one attack. All methods except Handler
// are safe on a nil receiver so callers can wire telemetry unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	backfill prometheus.Counter
	users    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swanling",
			Name:      "requests_total",
			Help:      "Requests issued, by task name and outcome.",
		}, []string{"name", "result"}),
		backfill: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swanling",
			Name:      "backfill_samples_total",
			Help:      "Synthetic samples generated by coordinated omission mitigation.",
		}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swanling",
			Name:      "users",
			Help:      "Virtual users currently running.",
		}),
	}
	m.registry.MustRegister(m.requests, m.backfill, m.users)
	return m
}

// ObserveSample counts one recorded sample.
func (m *Metrics) ObserveSample(s metrics.Sample, synthetic bool) {
	if m == nil {
		return
	}
	if synthetic {
		m.backfill.Inc()
		return
	}
	result := "success"
	if !s.Success {
		result = "failure"
	}
	m.requests.WithLabelValues(s.Name, result).Inc()
}

// UserStarted and UserStopped track the running-user gauge.
func (m *Metrics) UserStarted() {
	if m != nil {
		m.users.Inc()
	}
}

func (m *Metrics) UserStopped() {
	if m != nil {
		m.users.Dec()
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if m == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
