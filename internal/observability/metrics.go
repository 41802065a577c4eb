package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	clientsConnected prometheus.Gauge
	sendsTotal       prometheus.Counter
	eventsTotal      prometheus.Counter
	invokeTotal      *prometheus.CounterVec
	invokeDuration   prometheus.Histogram

	insightTotal    *prometheus.CounterVec
	insightDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			clientsConnected: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "relay_clients_connected",
					Help: "Currently connected bridge clients.",
				},
			),
			sendsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_sends_total",
					Help: "Total fire-and-forget messages received from bridge clients.",
				},
			),
			eventsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_events_total",
					Help: "Total events delivered to bridge clients.",
				},
			),
			invokeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_invokes_total",
					Help: "Total invokes by status.",
				},
				[]string{"status"},
			),
			invokeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "relay_invoke_duration_seconds",
					Help:    "Invoke handler duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			insightTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "insight_generations_total",
					Help: "Total insight generations by provider and outcome.",
				},
				[]string{"provider", "outcome"},
			),
			insightDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "insight_generation_duration_seconds",
					Help:    "Insight generation duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.clientsConnected,
			m.sendsTotal,
			m.eventsTotal,
			m.invokeTotal,
			m.invokeDuration,
			m.insightTotal,
			m.insightDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetClientsConnected(count int) {
	getMetrics().clientsConnected.Set(float64(count))
}

func RecordSend() {
	getMetrics().sendsTotal.Inc()
}

func RecordEvents(delivered int) {
	getMetrics().eventsTotal.Add(float64(delivered))
}

func RecordInvoke(duration time.Duration, status string) {
	m := getMetrics()
	m.invokeTotal.WithLabelValues(status).Inc()
	m.invokeDuration.Observe(duration.Seconds())
}

// RecordInsight records one generation. outcome is "success" or the fallback reason.
func RecordInsight(provider string, duration time.Duration, outcome string) {
	m := getMetrics()
	m.insightTotal.WithLabelValues(provider, outcome).Inc()
	m.insightDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
