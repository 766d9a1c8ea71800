// Package metrics provides Prometheus instrumentation for contraharness.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	register    sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Harness metrics
	transactionsTotal   *prometheus.CounterVec
	confirmationSeconds *prometheus.HistogramVec
	invocationsTotal    *prometheus.CounterVec
	rpcRetriesTotal     *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process; later calls only toggle collection.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	register.Do(func() {
		// HTTP request counter
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)

		// HTTP request duration histogram
		httpDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		)

		// Terminal transaction outcomes, deploys and sends
		transactionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_transactions_total",
				Help: "Total number of transactions by terminal state",
			},
			[]string{"op", "contract", "state"},
		)

		// Submission to confirmation latency
		confirmationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_confirmation_seconds",
				Help:    "Time from submission to confirmation in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"op"},
		)

		// Recorded invocations, calls included
		invocationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_invocations_total",
				Help: "Total number of contract invocations",
			},
			[]string{"contract", "method", "kind", "status"},
		)

		// Ledger RPC retries
		rpcRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_retries_total",
				Help: "Total number of retried ledger RPC requests",
			},
			[]string{"method"},
		)
	})
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
