// Package metrics exposes Prometheus collectors for RPC traffic and transaction outcomes.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultctl"

var (
	RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "JSON-RPC requests by method and outcome.",
	}, []string{"method", "outcome"})

	RPCLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_request_duration_seconds",
		Help:      "JSON-RPC request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	Transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Submitted transactions by instruction and final status.",
	}, []string{"instruction", "status"})

	ConfirmationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "confirmation_duration_seconds",
		Help:      "Time from submission to reaching the requested commitment.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
	})
)

// Registry holds every collector above.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(RPCRequests, RPCLatency, Transactions, ConfirmationLatency)
}

// ObserveRPC records one JSON-RPC round trip.
func ObserveRPC(method string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RPCRequests.WithLabelValues(method, outcome).Inc()
	RPCLatency.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down metrics server", "error", err)
		}
	}()

	slog.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
