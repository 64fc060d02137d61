package util

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricSessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pktlink",
		Subsystem: "session",
		Name:      "opened_total",
		Help:      "Sessions opened by listeners and clients.",
	})
	metricSessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pktlink",
		Subsystem: "session",
		Name:      "closed_total",
		Help:      "Sessions torn down.",
	})
	metricPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pktlink",
		Subsystem: "packet",
		Name:      "total",
		Help:      "Packets sent and received.",
	}, []string{"direction"})
	metricBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pktlink",
		Subsystem: "packet",
		Name:      "bytes_total",
		Help:      "Framed bytes sent and received.",
	}, []string{"direction"})
	metricRawFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pktlink",
		Subsystem: "packet",
		Name:      "raw_fallback_total",
		Help:      "Received frames that did not decode as an envelope.",
	})
)

// ServeMetrics exposes the default prometheus registry on addr at /metrics
// until ctx is cancelled. It returns the bound address.
func ServeMetrics(ctx context.Context, addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			LogError("metrics server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}
