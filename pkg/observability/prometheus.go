package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Paths served by MetricsServer.
const (
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"
)

const metricsReadHeaderTimeout = 5 * time.Second

// newPrometheusReader creates a Prometheus exporter on its own registry and
// returns it as a metric reader together with the scrape handler.
func newPrometheusReader() (sdkmetric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})

	return exporter, handler, nil
}

// MetricsServer exposes the scrape handler and a liveness endpoint while a
// long batch load runs.
type MetricsServer struct {
	srv  *http.Server
	addr net.Addr
}

// ServeMetrics listens on addr and serves metrics in the background. Serve
// errors after startup are logged, not returned.
func ServeMetrics(addr string, metrics http.Handler, logger *slog.Logger) (*MetricsServer, error) {
	logger = OrDiscard(logger)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(MetricsPath, metrics)
	mux.HandleFunc(HealthPath, func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})

	server := &MetricsServer{
		srv:  &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout},
		addr: listener.Addr(),
	}

	go func() {
		serveErr := server.srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", server.addr.String(), "path", MetricsPath)

	return server, nil
}

// Addr returns the bound listen address.
func (s *MetricsServer) Addr() string {
	return s.addr.String()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("stop metrics server: %w", err)
	}

	return nil
}
