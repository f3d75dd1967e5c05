package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/miraload/pkg/config"
	"github.com/Sumatoshi-tech/miraload/pkg/observability"
	"github.com/Sumatoshi-tech/miraload/pkg/persist"
	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
	"github.com/Sumatoshi-tech/miraload/pkg/sink/elastic"
	"github.com/Sumatoshi-tech/miraload/pkg/sink/filesink"
	"github.com/Sumatoshi-tech/miraload/pkg/version"
)

const (
	otlpHeadersEnv        = "OTEL_EXPORTER_OTLP_HEADERS"
	metricsShutdownWindow = 5 * time.Second
)

// App holds the state shared by every command: configuration, telemetry
// providers and the logger.
type App struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
	NoColor    bool
	// Mode is reported in logs and telemetry. Empty means a CLI run.
	Mode observability.AppMode

	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.LoadMetrics

	providers  observability.Providers
	metricsSrv *observability.MetricsServer
}

// Setup loads the configuration and starts telemetry.
func (a *App) Setup(ctx context.Context) error {
	cfg, err := config.LoadConfig(a.ConfigPath)
	if err != nil {
		return err
	}

	a.Config = cfg

	if a.NoColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	if a.Mode != "" {
		obsCfg.Mode = a.Mode
	}

	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = cfg.Telemetry.OTLPHeaders
	if len(obsCfg.OTLPHeaders) == 0 {
		obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv(otlpHeadersEnv))
	}

	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.Prometheus = cfg.Telemetry.PrometheusAddr != ""
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.TraceVerbose = cfg.Telemetry.TraceVerbose
	obsCfg.LogJSON = cfg.Logging.Format == "json"
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.ResourceAttributes = map[string]string{
		"miraload.sink.backend": cfg.Sink.Backend,
		"miraload.load.mode":    cfg.Load.Mode,
	}

	switch {
	case a.Verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case a.Quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	a.providers = providers
	a.Logger = providers.Logger

	a.Metrics, err = observability.NewLoadMetrics(providers.Meter)
	if err != nil {
		return errors.Join(err, a.Close(ctx))
	}

	if providers.MetricsHandler != nil {
		a.metricsSrv, err = observability.ServeMetrics(cfg.Telemetry.PrometheusAddr, providers.MetricsHandler, a.Logger)
		if err != nil {
			return errors.Join(err, a.Close(ctx))
		}
	}

	return nil
}

// Close stops the metrics server and flushes telemetry. It is safe to call
// when Setup did not run.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownWindow)
	defer cancel()

	var errs []error

	if a.metricsSrv != nil {
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
		a.metricsSrv = nil
	}

	if a.providers.Shutdown != nil {
		errs = append(errs, a.providers.Shutdown(ctx))
		a.providers.Shutdown = nil
	}

	return errors.Join(errs...)
}

// Sink builds the configured sink. dryRun returns a discarding sink.
func (a *App) Sink(dryRun bool) (sink.Sink, error) {
	if dryRun {
		return sink.NewDiscard(), nil
	}

	sinkCfg := a.Config.Sink

	switch sinkCfg.Backend {
	case config.BackendFile:
		comp, err := persist.ParseCompression(sinkCfg.Compression)
		if err != nil {
			return nil, err
		}

		files, err := filesink.New(filesink.Config{Dir: sinkCfg.OutputDir, Compression: comp, Logger: a.Logger})
		if err != nil {
			return nil, err
		}

		return files, nil
	default:
		client, err := elastic.New(elastic.Config{
			URL:               sinkCfg.URL,
			Username:          sinkCfg.Username,
			Password:          sinkCfg.Password,
			BulkSize:          sinkCfg.BulkSize,
			Workers:           sinkCfg.Workers,
			RequestsPerSecond: sinkCfg.RequestsPerSecond,
			Timeout:           sinkCfg.Timeout,
			RetryMax:          sinkCfg.RetryMax,
			Logger:            a.Logger,
		})
		if err != nil {
			return nil, err
		}

		return client, nil
	}
}

// Loader builds a pipeline loader writing into s.
func (a *App) Loader(s sink.Loader, opts pipeline.Options) *pipeline.Loader {
	return &pipeline.Loader{
		Sink:    s,
		Options: opts,
		Logger:  a.Logger,
		Tracer:  a.providers.Tracer,
		Metrics: a.Metrics,
	}
}
