package observability_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
)

func TestInit_NoopWhenNoExporters(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)
	assert.Nil(t, providers.MetricsHandler)

	_, span := providers.Tracer.Start(context.Background(), "miraload.load")
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_PrometheusServesLoadMetrics(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })
	require.NotNil(t, providers.MetricsHandler)

	lm, err := observability.NewLoadMetrics(providers.Meter)
	require.NoError(t, err)

	lm.RecordChunk(context.Background())

	rec := httptest.NewRecorder()
	providers.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "miraload_chunks")
	assert.Contains(t, rec.Body.String(), "target_info")
}

func TestInit_JSONLoggerWritesToWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.Environment = "staging"

	providers, err := observability.InitWithWriter(cfg, &buf)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	providers.Logger.InfoContext(context.Background(), "load: started", "dashboard_id", "P1")

	assert.Contains(t, buf.String(), `"env":"staging"`)
	assert.Contains(t, buf.String(), `"dashboard_id":"P1"`)
}

func TestBuildResource_IncludesAppMode(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Mode = observability.ModeBatch
	cfg.ServiceVersion = "1.2.3"

	res, err := observability.ProbeBuildResource(cfg)
	require.NoError(t, err)

	found := false

	for _, attr := range res.Attributes() {
		if string(attr.Key) == "app.mode" {
			assert.Equal(t, "batch", attr.Value.AsString())

			found = true
		}
	}

	assert.True(t, found, "app.mode attribute not found in resource")
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", nil},
		{"single", "key=value", map[string]string{"key": "value"}},
		{"multiple", "k1=v1,k2=v2", map[string]string{"k1": "v1", "k2": "v2"}},
		{"spaces", " k1 = v1 , k2 = v2 ", map[string]string{"k1": "v1", "k2": "v2"}},
		{"no_equals", "invalid", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, observability.ParseOTLPHeaders(tt.input))
		})
	}
}

func TestBuildResource_AddsResourceAttributes(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.ResourceAttributes = map[string]string{"miraload.sink.backend": "file"}

	res, err := observability.ProbeBuildResource(cfg)
	require.NoError(t, err)

	value, ok := res.Set().Value("miraload.sink.backend")
	require.True(t, ok)
	assert.Equal(t, "file", value.AsString())
}

func TestServeMetrics_ServesScrapeAndHealth(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	server, err := observability.ServeMetrics("127.0.0.1:0", providers.MetricsHandler, nil)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, server.Shutdown(context.Background())) })

	for path, want := range map[string]string{
		observability.HealthPath:  `{"status":"ok"}`,
		observability.MetricsPath: "target_info",
	} {
		req, reqErr := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+server.Addr()+path, http.NoBody)
		require.NoError(t, reqErr)

		resp, getErr := http.DefaultClient.Do(req)
		require.NoError(t, getErr, path)

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, readErr)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}
}

func TestServeMetrics_ListenError(t *testing.T) {
	t.Parallel()

	_, err := observability.ServeMetrics("256.0.0.1:bad", http.NotFoundHandler(), nil)
	require.Error(t, err)
}
