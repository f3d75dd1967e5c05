package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.LoadMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	lm, err := observability.NewLoadMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return lm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestLoadMetrics_RecordBatch(t *testing.T) {
	t.Parallel()

	lm, reader := setupTestMeter(t)
	ctx := context.Background()

	lm.RecordChunk(ctx)
	lm.RecordChunk(ctx)
	lm.RecordBatch(ctx, observability.BatchStats{
		Index: "dashboard_cells_p1", Documents: 10, Entries: 40, Failed: 2, Duration: 50 * time.Millisecond,
	})
	lm.RecordBatch(ctx, observability.BatchStats{Index: "dashboard_cells_p1", Documents: 5, Entries: 9})

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "miraload.chunks.total")))
	assert.Equal(t, int64(15), sumOf(t, findMetric(rm, "miraload.documents.total")))
	assert.Equal(t, int64(49), sumOf(t, findMetric(rm, "miraload.entries.total")))
	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "miraload.documents.failed.total")))
	require.NotNil(t, findMetric(rm, "miraload.batch.duration.seconds"))
}

func TestLoadMetrics_RecordLoad(t *testing.T) {
	t.Parallel()

	lm, reader := setupTestMeter(t)

	lm.RecordLoad(context.Background(), "patient", observability.StatusOK, 3*time.Second)

	rm := collectMetrics(t, reader)

	hist := findMetric(rm, "miraload.load.duration.seconds")
	require.NotNil(t, hist)

	data, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(1), data.DataPoints[0].Count)
}

func TestLoadMetrics_NilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var lm *observability.LoadMetrics

	assert.NotPanics(t, func() {
		lm.RecordChunk(context.Background())
		lm.RecordBatch(context.Background(), observability.BatchStats{Documents: 1})
		lm.RecordLoad(context.Background(), "sample", observability.StatusError, time.Second)
	})
}
