package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricChunksTotal     = "miraload.chunks.total"
	metricDocumentsTotal  = "miraload.documents.total"
	metricEntriesTotal    = "miraload.entries.total"
	metricDocumentsFailed = "miraload.documents.failed.total"
	metricBatchDuration   = "miraload.batch.duration.seconds"
	metricLoadDuration    = "miraload.load.duration.seconds"

	attrKind   = "kind"
	attrStatus = "status"
	attrIndex  = "index"
)

// Load statuses recorded on miraload.load.duration.seconds.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// durationBucketBoundaries covers 5ms bulk requests up to hour-long loads.
var durationBucketBoundaries = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 3600,
}

// LoadMetrics holds the OTel instruments for matrix loads.
type LoadMetrics struct {
	chunksTotal     metric.Int64Counter
	documentsTotal  metric.Int64Counter
	entriesTotal    metric.Int64Counter
	documentsFailed metric.Int64Counter
	batchDuration   metric.Float64Histogram
	loadDuration    metric.Float64Histogram
}

// BatchStats describes one bulk-loaded batch.
type BatchStats struct {
	Index     string
	Documents int
	Entries   int
	Failed    int
	Duration  time.Duration
}

// NewLoadMetrics creates load metric instruments from the given meter.
func NewLoadMetrics(mt metric.Meter) (*LoadMetrics, error) {
	chunks, err := mt.Int64Counter(metricChunksTotal,
		metric.WithDescription("Matrix chunks read"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunksTotal, err)
	}

	docs, err := mt.Int64Counter(metricDocumentsTotal,
		metric.WithDescription("Documents handed to the sink"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDocumentsTotal, err)
	}

	entries, err := mt.Int64Counter(metricEntriesTotal,
		metric.WithDescription("Gene values placed on cell documents"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricEntriesTotal, err)
	}

	failed, err := mt.Int64Counter(metricDocumentsFailed,
		metric.WithDescription("Documents rejected by the sink"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDocumentsFailed, err)
	}

	batchDur, err := mt.Float64Histogram(metricBatchDuration,
		metric.WithDescription("Per-batch assemble and bulk load duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBatchDuration, err)
	}

	loadDur, err := mt.Float64Histogram(metricLoadDuration,
		metric.WithDescription("Whole dashboard load duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricLoadDuration, err)
	}

	return &LoadMetrics{
		chunksTotal:     chunks,
		documentsTotal:  docs,
		entriesTotal:    entries,
		documentsFailed: failed,
		batchDuration:   batchDur,
		loadDuration:    loadDur,
	}, nil
}

// RecordChunk counts one matrix chunk. Safe to call on a nil receiver.
func (lm *LoadMetrics) RecordChunk(ctx context.Context) {
	if lm == nil {
		return
	}

	lm.chunksTotal.Add(ctx, 1)
}

// RecordBatch records one bulk-loaded batch. Safe to call on a nil receiver.
func (lm *LoadMetrics) RecordBatch(ctx context.Context, stats BatchStats) {
	if lm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrIndex, stats.Index))

	lm.documentsTotal.Add(ctx, int64(stats.Documents), attrs)
	lm.entriesTotal.Add(ctx, int64(stats.Entries), attrs)
	lm.batchDuration.Record(ctx, stats.Duration.Seconds(), attrs)

	if stats.Failed > 0 {
		lm.documentsFailed.Add(ctx, int64(stats.Failed), attrs)
	}
}

// RecordLoad records a finished load with its kind and status. Safe to call
// on a nil receiver.
func (lm *LoadMetrics) RecordLoad(ctx context.Context, kind, status string, duration time.Duration) {
	if lm == nil {
		return
	}

	lm.loadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrKind, kind),
		attribute.String(attrStatus, status),
	))
}
