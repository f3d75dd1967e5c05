// Package pipeline runs dashboard loads: metadata tables, matrix reading in
// whole-file or chunked mode, chunk reconciliation, document assembly, bulk
// loading and integrity verification, followed by the dashboard entry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/miraload/pkg/assemble"
	"github.com/Sumatoshi-tech/miraload/pkg/matrix"
	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
	"github.com/Sumatoshi-tech/miraload/pkg/observability"
	"github.com/Sumatoshi-tech/miraload/pkg/reconcile"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
	"github.com/Sumatoshi-tech/miraload/pkg/streaming"
	"github.com/Sumatoshi-tech/miraload/pkg/verify"
)

const tracerName = "miraload"

// Options configures how matrices are read and verified.
type Options struct {
	DataDir string
	Mode    streaming.Mode
	// ChunkSize is the requested rows per chunk. Zero lets Mode and
	// MemoryBudget decide.
	ChunkSize    int
	MemoryBudget int64
	// MaxGeneIndex drops matrix rows above this gene index. Zero keeps all.
	MaxGeneIndex int
	EntryPolicy  verify.EntryPolicy
}

// Validate rejects options that would fail only after reading has begun.
func (o Options) Validate() error {
	if o.ChunkSize != 0 && o.ChunkSize < matrix.MinChunkRows {
		return fmt.Errorf("%w: %d rows (minimum %d)", matrix.ErrChunkTooSmall, o.ChunkSize, matrix.MinChunkRows)
	}

	return nil
}

// Target is one dashboard to load.
type Target struct {
	ID   string
	Kind Kind
	// DataDir overrides Options.DataDir for this target.
	DataDir string
	// Date stamps the dashboard entry. A zero Date means the load time.
	Date time.Time
}

// Loader loads single dashboards into a sink.
type Loader struct {
	Sink    sink.Loader
	Options Options
	// Logger defaults to a discard logger.
	Logger *slog.Logger
	// Tracer defaults to the global "miraload" tracer.
	Tracer trace.Tracer
	// Metrics may be nil.
	Metrics *observability.LoadMetrics
	// Now defaults to time.Now.
	Now func() time.Time
}

func (l *Loader) logger() *slog.Logger {
	return observability.OrDiscard(l.Logger)
}

func (l *Loader) tracer() trace.Tracer {
	if l.Tracer != nil {
		return l.Tracer
	}

	return otel.Tracer(tracerName)
}

func (l *Loader) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}

	return time.Now()
}

// Load runs one dashboard load. Metadata and dimension errors abort before
// any matrix entry is read. Verification runs after every batch has reached
// the sink; the dashboard entry is written only when it passes. Nothing is
// cleaned up on failure.
func (l *Loader) Load(ctx context.Context, target Target) (rep *Report, err error) {
	start := l.now()
	strategy := target.Kind.Strategy()
	rep = &Report{RunID: uuid.NewString(), DashboardID: target.ID, Kind: strategy.Kind}

	ctx = observability.WithLoad(ctx, observability.Load{
		RunID:       rep.RunID,
		DashboardID: target.ID,
		Kind:        string(strategy.Kind),
	})

	ctx, span := l.tracer().Start(ctx, observability.SpanLoad, trace.WithAttributes(
		attribute.String("dashboard.id", target.ID),
		attribute.String("dashboard.kind", string(strategy.Kind)),
		attribute.String("miraload.run_id", rep.RunID),
	))

	defer func() {
		rep.Duration = l.now().Sub(start)
		status := observability.StatusOK

		span.SetAttributes(
			attribute.String("miraload.mode", rep.Mode),
			attribute.Int("chunk.size", rep.ChunkSize),
			attribute.Int("miraload.chunks", rep.Chunks),
			attribute.Int("miraload.cells", rep.Cells),
			attribute.Int("miraload.entries", rep.Entries),
		)

		if err != nil {
			status = observability.StatusError

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
		l.Metrics.RecordLoad(ctx, string(strategy.Kind), status, rep.Duration)
	}()

	err = l.Options.Validate()
	if err != nil {
		return rep, err
	}

	dataDir := l.Options.DataDir
	if target.DataDir != "" {
		dataDir = target.DataDir
	}

	layout := strategy.Layout(dataDir, target.ID)
	logger := l.logger()

	tables, err := metadata.Build(metadata.Sources{
		Cells:   layout.Cells,
		Genes:   layout.Genes,
		Samples: layout.Samples,
	}, strategy.Embeddings)
	if err != nil {
		return rep, fmt.Errorf("load %s: %w", target.ID, err)
	}

	mtx, err := matrix.Open(layout.Matrix)
	if err != nil {
		return rep, fmt.Errorf("load %s: %w", target.ID, err)
	}
	defer mtx.Close()

	header := mtx.Header()
	rep.DeclaredGenes, rep.DeclaredCells, rep.DeclaredEntries = header.Genes, header.Cells, header.Entries

	err = metadata.CheckDimensions(header, tables.Cells, tables.Genes)
	if err != nil {
		return rep, fmt.Errorf("load %s: %w", target.ID, err)
	}

	decision := streaming.Decide(l.Options.Mode, l.Options.ChunkSize, header.Entries, header.Genes, l.Options.MemoryBudget)

	rep.Mode = streaming.ModeWhole.String()
	if decision.Chunked {
		rep.Mode = streaming.ModeChunked.String()
		rep.ChunkSize = decision.ChunkRows
	}

	logger.InfoContext(ctx, "load: starting",
		"mode", rep.Mode, "chunk_size", rep.ChunkSize,
		"expected_chunks", streaming.ExpectedChunks(header.Entries, rep.ChunkSize),
		"cells", header.Cells, "genes", header.Genes, "entries", header.Entries)

	index := CellsIndex(target.ID)

	err = l.Sink.EnsureIndex(ctx, index, CellsMapping())
	if err != nil {
		return rep, fmt.Errorf("create index %s: %w", index, err)
	}

	verifier := verify.New(verify.Expected{Cells: tables.Cells.Len(), Entries: header.Entries}, l.Options.EntryPolicy)

	batches := &batchLoader{
		sink:      l.Sink,
		index:     index,
		assembler: assemble.New(tables.Cells, tables.Genes, l.Options.MaxGeneIndex),
		verifier:  verifier,
		report:    rep,
		logger:    logger,
		tracer:    l.tracer(),
		metrics:   l.Metrics,
	}

	err = l.stream(ctx, mtx, decision, batches)
	if err != nil {
		return rep, fmt.Errorf("load %s: %w", target.ID, err)
	}

	err = l.verify(ctx, verifier, rep, logger)
	if err != nil {
		return rep, fmt.Errorf("load %s: %w", target.ID, err)
	}

	date := target.Date
	if date.IsZero() {
		date = start
	}

	err = l.Sink.EnsureIndex(ctx, EntryIndex, EntryMapping())
	if err != nil {
		return rep, fmt.Errorf("create index %s: %w", EntryIndex, err)
	}

	err = l.Sink.IndexDocument(ctx, EntryIndex, sink.Document{
		ID:   target.ID,
		Body: BuildEntry(target.ID, strategy, tables.Cells, tables.Samples, date),
	})
	if err != nil {
		return rep, fmt.Errorf("load %s entry: %w", target.ID, err)
	}

	logger.InfoContext(ctx, "load: complete",
		"cells", rep.Cells, "entries", rep.Entries, "batches", rep.Batches,
		"failed_documents", rep.FailedDocuments)

	return rep, nil
}

// stream feeds the matrix through the reconciler in chunked mode, or as a
// single batch in whole-file mode.
func (l *Loader) stream(ctx context.Context, mtx *matrix.File, decision streaming.Decision, batches *batchLoader) error {
	if !decision.Chunked {
		entries, err := mtx.ReadAll()
		if err != nil {
			return err
		}

		batches.report.Chunks = 1
		l.Metrics.RecordChunk(ctx)

		return batches.emit(ctx, reconcile.Batch{Rows: entries})
	}

	chunker, err := mtx.Chunks(decision.ChunkRows)
	if err != nil {
		return err
	}

	src := &tracedChunks{ctx: ctx, chunker: chunker, tracer: l.tracer(), metrics: l.Metrics}

	chunks, err := reconcile.Run(src, func(batch reconcile.Batch) error {
		return batches.emit(ctx, batch)
	})
	batches.report.Chunks = chunks

	return err
}

func (l *Loader) verify(ctx context.Context, verifier *verify.Verifier, rep *Report, logger *slog.Logger) error {
	_, span := l.tracer().Start(ctx, observability.SpanVerify)
	defer span.End()

	res, err := verifier.Verify()

	rep.Batches = res.Batches
	rep.Cells = res.Cells
	rep.Entries = res.Entries
	rep.EntriesMatch = res.EntriesMatch
	rep.Duplicates = res.Duplicates

	span.SetAttributes(
		attribute.Int("miraload.cells", res.Cells),
		attribute.Int("miraload.expected_cells", res.ExpectedCells),
		attribute.Int("miraload.duplicates", len(res.Duplicates)),
		attribute.Bool("miraload.entries_match", res.EntriesMatch),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	if !res.EntriesMatch {
		logger.WarnContext(ctx, "load: entry count differs from matrix header",
			"declared", res.ExpectedEntries, "emitted", res.Entries, "filtered", rep.Filtered,
			"policy", l.Options.EntryPolicy)
	}

	return nil
}

// tracedChunks wraps a chunker with a span and a counter per chunk.
type tracedChunks struct {
	ctx     context.Context //nolint:containedctx // scoped to one load.
	chunker *matrix.Chunker
	tracer  trace.Tracer
	metrics *observability.LoadMetrics
}

func (t *tracedChunks) Next() (matrix.Chunk, error) {
	_, span := t.tracer.Start(t.ctx, observability.SpanChunk)
	defer span.End()

	chunk, err := t.chunker.Next()
	if errors.Is(err, io.EOF) {
		return chunk, err
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return chunk, err
	}

	span.SetAttributes(
		attribute.Int("chunk.index", chunk.Index),
		attribute.Int("chunk.rows", len(chunk.Entries)),
		attribute.Bool("chunk.final", chunk.Final),
	)
	t.metrics.RecordChunk(t.ctx)

	return chunk, nil
}

// batchLoader assembles reconciled batches and hands them to the sink.
type batchLoader struct {
	sink      sink.Loader
	index     string
	assembler *assemble.Assembler
	verifier  *verify.Verifier
	report    *Report
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.LoadMetrics
}

func (b *batchLoader) emit(ctx context.Context, batch reconcile.Batch) (err error) {
	err = ctx.Err()
	if err != nil {
		return err
	}

	started := time.Now()

	ctx, span := b.tracer.Start(ctx, observability.SpanBatch, trace.WithAttributes(
		attribute.Int("batch.seq", batch.Seq),
		attribute.Int("batch.rows", len(batch.Rows)),
	))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	docs, stats, err := b.assembler.Assemble(batch.Rows)
	if err != nil {
		return fmt.Errorf("batch %d: %w", batch.Seq, err)
	}

	ids := make([]string, len(docs))
	payload := make([]sink.Document, len(docs))

	for i, doc := range docs {
		ids[i] = doc.CellID
		payload[i] = sink.Document{Body: doc}
	}

	b.verifier.Observe(batch.Seq, ids, stats.Entries)
	b.report.Filtered += stats.Filtered

	if len(payload) == 0 {
		return nil
	}

	res, err := b.sink.BulkLoad(ctx, b.index, payload)
	if err != nil {
		return fmt.Errorf("bulk load batch %d: %w", batch.Seq, err)
	}

	for _, failure := range res.Failed {
		b.logger.WarnContext(ctx, "load: document rejected",
			"index", b.index, "cell_id", docs[failure.Position].CellID,
			"status", failure.Status, "reason", failure.Reason)
	}

	b.report.FailedDocuments += len(res.Failed)

	span.SetAttributes(
		attribute.Int("batch.documents", res.Indexed),
		attribute.Int("batch.failed", len(res.Failed)),
	)

	b.metrics.RecordBatch(ctx, observability.BatchStats{
		Index:     b.index,
		Documents: res.Indexed,
		Entries:   stats.Entries,
		Failed:    len(res.Failed),
		Duration:  time.Since(started),
	})

	b.logger.DebugContext(ctx, "load: batch loaded",
		"batch", batch.Seq, "cells", len(docs), "entries", stats.Entries, "rows", len(batch.Rows))

	return nil
}
