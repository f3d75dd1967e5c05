package pipeline

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/miraload/pkg/markers"
	"github.com/Sumatoshi-tech/miraload/pkg/metadata"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

// LoadMarkers writes marker gene records into MarkerGenesIndex.
func LoadMarkers(ctx context.Context, loader sink.Loader, records []markers.Record) (sink.BulkResult, error) {
	docs := make([]sink.Document, len(records))
	for i, rec := range records {
		docs[i] = sink.Document{Body: rec}
	}

	return loadReference(ctx, loader, MarkerGenesIndex, docs)
}

// LoadGenes writes one {gene} record per gene table row into GenesIndex.
func LoadGenes(ctx context.Context, loader sink.Loader, genes *metadata.GeneTable) (sink.BulkResult, error) {
	docs := make([]sink.Document, 0, genes.Len())
	for _, gene := range genes.Genes() {
		docs = append(docs, sink.Document{Body: map[string]string{metadata.FieldGene: gene.Symbol}})
	}

	return loadReference(ctx, loader, GenesIndex, docs)
}

func loadReference(ctx context.Context, loader sink.Loader, index string, docs []sink.Document) (sink.BulkResult, error) {
	err := loader.EnsureIndex(ctx, index, KeywordMapping())
	if err != nil {
		return sink.BulkResult{}, fmt.Errorf("create index %s: %w", index, err)
	}

	res, err := loader.BulkLoad(ctx, index, docs)
	if err != nil {
		return res, fmt.Errorf("load %s: %w", index, err)
	}

	return res, nil
}
