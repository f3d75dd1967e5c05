package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanner_ChunkRows_NoBudgetUsesDefault(t *testing.T) {
	t.Parallel()

	p := Planner{TotalEntries: 10, Genes: 100}
	assert.Equal(t, DefaultChunkRows, p.ChunkRows())
}

func TestPlanner_ChunkRows_FromBudget(t *testing.T) {
	t.Parallel()

	// (512MiB * 80% - 64MiB) / 160 bytes per entry.
	p := Planner{TotalEntries: 50_000_000, Genes: 30_000, MemoryBudget: 512 * mib}
	assert.Equal(t, 2_264_924, p.ChunkRows())
}

func TestPlanner_ChunkRows_Bounds(t *testing.T) {
	t.Parallel()

	tight := Planner{Genes: 30_000, MemoryBudget: 64 * mib}
	assert.Equal(t, 60_000, tight.ChunkRows(), "floor is twice the gene count")

	tightFewGenes := Planner{Genes: 10, MemoryBudget: 64 * mib}
	assert.Equal(t, MinPlannedRows, tightFewGenes.ChunkRows())

	huge := Planner{Genes: 30_000, MemoryBudget: 100 * 1024 * mib}
	assert.Equal(t, MaxPlannedRows, huge.ChunkRows())
}

func TestExpectedChunks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, ExpectedChunks(2_500_000, DefaultChunkRows))
	assert.Equal(t, 2, ExpectedChunks(2_000_000, DefaultChunkRows))
	assert.Equal(t, 1, ExpectedChunks(400, 0))
	assert.Zero(t, ExpectedChunks(0, DefaultChunkRows))
}
