package streaming

// Planner constraints.
const (
	// MinPlannedRows is the smallest chunk the planner produces.
	MinPlannedRows = 10_000

	// MaxPlannedRows bounds a chunk regardless of budget.
	MaxPlannedRows = 5_000_000

	// DefaultChunkRows is used for chunked reading without a budget.
	DefaultChunkRows = 1_000_000
)

// Planner sizes matrix chunks.
type Planner struct {
	TotalEntries int
	// Genes is the declared gene count. A cell never has more rows than
	// this, so chunks of at least twice as many rows always hold two cells.
	Genes        int
	MemoryBudget int64
}

// ExpectedChunks returns how many chunks of chunkRows rows a matrix of
// entries rows is read in. Whole-file reads (chunkRows 0) are one chunk.
func ExpectedChunks(entries, chunkRows int) int {
	if entries <= 0 {
		return 0
	}

	if chunkRows <= 0 {
		return 1
	}

	return (entries + chunkRows - 1) / chunkRows
}

// ChunkRows returns the rows per chunk for the budget, clamped to the
// planner bounds and to twice the gene count.
func (p *Planner) ChunkRows() int {
	floor := max(MinPlannedRows, 2*p.Genes)

	if p.MemoryBudget <= 0 {
		return max(DefaultChunkRows, floor)
	}

	available := usableBudget(p.MemoryBudget) - BaseOverhead
	if available <= 0 {
		return floor
	}

	rows := int(available / BytesPerEntry)

	return max(min(rows, MaxPlannedRows), floor)
}
