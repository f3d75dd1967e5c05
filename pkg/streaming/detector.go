package streaming

// Size constants.
const (
	kib = 1024
	mib = 1024 * kib
)

// Detection thresholds.
const (
	// DefaultEntryThreshold is the matrix entry count above which chunked
	// reading is used even without a memory budget.
	DefaultEntryThreshold = 20_000_000

	// BaseOverhead is the fixed memory held for the Go runtime and the
	// metadata tables.
	BaseOverhead = 64 * mib

	// BytesPerEntry estimates the memory one matrix entry costs while it is
	// held as a row and then as a gene value on a document.
	BytesPerEntry = 160

	// BudgetSafetyFactor is the percentage of the budget that may be used.
	BudgetSafetyFactor = 80

	percentDivisor = 100
)

// Detector determines whether chunked reading should be used.
type Detector struct {
	Entries      int
	MemoryBudget int64
}

// ShouldStream returns true if chunked reading is recommended.
func (d *Detector) ShouldStream() bool {
	if d.Entries >= DefaultEntryThreshold {
		return true
	}

	if d.MemoryBudget > 0 {
		return d.estimatePeakMemory() > usableBudget(d.MemoryBudget)
	}

	return false
}

// estimatePeakMemory estimates the peak memory of a whole-file load.
func (d *Detector) estimatePeakMemory() int64 {
	return BaseOverhead + int64(d.Entries)*BytesPerEntry
}

func usableBudget(budget int64) int64 {
	return budget * BudgetSafetyFactor / percentDivisor
}
