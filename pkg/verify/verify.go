// Package verify checks a completed load for duplicate and missing cells and
// for entry-count drift against the matrix header.
//
// Verification is post-hoc: documents have already reached the sink when it
// runs, and nothing is retracted on failure.
package verify

import (
	"errors"
	"fmt"
	"slices"
)

// Sentinel errors for verification.
var (
	// ErrDuplicateCell reports a cell id observed in more than one batch.
	ErrDuplicateCell = errors.New("cell emitted in more than one batch")
	// ErrCellCountMismatch reports a distinct cell count that differs from the expected total.
	ErrCellCountMismatch = errors.New("cell count mismatch")
	// ErrEntryCountMismatch reports an emitted entry count that differs from
	// the declared total. It is only returned under EntryPolicyStrict.
	ErrEntryCountMismatch = errors.New("entry count mismatch")
)

// EntryPolicy selects how an entry-count mismatch is treated.
type EntryPolicy int

const (
	// EntryPolicyWarn records the mismatch in the result without failing.
	EntryPolicyWarn EntryPolicy = iota
	// EntryPolicyStrict fails verification on a mismatch.
	EntryPolicyStrict
)

// String returns the policy name.
func (p EntryPolicy) String() string {
	if p == EntryPolicyStrict {
		return "strict"
	}

	return "warn"
}

// Expected holds the totals a load must reproduce.
type Expected struct {
	Cells   int
	Entries int
}

// Result summarizes what was observed.
type Result struct {
	Batches         int
	Cells           int
	Entries         int
	ExpectedCells   int
	ExpectedEntries int
	EntriesMatch    bool
	// Duplicates lists cell ids seen in more than one batch, sorted.
	Duplicates []string
}

// Verifier accumulates the cell ids and entry counts of every emitted batch.
// It is not safe for concurrent use.
type Verifier struct {
	expected Expected
	policy   EntryPolicy

	owner      map[string]int
	duplicates map[string]struct{}
	batches    int
	entries    int
}

// New returns a verifier for the given totals.
func New(expected Expected, policy EntryPolicy) *Verifier {
	return &Verifier{
		expected:   expected,
		policy:     policy,
		owner:      make(map[string]int, expected.Cells),
		duplicates: make(map[string]struct{}),
	}
}

// Observe records one emitted batch: its sequence number, the distinct cell
// ids it carried and the number of entries placed on its documents.
func (v *Verifier) Observe(seq int, cellIDs []string, entries int) {
	v.batches++
	v.entries += entries

	for _, id := range cellIDs {
		prev, seen := v.owner[id]
		if seen && prev != seq {
			v.duplicates[id] = struct{}{}

			continue
		}

		v.owner[id] = seq
	}
}

// Verify checks the accumulated state. The result is always populated, even
// when an error is returned. Duplicates are reported before count mismatches.
func (v *Verifier) Verify() (Result, error) {
	res := Result{
		Batches:         v.batches,
		Cells:           len(v.owner),
		Entries:         v.entries,
		ExpectedCells:   v.expected.Cells,
		ExpectedEntries: v.expected.Entries,
		EntriesMatch:    v.entries == v.expected.Entries,
	}

	for id := range v.duplicates {
		res.Duplicates = append(res.Duplicates, id)
	}

	slices.Sort(res.Duplicates)

	if len(res.Duplicates) > 0 {
		return res, fmt.Errorf("%w: %d cells, first %q", ErrDuplicateCell, len(res.Duplicates), res.Duplicates[0])
	}

	if res.Cells != res.ExpectedCells {
		return res, fmt.Errorf("%w: observed %d distinct cells, expected %d", ErrCellCountMismatch, res.Cells, res.ExpectedCells)
	}

	if !res.EntriesMatch && v.policy == EntryPolicyStrict {
		return res, fmt.Errorf("%w: emitted %d entries, header declares %d", ErrEntryCountMismatch, res.Entries, res.ExpectedEntries)
	}

	return res, nil
}
