package pipeline

import "time"

// Report describes one dashboard load. It is returned partially filled when
// a load fails.
type Report struct {
	RunID       string `json:"run_id"`
	DashboardID string `json:"dashboard_id"`
	Kind        Kind   `json:"kind"`
	// Mode is "whole" or "chunked".
	Mode      string `json:"mode"`
	ChunkSize int    `json:"chunk_size"`

	Chunks  int `json:"chunks"`
	Batches int `json:"batches"`
	Cells   int `json:"cells"`
	Entries int `json:"entries"`

	DeclaredGenes   int `json:"declared_genes"`
	DeclaredCells   int `json:"declared_cells"`
	DeclaredEntries int `json:"declared_entries"`

	Filtered        int      `json:"filtered"`
	FailedDocuments int      `json:"failed_documents"`
	EntriesMatch    bool     `json:"entries_match"`
	Duplicates      []string `json:"duplicates,omitempty"`

	Duration time.Duration `json:"duration"`
}
