// Package checkpoint records the progress of batch loads so an interrupted
// run can resume without reloading finished dashboards.
package checkpoint

import "slices"

// Journal is the persisted progress of one manifest run.
type Journal struct {
	Version   int               `json:"version"`
	Manifest  string            `json:"manifest"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Completed []string          `json:"completed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Done reports whether id finished successfully in this run.
func (j *Journal) Done(id string) bool {
	return slices.Contains(j.Completed, id)
}

// MarkDone records id as finished and clears an earlier failure.
func (j *Journal) MarkDone(id string) {
	delete(j.Failed, id)

	if !j.Done(id) {
		j.Completed = append(j.Completed, id)
	}
}

// MarkFailed records the failure of id.
func (j *Journal) MarkFailed(id string, err error) {
	if j.Failed == nil {
		j.Failed = make(map[string]string)
	}

	j.Failed[id] = err.Error()
}
