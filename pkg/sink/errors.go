package sink

import "fmt"

// DocumentError is returned by IndexDocument when the sink rejects the
// single document.
type DocumentError struct {
	Index   string
	Failure Failure
}

// Error implements error.
func (e *DocumentError) Error() string {
	return fmt.Sprintf("index %s rejected document %q: status %d: %s", e.Index, e.Failure.ID, e.Failure.Status, e.Failure.Reason)
}
