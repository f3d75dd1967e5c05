// Package sink defines the output contracts of a load: index creation, bulk
// document loading and the administrative calls the batch runner needs.
//
// Per-document failures are reported in BulkResult and never retried. An
// error return from BulkLoad means the whole request failed.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnavailable reports a sink that could not be reached or answered with
// an unexpected status.
var ErrUnavailable = errors.New("sink unavailable")

// Mapping is an index definition: settings plus mappings, in the JSON shape
// the search index accepts on creation.
type Mapping map[string]any

// Document is one record to load. An empty ID lets the sink assign one.
type Document struct {
	ID   string
	Body any
}

// Failure describes one rejected document.
type Failure struct {
	// Position is the document's offset in the slice passed to BulkLoad.
	Position int
	ID       string
	Status   int
	Reason   string
}

// BulkResult reports the outcome of a bulk load.
type BulkResult struct {
	Indexed int
	Failed  []Failure
}

// Loader creates indices and writes documents.
type Loader interface {
	EnsureIndex(ctx context.Context, index string, mapping Mapping) error
	BulkLoad(ctx context.Context, index string, docs []Document) (BulkResult, error)
	IndexDocument(ctx context.Context, index string, doc Document) error
}

// Admin removes loaded data and answers whether a dashboard is loaded.
type Admin interface {
	// DeleteIndex removes an index. A missing index is not an error.
	DeleteIndex(ctx context.Context, index string) error
	// DeleteByDashboard removes every record of index whose dashboard_id matches.
	DeleteByDashboard(ctx context.Context, index, dashboardID string) error
	// DashboardLoaded reports whether index holds a record for dashboardID
	// whose date is not before since. A zero since matches any date.
	DashboardLoaded(ctx context.Context, index, dashboardID string, since time.Time) (bool, error)
}

// Sink is a complete output backend.
type Sink interface {
	Loader
	Admin
}

// Encode marshals a document body.
func Encode(doc Document) ([]byte, error) {
	return json.Marshal(doc.Body)
}
