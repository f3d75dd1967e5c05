package sink

import (
	"context"
	"sync"
	"time"
)

// Discard is a Sink that encodes and counts documents without storing them.
// It backs dry runs, where encoding errors must still surface.
type Discard struct {
	mu        sync.Mutex
	documents map[string]int
	bytes     int64
}

// NewDiscard returns an empty Discard sink.
func NewDiscard() *Discard {
	return &Discard{documents: make(map[string]int)}
}

// EnsureIndex implements Loader.
func (d *Discard) EnsureIndex(context.Context, string, Mapping) error {
	return nil
}

// BulkLoad implements Loader.
func (d *Discard) BulkLoad(_ context.Context, index string, docs []Document) (BulkResult, error) {
	var res BulkResult

	var size int64

	for pos, doc := range docs {
		data, err := Encode(doc)
		if err != nil {
			res.Failed = append(res.Failed, Failure{Position: pos, ID: doc.ID, Reason: err.Error()})

			continue
		}

		size += int64(len(data))
		res.Indexed++
	}

	d.mu.Lock()
	d.documents[index] += res.Indexed
	d.bytes += size
	d.mu.Unlock()

	return res, nil
}

// IndexDocument implements Loader.
func (d *Discard) IndexDocument(ctx context.Context, index string, doc Document) error {
	res, err := d.BulkLoad(ctx, index, []Document{doc})
	if err != nil {
		return err
	}

	if len(res.Failed) > 0 {
		return &DocumentError{Index: index, Failure: res.Failed[0]}
	}

	return nil
}

// DeleteIndex implements Admin.
func (d *Discard) DeleteIndex(context.Context, string) error {
	return nil
}

// DeleteByDashboard implements Admin.
func (d *Discard) DeleteByDashboard(context.Context, string, string) error {
	return nil
}

// DashboardLoaded implements Admin. Nothing is ever loaded.
func (d *Discard) DashboardLoaded(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

// Documents returns the number of documents accepted for index.
func (d *Discard) Documents(index string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.documents[index]
}

// Bytes returns the total encoded size of accepted documents.
func (d *Discard) Bytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.bytes
}
