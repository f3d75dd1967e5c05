// Package sinktest provides an in-memory sink for tests.
package sinktest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected sink failure")

// Memory is a sink.Sink holding encoded documents per index.
type Memory struct {
	mu       sync.Mutex
	mappings map[string]sink.Mapping
	docs     map[string][]json.RawMessage
	calls    []string

	// FailBulk makes BulkLoad into the named index return ErrInjected.
	FailBulk map[string]bool
	// Reject marks documents as rejected per document.
	Reject func(index string, doc sink.Document) bool
}

var _ sink.Sink = (*Memory)(nil)

// NewMemory returns an empty sink.
func NewMemory() *Memory {
	return &Memory{
		mappings: make(map[string]sink.Mapping),
		docs:     make(map[string][]json.RawMessage),
		FailBulk: make(map[string]bool),
	}
}

func (m *Memory) record(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

// EnsureIndex implements sink.Loader.
func (m *Memory) EnsureIndex(_ context.Context, index string, mapping sink.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("ensure %s", index)

	if _, ok := m.mappings[index]; !ok {
		m.mappings[index] = mapping
	}

	return nil
}

// BulkLoad implements sink.Loader.
func (m *Memory) BulkLoad(_ context.Context, index string, docs []sink.Document) (sink.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("bulk %s %d", index, len(docs))

	if m.FailBulk[index] {
		return sink.BulkResult{}, fmt.Errorf("%w: bulk into %s", ErrInjected, index)
	}

	var res sink.BulkResult

	for pos, doc := range docs {
		if m.Reject != nil && m.Reject(index, doc) {
			res.Failed = append(res.Failed, sink.Failure{Position: pos, ID: doc.ID, Status: 400, Reason: "rejected"})

			continue
		}

		data, err := sink.Encode(doc)
		if err != nil {
			res.Failed = append(res.Failed, sink.Failure{Position: pos, ID: doc.ID, Reason: err.Error()})

			continue
		}

		m.docs[index] = append(m.docs[index], data)
		res.Indexed++
	}

	return res, nil
}

// IndexDocument implements sink.Loader.
func (m *Memory) IndexDocument(ctx context.Context, index string, doc sink.Document) error {
	res, err := m.BulkLoad(ctx, index, []sink.Document{doc})
	if err != nil {
		return err
	}

	if len(res.Failed) > 0 {
		return &sink.DocumentError{Index: index, Failure: res.Failed[0]}
	}

	return nil
}

// DeleteIndex implements sink.Admin.
func (m *Memory) DeleteIndex(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("delete %s", index)
	delete(m.mappings, index)
	delete(m.docs, index)

	return nil
}

// DeleteByDashboard implements sink.Admin.
func (m *Memory) DeleteByDashboard(_ context.Context, index, dashboardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("delete %s from %s", dashboardID, index)

	m.docs[index] = slices.DeleteFunc(m.docs[index], func(raw json.RawMessage) bool {
		return dashboardOf(raw).DashboardID == dashboardID
	})

	return nil
}

// DashboardLoaded implements sink.Admin.
func (m *Memory) DashboardLoaded(_ context.Context, index, dashboardID string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, raw := range m.docs[index] {
		rec := dashboardOf(raw)
		if rec.DashboardID != dashboardID {
			continue
		}

		date, err := time.Parse(time.RFC3339, rec.Date)
		if since.IsZero() || (err == nil && !date.Before(since)) {
			return true, nil
		}
	}

	return false, nil
}

type dashboardRecord struct {
	DashboardID string `json:"dashboard_id"`
	Date        string `json:"date"`
}

func dashboardOf(raw json.RawMessage) dashboardRecord {
	var rec dashboardRecord

	_ = json.Unmarshal(raw, &rec)

	return rec
}

// Documents returns the encoded documents of index in load order.
func (m *Memory) Documents(index string) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.docs[index])
}

// Mapping returns the mapping index was created with.
func (m *Memory) Mapping(index string) (sink.Mapping, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapping, ok := m.mappings[index]

	return mapping, ok
}

// Calls returns a log of the operations performed, in order.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.calls)
}
