// Package filesink writes loads to a directory tree of NDJSON part files, one
// directory per index:
//
//	<dir>/<index>/_mapping.json
//	<dir>/<index>/part-00000.ndjson[.lz4|.zst]
//
// Each BulkLoad or IndexDocument call writes one part atomically. Document
// IDs are not stored; dashboards are replaced by deleting them first.
package filesink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
	"github.com/Sumatoshi-tech/miraload/pkg/persist"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

const (
	mappingBasename = "_mapping"
	partPrefix      = "part-"
	partSuffix      = ".ndjson"
	dirPerm         = 0o750
)

// ErrInvalidIndex reports an index name that is not a single path element.
var ErrInvalidIndex = errors.New("invalid index name")

// Config configures a Sink.
type Config struct {
	Dir         string
	Compression persist.Compression
	Logger      *slog.Logger
}

// Sink is a sink.Sink backed by the local filesystem. It is safe for
// concurrent use.
type Sink struct {
	dir      string
	comp     persist.Compression
	mappings *persist.Persister[sink.Mapping]
	logger   *slog.Logger

	mu sync.Mutex
}

var _ sink.Sink = (*Sink)(nil)

// New creates the output directory and returns a sink writing into it.
func New(cfg Config) (*Sink, error) {
	if cfg.Compression == nil {
		cfg.Compression, _ = persist.ParseCompression(persist.CompressionNone)
	}

	err := os.MkdirAll(cfg.Dir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &Sink{
		dir:      cfg.Dir,
		comp:     cfg.Compression,
		mappings: persist.NewPersister[sink.Mapping](mappingBasename, persist.NewJSONCodec()),
		logger:   observability.OrDiscard(cfg.Logger),
	}, nil
}

func (s *Sink) indexDir(index string) (string, error) {
	if index == "" || index == "." || index == ".." || strings.ContainsAny(index, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIndex, index)
	}

	return filepath.Join(s.dir, index), nil
}

// EnsureIndex implements sink.Loader. An existing mapping is kept.
func (s *Sink) EnsureIndex(ctx context.Context, index string, mapping sink.Mapping) error {
	dir, err := s.indexDir(index)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mappings.Exists(dir) {
		return nil
	}

	err = s.mappings.Save(dir, &mapping)
	if err != nil {
		return fmt.Errorf("write mapping for %s: %w", index, err)
	}

	s.logger.InfoContext(ctx, "filesink: index created", "index", index, "dir", dir)

	return nil
}

// BulkLoad implements sink.Loader. Documents that cannot be encoded are
// reported as failures; the rest are written as one part.
func (s *Sink) BulkLoad(_ context.Context, index string, docs []sink.Document) (sink.BulkResult, error) {
	var (
		res   sink.BulkResult
		lines bytes.Buffer
	)

	for pos, doc := range docs {
		body, err := sink.Encode(doc)
		if err != nil {
			res.Failed = append(res.Failed, sink.Failure{Position: pos, ID: doc.ID, Reason: err.Error()})

			continue
		}

		lines.Write(body)
		lines.WriteByte('\n')

		res.Indexed++
	}

	if res.Indexed == 0 {
		return res, nil
	}

	err := s.writePart(index, lines.Bytes())
	if err != nil {
		return sink.BulkResult{}, err
	}

	return res, nil
}

// IndexDocument implements sink.Loader.
func (s *Sink) IndexDocument(ctx context.Context, index string, doc sink.Document) error {
	res, err := s.BulkLoad(ctx, index, []sink.Document{doc})
	if err != nil {
		return err
	}

	if len(res.Failed) > 0 {
		return &sink.DocumentError{Index: index, Failure: res.Failed[0]}
	}

	return nil
}

// DeleteIndex implements sink.Admin.
func (s *Sink) DeleteIndex(_ context.Context, index string) error {
	dir, err := s.indexDir(index)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", index, err)
	}

	return nil
}

// DeleteByDashboard implements sink.Admin by rewriting every part without
// the dashboard's records. Parts left empty are removed.
func (s *Sink) DeleteByDashboard(ctx context.Context, index, dashboardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts, err := s.parts(index)
	if err != nil {
		return err
	}

	deleted := 0

	for _, part := range parts {
		var kept bytes.Buffer

		dropped := 0

		err = s.scanPart(part, func(line []byte) (bool, error) {
			rec, decErr := decodeRecord(line)
			if decErr != nil {
				return false, fmt.Errorf("%s: %w", part, decErr)
			}

			if rec.DashboardID == dashboardID {
				dropped++
			} else {
				kept.Write(line)
				kept.WriteByte('\n')
			}

			return true, nil
		})
		if err != nil {
			return err
		}

		if dropped == 0 {
			continue
		}

		deleted += dropped

		if kept.Len() == 0 {
			err = os.Remove(part)
			if err != nil {
				return fmt.Errorf("remove %s: %w", part, err)
			}

			continue
		}

		err = s.compressTo(part, kept.Bytes())
		if err != nil {
			return err
		}
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "filesink: dashboard deleted", "index", index, "dashboard_id", dashboardID, "records", deleted)
	}

	return nil
}

// DashboardLoaded implements sink.Admin. Record dates are read as RFC 3339.
func (s *Sink) DashboardLoaded(_ context.Context, index, dashboardID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts, err := s.parts(index)
	if err != nil {
		return false, err
	}

	found := false

	for _, part := range parts {
		err = s.scanPart(part, func(line []byte) (bool, error) {
			rec, decErr := decodeRecord(line)
			if decErr != nil {
				return false, fmt.Errorf("%s: %w", part, decErr)
			}

			if rec.DashboardID != dashboardID {
				return true, nil
			}

			if !since.IsZero() {
				date, parseErr := time.Parse(time.RFC3339, rec.Date)
				if parseErr != nil || date.Before(since) {
					return true, nil
				}
			}

			found = true

			return false, nil
		})
		if err != nil || found {
			return found, err
		}
	}

	return false, nil
}

// ReadIndex returns every record stored for index in part order.
func (s *Sink) ReadIndex(index string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts, err := s.parts(index)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage

	for _, part := range parts {
		err = s.scanPart(part, func(line []byte) (bool, error) {
			records = append(records, json.RawMessage(slices.Clone(line)))

			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

// Parts returns the part files of index in write order.
func (s *Sink) Parts(index string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.parts(index)
}

type record struct {
	DashboardID string `json:"dashboard_id"`
	Date        string `json:"date"`
}

func decodeRecord(line []byte) (record, error) {
	var rec record

	err := json.Unmarshal(line, &rec)
	if err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}

	return rec, nil
}

func (s *Sink) writePart(index string, data []byte) error {
	dir, err := s.indexDir(index)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	parts, err := s.parts(index)
	if err != nil {
		return err
	}

	next := 0
	if len(parts) > 0 {
		next = partNumber(parts[len(parts)-1]) + 1
	}

	path := filepath.Join(dir, fmt.Sprintf("%s%05d%s%s", partPrefix, next, partSuffix, s.comp.Extension()))

	return s.compressTo(path, data)
}

func (s *Sink) compressTo(path string, data []byte) error {
	return persist.WriteCompressed(path, s.comp, func(w io.Writer) error {
		_, err := w.Write(data)
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}

		return nil
	})
}

// parts lists the part files of index written with the sink's compression,
// sorted by part number. A missing index has no parts.
func (s *Sink) parts(index string) ([]string, error) {
	dir, err := s.indexDir(index)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("list index %s: %w", index, err)
	}

	var parts []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, partPrefix) ||
			!strings.HasSuffix(name, partSuffix+s.comp.Extension()) || partNumber(name) < 0 {
			continue
		}

		parts = append(parts, filepath.Join(dir, name))
	}

	slices.SortFunc(parts, func(a, b string) int { return partNumber(a) - partNumber(b) })

	return parts, nil
}

// partNumber parses the sequence number out of a part path, or -1.
func partNumber(path string) int {
	name := strings.TrimPrefix(filepath.Base(path), partPrefix)

	digits, _, ok := strings.Cut(name, partSuffix)
	if !ok {
		return -1
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}

	return n
}

// scanPart calls fn for every non-empty line of part until fn returns false.
// The line is only valid during the call.
func (s *Sink) scanPart(part string, fn func(line []byte) (bool, error)) error {
	file, err := os.Open(part)
	if err != nil {
		return fmt.Errorf("open %s: %w", part, err)
	}
	defer file.Close()

	cr, err := s.comp.NewReader(file)
	if err != nil {
		return err
	}
	defer cr.Close()

	reader := bufio.NewReader(cr)

	for {
		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)

		if len(line) > 0 {
			more, fnErr := fn(line)
			if fnErr != nil || !more {
				return fnErr
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}

		if readErr != nil {
			return fmt.Errorf("read %s: %w", part, readErr)
		}
	}
}
