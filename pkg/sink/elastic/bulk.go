package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// BulkLoad splits docs into BulkSize requests and sends up to Workers of
// them concurrently, throttled by RequestsPerSecond. Documents the index
// rejects, or that cannot be encoded, are returned as failures. Any request
// that fails as a whole aborts the load.
func (c *Client) BulkLoad(ctx context.Context, index string, docs []sink.Document) (sink.BulkResult, error) {
	var (
		mu  sync.Mutex
		res sink.BulkResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for start := 0; start < len(docs); start += c.cfg.BulkSize {
		part := docs[start:min(start+c.cfg.BulkSize, len(docs))]

		g.Go(func() error {
			err := c.limiter.Wait(gctx)
			if err != nil {
				return fmt.Errorf("bulk throttle: %w", err)
			}

			partRes, err := c.bulk(gctx, index, start, part)
			if err != nil {
				return err
			}

			mu.Lock()
			res.Indexed += partRes.Indexed
			res.Failed = append(res.Failed, partRes.Failed...)
			mu.Unlock()

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return res, err
	}

	slices.SortFunc(res.Failed, func(a, b sink.Failure) int { return a.Position - b.Position })

	c.logger.DebugContext(ctx, "elastic: bulk load done",
		"index", index, "indexed", res.Indexed, "failed", len(res.Failed))

	return res, nil
}

// bulk sends one _bulk request. offset is the position of docs[0] in the
// caller's slice.
func (c *Client) bulk(ctx context.Context, index string, offset int, docs []sink.Document) (sink.BulkResult, error) {
	var (
		res  sink.BulkResult
		buf  bytes.Buffer
		sent []int
	)

	enc := json.NewEncoder(&buf)

	for i, doc := range docs {
		body, err := sink.Encode(doc)
		if err != nil {
			res.Failed = append(res.Failed, sink.Failure{Position: offset + i, ID: doc.ID, Reason: err.Error()})

			continue
		}

		err = enc.Encode(bulkAction{Index: bulkMeta{Index: index, ID: doc.ID}})
		if err != nil {
			return res, fmt.Errorf("encode bulk action: %w", err)
		}

		buf.Write(body)
		buf.WriteByte('\n')

		sent = append(sent, i)
	}

	if len(sent) == 0 {
		return res, nil
	}

	status, body, err := c.send(ctx, http.MethodPost, "_bulk", nil, buf.Bytes(), "application/x-ndjson")
	if err != nil {
		return res, err
	}

	if status != http.StatusOK {
		return res, fmt.Errorf("%w: bulk into %s: status %d: %s", sink.ErrUnavailable, index, status, body)
	}

	var resp bulkResponse

	err = json.Unmarshal(body, &resp)
	if err != nil {
		return res, fmt.Errorf("decode bulk response: %w", err)
	}

	if len(resp.Items) != len(sent) {
		return res, fmt.Errorf("%w: bulk into %s: %d items for %d documents", sink.ErrUnavailable, index, len(resp.Items), len(sent))
	}

	for i, item := range resp.Items {
		pos := sent[i]

		if item.Index.Error == nil && item.Index.Status < http.StatusMultipleChoices {
			res.Indexed++

			continue
		}

		failure := sink.Failure{Position: offset + pos, ID: docs[pos].ID, Status: item.Index.Status}
		if item.Index.Error != nil {
			failure.Reason = item.Index.Error.Type + ": " + item.Index.Error.Reason
		}

		res.Failed = append(res.Failed, failure)
	}

	return res, nil
}
