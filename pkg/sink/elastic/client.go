// Package elastic implements the sink contracts against a search index REST
// API: index management, NDJSON _bulk loading with parallel workers, and
// delete-by-query cleanup.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
	"github.com/Sumatoshi-tech/miraload/pkg/sink"
)

// Defaults applied when Config fields are zero.
const (
	DefaultBulkSize = 500
	DefaultWorkers  = 4
	DefaultTimeout  = 30 * time.Second
	DefaultRetryMax = 3

	maxErrorBody = 4 << 10
)

// ErrInvalidURL reports an unusable base URL.
var ErrInvalidURL = errors.New("invalid search index url")

// Config configures a Client.
type Config struct {
	URL      string
	Username string
	Password string
	// BulkSize is the number of documents per _bulk request.
	BulkSize int
	// Workers is the number of _bulk requests in flight.
	Workers int
	// RequestsPerSecond throttles _bulk requests. Zero means unlimited.
	RequestsPerSecond float64
	Timeout           time.Duration
	RetryMax          int
	Logger            *slog.Logger
}

// Client talks to one search index cluster. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *retryablehttp.Client
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
}

var _ sink.Sink = (*Client)(nil)

// New validates cfg and returns a client. Transport errors and 5xx answers
// are retried up to RetryMax times with backoff.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}

	if cfg.BulkSize <= 0 {
		cfg.BulkSize = DefaultBulkSize
	}

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RetryMax < 0 {
		cfg.RetryMax = DefaultRetryMax
	}

	logger := observability.OrDiscard(cfg.Logger)

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = cfg.RetryMax
	httpClient.RetryWaitMin = 100 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.HTTPClient.Timeout = cfg.Timeout
	httpClient.Logger = logger

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}

	if base.User != nil {
		cfg.Username = base.User.Username()
		cfg.Password, _ = base.User.Password()
		base.User = nil
	}

	return &Client{
		base:    base,
		http:    httpClient,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// EnsureIndex creates index with mapping unless it already exists.
func (c *Client) EnsureIndex(ctx context.Context, index string, mapping sink.Mapping) error {
	status, _, err := c.do(ctx, http.MethodHead, index, nil, nil)
	if err != nil {
		return err
	}

	if status == http.StatusOK {
		return nil
	}

	if status != http.StatusNotFound {
		return fmt.Errorf("%w: HEAD %s: status %d", sink.ErrUnavailable, index, status)
	}

	status, body, err := c.doJSON(ctx, http.MethodPut, index, nil, mapping)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusOK:
		c.logger.InfoContext(ctx, "elastic: index created", "index", index)

		return nil
	case status == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception")):
		return nil
	default:
		return fmt.Errorf("%w: create index %s: status %d: %s", sink.ErrUnavailable, index, status, body)
	}
}

// IndexDocument writes one document and refreshes the index so it is
// visible to the next search.
func (c *Client) IndexDocument(ctx context.Context, index string, doc sink.Document) error {
	method, path := http.MethodPost, index+"/_doc"
	if doc.ID != "" {
		method, path = http.MethodPut, index+"/_doc/"+url.PathEscape(doc.ID)
	}

	status, body, err := c.doJSON(ctx, method, path, url.Values{"refresh": {"true"}}, doc.Body)
	if err != nil {
		return err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return &sink.DocumentError{
			Index:   index,
			Failure: sink.Failure{ID: doc.ID, Status: status, Reason: string(body)},
		}
	}

	return nil
}

// DeleteIndex implements sink.Admin. 400 and 404 answers are ignored.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	status, body, err := c.do(ctx, http.MethodDelete, index, nil, nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK, http.StatusBadRequest, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("%w: delete index %s: status %d: %s", sink.ErrUnavailable, index, status, body)
	}
}

// DeleteByDashboard implements sink.Admin.
func (c *Client) DeleteByDashboard(ctx context.Context, index, dashboardID string) error {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"dashboard_id": dashboardID},
		},
	}

	status, body, err := c.doJSON(ctx, http.MethodPost, index+"/_delete_by_query",
		url.Values{"refresh": {"true"}}, query)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("%w: delete %s from %s: status %d: %s", sink.ErrUnavailable, dashboardID, index, status, body)
	}
}

// DashboardLoaded implements sink.Admin with a _count query.
func (c *Client) DashboardLoaded(ctx context.Context, index, dashboardID string, since time.Time) (bool, error) {
	filters := []any{
		map[string]any{"term": map[string]any{"dashboard_id": dashboardID}},
	}

	if !since.IsZero() {
		filters = append(filters, map[string]any{
			"range": map[string]any{"date": map[string]any{"gte": since.UTC().Format(time.RFC3339)}},
		})
	}

	query := map[string]any{"query": map[string]any{"bool": map[string]any{"filter": filters}}}

	status, body, err := c.doJSON(ctx, http.MethodPost, index+"/_count", nil, query)
	if err != nil {
		return false, err
	}

	if status == http.StatusNotFound {
		return false, nil
	}

	if status != http.StatusOK {
		return false, fmt.Errorf("%w: count %s: status %d: %s", sink.ErrUnavailable, index, status, body)
	}

	var resp struct {
		Count int `json:"count"`
	}

	err = json.Unmarshal(body, &resp)
	if err != nil {
		return false, fmt.Errorf("decode count response: %w", err)
	}

	return resp.Count > 0, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
	}

	return c.send(ctx, method, path, query, data, "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	return c.send(ctx, method, path, query, body, "")
}

// send issues one request and returns the status and body. Error bodies are
// truncated to maxErrorBody bytes.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (int, []byte, error) {
	target := c.base.JoinPath(path)
	target.RawQuery = query.Encode()

	var payload any
	if body != nil {
		payload = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target.String(), payload)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", sink.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.StatusCode >= http.StatusMultipleChoices {
		reader = io.LimitReader(resp.Body, maxErrorBody)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	return resp.StatusCode, data, nil
}
