// Package remote downloads analysis input files from S3-compatible object
// storage into the local data directory.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/miraload/pkg/observability"
	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
)

const maxParallelDownloads = 4

// Errors.
var (
	ErrNotConfigured = errors.New("remote storage is not configured")
	ErrMissingObject = errors.New("required object missing from remote storage")
)

// Objects is the part of *minio.Client the fetcher uses.
type Objects interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// Config locates the bucket.
type Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Logger          *slog.Logger
}

// Fetcher copies a dashboard's files from <bucket>/<prefix>/<dashboard id>/.
type Fetcher struct {
	objects Objects
	bucket  string
	prefix  string
	logger  *slog.Logger
}

// New builds a fetcher backed by a minio client.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: endpoint and bucket are required", ErrNotConfigured)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	return NewWithObjects(client, cfg.Bucket, cfg.Prefix, cfg.Logger), nil
}

// NewWithObjects builds a fetcher over an existing object client.
func NewWithObjects(objects Objects, bucket, prefix string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		objects: objects,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		logger:  observability.OrDiscard(logger),
	}
}

// Key returns the object key of one dashboard file.
func (f *Fetcher) Key(dashboardID, name string) string {
	return path.Join(f.prefix, dashboardID, name)
}

// Result lists the local paths written by Fetch.
type Result struct {
	Dir   string
	Files []string
	// Missing names optional files absent from the bucket.
	Missing []string
}

// Fetch downloads the files a dashboard of the given kind needs into the
// kind's local directory. The cell and gene tables and one matrix variant
// are required; the sample attribute file is optional.
func (f *Fetcher) Fetch(ctx context.Context, kind pipeline.Kind, dataDir, dashboardID string) (*Result, error) {
	files := kind.RemoteFiles(dashboardID)
	cells, genes, samples := files[0], files[1], files[3]

	matrix, err := f.resolveMatrix(ctx, dashboardID)
	if err != nil {
		return nil, err
	}

	res := &Result{Dir: kind.LocalDir(dataDir, dashboardID)}

	names := []string{cells, genes, matrix}

	present, err := f.exists(ctx, f.Key(dashboardID, samples))
	if err != nil {
		return nil, err
	}

	if present {
		names = append(names, samples)
	} else {
		res.Missing = append(res.Missing, samples)
	}

	err = os.MkdirAll(res.Dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", res.Dir, err)
	}

	res.Files = make([]string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)

	for i, name := range names {
		local := filepath.Join(res.Dir, name)
		res.Files[i] = local

		g.Go(func() error {
			return f.download(gctx, f.Key(dashboardID, name), local)
		})
	}

	err = g.Wait()
	if err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "remote: fetched dashboard",
		"dashboard_id", dashboardID, "dir", res.Dir, "files", len(res.Files))

	return res, nil
}

func (f *Fetcher) resolveMatrix(ctx context.Context, dashboardID string) (string, error) {
	variants := pipeline.MatrixVariants()

	for _, name := range variants {
		ok, err := f.exists(ctx, f.Key(dashboardID, name))
		if err != nil {
			return "", err
		}

		if ok {
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: %s/%s", ErrMissingObject, f.bucket, f.Key(dashboardID, variants[0]))
}

func (f *Fetcher) download(ctx context.Context, key, local string) error {
	err := f.objects.FGetObject(ctx, f.bucket, key, local, minio.GetObjectOptions{})
	if err == nil {
		f.logger.DebugContext(ctx, "remote: downloaded", "key", key, "path", local)

		return nil
	}

	if notFound(err) {
		return fmt.Errorf("%w: %s/%s", ErrMissingObject, f.bucket, key)
	}

	return fmt.Errorf("download %s/%s: %w", f.bucket, key, err)
}

func (f *Fetcher) exists(ctx context.Context, key string) (bool, error) {
	_, err := f.objects.StatObject(ctx, f.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	if notFound(err) {
		return false, nil
	}

	return false, fmt.Errorf("stat %s/%s: %w", f.bucket, key, err)
}

func notFound(err error) bool {
	code := minio.ToErrorResponse(err).Code

	return code == "NoSuchKey" || code == "NotFound"
}
