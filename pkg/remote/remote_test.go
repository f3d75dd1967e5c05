package remote_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/remote"
)

type fakeBucket struct {
	bucket  string
	objects map[string]string
	statErr error

	mu         sync.Mutex
	downloaded []string
}

func (b *fakeBucket) StatObject(_ context.Context, bucket, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if b.statErr != nil {
		return minio.ObjectInfo{}, b.statErr
	}

	content, ok := b.objects[bucket+"/"+object]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}

	return minio.ObjectInfo{Key: object, Size: int64(len(content))}, nil
}

func (b *fakeBucket) FGetObject(_ context.Context, bucket, object, filePath string, _ minio.GetObjectOptions) error {
	content, ok := b.objects[bucket+"/"+object]
	if !ok {
		return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}

	b.mu.Lock()
	b.downloaded = append(b.downloaded, object)
	b.mu.Unlock()

	return os.WriteFile(filePath, []byte(content), 0o600)
}

func TestKey_JoinsPrefixAndDashboard(t *testing.T) {
	t.Parallel()

	f := remote.NewWithObjects(&fakeBucket{}, "scrna", "/spectrum/", nil)
	assert.Equal(t, "spectrum/D1/cells.tsv", f.Key("D1", "cells.tsv"))

	bare := remote.NewWithObjects(&fakeBucket{}, "scrna", "", nil)
	assert.Equal(t, "D1/genes.tsv", bare.Key("D1", "genes.tsv"))
}

func TestFetch_DownloadsLayoutFiles(t *testing.T) {
	t.Parallel()

	bucket := &fakeBucket{objects: map[string]string{
		"scrna/runs/D1/cells.tsv":            "cells",
		"scrna/runs/D1/genes.tsv":            "genes",
		"scrna/runs/D1/matrix.mtx.gz":        "gz",
		"scrna/runs/D1/sample_metadata.json": "[]",
	}}

	dataDir := t.TempDir()
	f := remote.NewWithObjects(bucket, "scrna", "runs", nil)

	res, err := f.Fetch(context.Background(), pipeline.KindSample, dataDir, "D1")
	require.NoError(t, err)

	dir := filepath.Join(dataDir, "D1")
	assert.Equal(t, dir, res.Dir)
	assert.Equal(t, []string{
		filepath.Join(dir, "cells.tsv"),
		filepath.Join(dir, "genes.tsv"),
		filepath.Join(dir, "matrix.mtx.gz"),
		filepath.Join(dir, "sample_metadata.json"),
	}, res.Files)
	assert.Empty(t, res.Missing)

	data, err := os.ReadFile(filepath.Join(dir, "matrix.mtx.gz"))
	require.NoError(t, err)
	assert.Equal(t, "gz", string(data))
	assert.Len(t, bucket.downloaded, 4)
}

func TestFetch_CohortUsesSharedDirAndSkipsOptionalSamples(t *testing.T) {
	t.Parallel()

	bucket := &fakeBucket{objects: map[string]string{
		"b/C1/C1_cells.tsv": "cells",
		"b/C1/genes.tsv":    "genes",
		"b/C1/matrix.mtx":   "mtx",
	}}

	dataDir := t.TempDir()

	res, err := remote.NewWithObjects(bucket, "b", "", nil).Fetch(context.Background(), pipeline.KindCohort, dataDir, "C1")
	require.NoError(t, err)

	assert.Equal(t, dataDir, res.Dir)
	assert.Equal(t, []string{"sample_metadata.json"}, res.Missing)
	assert.FileExists(t, filepath.Join(dataDir, "C1_cells.tsv"))
}

func TestFetch_MissingRequiredObjects(t *testing.T) {
	t.Parallel()

	noMatrix := &fakeBucket{objects: map[string]string{
		"b/D1/cells.tsv": "cells",
		"b/D1/genes.tsv": "genes",
	}}

	_, err := remote.NewWithObjects(noMatrix, "b", "", nil).Fetch(context.Background(), pipeline.KindSample, t.TempDir(), "D1")
	require.ErrorIs(t, err, remote.ErrMissingObject)

	noGenes := &fakeBucket{objects: map[string]string{
		"b/D1/cells.tsv":  "cells",
		"b/D1/matrix.mtx": "mtx",
	}}

	_, err = remote.NewWithObjects(noGenes, "b", "", nil).Fetch(context.Background(), pipeline.KindSample, t.TempDir(), "D1")
	require.ErrorIs(t, err, remote.ErrMissingObject)
}

func TestFetch_PropagatesStorageErrors(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("access denied")
	bucket := &fakeBucket{statErr: errDenied}

	_, err := remote.NewWithObjects(bucket, "b", "", nil).Fetch(context.Background(), pipeline.KindSample, t.TempDir(), "D1")
	require.ErrorIs(t, err, errDenied)
}

func TestNew_RequiresEndpointAndBucket(t *testing.T) {
	t.Parallel()

	_, err := remote.New(remote.Config{Bucket: "b"})
	require.ErrorIs(t, err, remote.ErrNotConfigured)

	f, err := remote.New(remote.Config{Endpoint: "localhost:9000", Bucket: "b", Prefix: "p"})
	require.NoError(t, err)
	assert.Equal(t, "p/D1/cells.tsv", f.Key("D1", "cells.tsv"))
}
