package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/janelia-flyem/pyramid/pyramid"
)

func TestSplitURL(t *testing.T) {
	tests := []struct {
		url, bucket, key string
	}{
		{"gs://my-bucket/images/a.ome.tif", "gs://my-bucket", "images/a.ome.tif"},
		{"s3://data/b.tif?region=us-east-1", "s3://data?region=us-east-1", "b.tif"},
		{"file:///data/images/c.tif", "file:///data/images", "c.tif"},
		{"file:///d.tif", "file:///", "d.tif"},
	}
	for _, tc := range tests {
		bucket, key, err := SplitURL(tc.url)
		require.NoError(t, err)
		require.Equal(t, tc.bucket, bucket, tc.url)
		require.Equal(t, tc.key, key, tc.url)
	}
	_, _, err := SplitURL("no-scheme/a.tif")
	require.Error(t, err)
}

func TestObjectRangeRead(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	require.NoError(t, bucket.WriteAll(ctx, "dir/file.bin", []byte("0123456789"), nil))

	obj, err := NewObject(ctx, bucket, "dir/file.bin")
	require.NoError(t, err)
	require.Equal(t, int64(10), obj.Size())
	p, err := obj.ReadRange(ctx, 3, 4)
	require.NoError(t, err)
	require.Equal(t, "3456", string(p))

	_, err = obj.ReadRange(ctx, 8, 4)
	require.Error(t, err)

	_, err = NewObject(ctx, bucket, "dir/missing.bin")
	require.ErrorIs(t, err, pyramid.ErrNotFound)
	require.True(t, IsNotFound(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = obj.ReadRange(cancelled, 0, 1)
	require.ErrorIs(t, err, pyramid.ErrOperationAborted)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	require.NoError(t, bucket.WriteAll(ctx, "root/image.zarr/0/.zarray", []byte("{}"), nil))

	s := NewStore(bucket, "/root/image.zarr/")
	data, err := s.Sub("0").Get(ctx, ".zarray")
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))

	found, err := s.Has(ctx, "0/.zarray")
	require.NoError(t, err)
	require.True(t, found)

	_, err = s.Get(ctx, "0/0.0")
	require.ErrorIs(t, err, pyramid.ErrNotFound)
	require.NoError(t, s.Close())
}

func TestOpenFileObject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plane.tif"), []byte("II*\x00"), 0644))

	obj, bucket, err := OpenObject(context.Background(), "file://"+filepath.ToSlash(dir)+"/plane.tif")
	require.NoError(t, err)
	defer bucket.Close()
	require.Equal(t, "plane.tif", obj.Key())
	p, err := obj.ReadRange(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Equal(t, "II", string(p))

	s, err := OpenStore(context.Background(), "file://"+filepath.ToSlash(dir))
	require.NoError(t, err)
	defer s.Close()
	data, err := s.Get(context.Background(), "plane.tif")
	require.NoError(t, err)
	require.Len(t, data, 4)
}
