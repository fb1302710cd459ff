/*
	Package blobstore reads image files and array chunks from blob storage through
	gocloud.dev/blob.  Buckets are opened by URL: "file:///data/images", "gs://bucket",
	"s3://bucket?region=us-east-1" or "mem://".
*/
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/janelia-flyem/pyramid/pyramid"
)

// OpenBucket opens the bucket at a URL.
func OpenBucket(ctx context.Context, urlstr string) (*blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, fmt.Errorf("can't open bucket @ %q: %v", urlstr, err)
	}
	pyramid.Debugf("Opened bucket @ %q\n", urlstr)
	return bucket, nil
}

// SplitURL separates an object URL into the URL of its bucket and its key.  For
// file URLs the bucket is the object's directory.
func SplitURL(urlstr string) (bucketURL, key string, err error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return "", "", fmt.Errorf("bad object URL %q: %v", urlstr, err)
	}
	if u.Scheme == "" {
		return "", "", fmt.Errorf("object URL %q has no scheme", urlstr)
	}
	if u.Scheme == "file" {
		dir, file := path.Split(u.Path)
		u.Path = strings.TrimSuffix(dir, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		return u.String(), file, nil
	}
	key = strings.TrimPrefix(u.Path, "/")
	u.Path = ""
	return u.String(), key, nil
}

// IsNotFound returns true if err is a blob not-found error or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound || errors.Is(err, pyramid.ErrNotFound)
}

func notFound(key string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("object %q: %w", key, pyramid.ErrNotFound)
	}
	return err
}

// Object is a blob that can be read by byte range.
type Object struct {
	bucket *blob.Bucket
	key    string
	size   int64
}

// NewObject returns a readable object.  The object must exist.
func NewObject(ctx context.Context, bucket *blob.Bucket, key string) (*Object, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, notFound(key, err)
	}
	return &Object{bucket: bucket, key: key, size: attrs.Size}, nil
}

// Key returns the object key within its bucket.
func (o *Object) Key() string { return o.key }

// Size returns the object size in bytes.
func (o *Object) Size() int64 { return o.size }

// ReadRange reads length bytes at offset.
func (o *Object) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > o.size {
		return nil, fmt.Errorf("range [%d, %d) outside object %q of %d bytes: %w",
			offset, offset+length, o.key, o.size, io.ErrUnexpectedEOF)
	}
	r, err := o.bucket.NewRangeReader(ctx, o.key, offset, length, nil)
	if err != nil {
		return nil, pyramid.CheckAborted(ctx, notFound(o.key, err))
	}
	defer r.Close()
	p := make([]byte, length)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, pyramid.CheckAborted(ctx, err)
	}
	return p, nil
}

// Store reads keys below a prefix of a bucket.
type Store struct {
	bucket *blob.Bucket
	prefix string
	owned  bool
}

// NewStore returns a store over keys below prefix.  The bucket is not closed by the
// store.
func NewStore(bucket *blob.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// OpenStore opens a store at a URL, where any path is the key prefix, e.g.,
// "gs://bucket/images/sample.zarr".  File URLs use the full path as the bucket.
func OpenStore(ctx context.Context, urlstr string) (*Store, error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return nil, fmt.Errorf("bad store URL %q: %v", urlstr, err)
	}
	var prefix string
	if u.Scheme != "file" {
		prefix = u.Path
		u.Path = ""
	}
	bucket, err := OpenBucket(ctx, u.String())
	if err != nil {
		return nil, err
	}
	s := NewStore(bucket, prefix)
	s.owned = true
	return s, nil
}

func (s *Store) key(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Path returns the bucket key for a key of the store.
func (s *Store) Path(key string) string {
	return s.key(key)
}

// Get returns the value of a key.  A missing key gives an error wrapping
// pyramid.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return nil, err
	}
	data, err := s.bucket.ReadAll(ctx, s.key(key))
	if err != nil {
		return nil, pyramid.CheckAborted(ctx, notFound(s.key(key), err))
	}
	return data, nil
}

// Has returns true if the key exists.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, s.key(key))
}

// Object returns a range-readable object for a key.
func (s *Store) Object(ctx context.Context, key string) (*Object, error) {
	return NewObject(ctx, s.bucket, s.key(key))
}

// Sub returns a store for the keys below a path.
func (s *Store) Sub(p string) *Store {
	p = strings.Trim(p, "/")
	if p == "" {
		return &Store{bucket: s.bucket, prefix: s.prefix}
	}
	return &Store{bucket: s.bucket, prefix: s.key(p)}
}

// Close closes the bucket if the store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.bucket.Close()
	}
	return nil
}

// OpenObject opens the bucket holding the object at a URL.  The bucket should be
// closed once the object is no longer read.
func OpenObject(ctx context.Context, urlstr string) (*Object, *blob.Bucket, error) {
	bucketURL, key, err := SplitURL(urlstr)
	if err != nil {
		return nil, nil, err
	}
	bucket, err := OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, nil, err
	}
	obj, err := NewObject(ctx, bucket, key)
	if err != nil {
		bucket.Close()
		return nil, nil, err
	}
	return obj, bucket, nil
}
