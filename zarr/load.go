package zarr

import (
	"context"
	"fmt"
	"strings"

	"github.com/janelia-flyem/pyramid/ometiff"
	"github.com/janelia-flyem/pyramid/pyramid"
	"github.com/janelia-flyem/pyramid/storage/blobstore"
)

// BioformatsDir is the array group written by bioformats2raw next to its OME-XML.
const BioformatsDir = "data.zarr"

// Loaded is a pyramid over a zarr store.  Close releases the store if it was opened
// by URL.
type Loaded struct {
	Data      pyramid.Pyramid
	RootAttrs map[string]any

	// Metadata is set for bioformats stores.
	Metadata *ometiff.ImageMeta

	store *blobstore.Store
}

// Close closes the underlying store.
func (l *Loaded) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

func newPyramid(arrays []*BlobArray, labels pyramid.Labels, meta *pyramid.SourceMeta) (pyramid.Pyramid, error) {
	tileSize := TileSizeFromChunks(arrays[0])
	p := make(pyramid.Pyramid, len(arrays))
	for i, arr := range arrays {
		src, err := NewPixelSource(arr, labels, tileSize, meta)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		p[i] = src
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadStore builds a pyramid from a multiscales group of a store.  The group must carry
// a "multiscales" attribute.
func LoadStore(ctx context.Context, store *blobstore.Store, opts ArrayOptions) (*Loaded, error) {
	ms, err := LoadMultiscales(ctx, store, "", opts)
	if err != nil {
		return nil, err
	}
	if _, found := ms.RootAttrs["multiscales"]; !found {
		return nil, fmt.Errorf("only multiscale OME-Zarr is supported, %q has no multiscales: %w",
			store.Path(""), pyramid.ErrFormat)
	}
	p, err := newPyramid(ms.Data, ms.Labels, nil)
	if err != nil {
		return nil, err
	}
	return &Loaded{Data: p, RootAttrs: ms.RootAttrs}, nil
}

// LoadOmeZarr opens a multiscale OME-Zarr store by URL, e.g., "gs://bucket/image.zarr".
func LoadOmeZarr(ctx context.Context, url string, opts ArrayOptions) (*Loaded, error) {
	store, err := blobstore.OpenStore(ctx, url)
	if err != nil {
		return nil, err
	}
	loaded, err := LoadStore(ctx, store, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	loaded.store = store
	return loaded, nil
}

// LoadBioformatsStore builds a pyramid from a bioformats2raw layout where group "0" of
// the store holds the levels.  The image metadata comes from the OME-XML written
// alongside, already parsed by the caller.
func LoadBioformatsStore(ctx context.Context, store *blobstore.Store, meta ometiff.ImageMeta, opts ArrayOptions) (*Loaded, error) {
	ms, err := LoadMultiscales(ctx, store, "0", opts)
	if err != nil {
		return nil, err
	}
	labels, err := GuessBioformatsLabels(ms.Data[0].Shape(), &meta.Pixels)
	if err != nil {
		return nil, err
	}
	srcMeta := &pyramid.SourceMeta{PhysicalSizes: meta.Pixels.PhysicalSizes()}
	p, err := newPyramid(ms.Data, labels, srcMeta)
	if err != nil {
		return nil, err
	}
	return &Loaded{Data: p, RootAttrs: ms.RootAttrs, Metadata: &meta}, nil
}

// LoadBioformatsZarr opens the data.zarr directory below a bioformats2raw output URL.
func LoadBioformatsZarr(ctx context.Context, url string, meta ometiff.ImageMeta, opts ArrayOptions) (*Loaded, error) {
	store, err := blobstore.OpenStore(ctx, strings.TrimSuffix(url, "/")+"/"+BioformatsDir)
	if err != nil {
		return nil, err
	}
	loaded, err := LoadBioformatsStore(ctx, store, meta, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	loaded.store = store
	return loaded, nil
}
