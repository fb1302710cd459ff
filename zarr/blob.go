package zarr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/pyramid/codec"
	"github.com/janelia-flyem/pyramid/pyramid"
	"github.com/janelia-flyem/pyramid/storage/blobstore"
)

const arraySchema = `{
	"type": "object",
	"required": ["zarr_format", "shape", "chunks", "dtype"],
	"properties": {
		"zarr_format": {"const": 2},
		"shape": {"type": "array", "items": {"type": "integer", "minimum": 0}},
		"chunks": {"type": "array", "items": {"type": "integer", "minimum": 1}},
		"dtype": {"type": "string"},
		"order": {"enum": ["C", "F"]},
		"compressor": {
			"oneOf": [
				{"type": "null"},
				{"type": "object", "required": ["id"], "properties": {"id": {"type": "string"}}}
			]
		},
		"dimension_separator": {"enum": [".", "/"]}
	}
}`

var (
	arraySchemaOnce sync.Once
	arraySchemaC    *jsonschema.Schema
	arraySchemaErr  error
)

func compiledArraySchema() (*jsonschema.Schema, error) {
	arraySchemaOnce.Do(func() {
		arraySchemaC, arraySchemaErr = jsonschema.CompileString("zarray.json", arraySchema)
	})
	return arraySchemaC, arraySchemaErr
}

// CompressorConfig is the compressor entry of .zarray.
type CompressorConfig struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// ArrayMeta is the zarr v2 .zarray metadata.
type ArrayMeta struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *CompressorConfig `json:"compressor"`
	FillValue          any               `json:"fill_value"`
	Order              string            `json:"order"`
	Filters            []json.RawMessage `json:"filters"`
	DimensionSeparator string            `json:"dimension_separator"`
}

// ArrayOptions modify how arrays are read.
type ArrayOptions struct {
	// Codecs decompress chunks.  Nil uses codec.DefaultRegistry.
	Codecs *codec.Registry

	// Cache holds decompressed chunks and may be shared by arrays.
	Cache *ChunkCache

	// Concurrency limits chunk fetches within one read.  Zero or less uses
	// pyramid.DefaultReadConcurrency.
	Concurrency int
}

// OptionsFromConfig returns array options using the [cache] and [read] configuration.
func OptionsFromConfig(c pyramid.Config) ArrayOptions {
	return ArrayOptions{
		Cache:       NewChunkCacheFromConfig(c.Cache),
		Concurrency: c.Read.Concurrency,
	}
}

// BlobArray is a zarr v2 array stored under a blob store prefix.  Missing chunks read
// as the fill value.
type BlobArray struct {
	store *blobstore.Store
	meta  ArrayMeta
	dtype DType
	fill  []byte

	codecs      *codec.Registry
	cache       *ChunkCache
	concurrency int
}

// OpenArray reads and checks the .zarray metadata of the array at the store.
func OpenArray(ctx context.Context, store *blobstore.Store, opts ArrayOptions) (*BlobArray, error) {
	data, err := store.Get(ctx, ".zarray")
	if err != nil {
		return nil, fmt.Errorf("no zarr array at %q: %w", store.Path(""), err)
	}
	sch, err := compiledArraySchema()
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("bad .zarray JSON at %q: %v: %w", store.Path(""), err, pyramid.ErrFormat)
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("invalid .zarray at %q: %v: %w", store.Path(""), err, pyramid.ErrFormat)
	}
	arr := &BlobArray{store: store, codecs: opts.Codecs, cache: opts.Cache, concurrency: opts.Concurrency}
	if err := json.Unmarshal(data, &arr.meta); err != nil {
		return nil, fmt.Errorf("bad .zarray at %q: %v: %w", store.Path(""), err, pyramid.ErrFormat)
	}
	if arr.codecs == nil {
		if arr.codecs, err = codec.DefaultRegistry(); err != nil {
			return nil, err
		}
	}
	if err := arr.initialize(); err != nil {
		return nil, fmt.Errorf("zarr array at %q: %w", store.Path(""), err)
	}
	pyramid.Debugf("Opened zarr array %q: shape %v, chunks %v, dtype %s\n",
		store.Path(""), arr.meta.Shape, arr.meta.Chunks, arr.meta.DType)
	return arr, nil
}

func (a *BlobArray) initialize() error {
	m := &a.meta
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("shape %v and chunks %v differ in dimensions: %w", m.Shape, m.Chunks, pyramid.ErrFormat)
	}
	if m.Order == "F" {
		return fmt.Errorf("arrays in Fortran order are not supported: %w", pyramid.ErrFormat)
	}
	if len(m.Filters) != 0 {
		return fmt.Errorf("%d array filters given, filters are not supported: %w", len(m.Filters), pyramid.ErrFormat)
	}
	if m.DimensionSeparator == "" {
		m.DimensionSeparator = "."
	}
	if _, found := a.codecs.Lookup(a.compressorID()); !found {
		return fmt.Errorf("no decompressor for %q: %w", a.compressorID(), pyramid.ErrFormat)
	}
	var err error
	if a.dtype, err = ParseDType(m.DType); err != nil {
		return err
	}
	if a.fill, err = a.dtype.fillBytes(m.FillValue, 1); err != nil {
		return err
	}
	return nil
}

func (a *BlobArray) compressorID() string {
	if a.meta.Compressor == nil {
		return ""
	}
	return a.meta.Compressor.ID
}

// Meta returns the parsed .zarray metadata.
func (a *BlobArray) Meta() ArrayMeta { return a.meta }

func (a *BlobArray) Shape() []int  { return a.meta.Shape }
func (a *BlobArray) Chunks() []int { return a.meta.Chunks }
func (a *BlobArray) DType() string { return a.meta.DType }

// chunkBytes returns the decompressed bytes of a chunk.  The index must be valid.
func (a *BlobArray) chunkBytes(ctx context.Context, idx []int) ([]byte, error) {
	key := ChunkKey(idx, a.meta.DimensionSeparator)
	path := a.store.Path(key)
	if data, found := a.cache.Get(path); found {
		return data, nil
	}
	size := product(a.meta.Chunks) * a.dtype.Type.Bytes()
	raw, err := a.store.Get(ctx, key)
	if err != nil {
		if !blobstore.IsNotFound(err) {
			return nil, pyramid.CheckAborted(ctx, err)
		}
		pyramid.Debugf("Chunk %q not stored, using fill value\n", path)
		out := make([]byte, size)
		for i := 0; i < size; i += len(a.fill) {
			copy(out[i:], a.fill)
		}
		return out, nil
	}
	data, err := a.codecs.Decompress(a.compressorID(), raw, size)
	if err != nil {
		return nil, fmt.Errorf("chunk %q: %w", path, err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("chunk %q has %d bytes, expected %d: %w", path, len(data), size, pyramid.ErrFormat)
	}
	if ctx.Err() == nil {
		a.cache.Set(path, data)
	}
	return data, nil
}

// GetRawChunk returns the decoded chunk at a chunk grid index.
func (a *BlobArray) GetRawChunk(ctx context.Context, idx []int) (Chunk, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return Chunk{}, err
	}
	if err := checkChunkIndex(idx, a.meta.Shape, a.meta.Chunks); err != nil {
		return Chunk{}, err
	}
	data, err := a.chunkBytes(ctx, idx)
	if err != nil {
		return Chunk{}, err
	}
	buf, err := a.dtype.Decode(data)
	if err != nil {
		return Chunk{}, err
	}
	shape := make([]int, len(a.meta.Chunks))
	copy(shape, a.meta.Chunks)
	return Chunk{Data: buf, Shape: shape}, nil
}

// GetRaw reads a selection, fetching the overlapping chunks concurrently.
func (a *BlobArray) GetRaw(ctx context.Context, sel []Selector) (Chunk, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return Chunk{}, err
	}
	starts, stops, err := resolveSelection(sel, a.meta.Shape)
	if err != nil {
		return Chunk{}, err
	}
	elemSize := a.dtype.Type.Bytes()
	extents := make([]int, len(starts))
	for i := range extents {
		extents[i] = stops[i] - starts[i]
	}
	out := make([]byte, product(extents)*elemSize)

	limit := a.concurrency
	if limit <= 0 {
		limit = pyramid.DefaultReadConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	first, last := chunkRange(starts, stops, a.meta.Chunks)
	forEachChunk(first, last, func(idx []int) {
		g.Go(func() error {
			data, err := a.chunkBytes(gctx, idx)
			if err != nil {
				return err
			}
			// Chunk regions are disjoint so no locking is needed on out.
			copyRegion(out, data, elemSize, idx, a.meta.Chunks, starts, stops)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return Chunk{}, pyramid.CheckAborted(ctx, err)
	}
	if err := pyramid.Aborted(ctx); err != nil {
		return Chunk{}, err
	}
	buf, err := a.dtype.Decode(out)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Data: buf, Shape: outShape(sel, starts, stops)}, nil
}
