package zarr

import (
	"context"
	"errors"
	"fmt"

	"github.com/janelia-flyem/pyramid/pyramid"
)

// PixelSource reads tiles and rasters from one resolution level of a chunked array.
type PixelSource struct {
	data     Array
	labels   pyramid.Labels
	shape    pyramid.Shape
	dtype    pyramid.DataType
	tileSize int
	meta     *pyramid.SourceMeta
	indexer  *Indexer

	xIndex, yIndex int
	bandIndex      int // -1 unless interleaved

	// readChunks is set when tiles map one to one onto chunks.
	readChunks bool
}

// NewPixelSource returns a source over an array whose axes are named by labels.  The
// labels must include "x" and "y"; an interleaved array ends with pyramid.InterleaveLabel.
func NewPixelSource(data Array, labels pyramid.Labels, tileSize int, meta *pyramid.SourceMeta) (*PixelSource, error) {
	shape := pyramid.Shape(data.Shape())
	if len(labels) != len(shape) {
		return nil, fmt.Errorf("labels %v do not match array shape %v: %w", []string(labels), []int(shape), pyramid.ErrFormat)
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("bad tile size %d: %w", tileSize, pyramid.ErrFormat)
	}
	indexer, err := NewIndexer(labels, shape)
	if err != nil {
		return nil, err
	}
	dtype, err := ParseDType(data.DType())
	if err != nil {
		return nil, err
	}
	s := &PixelSource{
		data:      data,
		labels:    labels,
		shape:     shape,
		dtype:     dtype.Type,
		tileSize:  tileSize,
		meta:      meta,
		indexer:   indexer,
		bandIndex: -1,
	}
	if s.xIndex, err = labels.Index("x"); err != nil {
		return nil, err
	}
	if s.yIndex, err = labels.Index("y"); err != nil {
		return nil, err
	}
	if last := len(labels) - 1; labels[last] == pyramid.InterleaveLabel {
		s.bandIndex = last
	}
	s.readChunks = s.chunkAligned()
	return s, nil
}

// chunkAligned returns true if every chunk is exactly one tile of one plane.
func (s *PixelSource) chunkAligned() bool {
	chunks := s.data.Chunks()
	for i, c := range chunks {
		switch i {
		case s.xIndex, s.yIndex:
			if c != s.tileSize {
				return false
			}
		case s.bandIndex:
			if c != s.shape[i] {
				return false
			}
		default:
			if c != 1 {
				return false
			}
		}
	}
	return true
}

func (s *PixelSource) DataType() pyramid.DataType { return s.dtype }
func (s *PixelSource) TileSize() int              { return s.tileSize }
func (s *PixelSource) Shape() pyramid.Shape       { return s.shape }
func (s *PixelSource) Labels() pyramid.Labels     { return s.labels }
func (s *PixelSource) Meta() *pyramid.SourceMeta  { return s.meta }

// ReadsChunks returns true if tiles are fetched as whole chunks.
func (s *PixelSource) ReadsChunks() bool { return s.readChunks }

func (s *PixelSource) imageSize() (height, width int) {
	return s.shape[s.yIndex], s.shape[s.xIndex]
}

func (s *PixelSource) selectors(sel pyramid.Selection) ([]Selector, error) {
	out, err := s.indexer.Merge(sel)
	if err != nil {
		return nil, err
	}
	if s.bandIndex >= 0 {
		out[s.bandIndex] = Full()
	}
	return out, nil
}

// GetRaster reads the full plane for the selection.
func (s *PixelSource) GetRaster(ctx context.Context, sel pyramid.Selection) (pyramid.Raster, error) {
	sels, err := s.selectors(sel)
	if err != nil {
		return pyramid.Raster{}, err
	}
	sels[s.xIndex] = Full()
	sels[s.yIndex] = Full()
	res, err := s.data.GetRaw(ctx, sels)
	if err != nil {
		return pyramid.Raster{}, pyramid.CheckAborted(ctx, err)
	}
	height, width := s.imageSize()
	return pyramid.Raster{Data: res.Data, Width: width, Height: height}, nil
}

// GetTile reads tile (x, y).  Interior tiles of chunk-aligned arrays are whole chunks;
// other tiles are read as slices clipped to the image.
func (s *PixelSource) GetTile(ctx context.Context, x, y int, sel pyramid.Selection) (pyramid.Raster, error) {
	if x < 0 || y < 0 {
		return pyramid.Raster{}, fmt.Errorf("bad tile (%d, %d): %w", x, y, pyramid.ErrBounds)
	}
	height, width := s.imageSize()
	ts := s.tileSize
	sels, err := s.selectors(sel)
	if err != nil {
		return pyramid.Raster{}, err
	}
	if s.readChunks && (x+1)*ts <= width && (y+1)*ts <= height {
		idx := make([]int, len(sels))
		for i, sl := range sels {
			if sl.IsIndex() {
				idx[i], _ = sl.Bounds(0)
			}
		}
		idx[s.xIndex] = x
		idx[s.yIndex] = y
		res, err := s.data.GetRawChunk(ctx, idx)
		if err != nil {
			return pyramid.Raster{}, pyramid.CheckAborted(ctx, err)
		}
		return pyramid.Raster{Data: res.Data, Width: ts, Height: ts}, nil
	}

	xStart, xStop := x*ts, min((x+1)*ts, width)
	yStart, yStop := y*ts, min((y+1)*ts, height)
	if xStart >= xStop || yStart >= yStop {
		return pyramid.Raster{}, fmt.Errorf("tile (%d, %d) slice is zero-sized for %d x %d image: %w",
			x, y, width, height, pyramid.ErrBounds)
	}
	sels[s.xIndex] = Range(xStart, xStop)
	sels[s.yIndex] = Range(yStart, yStop)
	res, err := s.data.GetRaw(ctx, sels)
	if err != nil {
		return pyramid.Raster{}, pyramid.CheckAborted(ctx, err)
	}
	return pyramid.Raster{Data: res.Data, Width: xStop - xStart, Height: yStop - yStart}, nil
}

// OnTileError suppresses tiles outside the image, which occur at pyramid edges with
// irregular chunk boundaries.  Other errors are returned.
func (s *PixelSource) OnTileError(err error) error {
	if err == nil || errors.Is(err, pyramid.ErrBounds) || pyramid.IsAborted(err) {
		return nil
	}
	return err
}

// TileSizeFromChunks returns the largest power of two fitting in the spatial chunk
// extents, which are the last two axes or the two before an interleaved axis.
func TileSizeFromChunks(arr Array) int {
	chunks := arr.Chunks()
	n := len(chunks)
	if pyramid.Shape(arr.Shape()).Interleaved() {
		n--
	}
	if n < 2 {
		return 0
	}
	return pyramid.PrevPowerOf2(min(chunks[n-2], chunks[n-1]))
}
