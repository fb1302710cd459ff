package ometiff

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/pyramid/pyramid"
)

// TiffPixelSource is one resolution level of a TIFF-backed image.
type TiffPixelSource struct {
	resolver Resolver
	level    int
	dtype    pyramid.DataType
	tileSize int
	shape    pyramid.Shape
	labels   pyramid.Labels
	meta     *pyramid.SourceMeta
}

// NewPixelSource returns the source for one level of a resolver.
func NewPixelSource(resolver Resolver, level int, dtype pyramid.DataType, tileSize int,
	shape pyramid.Shape, labels pyramid.Labels, meta *pyramid.SourceMeta) (*TiffPixelSource, error) {

	if err := labels.Validate(); err != nil {
		return nil, err
	}
	if len(shape) != len(labels) {
		return nil, fmt.Errorf("shape %v does not match labels %v: %w", shape, labels, pyramid.ErrFormat)
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("bad tile size %d: %w", tileSize, pyramid.ErrFormat)
	}
	if err := checkLevel(level, resolver.Levels()); err != nil {
		return nil, err
	}
	return &TiffPixelSource{
		resolver: resolver,
		level:    level,
		dtype:    dtype,
		tileSize: tileSize,
		shape:    shape,
		labels:   labels,
		meta:     meta,
	}, nil
}

func (s *TiffPixelSource) DataType() pyramid.DataType  { return s.dtype }
func (s *TiffPixelSource) TileSize() int               { return s.tileSize }
func (s *TiffPixelSource) Shape() pyramid.Shape        { return s.shape }
func (s *TiffPixelSource) Labels() pyramid.Labels      { return s.labels }
func (s *TiffPixelSource) Meta() *pyramid.SourceMeta   { return s.meta }
func (s *TiffPixelSource) Level() int                  { return s.level }
func (s *TiffPixelSource) OnTileError(err error) error { return pyramid.LogTileError(err) }

// GetRaster reads the full plane for the selection.
func (s *TiffPixelSource) GetRaster(ctx context.Context, sel pyramid.Selection) (pyramid.Raster, error) {
	return s.read(ctx, sel, nil)
}

// GetTile reads tile (x, y) of the plane for the selection.
func (s *TiffPixelSource) GetTile(ctx context.Context, x, y int, sel pyramid.Selection) (pyramid.Raster, error) {
	height, width := s.shape.ImageSize()
	if x < 0 || y < 0 {
		return pyramid.Raster{}, fmt.Errorf("bad tile (%d, %d): %w", x, y, pyramid.ErrBounds)
	}
	win := pyramid.TileWindow(x, y, s.tileSize, width, height)
	if win.Empty() || win.X1 > width || win.Y1 > height {
		return pyramid.Raster{}, fmt.Errorf("tile (%d, %d) outside %d x %d plane: %w", x, y, width, height, pyramid.ErrBounds)
	}
	return s.read(ctx, sel, &win)
}

func (s *TiffPixelSource) read(ctx context.Context, sel pyramid.Selection, win *pyramid.Window) (pyramid.Raster, error) {
	img, err := s.resolver.Resolve(ctx, sel, s.level)
	if err != nil {
		return pyramid.Raster{}, pyramid.CheckAborted(ctx, err)
	}
	r, err := img.ReadRaster(ctx, win, s.shape.Interleaved())
	if err != nil {
		return pyramid.Raster{}, pyramid.CheckAborted(ctx, err)
	}
	if err := pyramid.Aborted(ctx); err != nil {
		return pyramid.Raster{}, err
	}
	return r, nil
}
