package pyramid

import (
	"context"
	"fmt"
)

// PixelSource is one resolution level of an image.  Every storage layout presents the
// same read surface.  Implementations are immutable after construction except for
// internal caches that are only ever added to.
type PixelSource interface {
	DataType() DataType
	TileSize() int
	Shape() Shape
	Labels() Labels

	// Meta returns optional source metadata, or nil.
	Meta() *SourceMeta

	// GetRaster reads the full plane for the selection.  Interleaved sources return
	// one buffer holding all bands; others return the single band.
	GetRaster(ctx context.Context, sel Selection) (Raster, error)

	// GetTile reads tile (x, y), clipped at the right and bottom image edges.
	GetTile(ctx context.Context, x, y int, sel Selection) (Raster, error)

	// OnTileError classifies a failed tile read.  It returns nil if the error
	// should be suppressed, else the error to propagate.
	OnTileError(err error) error
}

// PhysicalSize is the physical extent of a pixel along one axis.
type PhysicalSize struct {
	Size float64
	Unit string
}

// SourceMeta is optional descriptive metadata carried by a source.
type SourceMeta struct {
	PhotometricInterpretation int
	PhysicalSizes             map[string]PhysicalSize
}

// ImageSize returns the height and width of a source's plane.
func ImageSize(src PixelSource) (height, width int) {
	return src.Shape().ImageSize()
}

// LogTileError is the default tile error policy: errors are logged and suppressed.
// Aborted reads are dropped without logging.
func LogTileError(err error) error {
	if err == nil || IsAborted(err) {
		return nil
	}
	Errorf("tile read failed: %v\n", err)
	return nil
}

// Pyramid is the sequence of resolution levels for an image, index 0 being full
// resolution.
type Pyramid []PixelSource

// Validate checks that all levels share labels and that each level's spatial extents
// are half (rounded down) of the previous level's.
func (p Pyramid) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("pyramid has no levels: %w", ErrFormat)
	}
	base := p[0]
	if err := base.Labels().Validate(); err != nil {
		return err
	}
	for level := 1; level < len(p); level++ {
		prevH, prevW := ImageSize(p[level-1])
		h, w := ImageSize(p[level])
		if h != prevH/2 || w != prevW/2 {
			return fmt.Errorf("pyramid level %d is %d x %d, expected %d x %d: %w",
				level, w, h, prevW/2, prevH/2, ErrFormat)
		}
		if len(p[level].Labels()) != len(base.Labels()) {
			return fmt.Errorf("pyramid level %d labels %v differ from level 0 labels %v: %w",
				level, p[level].Labels(), base.Labels(), ErrFormat)
		}
	}
	return nil
}

// Level returns the source at the given resolution level.
func (p Pyramid) Level(level int) (PixelSource, error) {
	if level < 0 || level >= len(p) {
		return nil, fmt.Errorf("resolution level %d outside pyramid with %d levels: %w", level, len(p), ErrIndex)
	}
	return p[level], nil
}

// GetTile reads a tile at a resolution level, passing any failure through that level's
// tile error policy.  A nil raster with nil error means the tile was aborted or its
// error suppressed.
func (p Pyramid) GetTile(ctx context.Context, level, x, y int, sel Selection) (*Raster, error) {
	src, err := p.Level(level)
	if err != nil {
		return nil, err
	}
	r, err := src.GetTile(ctx, x, y, sel)
	if err != nil {
		if IsAborted(err) {
			return nil, nil
		}
		return nil, src.OnTileError(err)
	}
	return &r, nil
}
