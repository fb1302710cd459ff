package pyramid

import (
	"fmt"
	"math/bits"
)

// Window is a half-open pixel rectangle [X0, X1) x [Y0, Y1) within a plane.
type Window struct {
	X0, Y0, X1, Y1 int
}

func (w Window) Width() int  { return w.X1 - w.X0 }
func (w Window) Height() int { return w.Y1 - w.Y0 }

// Empty returns true if the window has no area.
func (w Window) Empty() bool {
	return w.X1 <= w.X0 || w.Y1 <= w.Y0
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", w.X0, w.X1, w.Y0, w.Y1)
}

// TileExtent returns the width and height of tile (x, y) for an image of the given
// size.  Tiles in the last column or row are clipped to the image remainder.
func TileExtent(x, y, tileSize, imageWidth, imageHeight int) (width, height int) {
	width, height = tileSize, tileSize
	if x == imageWidth/tileSize {
		width = imageWidth % tileSize
	}
	if y == imageHeight/tileSize {
		height = imageHeight % tileSize
	}
	return
}

// TileWindow returns the pixel window for tile (x, y).
func TileWindow(x, y, tileSize, imageWidth, imageHeight int) Window {
	width, height := TileExtent(x, y, tileSize, imageWidth, imageHeight)
	x0, y0 := x*tileSize, y*tileSize
	return Window{X0: x0, Y0: y0, X1: x0 + width, Y1: y0 + height}
}

// NumTiles returns the number of tile columns and rows covering an image.
func NumTiles(tileSize, imageWidth, imageHeight int) (cols, rows int) {
	cols = (imageWidth + tileSize - 1) / tileSize
	rows = (imageHeight + tileSize - 1) / tileSize
	return
}

// PrevPowerOf2 returns the largest power of two less than or equal to x, or 0 for
// non-positive x.
func PrevPowerOf2(x int) int {
	if x <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(x)) - 1)
}

// LevelShape returns the shape of a pyramid level, halving (rounded down) the
// spatial extents of the base shape once per level.
func LevelShape(base Shape, labels Labels, level int) (Shape, error) {
	shape := make(Shape, len(base))
	copy(shape, base)
	for _, dim := range []string{"x", "y"} {
		i, err := labels.Index(dim)
		if err != nil {
			return nil, err
		}
		if i >= len(shape) {
			return nil, fmt.Errorf("label %q has no extent in shape %v: %w", dim, base, ErrIndex)
		}
		shape[i] = base[i] >> uint(level)
	}
	return shape, nil
}
