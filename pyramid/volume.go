package pyramid

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Volume is a z-stack of planes assembled into one buffer, plane after plane.
type Volume struct {
	Data   any
	Width  int
	Height int
	Depth  int
}

// VolumeOptions controls ReadVolume.
type VolumeOptions struct {
	// DownsampleDepth reads every n-th plane along z.  Values < 1 are treated as 1.
	DownsampleDepth int

	// OnUpdate, if set, is called once when each plane arrives and once when it has
	// been copied.  It may be called concurrently.
	OnUpdate func()

	// Concurrency limits the number of planes read at once.
	Concurrency int
}

// ReadVolume reads every (downsampled) z plane of the selection from a
// non-interleaved source.  Each plane is stored flipped vertically, the row order
// expected by volume renderers that put the origin at the bottom left.
func ReadVolume(ctx context.Context, src PixelSource, sel Selection, opts VolumeOptions) (*Volume, error) {
	shape := src.Shape()
	if shape.Interleaved() {
		return nil, fmt.Errorf("cannot read volume from interleaved source: %w", ErrFormat)
	}
	zdim, err := src.Labels().Index("z")
	if err != nil {
		return nil, err
	}
	downsample := opts.DownsampleDepth
	if downsample < 1 {
		downsample = 1
	}
	depth := shape[zdim] / downsample
	if depth < 1 {
		depth = 1
	}
	height, width := shape.ImageSize()
	planeSize := height * width
	data, err := src.DataType().NewBuffer(planeSize * depth)
	if err != nil {
		return nil, err
	}
	update := opts.OnUpdate
	if update == nil {
		update = func() {}
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultReadConcurrency
	}

	timedLog := NewTimeLog()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for z := 0; z < depth; z++ {
		z := z
		g.Go(func() error {
			r, err := src.GetRaster(gctx, sel.With("z", z*downsample))
			if err != nil {
				return err
			}
			update()
			if err := r.Check(1); err != nil {
				return err
			}
			if r.Width != width || r.Height != height {
				return fmt.Errorf("plane z=%d is %d x %d, expected %d x %d: %w",
					z*downsample, r.Width, r.Height, width, height, ErrFormat)
			}
			if err := placePlane(data, r.Data, z, width, planeSize); err != nil {
				return err
			}
			update()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, CheckAborted(ctx, err)
	}
	timedLog.Debugf("Read volume %d x %d x %d for selection %s", width, height, depth, sel)
	return &Volume{Data: data, Width: width, Height: height, Depth: depth}, nil
}

func placePlane(dst, src any, z, width, planeSize int) error {
	switch d := dst.(type) {
	case []uint8:
		return placeTyped(d, src, z, width, planeSize)
	case []uint16:
		return placeTyped(d, src, z, width, planeSize)
	case []uint32:
		return placeTyped(d, src, z, width, planeSize)
	case []int8:
		return placeTyped(d, src, z, width, planeSize)
	case []int16:
		return placeTyped(d, src, z, width, planeSize)
	case []int32:
		return placeTyped(d, src, z, width, planeSize)
	case []float32:
		return placeTyped(d, src, z, width, planeSize)
	case []float64:
		return placeTyped(d, src, z, width, planeSize)
	}
	return fmt.Errorf("unsupported volume buffer %T: %w", dst, ErrFormat)
}

func placeTyped[T Number](dst []T, src any, z, width, planeSize int) error {
	plane, ok := src.([]T)
	if !ok {
		return fmt.Errorf("plane buffer %T does not match volume buffer %T: %w", src, dst, ErrFormat)
	}
	if len(plane) != planeSize {
		return fmt.Errorf("plane has %d samples, expected %d: %w", len(plane), planeSize, ErrFormat)
	}
	if width == 0 {
		return nil
	}
	height := planeSize / width
	offset := z * planeSize
	for row := 0; row < height; row++ {
		srcRow := plane[row*width : (row+1)*width]
		dstStart := offset + (height-1-row)*width
		copy(dst[dstStart:dstStart+width], srcRow)
	}
	return nil
}
