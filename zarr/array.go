package zarr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/pyramid/pyramid"
)

type selectorKind uint8

const (
	fullAxis selectorKind = iota
	indexAxis
	rangeAxis
)

// Selector picks along one array axis: a single index, a half-open range, or the whole
// axis.  Indexed axes are dropped from the shape of a read.
type Selector struct {
	kind        selectorKind
	start, stop int
}

// Index selects a single position.
func Index(i int) Selector { return Selector{kind: indexAxis, start: i, stop: i + 1} }

// Range selects [start, stop).
func Range(start, stop int) Selector { return Selector{kind: rangeAxis, start: start, stop: stop} }

// Full selects the whole axis.
func Full() Selector { return Selector{kind: fullAxis} }

// IsIndex returns true for single-position selectors.
func (s Selector) IsIndex() bool { return s.kind == indexAxis }

// Bounds returns the half-open range selected along an axis of the given extent.
func (s Selector) Bounds(extent int) (start, stop int) {
	if s.kind == fullAxis {
		return 0, extent
	}
	return s.start, s.stop
}

func (s Selector) String() string {
	switch s.kind {
	case indexAxis:
		return strconv.Itoa(s.start)
	case rangeAxis:
		return fmt.Sprintf("%d:%d", s.start, s.stop)
	}
	return ":"
}

// Chunk is decoded array data in C order along with its shape.
type Chunk struct {
	Data  any
	Shape []int
}

// Array is a chunked N-dimensional array.  Chunk reads return whole chunks; raw reads
// assemble an arbitrary selection across chunks.
type Array interface {
	Shape() []int
	Chunks() []int
	DType() string

	// GetRawChunk returns the chunk at the chunk grid index.  Its shape is the full
	// chunk shape even at the array edges.
	GetRawChunk(ctx context.Context, idx []int) (Chunk, error)

	// GetRaw reads a selection with one selector per axis.  A selection outside the
	// array fails with pyramid.ErrBounds.
	GetRaw(ctx context.Context, sel []Selector) (Chunk, error)
}

// GridShape returns the number of chunks along each axis.
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey returns the store key of a chunk, e.g., "0.3.1" with separator ".".
// Zero-dimensional arrays have the single chunk "0".
func ChunkKey(idx []int, separator string) string {
	if len(idx) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, v := range idx {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}

func checkChunkIndex(idx, shape, chunks []int) error {
	if len(idx) != len(shape) {
		return fmt.Errorf("chunk index %v has %d dimensions, array has %d: %w", idx, len(idx), len(shape), pyramid.ErrIndex)
	}
	grid := GridShape(shape, chunks)
	for i, v := range idx {
		if v < 0 || v >= grid[i] {
			return fmt.Errorf("chunk index %v outside chunk grid %v: %w", idx, grid, pyramid.ErrBounds)
		}
	}
	return nil
}

// resolveSelection returns the bounds of each selector, checked against the shape.
func resolveSelection(sel []Selector, shape []int) (starts, stops []int, err error) {
	if len(sel) != len(shape) {
		return nil, nil, fmt.Errorf("selection %v has %d dimensions, array has %d: %w", sel, len(sel), len(shape), pyramid.ErrIndex)
	}
	starts = make([]int, len(sel))
	stops = make([]int, len(sel))
	for i, s := range sel {
		starts[i], stops[i] = s.Bounds(shape[i])
		if starts[i] < 0 || stops[i] > shape[i] || starts[i] >= stops[i] {
			return nil, nil, fmt.Errorf("selection %v outside array of shape %v: %w", sel, shape, pyramid.ErrBounds)
		}
	}
	return starts, stops, nil
}

// outShape drops indexed axes.
func outShape(sel []Selector, starts, stops []int) []int {
	shape := make([]int, 0, len(sel))
	for i, s := range sel {
		if !s.IsIndex() {
			shape = append(shape, stops[i]-starts[i])
		}
	}
	return shape
}

func product(ints []int) int {
	p := 1
	for _, v := range ints {
		p *= v
	}
	return p
}

// strides returns C-order element strides.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// copyRegion copies the part of a chunk overlapping [starts, stops) into dst, which
// holds the whole selection.  Both buffers are raw bytes of elemSize per element.
func copyRegion(dst, chunk []byte, elemSize int, chunkIdx, chunkShape, starts, stops []int) {
	n := len(chunkShape)
	if n == 0 {
		copy(dst, chunk)
		return
	}
	lo := make([]int, n)
	hi := make([]int, n)
	for i := range chunkShape {
		origin := chunkIdx[i] * chunkShape[i]
		lo[i] = max(starts[i], origin)
		hi[i] = min(stops[i], origin+chunkShape[i])
		if lo[i] >= hi[i] {
			return
		}
	}
	extents := make([]int, n)
	for i := range extents {
		extents[i] = stops[i] - starts[i]
	}
	dstStrides := strides(extents)
	srcStrides := strides(chunkShape)

	pos := make([]int, n)
	copy(pos, lo)
	last := n - 1
	run := (hi[last] - lo[last]) * elemSize
	for {
		var d, s int
		for i := range pos {
			d += (pos[i] - starts[i]) * dstStrides[i]
			s += (pos[i] - chunkIdx[i]*chunkShape[i]) * srcStrides[i]
		}
		copy(dst[d*elemSize:d*elemSize+run], chunk[s*elemSize:s*elemSize+run])

		// Advance all but the last axis, odometer style.
		i := last - 1
		for ; i >= 0; i-- {
			pos[i]++
			if pos[i] < hi[i] {
				break
			}
			pos[i] = lo[i]
		}
		if i < 0 {
			return
		}
	}
}

// chunkRange returns the first and last chunk index along each axis overlapping the
// selection.
func chunkRange(starts, stops, chunks []int) (first, last []int) {
	first = make([]int, len(starts))
	last = make([]int, len(starts))
	for i := range starts {
		first[i] = starts[i] / chunks[i]
		last[i] = (stops[i] - 1) / chunks[i]
	}
	return first, last
}

// forEachChunk calls fn with every chunk index in [first, last].
func forEachChunk(first, last []int, fn func(idx []int)) {
	idx := make([]int, len(first))
	copy(idx, first)
	for {
		cp := make([]int, len(idx))
		copy(cp, idx)
		fn(cp)
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] <= last[i] {
				break
			}
			idx[i] = first[i]
		}
		if i < 0 {
			return
		}
	}
}
