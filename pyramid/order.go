package pyramid

import (
	"fmt"
	"strings"
)

// DimensionOrder is an OME dimension order, listing axes from fastest to slowest
// varying.  XYZCT iterates z fastest, then c, then t.
type DimensionOrder string

const (
	XYZCT DimensionOrder = "XYZCT"
	XYZTC DimensionOrder = "XYZTC"
	XYCTZ DimensionOrder = "XYCTZ"
	XYCZT DimensionOrder = "XYCZT"
	XYTCZ DimensionOrder = "XYTCZ"
	XYTZC DimensionOrder = "XYTZC"
)

// DimensionOrders lists the legal orders.
var DimensionOrders = []DimensionOrder{XYZCT, XYZTC, XYCTZ, XYCZT, XYTCZ, XYTZC}

// Validate returns an error if the order is not one of the six legal orders.
func (o DimensionOrder) Validate() error {
	for _, legal := range DimensionOrders {
		if o == legal {
			return nil
		}
	}
	return fmt.Errorf("invalid OME-XML DimensionOrder, got %q: %w, %w", string(o), ErrFormat, ErrIndex)
}

// Labels returns the dimension labels for the order, slowest first.
func (o DimensionOrder) Labels() Labels {
	return LabelsFromOrder(string(o))
}

// Sizes holds the declared extents of the non-spatial dimensions.
type Sizes struct {
	C, Z, T int
}

// Planes returns the number of 2D planes in an image with these sizes.
func (s Sizes) Planes() int {
	return s.C * s.Z * s.T
}

func (s Sizes) size(dim byte) int {
	switch dim {
	case 'c':
		return s.C
	case 'z':
		return s.Z
	case 't':
		return s.T
	}
	return 0
}

// ImageOffset returns the number of planes that precede the given image when
// several images share one file.
func ImageOffset(images []Sizes, image int) int {
	var offset int
	for i := 0; i < image && i < len(images); i++ {
		offset += images[i].Planes()
	}
	return offset
}

// PlaneIndexer maps a (t, c, z) selection to a linear plane index for a fixed
// dimension order.
type PlaneIndexer struct {
	order  DimensionOrder
	sizes  Sizes
	offset int

	// non-spatial dimensions from fastest to slowest, e.g., "zct" for XYZCT.
	dims string
}

// NewPlaneIndexer returns an indexer for the order and sizes.  The imageOffset is
// added to every index.
func NewPlaneIndexer(order DimensionOrder, sizes Sizes, imageOffset int) (*PlaneIndexer, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if sizes.C <= 0 || sizes.Z <= 0 || sizes.T <= 0 {
		return nil, fmt.Errorf("sizes must be positive, got C=%d Z=%d T=%d: %w", sizes.C, sizes.Z, sizes.T, ErrFormat)
	}
	return &PlaneIndexer{
		order:  order,
		sizes:  sizes,
		offset: imageOffset,
		dims:   strings.ToLower(string(order[2:])),
	}, nil
}

// Order returns the dimension order.
func (p *PlaneIndexer) Order() DimensionOrder { return p.order }

// Sizes returns the declared sizes.
func (p *PlaneIndexer) Sizes() Sizes { return p.sizes }

// PlanesPerImage returns SizeC * SizeZ * SizeT.
func (p *PlaneIndexer) PlanesPerImage() int { return p.sizes.Planes() }

// Index returns the linear plane index for the selection.
func (p *PlaneIndexer) Index(sel Selection) (int, error) {
	for name, idx := range sel {
		if len(name) != 1 || strings.IndexByte(p.dims, name[0]) < 0 {
			return 0, fmt.Errorf("selection references undeclared dimension %q: %w", name, ErrIndex)
		}
		if idx < 0 || idx >= p.sizes.size(name[0]) {
			return 0, fmt.Errorf("selection %s=%d outside declared size %d: %w",
				name, idx, p.sizes.size(name[0]), ErrIndex)
		}
	}
	fast, mid, slow := p.dims[0], p.dims[1], p.dims[2]
	index := sel[string(slow)]*p.sizes.size(fast)*p.sizes.size(mid) +
		sel[string(mid)]*p.sizes.size(fast) +
		sel[string(fast)]
	return p.offset + index, nil
}

// LevelIndex returns the plane index within a flat-run pyramid, where each level
// repeats the full run of planes.
func (p *PlaneIndexer) LevelIndex(sel Selection, level int) (int, error) {
	index, err := p.Index(sel)
	if err != nil {
		return 0, err
	}
	return index + level*p.PlanesPerImage(), nil
}

// Selection is the inverse of Index.
func (p *PlaneIndexer) Selection(index int) (Selection, error) {
	i := index - p.offset
	if i < 0 || i >= p.PlanesPerImage() {
		return nil, fmt.Errorf("plane index %d outside image with offset %d and %d planes: %w",
			index, p.offset, p.PlanesPerImage(), ErrIndex)
	}
	sel := make(Selection, 3)
	for _, dim := range []byte(p.dims) {
		size := p.sizes.size(dim)
		sel[string(dim)] = i % size
		i /= size
	}
	return sel, nil
}
