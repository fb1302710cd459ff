package pyramid

import "fmt"

// Number is the set of sample types a Raster can hold.
type Number interface {
	~uint8 | ~uint16 | ~uint32 | ~int8 | ~int16 | ~int32 | ~float32 | ~float64
}

// Raster is a decoded 2D plane or tile.  Data is a typed slice, e.g., []uint16.
// For interleaved sources, samples of all bands are stored contiguously per pixel
// and Width*Height*bands equals the buffer length.
type Raster struct {
	Data   any
	Width  int
	Height int
}

// Len returns the number of samples in the raster.
func (r Raster) Len() int {
	return BufferLen(r.Data)
}

// Bands returns the number of samples per pixel.
func (r Raster) Bands() int {
	pixels := r.Width * r.Height
	if pixels == 0 {
		return 0
	}
	return r.Len() / pixels
}

// Check makes sure the buffer size is consistent with the dimensions and band count.
func (r Raster) Check(bands int) error {
	n := r.Len()
	if n < 0 {
		return fmt.Errorf("raster has unsupported buffer %T: %w", r.Data, ErrFormat)
	}
	if n != r.Width*r.Height*bands {
		return fmt.Errorf("raster %d x %d x %d bands expects %d samples, got %d: %w",
			r.Width, r.Height, bands, r.Width*r.Height*bands, n, ErrFormat)
	}
	return nil
}

func (r Raster) String() string {
	return fmt.Sprintf("raster %d x %d (%T)", r.Width, r.Height, r.Data)
}
