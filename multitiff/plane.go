package multitiff

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/tiff"

	"github.com/janelia-flyem/pyramid/codec"
	"github.com/janelia-flyem/pyramid/ometiff"
	"github.com/janelia-flyem/pyramid/pyramid"
)

// Plane is a single 2D image contributing one (t, c, z) coordinate of a stack.
type Plane interface {
	ometiff.ImageReader

	Width() int
	Height() int
	TileWidth() int
	TileHeight() int
	SamplesPerPixel() int
	Photometric() int
	DataType() (pyramid.DataType, error)
}

// TiffPlane is one directory of a TIFF file read through a decode service.
type TiffPlane struct {
	dec    ometiff.Decoder
	img    *ometiff.Image
	codecs *codec.Registry
}

// NewTiffPlane returns a plane for a decoded directory.  A nil codec registry uses
// the decoder's own.
func NewTiffPlane(dec ometiff.Decoder, img *ometiff.Image, codecs *codec.Registry) *TiffPlane {
	return &TiffPlane{dec: dec, img: img, codecs: codecs}
}

func (p *TiffPlane) Width() int           { return p.img.Width }
func (p *TiffPlane) Height() int          { return p.img.Height }
func (p *TiffPlane) TileWidth() int       { return p.img.TileWidth }
func (p *TiffPlane) TileHeight() int      { return p.img.TileHeight }
func (p *TiffPlane) SamplesPerPixel() int { return p.img.SamplesPerPixel }
func (p *TiffPlane) Photometric() int     { return p.img.Photometric }
func (p *TiffPlane) BigEndian() bool      { return !p.img.Header.LittleEndian }

func (p *TiffPlane) DataType() (pyramid.DataType, error) {
	return p.img.DataType()
}

func (p *TiffPlane) ReadRaster(ctx context.Context, window *pyramid.Window, interleave bool) (pyramid.Raster, error) {
	return p.dec.ReadRaster(ctx, p.img, ometiff.ReadOptions{
		Window:     window,
		Interleave: interleave,
		Codecs:     p.codecs,
	})
}

// ImagePlane is an in-memory decoded image.  Gray images have one sample per pixel;
// color images have four (RGBA).
type ImagePlane struct {
	img   image.Image
	dtype pyramid.DataType
	spp   int
}

// NewImagePlane returns a plane for an image.  Paletted and other color images are
// read as 16-bit RGBA.
func NewImagePlane(img image.Image) *ImagePlane {
	p := &ImagePlane{img: img}
	switch img.(type) {
	case *image.Gray:
		p.dtype, p.spp = pyramid.Uint8, 1
	case *image.Gray16:
		p.dtype, p.spp = pyramid.Uint16, 1
	case *image.RGBA, *image.NRGBA:
		p.dtype, p.spp = pyramid.Uint8, 4
	default:
		p.dtype, p.spp = pyramid.Uint16, 4
	}
	return p
}

// DecodePlane decodes a single-image TIFF.
func DecodePlane(r io.Reader) (*ImagePlane, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("unable to decode TIFF plane: %v: %w", err, pyramid.ErrFormat)
	}
	return NewImagePlane(img), nil
}

func (p *ImagePlane) Width() int           { return p.img.Bounds().Dx() }
func (p *ImagePlane) Height() int          { return p.img.Bounds().Dy() }
func (p *ImagePlane) TileWidth() int       { return p.Width() }
func (p *ImagePlane) TileHeight() int      { return p.Height() }
func (p *ImagePlane) SamplesPerPixel() int { return p.spp }

func (p *ImagePlane) DataType() (pyramid.DataType, error) {
	return p.dtype, nil
}

// Photometric returns the TIFF photometric interpretation: 1 for gray, 2 for RGB.
func (p *ImagePlane) Photometric() int {
	if p.spp == 1 {
		return 1
	}
	return 2
}

func (p *ImagePlane) ReadRaster(ctx context.Context, window *pyramid.Window, interleave bool) (pyramid.Raster, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return pyramid.Raster{}, err
	}
	win := pyramid.Window{X1: p.Width(), Y1: p.Height()}
	if window != nil {
		win = *window
	}
	if win.Empty() || win.X0 < 0 || win.Y0 < 0 || win.X1 > p.Width() || win.Y1 > p.Height() {
		return pyramid.Raster{}, fmt.Errorf("window %s outside %d x %d plane: %w",
			win, p.Width(), p.Height(), pyramid.ErrBounds)
	}
	bands := 1
	if interleave {
		bands = p.spp
	}
	origin := p.img.Bounds().Min
	n := win.Width() * win.Height() * bands
	var data any
	switch img := p.img.(type) {
	case *image.Gray:
		data = readPixels(win, bands, func(x, y int) []uint8 {
			return []uint8{img.GrayAt(origin.X+x, origin.Y+y).Y}
		}, n)
	case *image.Gray16:
		data = readPixels(win, bands, func(x, y int) []uint16 {
			return []uint16{img.Gray16At(origin.X+x, origin.Y+y).Y}
		}, n)
	case *image.RGBA:
		data = readPixels(win, bands, func(x, y int) []uint8 {
			c := img.RGBAAt(origin.X+x, origin.Y+y)
			return []uint8{c.R, c.G, c.B, c.A}
		}, n)
	case *image.NRGBA:
		data = readPixels(win, bands, func(x, y int) []uint8 {
			c := img.NRGBAAt(origin.X+x, origin.Y+y)
			return []uint8{c.R, c.G, c.B, c.A}
		}, n)
	default:
		data = readPixels(win, bands, func(x, y int) []uint16 {
			c := color.RGBA64Model.Convert(img.At(origin.X+x, origin.Y+y)).(color.RGBA64)
			return []uint16{c.R, c.G, c.B, c.A}
		}, n)
	}
	return pyramid.Raster{Data: data, Width: win.Width(), Height: win.Height()}, nil
}

func readPixels[T pyramid.Number](win pyramid.Window, bands int, at func(x, y int) []T, n int) []T {
	data := make([]T, 0, n)
	for y := win.Y0; y < win.Y1; y++ {
		for x := win.X0; x < win.X1; x++ {
			data = append(data, at(x, y)[:bands]...)
		}
	}
	return data
}
