package ometiff

import (
	"context"
	"fmt"
	"sync"

	"github.com/janelia-flyem/pyramid/codec"
	"github.com/janelia-flyem/pyramid/pyramid"
)

// Header holds the file-level fields shared by every directory of a TIFF.
type Header struct {
	LittleEndian bool
	BigTIFF      bool
}

// Directory is a decoded image file directory.  For stripped images, TileWidth is
// the image width and TileHeight the rows per strip.
type Directory struct {
	Width, Height         int
	TileWidth, TileHeight int
	Tiled                 bool

	SamplesPerPixel int
	BitsPerSample   int
	SampleFormat    int
	Photometric     int
	Compression     int
	Predictor       int
	PlanarConfig    int

	// Offsets and ByteCounts of each tile or strip, in file order.
	Offsets    []uint64
	ByteCounts []uint64

	// SubIFDs are offsets of reduced-resolution directories, finest first.
	SubIFDs []uint64

	Description string
}

// Image is a directory bound to the header of the file it came from.
type Image struct {
	*Directory
	Header Header
}

// NewImage returns an image for a sub-directory, taking the shared file fields from
// the parent image.
func NewImage(dir *Directory, parent *Image) *Image {
	return &Image{Directory: dir, Header: parent.Header}
}

// DataType returns the sample type of the image.
func (img *Image) DataType() (pyramid.DataType, error) {
	return GuessDataType(img.SampleFormat, img.BitsPerSample)
}

// ReadOptions control a raster read.  A nil Window reads the full image.  If
// Interleave is false, only the first sample of each pixel is returned.
type ReadOptions struct {
	Window     *pyramid.Window
	Interleave bool
	Codecs     *codec.Registry

	// Concurrency limits concurrent tile decodes.  Zero or less is unlimited.
	Concurrency int
}

// Decoder is the TIFF decode service used by the OME-TIFF sources.
type Decoder interface {
	Header() Header

	// DecodeDirectory returns the image for the index-th directory in the file.
	DecodeDirectory(ctx context.Context, index int) (*Image, error)

	// DecodeDirectoryAt returns the directory stored at a byte offset.
	DecodeDirectoryAt(ctx context.Context, offset uint64) (*Directory, error)

	// ReadRaster decodes pixels of an image.
	ReadRaster(ctx context.Context, img *Image, opts ReadOptions) (pyramid.Raster, error)
}

// offsetsDecoder seeks directly to known directory offsets instead of walking the
// directory chain.
type offsetsDecoder struct {
	Decoder
	offsets []uint64

	mu     sync.Mutex
	images map[int]*Image
}

// WithOffsets returns a decoder that resolves directory i by reading the directory at
// offsets[i].  Indices outside the table fall through to the wrapped decoder.
func WithOffsets(dec Decoder, offsets []uint64) Decoder {
	if len(offsets) == 0 {
		pyramid.Warningf("TIFF decoder created without a directory offsets table\n")
		return dec
	}
	return &offsetsDecoder{
		Decoder: dec,
		offsets: offsets,
		images:  make(map[int]*Image),
	}
}

func (d *offsetsDecoder) DecodeDirectory(ctx context.Context, index int) (*Image, error) {
	if index < 0 || index >= len(d.offsets) {
		return d.Decoder.DecodeDirectory(ctx, index)
	}
	d.mu.Lock()
	img, found := d.images[index]
	d.mu.Unlock()
	if found {
		return img, nil
	}
	dir, err := d.Decoder.DecodeDirectoryAt(ctx, d.offsets[index])
	if err != nil {
		return nil, fmt.Errorf("directory %d at offset %d: %w", index, d.offsets[index], err)
	}
	img = &Image{Directory: dir, Header: d.Header()}
	d.mu.Lock()
	d.images[index] = img
	d.mu.Unlock()
	return img, nil
}
