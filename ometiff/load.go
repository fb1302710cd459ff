package ometiff

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/pyramid/codec"
	"github.com/janelia-flyem/pyramid/pyramid"
)

// LoadOptions modify how an OME-TIFF file is opened.
type LoadOptions struct {
	// Offsets, if given, are the byte offsets of each top-level directory and let
	// directories be read without walking the chain.
	Offsets []uint64

	// AllImages loads every image in a multi-image file instead of only the first.
	AllImages bool

	// Codecs overrides the decoder's codec registry for raster reads.
	Codecs *codec.Registry

	// Concurrency limits tile decodes within one raster read.
	Concurrency int
}

// OptionsFromConfig returns load options using the [read] settings.
func OptionsFromConfig(c pyramid.Config) LoadOptions {
	return LoadOptions{Concurrency: c.Read.Concurrency}
}

// Loaded is the pyramid and metadata of one image.
type Loaded struct {
	Data     pyramid.Pyramid
	Metadata ImageMeta
}

// Open creates a file decoder over r and loads the images described by the metadata.
// If codecs is nil, the default registry is used.
func Open(ctx context.Context, r RangeReader, images []ImageMeta, codecs *codec.Registry, opts LoadOptions) ([]Loaded, error) {
	if codecs == nil {
		var err error
		if codecs, err = codec.DefaultRegistry(); err != nil {
			return nil, err
		}
	}
	dec, err := NewFileDecoder(ctx, r, codecs)
	if err != nil {
		return nil, err
	}
	return Load(ctx, dec, images, opts)
}

// Load builds the resolution pyramids of an OME-TIFF.  The images are the OME
// metadata of the file in document order.  If the first directory has SubIFDs, each
// image has len(SubIFDs)+1 levels; otherwise the file is a flat run where each OME
// image is one resolution level of a single pyramid.
func Load(ctx context.Context, dec Decoder, images []ImageMeta, opts LoadOptions) ([]Loaded, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no OME image metadata given: %w", pyramid.ErrFormat)
	}
	if opts.Offsets != nil {
		dec = WithOffsets(dec, opts.Offsets)
	}
	first, err := dec.DecodeDirectory(ctx, 0)
	if err != nil {
		return nil, pyramid.CheckAborted(ctx, err)
	}
	read := readSettings{codecs: opts.Codecs, concurrency: opts.Concurrency}

	subIFDs := len(first.SubIFDs) > 0
	rootMeta := images
	var levels int
	if subIFDs {
		levels = len(first.SubIFDs) + 1
	} else {
		levels = len(images)
		rootMeta = images[:1]
	}
	if !opts.AllImages {
		rootMeta = rootMeta[:1]
	}

	sizes := make([]pyramid.Sizes, len(images))
	for i := range images {
		sizes[i] = images[i].Pixels.Sizes()
	}
	tileSize := GuessTileSize(first.Directory)
	loaded := make([]Loaded, 0, len(rootMeta))
	for image, meta := range rootMeta {
		px := &meta.Pixels
		indexer, err := pyramid.NewPlaneIndexer(px.DimensionOrder, px.Sizes(), pyramid.ImageOffset(sizes, image))
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", image, err)
		}
		var resolver Resolver
		if subIFDs {
			resolver = newSubIFDResolver(dec, indexer, levels, read)
		} else {
			resolver = newLegacyResolver(dec, indexer, levels, read)
		}
		p, err := newPyramid(resolver, px, tileSize, &pyramid.SourceMeta{
			PhotometricInterpretation: first.Photometric,
			PhysicalSizes:             px.PhysicalSizes(),
		})
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", image, err)
		}
		loaded = append(loaded, Loaded{Data: p, Metadata: meta})
		pyramid.Infof("Loaded OME-TIFF image %d %q: %d x %d, %s, %d levels, tile size %d\n",
			image, meta.Name, px.SizeX, px.SizeY, px.DimensionOrder, levels, tileSize)
	}
	return loaded, nil
}

func newPyramid(resolver Resolver, px *PixelsMeta, tileSize int, meta *pyramid.SourceMeta) (pyramid.Pyramid, error) {
	dtype, err := px.DataType()
	if err != nil {
		return nil, err
	}
	labels, err := px.Labels()
	if err != nil {
		return nil, err
	}
	p := make(pyramid.Pyramid, resolver.Levels())
	for level := range p {
		shape, err := px.Shape(level)
		if err != nil {
			return nil, err
		}
		if p[level], err = NewPixelSource(resolver, level, dtype, tileSize, shape, labels, meta); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
