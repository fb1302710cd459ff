package ometiff

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/pyramid/codec"
	"github.com/janelia-flyem/pyramid/pyramid"
)

// ImageReader reads pixels of one resolved 2D image.  A nil window reads the full
// image.
type ImageReader interface {
	ReadRaster(ctx context.Context, window *pyramid.Window, interleave bool) (pyramid.Raster, error)
}

// Resolver finds the image holding a selection at a resolution level.
type Resolver interface {
	Resolve(ctx context.Context, sel pyramid.Selection, level int) (ImageReader, error)

	// Levels returns the number of resolution levels that can be resolved.
	Levels() int
}

// decodedImage reads a directory through the decode service.
type decodedImage struct {
	dec         Decoder
	img         *Image
	codecs      *codec.Registry
	concurrency int
}

func (d decodedImage) ReadRaster(ctx context.Context, window *pyramid.Window, interleave bool) (pyramid.Raster, error) {
	return d.dec.ReadRaster(ctx, d.img, ReadOptions{
		Window:      window,
		Interleave:  interleave,
		Codecs:      d.codecs,
		Concurrency: d.concurrency,
	})
}

// readSettings are passed through to every raster read.
type readSettings struct {
	codecs      *codec.Registry
	concurrency int
}

func (s readSettings) bind(dec Decoder, img *Image) decodedImage {
	return decodedImage{dec: dec, img: img, codecs: s.codecs, concurrency: s.concurrency}
}

func checkLevel(level, levels int) error {
	if level < 0 || level >= levels {
		return fmt.Errorf("resolution level %d outside %d levels: %w", level, levels, pyramid.ErrIndex)
	}
	return nil
}

// legacyResolver handles files where each resolution level repeats the full run of
// planes in the top-level directory chain.
type legacyResolver struct {
	dec     Decoder
	indexer *pyramid.PlaneIndexer
	levels  int
	read    readSettings
	cache   *pyramid.DirectoryCache[*Image]
}

func newLegacyResolver(dec Decoder, indexer *pyramid.PlaneIndexer, levels int, read readSettings) *legacyResolver {
	return &legacyResolver{
		dec:     dec,
		indexer: indexer,
		levels:  levels,
		read:    read,
		cache:   pyramid.NewDirectoryCache[*Image](),
	}
}

func (r *legacyResolver) Levels() int { return r.levels }

func (r *legacyResolver) Resolve(ctx context.Context, sel pyramid.Selection, level int) (ImageReader, error) {
	if err := checkLevel(level, r.levels); err != nil {
		return nil, err
	}
	index, err := r.indexer.LevelIndex(sel, level)
	if err != nil {
		return nil, err
	}
	img, err := r.cache.Get(ctx, sel.LevelKey(level), func(ctx context.Context) (*Image, error) {
		return r.dec.DecodeDirectory(ctx, index)
	})
	if err != nil {
		return nil, err
	}
	return r.read.bind(r.dec, img), nil
}

// subIFDResolver handles files where reduced resolutions hang off each full
// resolution directory as SubIFDs.  Full resolution directories and sub-directories
// are decoded lazily and cached.
type subIFDResolver struct {
	dec     Decoder
	indexer *pyramid.PlaneIndexer
	levels  int
	read    readSettings
	cache   *pyramid.DirectoryCache[*Image]
}

func newSubIFDResolver(dec Decoder, indexer *pyramid.PlaneIndexer, levels int, read readSettings) *subIFDResolver {
	return &subIFDResolver{
		dec:     dec,
		indexer: indexer,
		levels:  levels,
		read:    read,
		cache:   pyramid.NewDirectoryCache[*Image](),
	}
}

func (r *subIFDResolver) Levels() int { return r.levels }

func (r *subIFDResolver) Resolve(ctx context.Context, sel pyramid.Selection, level int) (ImageReader, error) {
	if err := checkLevel(level, r.levels); err != nil {
		return nil, err
	}
	index, err := r.indexer.Index(sel)
	if err != nil {
		return nil, err
	}
	base, err := r.cache.Get(ctx, sel.LevelKey(0), func(ctx context.Context) (*Image, error) {
		return r.dec.DecodeDirectory(ctx, index)
	})
	if err != nil {
		return nil, err
	}
	if level == 0 {
		return r.read.bind(r.dec, base), nil
	}
	if len(base.SubIFDs) == 0 {
		return nil, fmt.Errorf("OME-TIFF directory %d is missing SubIFDs: %w", index, pyramid.ErrFormat)
	}
	if level-1 >= len(base.SubIFDs) {
		return nil, fmt.Errorf("directory %d has %d SubIFDs, no level %d: %w",
			index, len(base.SubIFDs), level, pyramid.ErrIndex)
	}
	offset := base.SubIFDs[level-1]
	img, err := r.cache.Get(ctx, sel.LevelKey(level), func(ctx context.Context) (*Image, error) {
		dir, err := r.dec.DecodeDirectoryAt(ctx, offset)
		if err != nil {
			return nil, err
		}
		img := NewImage(dir, base)
		if pyramid.Verbose() {
			pyramid.Debugf("Decoded SubIFD %d of directory %d, directory cache holds %d entries (~%s)\n",
				level-1, index, r.cache.Len()+1, humanize.Bytes(uint64(r.cache.MemSize())))
		}
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return r.read.bind(r.dec, img), nil
}
