/*
	This file has a TIFF decode service over a byte range reader.  It handles classic and
	BigTIFF files, tiled or stripped, chunky or planar, with byte-aligned samples.
*/

package ometiff

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/pyramid/codec"
	"github.com/janelia-flyem/pyramid/pyramid"
)

// RangeReader reads byte ranges of a file.
type RangeReader interface {
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)
}

type readerAt struct {
	r io.ReaderAt
}

// ReaderAt adapts an io.ReaderAt, e.g., an *os.File, to a RangeReader.
func ReaderAt(r io.ReaderAt) RangeReader {
	return readerAt{r}
}

func (ra readerAt) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return nil, err
	}
	p := make([]byte, length)
	n, err := ra.r.ReadAt(p, offset)
	if n == len(p) {
		return p, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read of %d bytes at offset %d: %w", length, offset, err)
}

// TIFF tags read by the decoder.
const (
	tImageWidth      = 256
	tImageLength     = 257
	tBitsPerSample   = 258
	tCompression     = 259
	tPhotometric     = 262
	tImageDesc       = 270
	tStripOffsets    = 273
	tSamplesPerPixel = 277
	tRowsPerStrip    = 278
	tStripByteCounts = 279
	tPlanarConfig    = 284
	tPredictor       = 317
	tTileWidth       = 322
	tTileLength      = 323
	tTileOffsets     = 324
	tTileByteCounts  = 325
	tSubIFDs         = 330
	tSampleFormat    = 339
)

// IFD entry data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtIFD       = 13
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

var typeLengths = map[uint16]int{
	dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4, dtRational: 8, dtSByte: 1,
	dtUndefined: 1, dtSShort: 2, dtSLong: 4, dtSRational: 8, dtFloat: 4, dtDouble: 8,
	dtIFD: 4, dtLong8: 8, dtSLong8: 8, dtIFD8: 8,
}

const (
	maxDirectories = 1 << 20
	maxEntryValues = 1 << 28
)

// FileDecoder decodes directories and rasters of a TIFF file.  It is safe for
// concurrent use.
type FileDecoder struct {
	r      RangeReader
	order  binary.ByteOrder
	header Header
	codecs *codec.Registry

	walkMu sync.Mutex // serializes directory chain walks
	mu     sync.Mutex
	ifds   []uint64 // directory offsets discovered so far, in chain order
	next   uint64   // offset of the next undiscovered directory, 0 at chain end
	images map[int]*Image
}

// NewFileDecoder reads the file header.  The codec registry decompresses tiles and
// strips unless a read supplies its own.
func NewFileDecoder(ctx context.Context, r RangeReader, codecs *codec.Registry) (*FileDecoder, error) {
	p, err := r.ReadRange(ctx, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("unable to read TIFF header: %w", err)
	}
	d := &FileDecoder{
		r:      r,
		codecs: codecs,
		images: make(map[int]*Image),
	}
	switch string(p[0:2]) {
	case "II":
		d.order = binary.LittleEndian
		d.header.LittleEndian = true
	case "MM":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("bad TIFF byte order mark %q: %w", p[0:2], pyramid.ErrFormat)
	}
	switch version := d.order.Uint16(p[2:4]); version {
	case 42:
		d.next = uint64(d.order.Uint32(p[4:8]))
	case 43:
		d.header.BigTIFF = true
		if d.order.Uint16(p[4:6]) != 8 {
			return nil, fmt.Errorf("BigTIFF offset size must be 8: %w", pyramid.ErrFormat)
		}
		p, err = r.ReadRange(ctx, 8, 8)
		if err != nil {
			return nil, fmt.Errorf("unable to read BigTIFF header: %w", err)
		}
		d.next = d.order.Uint64(p)
	default:
		return nil, fmt.Errorf("bad TIFF version %d: %w", version, pyramid.ErrFormat)
	}
	if d.next == 0 {
		return nil, fmt.Errorf("TIFF has no image directories: %w", pyramid.ErrFormat)
	}
	return d, nil
}

// Header returns the file-level fields.
func (d *FileDecoder) Header() Header {
	return d.header
}

func (d *FileDecoder) entrySizes() (countSize, entrySize, offsetSize int) {
	if d.header.BigTIFF {
		return 8, 20, 8
	}
	return 2, 12, 4
}

func (d *FileDecoder) uint(p []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(p[0])
	case 2:
		return uint64(d.order.Uint16(p))
	case 4:
		return uint64(d.order.Uint32(p))
	}
	return d.order.Uint64(p)
}

// numEntries reads the entry count of the directory at offset.
func (d *FileDecoder) numEntries(ctx context.Context, offset uint64) (int, error) {
	countSize, _, _ := d.entrySizes()
	p, err := d.r.ReadRange(ctx, int64(offset), int64(countSize))
	if err != nil {
		return 0, err
	}
	n := d.uint(p, countSize)
	if n == 0 || n > 1<<16 {
		return 0, fmt.Errorf("directory at offset %d has %d entries: %w", offset, n, pyramid.ErrFormat)
	}
	return int(n), nil
}

// nextOffset returns the offset of the directory following the one at offset.
func (d *FileDecoder) nextOffset(ctx context.Context, offset uint64) (uint64, error) {
	n, err := d.numEntries(ctx, offset)
	if err != nil {
		return 0, err
	}
	countSize, entrySize, offsetSize := d.entrySizes()
	pos := int64(offset) + int64(countSize) + int64(n*entrySize)
	p, err := d.r.ReadRange(ctx, pos, int64(offsetSize))
	if err != nil {
		return 0, err
	}
	return d.uint(p, offsetSize), nil
}

// DecodeDirectory walks the directory chain to the index-th directory.
func (d *FileDecoder) DecodeDirectory(ctx context.Context, index int) (*Image, error) {
	if index < 0 {
		return nil, fmt.Errorf("bad directory index %d: %w", index, pyramid.ErrIndex)
	}
	d.mu.Lock()
	img, found := d.images[index]
	d.mu.Unlock()
	if found {
		return img, nil
	}
	offset, err := d.directoryOffset(ctx, index)
	if err != nil {
		return nil, err
	}

	dir, err := d.DecodeDirectoryAt(ctx, offset)
	if err != nil {
		return nil, fmt.Errorf("directory %d: %w", index, err)
	}
	img = &Image{Directory: dir, Header: d.header}
	d.mu.Lock()
	d.images[index] = img
	d.mu.Unlock()
	return img, nil
}

// directoryOffset returns the offset of the index-th directory, walking the chain as
// far as needed.  Only one walk runs at a time, and d.mu is not held during its reads.
func (d *FileDecoder) directoryOffset(ctx context.Context, index int) (uint64, error) {
	d.mu.Lock()
	if index < len(d.ifds) {
		offset := d.ifds[index]
		d.mu.Unlock()
		return offset, nil
	}
	d.mu.Unlock()

	d.walkMu.Lock()
	defer d.walkMu.Unlock()
	for {
		d.mu.Lock()
		n, offset := len(d.ifds), d.next
		if index < n {
			offset = d.ifds[index]
			d.mu.Unlock()
			return offset, nil
		}
		d.mu.Unlock()
		if offset == 0 {
			return 0, fmt.Errorf("directory %d requested but TIFF has %d: %w", index, n, pyramid.ErrIndex)
		}
		if n >= maxDirectories {
			return 0, fmt.Errorf("TIFF directory chain exceeds %d entries: %w", maxDirectories, pyramid.ErrFormat)
		}
		next, err := d.nextOffset(ctx, offset)
		if err != nil {
			return 0, err
		}
		d.mu.Lock()
		d.ifds = append(d.ifds, offset)
		d.next = next
		d.mu.Unlock()
	}
}

// DecodeDirectoryAt parses the directory at a byte offset.
func (d *FileDecoder) DecodeDirectoryAt(ctx context.Context, offset uint64) (*Directory, error) {
	n, err := d.numEntries(ctx, offset)
	if err != nil {
		return nil, err
	}
	countSize, entrySize, _ := d.entrySizes()
	block, err := d.r.ReadRange(ctx, int64(offset)+int64(countSize), int64(n*entrySize))
	if err != nil {
		return nil, err
	}
	dir := &Directory{
		SamplesPerPixel: 1,
		BitsPerSample:   1,
		SampleFormat:    1,
		Compression:     codec.TIFFNone,
		Predictor:       1,
		PlanarConfig:    1,
	}
	var rowsPerStrip uint64
	for i := 0; i < n; i++ {
		entry := block[i*entrySize : (i+1)*entrySize]
		tag := d.order.Uint16(entry[0:2])
		switch tag {
		case tImageWidth, tImageLength, tBitsPerSample, tCompression, tPhotometric,
			tStripOffsets, tSamplesPerPixel, tRowsPerStrip, tStripByteCounts, tPlanarConfig,
			tPredictor, tTileWidth, tTileLength, tTileOffsets, tTileByteCounts, tSubIFDs,
			tSampleFormat, tImageDesc:
		default:
			continue
		}
		vals, raw, err := d.entryValues(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", tag, err)
		}
		if len(vals) == 0 {
			continue
		}
		switch tag {
		case tImageWidth:
			dir.Width = int(vals[0])
		case tImageLength:
			dir.Height = int(vals[0])
		case tBitsPerSample:
			dir.BitsPerSample = int(vals[0])
		case tCompression:
			dir.Compression = int(vals[0])
		case tPhotometric:
			dir.Photometric = int(vals[0])
		case tImageDesc:
			dir.Description = trimNul(raw)
		case tStripOffsets, tTileOffsets:
			dir.Offsets = vals
		case tStripByteCounts, tTileByteCounts:
			dir.ByteCounts = vals
		case tSamplesPerPixel:
			dir.SamplesPerPixel = int(vals[0])
		case tRowsPerStrip:
			rowsPerStrip = vals[0]
		case tPlanarConfig:
			dir.PlanarConfig = int(vals[0])
		case tPredictor:
			dir.Predictor = int(vals[0])
		case tTileWidth:
			dir.TileWidth = int(vals[0])
			dir.Tiled = true
		case tTileLength:
			dir.TileHeight = int(vals[0])
		case tSubIFDs:
			dir.SubIFDs = vals
		case tSampleFormat:
			dir.SampleFormat = int(vals[0])
		}
	}
	if dir.Width <= 0 || dir.Height <= 0 {
		return nil, fmt.Errorf("directory at offset %d has no image size: %w", offset, pyramid.ErrFormat)
	}
	if !dir.Tiled {
		dir.TileWidth = dir.Width
		dir.TileHeight = dir.Height
		if rowsPerStrip > 0 && rowsPerStrip < uint64(dir.Height) {
			dir.TileHeight = int(rowsPerStrip)
		}
	}
	if dir.TileWidth <= 0 || dir.TileHeight <= 0 {
		return nil, fmt.Errorf("directory at offset %d has bad tile size %d x %d: %w",
			offset, dir.TileWidth, dir.TileHeight, pyramid.ErrFormat)
	}
	if len(dir.Offsets) != len(dir.ByteCounts) {
		return nil, fmt.Errorf("directory at offset %d has %d offsets and %d byte counts: %w",
			offset, len(dir.Offsets), len(dir.ByteCounts), pyramid.ErrFormat)
	}
	return dir, nil
}

func trimNul(raw []byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}

// entryValues returns the unsigned values of a directory entry and its raw bytes.
func (d *FileDecoder) entryValues(ctx context.Context, entry []byte) ([]uint64, []byte, error) {
	typ := d.order.Uint16(entry[2:4])
	size, found := typeLengths[typ]
	if !found {
		return nil, nil, fmt.Errorf("unknown entry type %d: %w", typ, pyramid.ErrFormat)
	}
	var count uint64
	var inline []byte
	if d.header.BigTIFF {
		count = d.order.Uint64(entry[4:12])
		inline = entry[12:20]
	} else {
		count = uint64(d.order.Uint32(entry[4:8]))
		inline = entry[8:12]
	}
	if count > maxEntryValues {
		return nil, nil, fmt.Errorf("entry with %d values too large: %w", count, pyramid.ErrFormat)
	}
	datalen := int(count) * size
	raw := inline
	if datalen > len(inline) {
		var err error
		raw, err = d.r.ReadRange(ctx, int64(d.uint(inline, len(inline))), int64(datalen))
		if err != nil {
			return nil, nil, err
		}
	} else {
		raw = inline[:datalen]
	}
	switch typ {
	case dtByte, dtASCII, dtUndefined, dtShort, dtLong, dtIFD, dtLong8, dtIFD8:
	default:
		return nil, raw, nil
	}
	vals := make([]uint64, count)
	for i := range vals {
		vals[i] = d.uint(raw[i*size:], size)
	}
	return vals, raw, nil
}

// ReadRaster decodes the tiles or strips of img overlapping the read window.
func (d *FileDecoder) ReadRaster(ctx context.Context, img *Image, opts ReadOptions) (pyramid.Raster, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return pyramid.Raster{}, err
	}
	dtype, err := img.DataType()
	if err != nil {
		return pyramid.Raster{}, err
	}
	if img.BitsPerSample%8 != 0 {
		return pyramid.Raster{}, fmt.Errorf("%d bits per sample not supported: %w", img.BitsPerSample, pyramid.ErrFormat)
	}
	win := pyramid.Window{X1: img.Width, Y1: img.Height}
	if opts.Window != nil {
		win = *opts.Window
	}
	if win.Empty() || win.X0 < 0 || win.Y0 < 0 || win.X1 > img.Width || win.Y1 > img.Height {
		return pyramid.Raster{}, fmt.Errorf("window %s outside %d x %d image: %w", win, img.Width, img.Height, pyramid.ErrBounds)
	}
	codecs := opts.Codecs
	if codecs == nil {
		codecs = d.codecs
	}
	if codecs == nil {
		return pyramid.Raster{}, fmt.Errorf("no codec registry for TIFF read: %w", pyramid.ErrFormat)
	}
	outSamples := 1
	if opts.Interleave {
		outSamples = img.SamplesPerPixel
	}
	data, err := dtype.NewBuffer(win.Width() * win.Height() * outSamples)
	if err != nil {
		return pyramid.Raster{}, err
	}

	across := (img.Width + img.TileWidth - 1) / img.TileWidth
	down := (img.Height + img.TileHeight - 1) / img.TileHeight
	planes := 1
	if img.PlanarConfig == 2 {
		planes = outSamples
	}
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for plane := 0; plane < planes; plane++ {
		for ty := win.Y0 / img.TileHeight; ty <= (win.Y1-1)/img.TileHeight; ty++ {
			for tx := win.X0 / img.TileWidth; tx <= (win.X1-1)/img.TileWidth; tx++ {
				l := chunkLayout{
					index:      plane*across*down + ty*across + tx,
					x0:         tx * img.TileWidth,
					y0:         ty * img.TileHeight,
					width:      img.TileWidth,
					height:     img.TileHeight,
					samples:    img.SamplesPerPixel,
					sample:     -1,
					outSamples: outSamples,
					win:        win,
				}
				if img.PlanarConfig == 2 {
					l.samples = 1
					l.sample = plane
				}
				g.Go(func() error {
					return d.readChunk(gctx, img, codecs, l, data)
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return pyramid.Raster{}, pyramid.CheckAborted(ctx, err)
	}
	return pyramid.Raster{Data: data, Width: win.Width(), Height: win.Height()}, nil
}

func (d *FileDecoder) readChunk(ctx context.Context, img *Image, codecs *codec.Registry, l chunkLayout, dst any) error {
	if l.index >= len(img.Offsets) {
		return fmt.Errorf("chunk %d beyond %d chunks in directory: %w", l.index, len(img.Offsets), pyramid.ErrFormat)
	}
	raw, err := d.r.ReadRange(ctx, int64(img.Offsets[l.index]), int64(img.ByteCounts[l.index]))
	if err != nil {
		return err
	}
	bps := img.BitsPerSample / 8
	maxSize := l.width * l.height * l.samples * bps
	buf, err := codecs.Decompress(codec.TIFFKey(img.Compression), raw, maxSize)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", l.index, err)
	}
	switch img.Predictor {
	case 1:
	case 2:
		if img.SampleFormat == 3 {
			return fmt.Errorf("horizontal predictor on floating point samples not supported: %w", pyramid.ErrFormat)
		}
		if err := undoPredictor(buf, l.width*l.samples, l.samples, bps, d.order); err != nil {
			return err
		}
	default:
		return fmt.Errorf("predictor %d not supported: %w", img.Predictor, pyramid.ErrFormat)
	}
	return copySamples(dst, buf, bps, d.order, l)
}

// undoPredictor reverses horizontal differencing in place, row by row.
func undoPredictor(data []byte, rowSamples, samples, bps int, order binary.ByteOrder) error {
	rowBytes := rowSamples * bps
	if rowBytes == 0 {
		return nil
	}
	for start := 0; start+rowBytes <= len(data); start += rowBytes {
		row := data[start : start+rowBytes]
		stride := samples * bps
		switch bps {
		case 1:
			for i := stride; i < len(row); i++ {
				row[i] += row[i-stride]
			}
		case 2:
			for i := stride; i+2 <= len(row); i += 2 {
				order.PutUint16(row[i:], order.Uint16(row[i:])+order.Uint16(row[i-stride:]))
			}
		case 4:
			for i := stride; i+4 <= len(row); i += 4 {
				order.PutUint32(row[i:], order.Uint32(row[i:])+order.Uint32(row[i-stride:]))
			}
		default:
			return fmt.Errorf("horizontal predictor with %d bytes per sample not supported: %w", bps, pyramid.ErrFormat)
		}
	}
	return nil
}
