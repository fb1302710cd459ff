package ometiff

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/klauspost/compress/zlib"
)

// testIFD describes a uint16 directory written by tiffBuilder.  A zero tile size
// writes a single strip.
type testIFD struct {
	width, height int
	tile          int
	spp           int
	compression   int
	value         func(x, y, s int) uint16
	subIFDs       []testIFD
}

type tiffEntry struct {
	tag  uint16
	typ  uint16
	vals []uint32
}

// tiffBuilder writes little-endian classic TIFF files.
type tiffBuilder struct {
	buf      []byte
	lastNext int // position of the previous top-level next-directory offset
}

func newTIFFBuilder() *tiffBuilder {
	b := &tiffBuilder{buf: []byte{'I', 'I', 42, 0, 0, 0, 0, 0}}
	b.lastNext = 4
	return b
}

func (b *tiffBuilder) align() {
	if len(b.buf)%2 == 1 {
		b.buf = append(b.buf, 0)
	}
}

func (b *tiffBuilder) appendBytes(p []byte) uint32 {
	b.align()
	off := uint32(len(b.buf))
	b.buf = append(b.buf, p...)
	return off
}

// add appends a directory to the top-level chain and returns its offset.
func (b *tiffBuilder) add(t testIFD) uint32 {
	off, next := b.writeIFD(t)
	binary.LittleEndian.PutUint32(b.buf[b.lastNext:], off)
	b.lastNext = next
	return off
}

func (b *tiffBuilder) bytes() []byte {
	return b.buf
}

func (t testIFD) chunk(x0, y0, w, h int) []byte {
	spp := max(t.spp, 1)
	p := make([]byte, w*h*spp*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x0+x >= t.width || y0+y >= t.height {
				continue
			}
			for s := 0; s < spp; s++ {
				i := ((y*w + x) * spp) + s
				binary.LittleEndian.PutUint16(p[i*2:], t.value(x0+x, y0+y, s))
			}
		}
	}
	return p
}

func compress(p []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(p)
	zw.Close()
	return buf.Bytes()
}

// writeIFD writes the directory and its sub-directories, returning the directory
// offset and the position of its next-directory field.
func (b *tiffBuilder) writeIFD(t testIFD) (uint32, int) {
	var subOffsets []uint32
	for _, sub := range t.subIFDs {
		off, _ := b.writeIFD(sub)
		subOffsets = append(subOffsets, off)
	}
	spp := max(t.spp, 1)
	compression := max(t.compression, 1)

	var chunks [][]byte
	tw, th := t.width, t.height
	if t.tile > 0 {
		tw, th = t.tile, t.tile
	}
	for y := 0; y < t.height; y += th {
		for x := 0; x < t.width; x += tw {
			h := th
			if t.tile == 0 {
				h = min(th, t.height-y)
			}
			chunks = append(chunks, t.chunk(x, y, tw, h))
		}
	}
	var offsets, counts []uint32
	for _, c := range chunks {
		if compression == 8 {
			c = compress(c)
		}
		offsets = append(offsets, b.appendBytes(c))
		counts = append(counts, uint32(len(c)))
	}

	bps := make([]uint32, spp)
	for i := range bps {
		bps[i] = 16
	}
	photometric := uint32(1)
	if spp == 3 {
		photometric = 2
	}
	entries := []tiffEntry{
		{256, dtLong, []uint32{uint32(t.width)}},
		{257, dtLong, []uint32{uint32(t.height)}},
		{258, dtShort, bps},
		{259, dtShort, []uint32{uint32(compression)}},
		{262, dtShort, []uint32{photometric}},
		{277, dtShort, []uint32{uint32(spp)}},
		{339, dtShort, []uint32{1}},
	}
	if t.tile > 0 {
		entries = append(entries,
			tiffEntry{322, dtLong, []uint32{uint32(tw)}},
			tiffEntry{323, dtLong, []uint32{uint32(th)}},
			tiffEntry{324, dtLong, offsets},
			tiffEntry{325, dtLong, counts},
		)
	} else {
		entries = append(entries,
			tiffEntry{273, dtLong, offsets},
			tiffEntry{278, dtLong, []uint32{uint32(th)}},
			tiffEntry{279, dtLong, counts},
		)
	}
	if len(subOffsets) > 0 {
		entries = append(entries, tiffEntry{330, dtIFD, subOffsets})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// out-of-line values
	valueOffsets := make([]uint32, len(entries))
	for i, e := range entries {
		size := typeLengths[e.typ]
		if size*len(e.vals) <= 4 {
			continue
		}
		p := make([]byte, size*len(e.vals))
		for j, v := range e.vals {
			putValue(p[j*size:], size, v)
		}
		valueOffsets[i] = b.appendBytes(p)
	}

	b.align()
	off := uint32(len(b.buf))
	p := make([]byte, 2+12*len(entries)+4)
	binary.LittleEndian.PutUint16(p, uint16(len(entries)))
	for i, e := range entries {
		ep := p[2+12*i:]
		binary.LittleEndian.PutUint16(ep[0:], e.tag)
		binary.LittleEndian.PutUint16(ep[2:], e.typ)
		binary.LittleEndian.PutUint32(ep[4:], uint32(len(e.vals)))
		size := typeLengths[e.typ]
		if size*len(e.vals) <= 4 {
			for j, v := range e.vals {
				putValue(ep[8+j*size:], size, v)
			}
		} else {
			binary.LittleEndian.PutUint32(ep[8:], valueOffsets[i])
		}
	}
	b.buf = append(b.buf, p...)
	return off, int(off) + 2 + 12*len(entries)
}

func putValue(p []byte, size int, v uint32) {
	switch size {
	case 1:
		p[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(p, uint16(v))
	default:
		binary.LittleEndian.PutUint32(p, v)
	}
}
