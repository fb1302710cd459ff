/*
	Package codec holds decompressors for encoded tiles and chunks.  There is no global
	registration: a Registry value is built by the caller and passed to the sources and
	stores that need it, so different images can use different decoder sets.
*/
package codec

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"

	"github.com/janelia-flyem/pyramid/pyramid"
)

// Decompressor decodes src.  If maxSize > 0, output beyond maxSize bytes is an error.
type Decompressor func(src []byte, maxSize int) ([]byte, error)

// TIFF compression tag values with default decompressors.
const (
	TIFFNone     = 1
	TIFFLZW      = 5
	TIFFDeflate  = 8
	TIFFPackBits = 32773
	TIFFAdobe    = 32946
	TIFFZstd     = 50000
)

// TIFFKey returns the registry ID for a TIFF compression tag value.
func TIFFKey(compression int) string {
	return "tiff:" + strconv.Itoa(compression)
}

// Registry maps compressor IDs to decompressors.  It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Decompressor
	zstdec *zstd.Decoder
}

// NewRegistry returns a registry without any decompressors.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Decompressor)}
}

// DefaultRegistry returns a new registry holding decompressors for the common TIFF
// compression schemes and the zarr "gzip", "zlib" and "zstd" compressors.  An empty
// ID and "raw" denote uncompressed data.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("unable to create zstd decoder: %v", err)
	}
	r.zstdec = dec

	r.Register("", raw)
	r.Register("raw", raw)
	r.Register("gzip", gzipDecompress)
	r.Register("zlib", zlibDecompress)
	r.Register("zstd", r.zstdDecompress)

	r.Register(TIFFKey(TIFFNone), raw)
	r.Register(TIFFKey(TIFFLZW), lzwDecompress)
	r.Register(TIFFKey(TIFFDeflate), zlibDecompress)
	r.Register(TIFFKey(TIFFAdobe), zlibDecompress)
	r.Register(TIFFKey(TIFFPackBits), packBitsDecompress)
	r.Register(TIFFKey(TIFFZstd), r.zstdDecompress)
	return r, nil
}

// Register adds or replaces the decompressor for an ID.
func (r *Registry) Register(id string, d Decompressor) {
	r.mu.Lock()
	r.byID[id] = d
	r.mu.Unlock()
}

// Lookup returns the decompressor for an ID.
func (r *Registry) Lookup(id string) (Decompressor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, found := r.byID[id]
	return d, found
}

// IDs returns the sorted registered IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Decompress decodes src with the decompressor registered for the ID.
func (r *Registry) Decompress(id string, src []byte, maxSize int) ([]byte, error) {
	d, found := r.Lookup(id)
	if !found {
		return nil, fmt.Errorf("no decompressor registered for %q: %w", id, pyramid.ErrFormat)
	}
	out, err := d(src, maxSize)
	if err != nil {
		return nil, fmt.Errorf("%q decompression failed: %w", id, err)
	}
	return out, nil
}

// Close releases resources held by decompressors.
func (r *Registry) Close() {
	if r.zstdec != nil {
		r.zstdec.Close()
	}
}

func raw(src []byte, maxSize int) ([]byte, error) {
	if maxSize > 0 && len(src) > maxSize {
		return nil, fmt.Errorf("raw data of %d bytes exceeds %d", len(src), maxSize)
	}
	return src, nil
}

func readLimited(rd io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		return io.ReadAll(rd)
	}
	out, err := io.ReadAll(io.LimitReader(rd, int64(maxSize)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxSize {
		return nil, fmt.Errorf("decoded data exceeds %d bytes", maxSize)
	}
	return out, nil
}

func gzipDecompress(src []byte, maxSize int) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("can't uncompress gzip data: %v", err)
	}
	defer zr.Close()
	return readLimited(zr, maxSize)
}

func zlibDecompress(src []byte, maxSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("can't uncompress zlib data: %v", err)
	}
	defer zr.Close()
	return readLimited(zr, maxSize)
}

func (r *Registry) zstdDecompress(src []byte, maxSize int) ([]byte, error) {
	out, err := r.zstdec.DecodeAll(src, nil)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && len(out) > maxSize {
		return nil, fmt.Errorf("decoded data of %d bytes exceeds %d", len(out), maxSize)
	}
	return out, nil
}

// TIFF LZW is MSB-first with 8-bit literals and early code width change, which is
// what x/image/tiff/lzw implements.  Strips often end without a stop code, so a
// short read is accepted once some output was produced.
func lzwDecompress(src []byte, maxSize int) ([]byte, error) {
	rd := lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
	defer rd.Close()
	out, err := readLimited(rd, maxSize)
	if err == io.ErrUnexpectedEOF && len(out) > 0 {
		return out, nil
	}
	return out, err
}

func packBitsDecompress(src []byte, maxSize int) ([]byte, error) {
	out := make([]byte, 0, len(src)*2)
	for i := 0; i < len(src); {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(src) {
				return nil, fmt.Errorf("packbits literal run past end of data")
			}
			out = append(out, src[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(src) {
				return nil, fmt.Errorf("packbits repeat run past end of data")
			}
			for j := 0; j < 1-n; j++ {
				out = append(out, src[i])
			}
			i++
		}
		if maxSize > 0 && len(out) > maxSize {
			return nil, fmt.Errorf("decoded data exceeds %d bytes", maxSize)
		}
	}
	return out, nil
}
