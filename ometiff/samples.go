package ometiff

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/janelia-flyem/pyramid/pyramid"
)

var errNoPixels = fmt.Errorf("not enough pixel data: %w", pyramid.ErrFormat)

// chunkLayout places one decoded tile or strip within the read window.
type chunkLayout struct {
	index         int
	x0, y0        int // chunk origin in the image
	width, height int // chunk extent as stored

	samples    int // samples per pixel stored in the chunk
	sample     int // output sample filled by a planar chunk, or -1 for chunky data
	outSamples int
	win        pyramid.Window
}

func copySamples(dst any, src []byte, bps int, order binary.ByteOrder, l chunkLayout) error {
	switch d := dst.(type) {
	case []uint8:
		return copyTyped(d, src, bps, l, func(b []byte) uint8 { return b[0] })
	case []int8:
		return copyTyped(d, src, bps, l, func(b []byte) int8 { return int8(b[0]) })
	case []uint16:
		return copyTyped(d, src, bps, l, func(b []byte) uint16 { return order.Uint16(b) })
	case []int16:
		return copyTyped(d, src, bps, l, func(b []byte) int16 { return int16(order.Uint16(b)) })
	case []uint32:
		return copyTyped(d, src, bps, l, func(b []byte) uint32 { return order.Uint32(b) })
	case []int32:
		return copyTyped(d, src, bps, l, func(b []byte) int32 { return int32(order.Uint32(b)) })
	case []float32:
		if bps == 2 {
			return copyTyped(d, src, bps, l, func(b []byte) float32 { return halfToFloat32(order.Uint16(b)) })
		}
		return copyTyped(d, src, bps, l, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) })
	case []float64:
		return copyTyped(d, src, bps, l, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) })
	}
	return fmt.Errorf("unsupported sample buffer %T: %w", dst, pyramid.ErrFormat)
}

func copyTyped[T pyramid.Number](dst []T, src []byte, bps int, l chunkLayout, conv func([]byte) T) error {
	xs, xe := max(l.x0, l.win.X0), min(l.x0+l.width, l.win.X1)
	ys, ye := max(l.y0, l.win.Y0), min(l.y0+l.height, l.win.Y1)
	winWidth := l.win.Width()
	for y := ys; y < ye; y++ {
		for x := xs; x < xe; x++ {
			srcPix := ((y-l.y0)*l.width + (x - l.x0)) * l.samples
			dstPix := ((y-l.win.Y0)*winWidth + (x - l.win.X0)) * l.outSamples
			if l.sample >= 0 {
				off := srcPix * bps
				if off+bps > len(src) {
					return errNoPixels
				}
				dst[dstPix+l.sample] = conv(src[off:])
				continue
			}
			for s := 0; s < l.outSamples; s++ {
				off := (srcPix + s) * bps
				if off+bps > len(src) {
					return errNoPixels
				}
				dst[dstPix+s] = conv(src[off:])
			}
		}
	}
	return nil
}

// halfToFloat32 converts an IEEE 754 half precision value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff
	switch exp {
	case 0:
		f := float32(frac) / (1 << 24)
		if sign != 0 {
			return -f
		}
		return f
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
}
