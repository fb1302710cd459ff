package ometiff

import (
	"fmt"
	"strings"

	"github.com/janelia-flyem/pyramid/pyramid"
)

// ChannelMeta describes one channel of an image.
type ChannelMeta struct {
	ID              string
	Name            string
	SamplesPerPixel int
}

// PixelsMeta is the pixel description of one image, as supplied by a metadata
// service.  Type is an OME pixel type such as "uint16" or "float".
type PixelsMeta struct {
	ID             string
	DimensionOrder pyramid.DimensionOrder
	SizeX, SizeY   int
	SizeZ, SizeC   int
	SizeT          int
	Type           string
	Interleaved    bool
	BigEndian      bool

	PhysicalSizeX, PhysicalSizeY, PhysicalSizeZ             float64
	PhysicalSizeXUnit, PhysicalSizeYUnit, PhysicalSizeZUnit string

	Channels []ChannelMeta
}

// ImageMeta is the metadata of one image in a file.
type ImageMeta struct {
	ID              string
	Name            string
	AcquisitionDate string
	Description     string
	Pixels          PixelsMeta
}

// Sizes returns the non-spatial extents.
func (p *PixelsMeta) Sizes() pyramid.Sizes {
	return pyramid.Sizes{C: p.SizeC, Z: p.SizeZ, T: p.SizeT}
}

// DataType returns the sample type for the OME pixel type.
func (p *PixelsMeta) DataType() (pyramid.DataType, error) {
	switch p.Type {
	case "uint8", "uint16", "uint32", "int8", "int16", "int32", "float", "double":
		return pyramid.ParseDataType(p.Type)
	}
	return 0, fmt.Errorf("pixel type %q not supported: %w", p.Type, pyramid.ErrFormat)
}

// Labels returns the dimension labels, with a trailing "_c" for interleaved pixels.
func (p *PixelsMeta) Labels() (pyramid.Labels, error) {
	if err := p.DimensionOrder.Validate(); err != nil {
		return nil, err
	}
	labels := p.DimensionOrder.Labels()
	if p.Interleaved {
		labels = append(labels, pyramid.InterleaveLabel)
	}
	return labels, nil
}

// Shape returns the extents at a resolution level, where x and y are halved (rounded
// down) once per level.
func (p *PixelsMeta) Shape(level int) (pyramid.Shape, error) {
	labels, err := p.Labels()
	if err != nil {
		return nil, err
	}
	shape := make(pyramid.Shape, len(labels))
	for i, label := range labels {
		switch label {
		case "t":
			shape[i] = p.SizeT
		case "c":
			shape[i] = p.SizeC
		case "z":
			shape[i] = p.SizeZ
		case "y":
			shape[i] = p.SizeY
		case "x":
			shape[i] = p.SizeX
		case pyramid.InterleaveLabel:
			shape[i] = 3
		}
	}
	return pyramid.LevelShape(shape, labels, level)
}

// PhysicalSizes returns the physical pixel sizes, or nil if x and y are not both
// given.  The z size is only included if present.
func (p *PixelsMeta) PhysicalSizes() map[string]pyramid.PhysicalSize {
	if p.PhysicalSizeX == 0 || p.PhysicalSizeY == 0 {
		return nil
	}
	sizes := map[string]pyramid.PhysicalSize{
		"x": {Size: p.PhysicalSizeX, Unit: p.PhysicalSizeXUnit},
		"y": {Size: p.PhysicalSizeY, Unit: p.PhysicalSizeYUnit},
	}
	if p.PhysicalSizeZ != 0 {
		sizes["z"] = pyramid.PhysicalSize{Size: p.PhysicalSizeZ, Unit: p.PhysicalSizeZUnit}
	}
	return sizes
}

// Summary returns the display fields for an image.
func (m *ImageMeta) Summary() map[string]string {
	px := &m.Pixels
	sizes := make([]string, 0, 3)
	for _, ps := range []struct {
		size float64
		unit string
	}{
		{px.PhysicalSizeX, px.PhysicalSizeXUnit},
		{px.PhysicalSizeY, px.PhysicalSizeYUnit},
		{px.PhysicalSizeZ, px.PhysicalSizeZUnit},
	} {
		if ps.size != 0 && ps.unit != "" {
			sizes = append(sizes, fmt.Sprintf("%g %s", ps.size, ps.unit))
		} else {
			sizes = append(sizes, "-")
		}
	}
	return map[string]string{
		"Acquisition Date":      m.AcquisitionDate,
		"Dimensions (XY)":       fmt.Sprintf("%d x %d", px.SizeX, px.SizeY),
		"Pixels Type":           px.Type,
		"Pixels Size (XYZ)":     strings.Join(sizes, " x "),
		"Z-sections/Timepoints": fmt.Sprintf("%d x %d", px.SizeZ, px.SizeT),
		"Channels":              fmt.Sprintf("%d", px.SizeC),
	}
}

var omePixelTypes = map[pyramid.DataType]string{
	pyramid.Uint8:   "uint8",
	pyramid.Uint16:  "uint16",
	pyramid.Uint32:  "uint32",
	pyramid.Int8:    "int8",
	pyramid.Int16:   "int16",
	pyramid.Int32:   "int32",
	pyramid.Float32: "float",
	pyramid.Float64: "double",
}

// PixelType returns the OME pixel type name for a sample type.
func PixelType(dtype pyramid.DataType) string {
	return omePixelTypes[dtype]
}

// GuessDataType returns the sample type for a TIFF SampleFormat and BitsPerSample.
func GuessDataType(sampleFormat, bitsPerSample int) (pyramid.DataType, error) {
	switch sampleFormat {
	case 0, 1:
		switch {
		case bitsPerSample <= 8:
			return pyramid.Uint8, nil
		case bitsPerSample <= 16:
			return pyramid.Uint16, nil
		case bitsPerSample <= 32:
			return pyramid.Uint32, nil
		}
	case 2:
		switch {
		case bitsPerSample <= 8:
			return pyramid.Int8, nil
		case bitsPerSample <= 16:
			return pyramid.Int16, nil
		case bitsPerSample <= 32:
			return pyramid.Int32, nil
		}
	case 3:
		switch bitsPerSample {
		case 16, 32:
			return pyramid.Float32, nil
		case 64:
			return pyramid.Float64, nil
		}
	}
	return 0, fmt.Errorf("unsupported sample format %d with %d bits per sample: %w",
		sampleFormat, bitsPerSample, pyramid.ErrFormat)
}

// GuessTileSize returns the largest power of two that fits in a tile of the directory.
func GuessTileSize(dir *Directory) int {
	return pyramid.PrevPowerOf2(min(dir.TileWidth, dir.TileHeight))
}
