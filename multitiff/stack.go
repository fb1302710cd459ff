package multitiff

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/pyramid/ometiff"
	"github.com/janelia-flyem/pyramid/pyramid"
)

// StackOrder is the dimension order of every stitched stack.
const StackOrder = pyramid.XYZCT

// StackPlane places a plane at a (t, c, z) coordinate.
type StackPlane struct {
	Selection pyramid.Selection
	Plane     Plane
}

// StackOptions modify stack construction.
type StackOptions struct {
	// Name of the synthesized image.
	Name string

	// ChannelNames must have one entry per channel if given.
	ChannelNames []string

	// AllowGaps accepts stacks with missing coordinates.  Reads of a missing coordinate
	// fail with a NotFoundError.  By default every coordinate up to the maximum index
	// along each dimension must be present.
	AllowGaps bool
}

// Stack stitches independent single-plane images into one pixel source.  It is
// immutable after construction.
type Stack struct {
	planes   map[string]Plane
	first    Plane
	sizes    pyramid.Sizes
	width    int
	height   int
	dtype    pyramid.DataType
	tileSize int
	shape    pyramid.Shape
	labels   pyramid.Labels
	meta     ometiff.ImageMeta

	photometric    int
	channelSamples []int
}

// NewStack validates the planes and builds the unified shape.  All planes must have
// the same width and height.  Each dimension's extent is one more than the largest
// index given for it.
func NewStack(planes []StackPlane, opts StackOptions) (*Stack, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("no planes given for stack: %w", pyramid.ErrFormat)
	}
	first := planes[0].Plane
	s := &Stack{
		planes:      make(map[string]Plane, len(planes)),
		first:       first,
		width:       first.Width(),
		height:      first.Height(),
		photometric: first.Photometric(),
		labels:      StackOrder.Labels(),
	}
	for i, sp := range planes {
		if sp.Plane.Width() != s.width || sp.Plane.Height() != s.height {
			return nil, fmt.Errorf("all images must have the same width and height, plane %d is %d x %d, expected %d x %d: %w",
				i, sp.Plane.Width(), sp.Plane.Height(), s.width, s.height, pyramid.ErrFormat)
		}
		if err := sp.Selection.Validate(s.labels); err != nil {
			return nil, fmt.Errorf("plane %d: %w", i, err)
		}
		key := sp.Selection.Key()
		if _, found := s.planes[key]; found {
			return nil, fmt.Errorf("plane %d duplicates selection %s: %w", i, sp.Selection, pyramid.ErrIndex)
		}
		s.planes[key] = sp.Plane
		s.sizes.T = max(s.sizes.T, sp.Selection.T()+1)
		s.sizes.C = max(s.sizes.C, sp.Selection.C()+1)
		s.sizes.Z = max(s.sizes.Z, sp.Selection.Z()+1)
	}
	var err error
	if s.dtype, err = first.DataType(); err != nil {
		return nil, err
	}
	s.tileSize = pyramid.PrevPowerOf2(min(first.TileWidth(), first.TileHeight()))
	s.shape = pyramid.Shape{s.sizes.T, s.sizes.C, s.sizes.Z, s.height, s.width}

	if s.channelSamples, err = channelSamplesPerPixel(planes, s.sizes.C); err != nil {
		return nil, err
	}
	if !opts.AllowGaps {
		if err := s.checkComplete(); err != nil {
			return nil, err
		}
	} else if missing := s.sizes.Planes() - len(s.planes); missing > 0 {
		pyramid.Warningf("Stack %q is missing %d of %d planes\n", opts.Name, missing, s.sizes.Planes())
	}
	if s.meta, err = s.metadata(opts); err != nil {
		return nil, err
	}
	return s, nil
}

// checkComplete probes every coordinate, t outermost and z innermost, and fails on
// the first missing one.
func (s *Stack) checkComplete() error {
	for t := 0; t < s.sizes.T; t++ {
		for c := 0; c < s.sizes.C; c++ {
			for z := 0; z < s.sizes.Z; z++ {
				if _, err := s.lookup(pyramid.NewSelection(t, c, z)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Stack) lookup(sel pyramid.Selection) (Plane, error) {
	plane, found := s.planes[sel.Key()]
	if !found {
		return nil, &pyramid.NotFoundError{Selection: pyramid.NewSelection(sel.T(), sel.C(), sel.Z())}
	}
	return plane, nil
}

// channelSamplesPerPixel returns the samples per pixel of each channel, which must be
// the same for every plane of a channel.
func channelSamplesPerPixel(planes []StackPlane, numChannels int) ([]int, error) {
	samples := make([]int, numChannels)
	for _, sp := range planes {
		c := sp.Selection.C()
		spp := sp.Plane.SamplesPerPixel()
		if samples[c] != 0 && samples[c] != spp {
			return nil, fmt.Errorf("channel samples per pixel mismatch for channel %d: %d and %d: %w",
				c, samples[c], spp, pyramid.ErrFormat)
		}
		samples[c] = spp
	}
	return samples, nil
}

func (s *Stack) metadata(opts StackOptions) (ometiff.ImageMeta, error) {
	if opts.ChannelNames == nil {
		opts.ChannelNames = make([]string, s.sizes.C)
		for i := range opts.ChannelNames {
			opts.ChannelNames[i] = fmt.Sprintf("Channel %d", i)
		}
	}
	if len(opts.ChannelNames) != s.sizes.C {
		return ometiff.ImageMeta{}, fmt.Errorf("wrong number of channel names (%d) for %d channels: %w",
			len(opts.ChannelNames), s.sizes.C, pyramid.ErrFormat)
	}
	const imageNumber = 0
	channels := make([]ometiff.ChannelMeta, s.sizes.C)
	for i := range channels {
		channels[i] = ometiff.ChannelMeta{
			ID:              fmt.Sprintf("Channel:%d:%d", imageNumber, i),
			Name:            opts.ChannelNames[i],
			SamplesPerPixel: s.channelSamples[i],
		}
	}
	var bigEndian bool
	if tp, ok := s.first.(*TiffPlane); ok {
		bigEndian = tp.BigEndian()
	}
	return ometiff.ImageMeta{
		ID:   fmt.Sprintf("Image:%d", imageNumber),
		Name: opts.Name,
		Pixels: ometiff.PixelsMeta{
			ID:             fmt.Sprintf("Pixels:%d", imageNumber),
			DimensionOrder: StackOrder,
			SizeX:          s.width,
			SizeY:          s.height,
			SizeZ:          s.sizes.Z,
			SizeC:          s.sizes.C,
			SizeT:          s.sizes.T,
			Type:           ometiff.PixelType(s.dtype),
			BigEndian:      bigEndian,
			Channels:       channels,
		},
	}, nil
}

// Metadata returns the synthesized image metadata.
func (s *Stack) Metadata() ometiff.ImageMeta { return s.meta }

// Shape returns the unified shape in t, c, z, y, x order.
func (s *Stack) Shape() pyramid.Shape { return s.shape }

// Sizes returns the non-spatial extents.
func (s *Stack) Sizes() pyramid.Sizes { return s.sizes }

// Levels returns 1 since stitched stacks have no reduced resolutions.
func (s *Stack) Levels() int { return 1 }

// Resolve returns the plane registered for the selection.
func (s *Stack) Resolve(ctx context.Context, sel pyramid.Selection, level int) (ometiff.ImageReader, error) {
	if err := pyramid.Aborted(ctx); err != nil {
		return nil, err
	}
	if level != 0 {
		return nil, fmt.Errorf("stack has no resolution level %d: %w", level, pyramid.ErrIndex)
	}
	if err := sel.Validate(s.labels); err != nil {
		return nil, err
	}
	if sel.T() >= s.sizes.T || sel.C() >= s.sizes.C || sel.Z() >= s.sizes.Z {
		return nil, fmt.Errorf("selection %s outside stack of %d timepoints, %d channels and %d z-sections: %w",
			sel, s.sizes.T, s.sizes.C, s.sizes.Z, pyramid.ErrIndex)
	}
	return s.lookup(sel)
}

// Source returns the pixel source over the stack.
func (s *Stack) Source() (*ometiff.TiffPixelSource, error) {
	meta := &pyramid.SourceMeta{PhotometricInterpretation: s.photometric}
	return ometiff.NewPixelSource(s, 0, s.dtype, s.tileSize, s.shape, s.labels, meta)
}
