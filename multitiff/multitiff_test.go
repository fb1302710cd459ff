package multitiff

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"golang.org/x/image/tiff"

	"github.com/janelia-flyem/pyramid/ometiff"
	"github.com/janelia-flyem/pyramid/pyramid"
	"github.com/janelia-flyem/pyramid/storage/blobstore"
)

func value(c, z, x, y int) uint16 {
	return uint16(c*1000 + z*100 + (x+y*3)%100)
}

func grayPlane(w, h, c, z int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value(c, z, x, y)})
		}
	}
	return img
}

func stackPlanes(w, h int, sels ...pyramid.Selection) []StackPlane {
	planes := make([]StackPlane, len(sels))
	for i, sel := range sels {
		planes[i] = StackPlane{Selection: sel, Plane: NewImagePlane(grayPlane(w, h, sel.C(), sel.Z()))}
	}
	return planes
}

func TestStackShapeAndRead(t *testing.T) {
	var sels []pyramid.Selection
	for c := 0; c < 2; c++ {
		for z := 0; z < 3; z++ {
			sels = append(sels, pyramid.NewSelection(0, c, z))
		}
	}
	stack, err := NewStack(stackPlanes(40, 30, sels...), StackOptions{Name: "cells"})
	require.NoError(t, err)
	require.Equal(t, pyramid.Shape{1, 2, 3, 30, 40}, stack.Shape())
	require.Equal(t, pyramid.Sizes{C: 2, Z: 3, T: 1}, stack.Sizes())

	src, err := stack.Source()
	require.NoError(t, err)
	require.Equal(t, pyramid.Uint16, src.DataType())
	require.Equal(t, 16, src.TileSize())
	require.Equal(t, pyramid.Labels{"t", "c", "z", "y", "x"}, src.Labels())

	ctx := context.Background()
	r, err := src.GetRaster(ctx, pyramid.NewSelection(0, 1, 2))
	require.NoError(t, err)
	require.Equal(t, 40, r.Width)
	require.Equal(t, 30, r.Height)
	data := r.Data.([]uint16)
	require.Equal(t, value(1, 2, 5, 7), data[7*40+5])

	// Edge tile is clipped to the image.
	tile, err := src.GetTile(ctx, 2, 1, pyramid.NewSelection(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 8, tile.Width)
	require.Equal(t, 14, tile.Height)
	require.Equal(t, value(0, 1, 32, 16), tile.Data.([]uint16)[0])

	_, err = src.GetRaster(ctx, pyramid.NewSelection(0, 2, 0))
	require.ErrorIs(t, err, pyramid.ErrIndex)

	meta := stack.Metadata()
	require.Equal(t, "cells", meta.Name)
	require.Equal(t, "Image:0", meta.ID)
	require.Equal(t, "Pixels:0", meta.Pixels.ID)
	require.Equal(t, pyramid.XYZCT, meta.Pixels.DimensionOrder)
	require.Equal(t, "uint16", meta.Pixels.Type)
	require.Len(t, meta.Pixels.Channels, 2)
	require.Equal(t, "Channel:0:1", meta.Pixels.Channels[1].ID)
	require.Equal(t, "Channel 0", meta.Pixels.Channels[0].Name)
	require.Equal(t, "Channel 1", meta.Pixels.Channels[1].Name)
	require.Equal(t, "3 x 1", meta.Summary()["Z-sections/Timepoints"])
}

func TestStackMissingPlane(t *testing.T) {
	planes := stackPlanes(20, 20,
		pyramid.NewSelection(0, 0, 0),
		pyramid.NewSelection(0, 2, 0),
	)
	_, err := NewStack(planes, StackOptions{})
	require.ErrorIs(t, err, pyramid.ErrNotFound)
	var nf *pyramid.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, 1, nf.Selection.C())
	require.Contains(t, err.Error(), "(t=0 c=1 z=0)")

	stack, err := NewStack(planes, StackOptions{AllowGaps: true})
	require.NoError(t, err)
	require.Equal(t, pyramid.Shape{1, 3, 1, 20, 20}, stack.Shape())
	src, err := stack.Source()
	require.NoError(t, err)

	ctx := context.Background()
	_, err = src.GetRaster(ctx, pyramid.NewSelection(0, 1, 0))
	require.ErrorIs(t, err, pyramid.ErrNotFound)

	// Missing planes are logged and give no tile.
	tile, err := pyramid.Pyramid{src}.GetTile(ctx, 0, 0, 0, pyramid.NewSelection(0, 1, 0))
	require.NoError(t, err)
	require.Nil(t, tile)

	tile, err = pyramid.Pyramid{src}.GetTile(ctx, 0, 0, 0, pyramid.NewSelection(0, 2, 0))
	require.NoError(t, err)
	require.Equal(t, value(2, 0, 0, 0), tile.Data.([]uint16)[0])
}

func TestStackValidation(t *testing.T) {
	planes := stackPlanes(20, 20, pyramid.NewSelection(0, 0, 0))
	planes = append(planes, StackPlane{
		Selection: pyramid.NewSelection(0, 1, 0),
		Plane:     NewImagePlane(grayPlane(20, 21, 1, 0)),
	})
	_, err := NewStack(planes, StackOptions{})
	require.ErrorIs(t, err, pyramid.ErrFormat)
	require.Contains(t, err.Error(), "same width and height")

	planes = stackPlanes(20, 20, pyramid.NewSelection(0, 0, 0))
	planes = append(planes, StackPlane{
		Selection: pyramid.NewSelection(0, 0, 1),
		Plane:     NewImagePlane(image.NewRGBA64(image.Rect(0, 0, 20, 20))),
	})
	_, err = NewStack(planes, StackOptions{})
	require.ErrorIs(t, err, pyramid.ErrFormat)
	require.Contains(t, err.Error(), "samples per pixel mismatch")

	planes = stackPlanes(20, 20, pyramid.NewSelection(0, 0, 0), pyramid.NewSelection(0, 1, 0))
	_, err = NewStack(planes, StackOptions{ChannelNames: []string{"only"}})
	require.ErrorIs(t, err, pyramid.ErrFormat)
	require.Contains(t, err.Error(), "wrong number of channel names")

	planes = stackPlanes(20, 20, pyramid.NewSelection(0, 0, 0), pyramid.NewSelection(0, 0, 0))
	_, err = NewStack(planes, StackOptions{})
	require.ErrorIs(t, err, pyramid.ErrIndex)

	_, err = NewStack(nil, StackOptions{})
	require.ErrorIs(t, err, pyramid.ErrFormat)
}

func TestCancelledStackRead(t *testing.T) {
	stack, err := NewStack(stackPlanes(20, 20, pyramid.NewSelection(0, 0, 0)), StackOptions{})
	require.NoError(t, err)
	src, err := stack.Source()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.GetRaster(ctx, pyramid.NewSelection(0, 0, 0))
	require.True(t, pyramid.IsAborted(err))
}

func encodeTIFF(t *testing.T, img image.Image, opts *tiff.Options) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, opts))
	return buf.Bytes()
}

func TestDecodePlane(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	plane, err := DecodePlane(bytes.NewReader(encodeTIFF(t, img, nil)))
	require.NoError(t, err)
	require.Equal(t, 9, plane.Width())
	require.Equal(t, 1, plane.SamplesPerPixel())
	require.Equal(t, 1, plane.Photometric())
	dtype, err := plane.DataType()
	require.NoError(t, err)
	require.Equal(t, pyramid.Uint8, dtype)

	r, err := plane.ReadRaster(context.Background(), &pyramid.Window{X0: 2, Y0: 1, X1: 5, Y1: 3}, false)
	require.NoError(t, err)
	require.Equal(t, []uint8{11, 12, 13, 20, 21, 22}, r.Data)

	_, err = plane.ReadRaster(context.Background(), &pyramid.Window{X0: 8, Y0: 0, X1: 10, Y1: 1}, false)
	require.ErrorIs(t, err, pyramid.ErrBounds)

	_, err = DecodePlane(bytes.NewReader([]byte("not a tiff")))
	require.ErrorIs(t, err, pyramid.ErrFormat)
}

func TestImagePlaneRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	plane := NewImagePlane(img)
	require.Equal(t, 4, plane.SamplesPerPixel())
	require.Equal(t, 2, plane.Photometric())

	r, err := plane.ReadRaster(context.Background(), &pyramid.Window{X0: 1, X1: 2, Y1: 1}, true)
	require.NoError(t, err)
	require.Equal(t, []uint8{10, 20, 30, 255}, r.Data)

	r, err = plane.ReadRaster(context.Background(), &pyramid.Window{X0: 1, X1: 2, Y1: 1}, false)
	require.NoError(t, err)
	require.Equal(t, []uint8{10}, r.Data)
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		path, name, ext string
	}{
		{"gs://bucket/dir/c0.tif", "c0", "tif"},
		{"file:///data/sample.ome.TIFF", "sample.ome", "tiff"},
		{"mem://notes", "notes", ""},
		{"s3://bucket/c1.tif?region=us-east-1", "c1", "tif"},
	}
	for _, tc := range tests {
		name, ext := parseFilename(tc.path)
		require.Equal(t, tc.name, name, tc.path)
		require.Equal(t, tc.ext, ext, tc.path)
	}
	require.Equal(t, "c0", imageSelectionName("c0", 0, 1))
	require.Equal(t, "c0_2", imageSelectionName("c0", 2, 3))
}

func TestLoadFromBucket(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	for c := 0; c < 2; c++ {
		opts := &tiff.Options{Compression: tiff.Deflate, Predictor: c == 1}
		data := encodeTIFF(t, grayPlane(50, 20, c, 0), opts)
		require.NoError(t, bucket.WriteAll(ctx, []string{"dapi.tif", "gfp.tiff"}[c], data, nil))
	}
	require.NoError(t, bucket.WriteAll(ctx, "notes.txt", []byte("ignored"), nil))

	var opened int
	open := func(ctx context.Context, url string) (ometiff.RangeReader, io.Closer, error) {
		opened++
		obj, err := blobstore.NewObject(ctx, bucket, url)
		if err != nil {
			return nil, nil, err
		}
		return obj, io.NopCloser(nil), nil
	}
	files := []File{
		{URL: "dapi.tif", Selections: []pyramid.Selection{pyramid.NewSelection(0, 0, 0)}},
		{URL: "gfp.tiff", Selections: []pyramid.Selection{pyramid.NewSelection(0, 1, 0)}},
		{URL: "notes.txt", Selections: []pyramid.Selection{pyramid.NewSelection(0, 2, 0)}},
	}
	loaded, err := Load(ctx, files, LoadOptions{Open: open})
	require.NoError(t, err)
	defer loaded.Close()
	require.Equal(t, 2, opened)
	require.Len(t, loaded.Data, 1)
	require.Equal(t, DefaultName, loaded.Metadata.Name)
	require.Equal(t, "dapi", loaded.Metadata.Pixels.Channels[0].Name)
	require.Equal(t, "gfp", loaded.Metadata.Pixels.Channels[1].Name)
	require.False(t, loaded.Metadata.Pixels.BigEndian)

	src := loaded.Data[0]
	require.Equal(t, pyramid.Shape{1, 2, 1, 20, 50}, src.Shape())
	for c := 0; c < 2; c++ {
		r, err := src.GetRaster(ctx, pyramid.NewSelection(0, c, 0))
		require.NoError(t, err)
		data := r.Data.([]uint16)
		require.Equal(t, value(c, 0, 0, 0), data[0])
		require.Equal(t, value(c, 0, 49, 19), data[len(data)-1])
	}

	_, err = Load(ctx, files[2:], LoadOptions{Open: open})
	require.ErrorIs(t, err, pyramid.ErrFormat)

	_, err = Load(ctx, []File{{URL: "missing.tif", Selections: files[0].Selections}}, LoadOptions{Open: open})
	require.ErrorIs(t, err, pyramid.ErrNotFound)
}

func TestLoadFileURL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bucket, err := blob.OpenBucket(ctx, "file://"+dir)
	require.NoError(t, err)
	data := encodeTIFF(t, grayPlane(12, 10, 0, 0), nil)
	require.NoError(t, bucket.WriteAll(ctx, "plane.tif", data, nil))
	require.NoError(t, bucket.Close())

	files := []File{{URL: "file://" + dir + "/plane.tif", Selections: []pyramid.Selection{pyramid.NewSelection(0, 0, 0)}}}
	loaded, err := Load(ctx, files, LoadOptions{Name: "plane", ChannelNames: []string{"DAPI"}})
	require.NoError(t, err)
	defer func() { require.NoError(t, loaded.Close()) }()
	require.Equal(t, "DAPI", loaded.Metadata.Pixels.Channels[0].Name)

	r, err := loaded.Data[0].GetRaster(ctx, pyramid.NewSelection(0, 0, 0))
	require.NoError(t, err)
	require.Equal(t, value(0, 0, 11, 9), r.Data.([]uint16)[12*10-1])
}

func TestOptionsFromConfig(t *testing.T) {
	c := pyramid.DefaultConfig()
	require.False(t, OptionsFromConfig(c).AllowGaps)
	c.Read.StrictStack = false
	require.True(t, OptionsFromConfig(c).AllowGaps)
}
