package zarr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/blang/semver"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/pyramid/ometiff"
	"github.com/janelia-flyem/pyramid/pyramid"
	"github.com/janelia-flyem/pyramid/storage/blobstore"
)

const multiscalesSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["datasets"],
		"properties": {
			"version": {"type": "string"},
			"datasets": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["path"],
					"properties": {"path": {"type": "string"}}
				}
			},
			"axes": {
				"type": "array",
				"items": {
					"oneOf": [
						{"type": "string"},
						{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}
					]
				}
			}
		}
	}
}`

// supportedVersions is the range of OME-NGFF multiscales versions stored as zarr v2.
var supportedVersions = semver.MustParseRange(">=0.1.0 <0.5.0")

var (
	multiscalesSchemaOnce sync.Once
	multiscalesSchemaC    *jsonschema.Schema
	multiscalesSchemaErr  error
)

func compiledMultiscalesSchema() (*jsonschema.Schema, error) {
	multiscalesSchemaOnce.Do(func() {
		multiscalesSchemaC, multiscalesSchemaErr = jsonschema.CompileString("multiscales.json", multiscalesSchema)
	})
	return multiscalesSchemaC, multiscalesSchemaErr
}

// DefaultLabels are used for groups without multiscales axes.
var DefaultLabels = pyramid.Labels{"t", "c", "z", "y", "x"}

type axis struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type multiscale struct {
	Version  string `json:"version"`
	Name     string `json:"name"`
	Datasets []struct {
		Path string `json:"path"`
	} `json:"datasets"`
	Axes []json.RawMessage `json:"axes"`
}

func (m *multiscale) labels() (pyramid.Labels, error) {
	if len(m.Axes) == 0 {
		return DefaultLabels, nil
	}
	labels := make(pyramid.Labels, len(m.Axes))
	for i, raw := range m.Axes {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			var a axis
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, fmt.Errorf("bad multiscales axis %s: %w", raw, pyramid.ErrFormat)
			}
			name = a.Name
		}
		labels[i] = name
	}
	return labels, nil
}

// Multiscales is an opened multi-resolution zarr group.
type Multiscales struct {
	Data      []*BlobArray
	RootAttrs map[string]any
	Labels    pyramid.Labels
}

// LoadMultiscales opens the group at path within the store.  With a "multiscales"
// attribute the first multiscale's datasets are the levels and its axes the labels.
// Otherwise the single array "0" with labels t, c, z, y, x is used.
func LoadMultiscales(ctx context.Context, store *blobstore.Store, path string, opts ArrayOptions) (*Multiscales, error) {
	grp := store.Sub(path)
	if _, err := grp.Get(ctx, ".zgroup"); err != nil {
		return nil, fmt.Errorf("no zarr group at %q: %w", grp.Path(""), err)
	}
	ms := &Multiscales{RootAttrs: map[string]any{}, Labels: DefaultLabels}
	paths := []string{"0"}

	attrs, err := grp.Get(ctx, ".zattrs")
	switch {
	case blobstore.IsNotFound(err):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(attrs, &ms.RootAttrs); err != nil {
			return nil, fmt.Errorf("bad .zattrs at %q: %v: %w", grp.Path(""), err, pyramid.ErrFormat)
		}
	}
	if v, found := ms.RootAttrs["multiscales"]; found {
		m, err := parseMultiscales(v)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", grp.Path(""), err)
		}
		paths = paths[:0]
		for _, d := range m.Datasets {
			paths = append(paths, d.Path)
		}
		if ms.Labels, err = m.labels(); err != nil {
			return nil, err
		}
	}

	ms.Data = make([]*BlobArray, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			arr, err := OpenArray(gctx, grp.Sub(p), opts)
			if err != nil {
				return err
			}
			ms.Data[i] = arr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pyramid.CheckAborted(ctx, err)
	}
	for i, arr := range ms.Data {
		if len(arr.Shape()) != len(ms.Labels) {
			return nil, fmt.Errorf("level %d shape %v does not match labels %v: %w",
				i, arr.Shape(), []string(ms.Labels), pyramid.ErrFormat)
		}
	}
	pyramid.Infof("Loaded zarr multiscales %q with %d levels, labels %v\n", grp.Path(""), len(paths), []string(ms.Labels))
	return ms, nil
}

func parseMultiscales(v any) (*multiscale, error) {
	sch, err := compiledMultiscalesSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("invalid multiscales attribute: %v: %w", err, pyramid.ErrFormat)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var all []multiscale
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("bad multiscales attribute: %v: %w", err, pyramid.ErrFormat)
	}
	m := &all[0]
	if m.Version != "" {
		ver, err := semver.ParseTolerant(m.Version)
		if err != nil {
			return nil, fmt.Errorf("bad multiscales version %q: %v: %w", m.Version, err, pyramid.ErrFormat)
		}
		if !supportedVersions(ver) {
			return nil, fmt.Errorf("multiscales version %s not supported: %w", ver, pyramid.ErrFormat)
		}
	}
	return m, nil
}

// IsOmeZarr returns true if the array shape is the t, c, z, y, x extents of the pixels.
func IsOmeZarr(shape []int, px *ometiff.PixelsMeta) bool {
	ome := []int{px.SizeT, px.SizeC, px.SizeZ, px.SizeY, px.SizeX}
	if len(shape) > len(ome) {
		return false
	}
	for i, size := range shape {
		if ome[i] != size {
			return false
		}
	}
	return true
}

// GuessBioformatsLabels returns the labels of an array written by bioformats2raw.
// Arrays shaped t, c, z, y, x use that order; others must follow the pixels'
// dimension order with matching extents.
func GuessBioformatsLabels(shape []int, px *ometiff.PixelsMeta) (pyramid.Labels, error) {
	if IsOmeZarr(shape, px) {
		return pyramid.XYZCT.Labels(), nil
	}
	if err := px.DimensionOrder.Validate(); err != nil {
		return nil, err
	}
	labels := px.DimensionOrder.Labels()
	if len(shape) != len(labels) {
		return nil, fmt.Errorf("dimension mismatch between zarr source %v and OME-XML: %w", shape, pyramid.ErrFormat)
	}
	sizes := map[string]int{"t": px.SizeT, "c": px.SizeC, "z": px.SizeZ, "y": px.SizeY, "x": px.SizeX}
	for i, label := range labels {
		size := sizes[label]
		if size == 0 {
			return nil, fmt.Errorf("dimension %s is invalid for OME-XML: %w", strings.ToUpper(label), pyramid.ErrFormat)
		}
		if shape[i] != size {
			return nil, fmt.Errorf("dimension mismatch between zarr source and OME-XML: %s is %d, expected %d: %w",
				strings.ToUpper(label), shape[i], size, pyramid.ErrFormat)
		}
	}
	return labels, nil
}
