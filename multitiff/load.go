package multitiff

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/janelia-flyem/pyramid/codec"
	"github.com/janelia-flyem/pyramid/ometiff"
	"github.com/janelia-flyem/pyramid/pyramid"
	"github.com/janelia-flyem/pyramid/storage/blobstore"
)

// DefaultName is the image name used when none is given.
const DefaultName = "MultiTiff"

// File is a TIFF file contributing planes to a stack.  Selections[i] places the
// file's i-th directory; nil entries skip a directory.
type File struct {
	URL        string
	Selections []pyramid.Selection
}

// Opener returns a range reader for a file URL and a closer for it.
type Opener func(ctx context.Context, url string) (ometiff.RangeReader, io.Closer, error)

// LoadOptions modify loading of multi-file stacks.
type LoadOptions struct {
	Name string

	// ChannelNames override names derived from the file names.
	ChannelNames []string

	AllowGaps bool
	Codecs    *codec.Registry

	// Open defaults to opening the URL through blob storage.
	Open Opener
}

// OptionsFromConfig returns load options using the [read] settings.  Stacks may have
// gaps unless strict_stack is set.
func OptionsFromConfig(c pyramid.Config) LoadOptions {
	return LoadOptions{AllowGaps: !c.Read.StrictStack}
}

// Loaded is a single-level pyramid over a stack.  Close releases the opened files.
type Loaded struct {
	Data     pyramid.Pyramid
	Metadata ometiff.ImageMeta
	Stack    *Stack

	closers []io.Closer
}

// Close closes all files opened for the stack.
func (l *Loaded) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

func openBlob(ctx context.Context, url string) (ometiff.RangeReader, io.Closer, error) {
	obj, bucket, err := blobstore.OpenObject(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return obj, bucket, nil
}

// parseFilename returns the base name without its final extension and the lower-case
// extension.
func parseFilename(path string) (name, ext string) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	filename := path[strings.LastIndex(path, "/")+1:]
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return filename, ""
	}
	return filename[:dot], strings.ToLower(filename[dot+1:])
}

// imageSelectionName names the plane from the i-th directory of a file.  Files giving
// several planes get a "_i" suffix.
func imageSelectionName(name string, i, numSelections int) string {
	if numSelections == 1 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, i)
}

// Load opens TIFF files and stitches their directories into a stack.  Files without
// a .tif or .tiff extension are skipped.
func Load(ctx context.Context, files []File, opts LoadOptions) (*Loaded, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Open == nil {
		opts.Open = openBlob
	}
	codecs := opts.Codecs
	if codecs == nil {
		var err error
		if codecs, err = codec.DefaultRegistry(); err != nil {
			return nil, err
		}
	}
	loaded := &Loaded{}
	var planes []StackPlane
	var channelNames []string
	for _, f := range files {
		name, ext := parseFilename(f.URL)
		if (ext != "tif" && ext != "tiff") || name == "" {
			pyramid.Debugf("Skipping %q, not a TIFF file\n", f.URL)
			continue
		}
		rr, closer, err := opts.Open(ctx, f.URL)
		if err != nil {
			loaded.Close()
			return nil, pyramid.CheckAborted(ctx, err)
		}
		loaded.closers = append(loaded.closers, closer)
		dec, err := ometiff.NewFileDecoder(ctx, rr, codecs)
		if err != nil {
			loaded.Close()
			return nil, fmt.Errorf("file %q: %w", f.URL, pyramid.CheckAborted(ctx, err))
		}
		for i, sel := range f.Selections {
			if sel == nil {
				continue
			}
			img, err := dec.DecodeDirectory(ctx, i)
			if err != nil {
				loaded.Close()
				return nil, fmt.Errorf("file %q directory %d: %w", f.URL, i, pyramid.CheckAborted(ctx, err))
			}
			planes = append(planes, StackPlane{Selection: sel, Plane: NewTiffPlane(dec, img, nil)})
			for len(channelNames) <= sel.C() {
				channelNames = append(channelNames, "")
			}
			channelNames[sel.C()] = imageSelectionName(name, i, len(f.Selections))
		}
	}
	if len(planes) == 0 {
		loaded.Close()
		return nil, fmt.Errorf("unable to load image from provided TIFF sources: %w", pyramid.ErrFormat)
	}
	if opts.ChannelNames != nil {
		channelNames = opts.ChannelNames
	}
	stack, err := NewStack(planes, StackOptions{
		Name:         opts.Name,
		ChannelNames: channelNames,
		AllowGaps:    opts.AllowGaps,
	})
	if err != nil {
		loaded.Close()
		return nil, err
	}
	src, err := stack.Source()
	if err != nil {
		loaded.Close()
		return nil, err
	}
	loaded.Data = pyramid.Pyramid{src}
	loaded.Metadata = stack.Metadata()
	loaded.Stack = stack
	pyramid.Infof("Loaded stack %q from %d planes: shape %v, %s\n", opts.Name, len(planes), stack.Shape(), src.DataType())
	return loaded, nil
}
