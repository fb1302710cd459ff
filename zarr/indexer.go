package zarr

import (
	"fmt"

	"github.com/janelia-flyem/pyramid/pyramid"
)

// Indexer merges selections into full per-axis selectors for an array with the given
// labels and shape.
type Indexer struct {
	labels pyramid.Labels
	shape  []int
}

// NewIndexer returns an indexer for an array whose axes are named by labels.
func NewIndexer(labels pyramid.Labels, shape []int) (*Indexer, error) {
	if err := labels.Validate(); err != nil {
		return nil, err
	}
	if len(shape) != len(labels) {
		return nil, fmt.Errorf("labels %v do not match array shape %v: %w", []string(labels), shape, pyramid.ErrFormat)
	}
	return &Indexer{labels: labels, shape: shape}, nil
}

func (ix *Indexer) check(axis, v int) error {
	if v < 0 || v >= ix.shape[axis] {
		return fmt.Errorf("index %d for dimension %q outside extent %d: %w",
			v, ix.labels[axis], ix.shape[axis], pyramid.ErrIndex)
	}
	return nil
}

// Merge places each named index of the selection at its label's axis.  Axes not named
// are index 0.  Indices outside the array give ErrIndex.
func (ix *Indexer) Merge(sel pyramid.Selection) ([]Selector, error) {
	out := make([]Selector, len(ix.labels))
	for i := range out {
		out[i] = Index(0)
	}
	for name, v := range sel {
		i, err := ix.labels.Index(name)
		if err != nil {
			return nil, err
		}
		if err := ix.check(i, v); err != nil {
			return nil, err
		}
		out[i] = Index(v)
	}
	return out, nil
}

// MergePositional uses a fully positional selection, one index per axis.
func (ix *Indexer) MergePositional(pos []int) ([]Selector, error) {
	if len(pos) != len(ix.labels) {
		return nil, fmt.Errorf("positional selection %v needs %d indices: %w", pos, len(ix.labels), pyramid.ErrIndex)
	}
	out := make([]Selector, len(pos))
	for i, v := range pos {
		if err := ix.check(i, v); err != nil {
			return nil, err
		}
		out[i] = Index(v)
	}
	return out, nil
}
