package pyramid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// InterleaveLabel is the trailing label added to interleaved (e.g., RGB) sources.
const InterleaveLabel = "_c"

// Labels is the ordered sequence of dimension tags for a source, e.g.,
// ["t", "c", "z", "y", "x"].
type Labels []string

// LabelsFromOrder returns labels for an OME dimension order string, e.g., "XYZCT"
// gives ["t", "c", "z", "y", "x"].
func LabelsFromOrder(order string) Labels {
	lower := strings.ToLower(order)
	labels := make(Labels, len(lower))
	for i, r := range lower {
		labels[len(lower)-1-i] = string(r)
	}
	return labels
}

// Validate returns an error if any label is duplicated.
func (l Labels) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for _, name := range l {
		if _, found := seen[name]; found {
			return fmt.Errorf("labels must be unique, found duplicated label %q: %w", name, ErrIndex)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Index returns the axis position of the named dimension.
func (l Labels) Index(name string) (int, error) {
	for i, label := range l {
		if label == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("invalid dimension %q for labels %v: %w", name, []string(l), ErrIndex)
}

// Has returns true if the named dimension is present.
func (l Labels) Has(name string) bool {
	_, err := l.Index(name)
	return err == nil
}

// Shape gives the extent along each labeled dimension.
type Shape []int

// Interleaved returns true if the trailing dimension holds 3 or 4 samples per pixel.
func (s Shape) Interleaved() bool {
	if len(s) == 0 {
		return false
	}
	last := s[len(s)-1]
	return last == 3 || last == 4
}

// ImageSize returns the height and width of the spatial plane.
func (s Shape) ImageSize() (height, width int) {
	n := len(s)
	if s.Interleaved() {
		n--
	}
	if n < 2 {
		return 0, 0
	}
	return s[n-2], s[n-1]
}

// Bands returns the number of interleaved samples per pixel, or 1.
func (s Shape) Bands() int {
	if s.Interleaved() {
		return s[len(s)-1]
	}
	return 1
}

// Equal returns true if both shapes have the same extents.
func (s Shape) Equal(s2 Shape) bool {
	if len(s) != len(s2) {
		return false
	}
	for i := range s {
		if s[i] != s2[i] {
			return false
		}
	}
	return true
}

// Selection chooses an index along non-spatial dimensions by name.  Absent t, c or z
// dimensions are index 0.
type Selection map[string]int

// NewSelection returns a selection of time, channel and depth.
func NewSelection(t, c, z int) Selection {
	return Selection{"t": t, "c": c, "z": z}
}

func (sel Selection) T() int { return sel["t"] }
func (sel Selection) C() int { return sel["c"] }
func (sel Selection) Z() int { return sel["z"] }

// Key returns the canonical "t-c-z" string for the selection.
func (sel Selection) Key() string {
	return strconv.Itoa(sel.T()) + "-" + strconv.Itoa(sel.C()) + "-" + strconv.Itoa(sel.Z())
}

// LevelKey returns the canonical key for the selection at a resolution level.
func (sel Selection) LevelKey(level int) string {
	return sel.Key() + "-" + strconv.Itoa(level)
}

// Validate makes sure the selection only names declared labels and uses
// non-negative indices.
func (sel Selection) Validate(labels Labels) error {
	for name, idx := range sel {
		if !labels.Has(name) {
			return fmt.Errorf("selection references undeclared dimension %q: %w", name, ErrIndex)
		}
		if idx < 0 {
			return fmt.Errorf("selection has negative index %d for dimension %q: %w", idx, name, ErrIndex)
		}
	}
	return nil
}

// With returns a copy of the selection with one dimension changed.
func (sel Selection) With(name string, idx int) Selection {
	s := make(Selection, len(sel)+1)
	for k, v := range sel {
		s[k] = v
	}
	s[name] = idx
	return s
}

func (sel Selection) String() string {
	parts := []string{
		fmt.Sprintf("t=%d", sel.T()),
		fmt.Sprintf("c=%d", sel.C()),
		fmt.Sprintf("z=%d", sel.Z()),
	}
	var extra []string
	for name, idx := range sel {
		if name == "t" || name == "c" || name == "z" {
			continue
		}
		extra = append(extra, fmt.Sprintf("%s=%d", name, idx))
	}
	sort.Strings(extra)
	return "(" + strings.Join(append(parts, extra...), " ") + ")"
}
