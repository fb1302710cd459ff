package pyramid

import (
	"errors"
	"testing"
)

func TestSelectionKeys(t *testing.T) {
	sel := Selection{"c": 2}
	if sel.Key() != "0-2-0" {
		t.Errorf("expected key 0-2-0, got %s\n", sel.Key())
	}
	if sel.LevelKey(3) != "0-2-0-3" {
		t.Errorf("expected level key 0-2-0-3, got %s\n", sel.LevelKey(3))
	}
	sel2 := sel.With("z", 5)
	if sel.Z() != 0 || sel2.Z() != 5 || sel2.C() != 2 {
		t.Errorf("With changed the original or lost values: %s, %s\n", sel, sel2)
	}
	if sel2.String() != "(t=0 c=2 z=5)" {
		t.Errorf("unexpected selection string %s\n", sel2)
	}
}

func TestSelectionValidate(t *testing.T) {
	labels := Labels{"t", "c", "z", "y", "x"}
	if err := NewSelection(1, 2, 3).Validate(labels); err != nil {
		t.Errorf("unexpected error: %v\n", err)
	}
	if err := (Selection{"w": 0}).Validate(labels); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex for undeclared label, got %v\n", err)
	}
	if err := (Selection{"c": -1}).Validate(labels); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex for negative index, got %v\n", err)
	}
	if err := (Labels{"c", "y", "c"}).Validate(); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex for duplicate label, got %v\n", err)
	}
	if _, err := labels.Index("q"); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex for unknown label, got %v\n", err)
	}
}

func TestPyramidValidate(t *testing.T) {
	labels := Labels{"t", "c", "z", "y", "x"}
	level := func(h, w int) PixelSource {
		return &planeSource{shape: Shape{1, 2, 6, h, w}, labels: labels}
	}
	good := Pyramid{level(301, 500), level(150, 250), level(75, 125)}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v\n", err)
	}
	bad := Pyramid{level(300, 500), level(151, 250)}
	if err := bad.Validate(); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat for level not halved, got %v\n", err)
	}
	if err := (Pyramid{}).Validate(); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat for empty pyramid, got %v\n", err)
	}
	if _, err := good.Level(3); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex for missing level, got %v\n", err)
	}
}
