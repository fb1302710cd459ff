package pyramid

import (
	"errors"
	"testing"
)

func TestPlaneIndexerRoundTrip(t *testing.T) {
	sizes := Sizes{C: 3, Z: 4, T: 5}
	for _, order := range DimensionOrders {
		indexer, err := NewPlaneIndexer(order, sizes, 0)
		if err != nil {
			t.Fatalf("unable to make indexer for %s: %v\n", order, err)
		}
		seen := make(map[int]bool, sizes.Planes())
		for tt := 0; tt < sizes.T; tt++ {
			for c := 0; c < sizes.C; c++ {
				for z := 0; z < sizes.Z; z++ {
					sel := NewSelection(tt, c, z)
					index, err := indexer.Index(sel)
					if err != nil {
						t.Fatalf("%s: error indexing %s: %v\n", order, sel, err)
					}
					if index < 0 || index >= sizes.Planes() {
						t.Fatalf("%s: index %d for %s out of range\n", order, index, sel)
					}
					if seen[index] {
						t.Fatalf("%s: index %d for %s already used\n", order, index, sel)
					}
					seen[index] = true
					got, err := indexer.Selection(index)
					if err != nil {
						t.Fatalf("%s: error inverting index %d: %v\n", order, index, err)
					}
					if got.T() != tt || got.C() != c || got.Z() != z {
						t.Errorf("%s: expected %s after round trip, got %s\n", order, sel, got)
					}
				}
			}
		}
	}
}

func TestPlaneIndexerStrides(t *testing.T) {
	sizes := Sizes{C: 3, Z: 4, T: 5}
	sel := NewSelection(2, 1, 3)
	tests := map[DimensionOrder]int{
		XYZCT: 2*4*3 + 1*4 + 3,
		XYZTC: 1*4*5 + 2*4 + 3,
		XYCTZ: 3*3*5 + 2*3 + 1,
		XYCZT: 2*3*4 + 3*3 + 1,
		XYTCZ: 3*5*3 + 1*5 + 2,
		XYTZC: 1*5*4 + 3*5 + 2,
	}
	for order, expected := range tests {
		indexer, err := NewPlaneIndexer(order, sizes, 0)
		if err != nil {
			t.Fatal(err)
		}
		got, err := indexer.Index(sel)
		if err != nil {
			t.Fatal(err)
		}
		if got != expected {
			t.Errorf("order %s: expected index %d, got %d\n", order, expected, got)
		}
	}
}

func TestPlaneIndexerFastestAxis(t *testing.T) {
	indexer, err := NewPlaneIndexer(XYZCT, Sizes{C: 2, Z: 3, T: 2}, 0)
	if err != nil {
		t.Fatal(err)
	}
	// z varies fastest, then c, then t.
	expected := []Selection{
		NewSelection(0, 0, 0), NewSelection(0, 0, 1), NewSelection(0, 0, 2),
		NewSelection(0, 1, 0), NewSelection(0, 1, 1), NewSelection(0, 1, 2),
		NewSelection(1, 0, 0),
	}
	for i, sel := range expected {
		got, err := indexer.Index(sel)
		if err != nil {
			t.Fatal(err)
		}
		if got != i {
			t.Errorf("expected %s at plane %d, got %d\n", sel, i, got)
		}
	}
}

func TestPlaneIndexerOffsets(t *testing.T) {
	images := []Sizes{{C: 2, Z: 1, T: 1}, {C: 3, Z: 2, T: 1}, {C: 1, Z: 1, T: 1}}
	offset := ImageOffset(images, 2)
	if offset != 2+6 {
		t.Fatalf("expected image offset 8, got %d\n", offset)
	}
	indexer, err := NewPlaneIndexer(XYZCT, images[2], offset)
	if err != nil {
		t.Fatal(err)
	}
	index, err := indexer.Index(NewSelection(0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if index != 8 {
		t.Errorf("expected plane 8 for first plane of third image, got %d\n", index)
	}

	indexer, err = NewPlaneIndexer(XYCZT, Sizes{C: 2, Z: 3, T: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	index, err = indexer.LevelIndex(NewSelection(0, 1, 2), 2)
	if err != nil {
		t.Fatal(err)
	}
	if index != 2*2+1+2*6 {
		t.Errorf("expected flat-run level index 17, got %d\n", index)
	}
}

func TestPlaneIndexerErrors(t *testing.T) {
	if _, err := NewPlaneIndexer("XYZCC", Sizes{C: 1, Z: 1, T: 1}, 0); !errors.Is(err, ErrFormat) {
		t.Errorf("expected format error on bad dimension order, got %v\n", err)
	}
	indexer, err := NewPlaneIndexer(XYZCT, Sizes{C: 2, Z: 2, T: 2}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := indexer.Index(Selection{"q": 0}); !errors.Is(err, ErrIndex) {
		t.Errorf("expected index error on undeclared dimension, got %v\n", err)
	}
	if _, err := indexer.Index(NewSelection(0, 2, 0)); !errors.Is(err, ErrIndex) {
		t.Errorf("expected index error on channel beyond SizeC, got %v\n", err)
	}
	if _, err := indexer.Selection(8); !errors.Is(err, ErrIndex) {
		t.Errorf("expected index error on plane beyond image, got %v\n", err)
	}
}

func TestLabelsFromOrder(t *testing.T) {
	labels := LabelsFromOrder("XYZCT")
	expected := Labels{"t", "c", "z", "y", "x"}
	if len(labels) != len(expected) {
		t.Fatalf("expected %v, got %v\n", expected, labels)
	}
	for i := range expected {
		if labels[i] != expected[i] {
			t.Errorf("expected %v, got %v\n", expected, labels)
			break
		}
	}
	if err := (Labels{"t", "c", "c", "y", "x"}).Validate(); !errors.Is(err, ErrIndex) {
		t.Errorf("expected index error for duplicate labels, got %v\n", err)
	}
	if _, err := labels.Index("q"); !errors.Is(err, ErrIndex) {
		t.Errorf("expected index error for unknown label, got %v\n", err)
	}
}
