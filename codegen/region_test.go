package codegen

import (
	"testing"
)

func TestRegionBaseWriteOnce(t *testing.T) {
	r := newRegion(RegionCode, 2)
	r.WriteByte(1)
	r.WriteByte(2)

	if _, err := r.Base(); err == nil {
		t.Fatal("expected error reading base before allocation")
	}
	if err := r.SetBase(100); err == nil {
		t.Fatal("expected error assigning base before freeze")
	}

	r.Freeze()
	if err := r.SetBase(100); err != nil {
		t.Fatalf("SetBase: %v", err)
	}
	base, err := r.Base()
	if err != nil || base != 100 {
		t.Fatalf("Base() = %d, %v; want 100", base, err)
	}
	if err := r.SetBase(200); err == nil {
		t.Fatal("expected error assigning base twice")
	}
}

func TestRegionBaseAlignment(t *testing.T) {
	r := newRegion(RegionStrings, 2)
	r.Freeze()
	err := r.SetBase(101)
	if err == nil {
		t.Fatal("expected alignment error for odd base")
	}
	if _, ok := err.(*AlignmentError); !ok {
		t.Fatalf("error type = %T, want *AlignmentError", err)
	}
}

func TestRegionFrozenAppendPanics(t *testing.T) {
	r := newRegion(RegionCode, 1)
	r.Freeze()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic appending to frozen region")
		}
	}()
	r.WriteByte(0)
}

func TestRegionWriteWord(t *testing.T) {
	r := newRegion(RegionObjects, 1)
	off := r.WriteWord(0x1234)
	if off != 0 {
		t.Errorf("offset = %d, want 0", off)
	}
	if r.Len() != 2 || r.Bytes()[0] != 0x12 || r.Bytes()[1] != 0x34 {
		t.Errorf("bytes = % x, want 12 34", r.Bytes())
	}
}

func TestRegionPadTo(t *testing.T) {
	r := newRegion(RegionCode, 4)
	r.WriteByte(0xAA)
	r.PadTo(4)
	if r.Len() != 4 {
		t.Errorf("length after pad = %d, want 4", r.Len())
	}
	r.PadTo(4)
	if r.Len() != 4 {
		t.Errorf("pad on aligned region grew it to %d", r.Len())
	}
}
