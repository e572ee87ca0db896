package codegen

import (
	"testing"

	"github.com/halden/zmic/ir"
)

// testRegions builds an empty region set with the generator's alignment
// choices for the given profile.
func testRegions(p *Profile) *regionSet {
	var rs regionSet
	for _, id := range regionOrder {
		align := 1
		if id == RegionCode || id == RegionStrings {
			align = p.PackRatio
		}
		rs[id] = newRegion(id, align)
	}
	return &rs
}

func freezeAndPlace(t *testing.T, rs *regionSet) {
	t.Helper()
	addr := 0
	for _, id := range regionOrder {
		r := rs.at(id)
		r.Freeze()
		for r.Align > 1 && addr%r.Align != 0 {
			addr++
		}
		if err := r.SetBase(addr); err != nil {
			t.Fatalf("SetBase(%s): %v", id, err)
		}
		addr += r.Len()
	}
}

func TestResolveCallRoundTrip(t *testing.T) {
	rs := testRegions(V3)
	rv := NewResolver(V3)
	code := rs.at(RegionCode)

	// A routine at code offset 4, referenced from a call operand at
	// offset 1.
	code.WriteByte(0xE0)
	loc := code.Write([]byte{placeholderByte, placeholderByte})
	code.WriteByte(0x00)
	if err := rv.Define(ir.ID(7), RegionCode, 4); err != nil {
		t.Fatal(err)
	}
	code.WriteByte(0x00) // routine header at offset 4
	rv.Record(Ref{
		Kind: RefCall, Region: RegionCode, Offset: loc,
		Target: Target{ID: 7}, Packed: true, Width: 2,
	})

	rs.at(RegionHeader).Zeros(64)
	freezeAndPlace(t, rs)
	if err := rv.ResolveAll(rs); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	base, _ := code.Base()
	want := uint16((base + 4) / V3.PackRatio)
	got := uint16(code.byteAt(loc))<<8 | uint16(code.byteAt(loc+1))
	if got != want {
		t.Errorf("patched packed address = 0x%04x, want 0x%04x", got, want)
	}
	if rv.Pending() != 0 {
		t.Errorf("pending after resolve = %d, want 0", rv.Pending())
	}
}

func TestResolveBranchForward(t *testing.T) {
	rs := testRegions(V3)
	rv := NewResolver(V3)
	code := rs.at(RegionCode)

	loc := code.Write([]byte{placeholderByte, placeholderByte})
	code.Zeros(40)
	target := code.Here()
	if err := rv.Define(ir.ID(3), RegionCode, target); err != nil {
		t.Fatal(err)
	}
	code.WriteByte(0xB0)
	rv.Record(Ref{
		Kind: RefBranch, Region: RegionCode, Offset: loc,
		Target: Target{ID: 3}, Width: 2, OnTrue: true,
	})

	rs.at(RegionHeader).Zeros(64)
	freezeAndPlace(t, rs)
	if err := rv.ResolveAll(rs); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	// Branch semantics: destination = address after the offset field
	// + offset - 2, so the stored offset is target minus the field's
	// own address.
	want := uint16(target-loc)&0x3FFF | 0x8000
	got := uint16(code.byteAt(loc))<<8 | uint16(code.byteAt(loc+1))
	if got != want {
		t.Errorf("branch word = 0x%04x, want 0x%04x", got, want)
	}
}

func TestResolveJumpBackward(t *testing.T) {
	rs := testRegions(V3)
	rv := NewResolver(V3)
	code := rs.at(RegionCode)

	target := code.Here()
	if err := rv.Define(ir.ID(9), RegionCode, target); err != nil {
		t.Fatal(err)
	}
	code.Zeros(10)
	code.WriteByte(0x8C)
	loc := code.Write([]byte{placeholderByte, placeholderByte})
	rv.Record(Ref{
		Kind: RefJump, Region: RegionCode, Offset: loc,
		Target: Target{ID: 9}, Width: 2,
	})

	rs.at(RegionHeader).Zeros(64)
	freezeAndPlace(t, rs)
	if err := rv.ResolveAll(rs); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	want := uint16(int16(target - loc))
	got := uint16(code.byteAt(loc))<<8 | uint16(code.byteAt(loc+1))
	if got != want {
		t.Errorf("jump word = 0x%04x, want 0x%04x", got, want)
	}
}

func TestResolveUndefinedTarget(t *testing.T) {
	rs := testRegions(V3)
	rv := NewResolver(V3)
	code := rs.at(RegionCode)
	loc := code.Write([]byte{placeholderByte, placeholderByte})
	rv.Record(Ref{
		Kind: RefCall, Region: RegionCode, Offset: loc,
		Target: Target{ID: 42}, Packed: true, Width: 2,
	})

	rs.at(RegionHeader).Zeros(64)
	freezeAndPlace(t, rs)
	err := rv.ResolveAll(rs)
	if err == nil {
		t.Fatal("expected error for undefined target")
	}
	ure, ok := err.(*UnresolvedReferenceError)
	if !ok {
		t.Fatalf("error type = %T, want *UnresolvedReferenceError", err)
	}
	if ure.TargetID != 42 {
		t.Errorf("TargetID = %d, want 42", ure.TargetID)
	}
}

func TestResolveLocationRecordedTwice(t *testing.T) {
	rs := testRegions(V3)
	rv := NewResolver(V3)
	code := rs.at(RegionCode)
	loc := code.Write([]byte{placeholderByte, placeholderByte})
	if err := rv.Define(ir.ID(1), RegionCode, 0); err != nil {
		t.Fatal(err)
	}
	ref := Ref{
		Kind: RefJump, Region: RegionCode, Offset: loc,
		Target: Target{ID: 1}, Width: 2,
	}
	rv.Record(ref)
	rv.Record(ref)

	rs.at(RegionHeader).Zeros(64)
	freezeAndPlace(t, rs)
	if err := rv.ResolveAll(rs); err == nil {
		t.Fatal("expected error for location recorded twice")
	}
}

func TestResolvePlaceholderOverwritten(t *testing.T) {
	rs := testRegions(V3)
	rv := NewResolver(V3)
	code := rs.at(RegionCode)
	loc := code.Write([]byte{0x00, 0x00}) // not placeholder bytes
	if err := rv.Define(ir.ID(1), RegionCode, 0); err != nil {
		t.Fatal(err)
	}
	rv.Record(Ref{
		Kind: RefJump, Region: RegionCode, Offset: loc,
		Target: Target{ID: 1}, Width: 2,
	})

	rs.at(RegionHeader).Zeros(64)
	freezeAndPlace(t, rs)
	if err := rv.ResolveAll(rs); err == nil {
		t.Fatal("expected error for clobbered placeholder")
	}
}

func TestDefineTwice(t *testing.T) {
	rv := NewResolver(V3)
	if err := rv.Define(ir.ID(5), RegionCode, 0); err != nil {
		t.Fatal(err)
	}
	if err := rv.Define(ir.ID(5), RegionStrings, 8); err == nil {
		t.Fatal("expected error defining an id twice")
	}
}

func TestResolvePackedMisaligned(t *testing.T) {
	rs := testRegions(V5)
	rv := NewResolver(V5)
	code := rs.at(RegionCode)
	loc := code.Write([]byte{placeholderByte, placeholderByte})
	// Offset 3 cannot be 4-aligned whatever the base is.
	code.WriteByte(0)
	if err := rv.Define(ir.ID(2), RegionCode, 3); err != nil {
		t.Fatal(err)
	}
	code.WriteByte(0)
	rv.Record(Ref{
		Kind: RefCall, Region: RegionCode, Offset: loc,
		Target: Target{ID: 2}, Packed: true, Width: 2,
	})

	rs.at(RegionHeader).Zeros(64)
	freezeAndPlace(t, rs)
	err := rv.ResolveAll(rs)
	if err == nil {
		t.Fatal("expected alignment error for unpackable address")
	}
	if _, ok := err.(*AlignmentError); !ok {
		t.Fatalf("error type = %T, want *AlignmentError", err)
	}
}
