package codegen

import (
	"fmt"

	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Unresolved references
// ---------------------------------------------------------------------------

// placeholderByte fills every reserved field until the patch pass. The
// resolver verifies a location still holds placeholder bytes before
// writing, which catches double-recorded locations and address math
// gone wrong. 0xFF doubles as an invalid instruction byte, so an
// unpatched field is loud at runtime rather than quietly plausible.
const placeholderByte = 0xFF

// RefKind classifies an unresolved reference.
type RefKind uint8

const (
	RefBranch     RefKind = iota // conditional branch field
	RefJump                      // jump instruction word offset
	RefCall                      // packed routine address
	RefString                    // packed string address in code
	RefProperty                  // packed string address in a property value
	RefDictionary                // absolute dictionary entry address
	RefTable                     // absolute address of a region-marker target
)

var refKindNames = [...]string{
	RefBranch: "branch", RefJump: "jump", RefCall: "call",
	RefString: "string-ref", RefProperty: "property-ref",
	RefDictionary: "dictionary-ref", RefTable: "table-ref",
}

func (k RefKind) String() string {
	if int(k) < len(refKindNames) {
		return refKindNames[k]
	}
	return "ref?"
}

// Target names what a reference points at: a symbolic id (function,
// label, string constant, dictionary word) or, when ID is zero, a
// region marker — a fixed offset inside a region whose base is not yet
// known.
type Target struct {
	ID     ir.ID
	Region RegionID
	Offset int
}

// Ref is one recorded unresolved reference. It is created exactly once
// when a placeholder is emitted and consumed exactly once by the patch
// pass.
type Ref struct {
	Kind   RefKind
	Region RegionID // region holding the placeholder
	Offset int      // placeholder offset within it
	Target Target
	Packed bool
	Width  int  // reserved bytes, 1 or 2
	OnTrue bool // branch sense, RefBranch only
	Origin ir.ID // IR id for diagnostics, 0 when synthesized
}

// place is a resolved (region, offset) pair.
type place struct {
	region RegionID
	offset int
}

// ---------------------------------------------------------------------------
// Resolver
// ---------------------------------------------------------------------------

// Resolver owns the unresolved-reference set and every address map.
// All final address computation in the backend funnels through
// ResolveAll; no other component writes a final address into a region.
type Resolver struct {
	profile *Profile
	refs    []Ref
	addrs   map[ir.ID]place
}

// NewResolver creates an empty resolver for the given profile.
func NewResolver(p *Profile) *Resolver {
	return &Resolver{profile: p, addrs: make(map[ir.ID]place)}
}

// Record remembers a reference for the patch pass.
func (rv *Resolver) Record(ref Ref) {
	rv.refs = append(rv.refs, ref)
}

// Pending returns the number of recorded, not yet resolved references.
func (rv *Resolver) Pending() int { return len(rv.refs) }

// Define registers the region-local address of a symbolic id. Each id
// is defined exactly once; a second definition means two entities
// claimed one identity and every reference to it is suspect.
func (rv *Resolver) Define(id ir.ID, region RegionID, offset int) error {
	if prev, ok := rv.addrs[id]; ok {
		return &UnresolvedReferenceError{
			What:     fmt.Sprintf("id defined twice (first at %s+0x%04x)", prev.region, prev.offset),
			Region:   region,
			Offset:   offset,
			TargetID: id,
		}
	}
	rv.addrs[id] = place{region: region, offset: offset}
	return nil
}

// Defined reports whether an id already has an address.
func (rv *Resolver) Defined(id ir.ID) bool {
	_, ok := rv.addrs[id]
	return ok
}

// ResolveAll patches every recorded reference, exactly once each.
// Regions must all be frozen and placed. On return the reference set
// is consumed; a non-nil error means the image is unusable.
func (rv *Resolver) ResolveAll(regions *regionSet) error {
	locations := make(map[place]RefKind, len(rv.refs))
	patched := 0

	for i := range rv.refs {
		ref := &rv.refs[i]

		loc := place{region: ref.Region, offset: ref.Offset}
		if prior, dup := locations[loc]; dup {
			return &UnresolvedReferenceError{
				What:     fmt.Sprintf("location recorded twice (%s then %s)", prior, ref.Kind),
				Region:   ref.Region,
				Offset:   ref.Offset,
				TargetID: ref.Target.ID,
			}
		}
		locations[loc] = ref.Kind

		value, err := rv.resolveValue(ref, regions)
		if err != nil {
			return err
		}
		if err := rv.patch(ref, regions, value); err != nil {
			return err
		}
		patched++
	}

	if patched != len(rv.refs) {
		return &UnresolvedReferenceError{
			What: fmt.Sprintf("patched %d of %d references", patched, len(rv.refs)),
		}
	}
	rv.refs = rv.refs[:0]
	return nil
}

// resolveValue computes the value to write for one reference.
func (rv *Resolver) resolveValue(ref *Ref, regions *regionSet) (uint16, error) {
	targetAbs, err := rv.targetAddress(ref, regions)
	if err != nil {
		return 0, err
	}
	locBase, err := regions.at(ref.Region).Base()
	if err != nil {
		return 0, err
	}
	locAbs := locBase + ref.Offset

	switch ref.Kind {
	case RefBranch:
		// Branch target = address after the two-byte offset field,
		// plus offset, minus two. With the field at locAbs that
		// reduces to offset = target - locAbs.
		off := targetAbs - locAbs
		if off < -8192 || off > 8191 {
			return 0, encodingErr(ref.Origin, "branch offset %d out of 14-bit range", off)
		}
		word := uint16(off) & 0x3FFF
		if ref.OnTrue {
			word |= 0x8000
		}
		return word, nil

	case RefJump:
		off := targetAbs - locAbs
		if off < -32768 || off > 32767 {
			return 0, encodingErr(ref.Origin, "jump offset %d out of 16-bit range", off)
		}
		return uint16(off), nil
	}

	if ref.Packed {
		if targetAbs%rv.profile.PackRatio != 0 {
			return 0, alignmentErr(ref.Kind.String()+" target", targetAbs, rv.profile.PackRatio, ref.Origin)
		}
		packed := targetAbs / rv.profile.PackRatio
		if packed > 0xFFFF {
			return 0, capacityErr("packed address", targetAbs, 0xFFFF*rv.profile.PackRatio, ref.Origin)
		}
		return uint16(packed), nil
	}

	if targetAbs > 0xFFFF {
		return 0, capacityErr(ref.Kind.String()+" address", targetAbs, 0xFFFF, ref.Origin)
	}
	return uint16(targetAbs), nil
}

// targetAddress computes the absolute address a reference points at.
func (rv *Resolver) targetAddress(ref *Ref, regions *regionSet) (int, error) {
	tgt := ref.Target
	if tgt.ID != 0 {
		p, ok := rv.addrs[tgt.ID]
		if !ok {
			return 0, &UnresolvedReferenceError{
				What:     "target never defined",
				Region:   ref.Region,
				Offset:   ref.Offset,
				TargetID: tgt.ID,
			}
		}
		tgt.Region, tgt.Offset = p.region, p.offset
	}
	base, err := regions.at(tgt.Region).Base()
	if err != nil {
		return 0, err
	}
	return base + tgt.Offset, nil
}

// patch writes the resolved value at the reference's location, using
// exactly the width reserved at emission time, after verifying the
// placeholder is intact.
func (rv *Resolver) patch(ref *Ref, regions *regionSet, value uint16) error {
	r := regions.at(ref.Region)
	if ref.Offset+ref.Width > r.Len() {
		return &UnresolvedReferenceError{
			What:     "placeholder past end of region",
			Region:   ref.Region,
			Offset:   ref.Offset,
			TargetID: ref.Target.ID,
		}
	}
	for i := 0; i < ref.Width; i++ {
		if r.byteAt(ref.Offset+i) != placeholderByte {
			return &UnresolvedReferenceError{
				What:     "placeholder overwritten before resolution",
				Region:   ref.Region,
				Offset:   ref.Offset,
				TargetID: ref.Target.ID,
			}
		}
	}

	switch ref.Width {
	case 1:
		if value > 0xFF {
			return encodingErr(ref.Origin, "value 0x%x does not fit reserved byte", value)
		}
		r.patch(ref.Offset, []byte{byte(value)})
	case 2:
		r.patch(ref.Offset, []byte{byte(value >> 8), byte(value)})
	default:
		return encodingErr(ref.Origin, "reference width %d unsupported", ref.Width)
	}
	return nil
}
