package codegen

import "fmt"

// ---------------------------------------------------------------------------
// Memory regions
// ---------------------------------------------------------------------------

// RegionID names one section of the final image.
type RegionID uint8

const (
	RegionHeader RegionID = iota
	RegionGlobals
	RegionAbbrev
	RegionObjects
	RegionDictionary
	RegionCode
	RegionStrings

	regionCount
)

var regionNames = [...]string{
	RegionHeader:     "header",
	RegionGlobals:    "globals",
	RegionAbbrev:     "abbrev",
	RegionObjects:    "objects",
	RegionDictionary: "dictionary",
	RegionCode:       "code",
	RegionStrings:    "strings",
}

func (id RegionID) String() string {
	if int(id) < len(regionNames) {
		return regionNames[id]
	}
	return "region?"
}

// regionOrder is the canonical concatenation order of the image:
// header, writable dynamic data, object tables, dictionary, then the
// static half (routines, strings).
var regionOrder = [...]RegionID{
	RegionHeader, RegionGlobals, RegionAbbrev, RegionObjects,
	RegionDictionary, RegionCode, RegionStrings,
}

// Region is one append-only byte buffer. Its base address is unset
// until allocation and write-once afterwards; nothing may read it
// before allocation completes.
type Region struct {
	ID    RegionID
	Align int // required divisor of the base address (1 = none)

	buf    []byte
	frozen bool
	base   int
	placed bool
}

func newRegion(id RegionID, align int) *Region {
	return &Region{ID: id, Align: align, base: -1}
}

// Len returns the current byte length.
func (r *Region) Len() int { return len(r.buf) }

// Bytes returns the underlying buffer. Callers must not write through
// it; patching goes through the resolver.
func (r *Region) Bytes() []byte { return r.buf }

// Frozen reports whether the region's size is locked.
func (r *Region) Frozen() bool { return r.frozen }

// Freeze locks the region's size. Any later append is a programming
// error and panics: appending after allocation would shift every
// address derived from this region.
func (r *Region) Freeze() { r.frozen = true }

// SetBase assigns the base address, exactly once.
func (r *Region) SetBase(addr int) error {
	if r.placed {
		return fmt.Errorf("codegen: region %s base assigned twice", r.ID)
	}
	if !r.frozen {
		return fmt.Errorf("codegen: region %s allocated before freeze", r.ID)
	}
	if r.Align > 1 && addr%r.Align != 0 {
		return alignmentErr("region "+r.ID.String()+" base", addr, r.Align, 0)
	}
	r.base = addr
	r.placed = true
	return nil
}

// Base returns the allocated base address.
func (r *Region) Base() (int, error) {
	if !r.placed {
		return 0, fmt.Errorf("codegen: region %s base read before allocation", r.ID)
	}
	return r.base, nil
}

// Here returns the offset the next appended byte will occupy.
func (r *Region) Here() int { return len(r.buf) }

// WriteByte appends one byte.
func (r *Region) WriteByte(b byte) int {
	if r.frozen {
		panic(fmt.Sprintf("codegen: append to frozen region %s", r.ID))
	}
	off := len(r.buf)
	r.buf = append(r.buf, b)
	return off
}

// WriteWord appends one big-endian 16-bit word.
func (r *Region) WriteWord(w uint16) int {
	off := r.WriteByte(byte(w >> 8))
	r.WriteByte(byte(w))
	return off
}

// Write appends a byte slice.
func (r *Region) Write(p []byte) int {
	if r.frozen {
		panic(fmt.Sprintf("codegen: append to frozen region %s", r.ID))
	}
	off := len(r.buf)
	r.buf = append(r.buf, p...)
	return off
}

// Zeros appends n zero bytes.
func (r *Region) Zeros(n int) int {
	off := len(r.buf)
	for i := 0; i < n; i++ {
		r.WriteByte(0)
	}
	return off
}

// PadTo appends zero bytes until the region-local offset divides
// evenly by align. Meaningful only when the base itself is aligned at
// least as strictly.
func (r *Region) PadTo(align int) {
	if align <= 1 {
		return
	}
	for len(r.buf)%align != 0 {
		r.WriteByte(0)
	}
}

// byteAt returns the byte at a region-local offset.
func (r *Region) byteAt(off int) byte { return r.buf[off] }

// patch overwrites bytes at a region-local offset. Only the resolver
// and the assembler's header backfill may call it.
func (r *Region) patch(off int, p []byte) {
	copy(r.buf[off:off+len(p)], p)
}
