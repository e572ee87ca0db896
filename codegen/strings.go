package codegen

import (
	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// String table serializer
// ---------------------------------------------------------------------------

// serializeStrings encodes every string constant into the strings
// region. Each string's region-relative offset is defined with the
// resolver exactly once; print instructions and property values later
// reference the id, never a raw offset.
//
// Every string start must divide by the packing ratio once the region
// base does: encoded strings are always an even number of bytes, and
// for profiles with ratio 4 each string is padded up to the next
// multiple.
func (g *Generator) serializeStrings(prog *ir.Program) error {
	r := g.region(RegionStrings)
	for i := range prog.Strings {
		s := &prog.Strings[i]
		enc, err := encodeString(s.Text, s.ID)
		if err != nil {
			return err
		}
		r.PadTo(g.profile.PackRatio)
		off := r.Write(enc)
		if err := g.resolver.Define(s.ID, RegionStrings, off); err != nil {
			return err
		}
	}
	g.log.Debugf("strings: %d constants, %d bytes", len(prog.Strings), r.Len())
	return nil
}
