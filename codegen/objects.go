package codegen

import (
	"sort"

	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Object and property table serializer
// ---------------------------------------------------------------------------

// The object region holds the property defaults table, then the
// fixed-width object entries, then each object's property table. An
// entry's property table pointer is an absolute address and so goes
// through the resolver like every other address in the image.

// serializeObjects writes the whole object region and defines each
// object id with the resolver (pointing at its entry).
func (g *Generator) serializeObjects(prog *ir.Program) error {
	if len(prog.Objects) > g.profile.MaxObjects {
		return capacityErr("objects", len(prog.Objects), g.profile.MaxObjects, 0)
	}

	r := g.region(RegionObjects)
	for i := 0; i < g.profile.PropDefaults; i++ {
		r.WriteWord(0)
	}

	// Fixed-width entries, with a placeholder where each property
	// table pointer goes. The tables follow the entries; their offsets
	// are known only as they are written.
	ptrOffsets := make([]int, len(prog.Objects))
	for i := range prog.Objects {
		o := &prog.Objects[i]
		entryOff := r.Here()
		if err := g.writeObjectEntry(r, o, &ptrOffsets[i]); err != nil {
			return err
		}
		if err := g.resolver.Define(o.ID, RegionObjects, entryOff); err != nil {
			return err
		}
	}

	for i := range prog.Objects {
		o := &prog.Objects[i]
		tableOff := r.Here()
		g.resolver.Record(Ref{
			Kind:   RefTable,
			Region: RegionObjects,
			Offset: ptrOffsets[i],
			Target: Target{Region: RegionObjects, Offset: tableOff},
			Width:  2,
			Origin: o.ID,
		})
		if err := g.writePropertyTable(r, o); err != nil {
			return err
		}
	}

	g.log.Debugf("objects: %d entries, %d bytes", len(prog.Objects), r.Len())
	return nil
}

// writeObjectEntry writes one object's attribute bitset, relations and
// property table pointer placeholder.
func (g *Generator) writeObjectEntry(r *Region, o *ir.ObjectDef, ptrOff *int) error {
	attrs := make([]byte, g.profile.AttrBytes)
	for _, a := range o.Attrs {
		if int(a) >= g.profile.AttrCount {
			return capacityErr("attribute number", int(a), g.profile.AttrCount-1, o.ID)
		}
		attrs[a/8] |= 1 << (7 - a%8)
	}
	r.Write(attrs)

	for _, rel := range []ir.ID{o.Parent, o.Sibling, o.Child} {
		num := 0
		if rel != 0 {
			num = g.objNumbers[rel]
		}
		if g.profile.Version <= 3 {
			r.WriteByte(byte(num))
		} else {
			r.WriteWord(uint16(num))
		}
	}

	*ptrOff = r.WriteByte(placeholderByte)
	r.WriteByte(placeholderByte)
	return nil
}

// writePropertyTable writes the short name header and the property
// list in strictly descending property-number order, zero-terminated
// even for an object with no properties.
func (g *Generator) writePropertyTable(r *Region, o *ir.ObjectDef) error {
	name, err := encodeString(o.Name, o.ID)
	if err != nil {
		return err
	}
	r.WriteByte(byte(len(name) / 2))
	r.Write(name)

	props := make([]ir.Property, len(o.Props))
	copy(props, o.Props)
	sort.SliceStable(props, func(i, j int) bool { return props[i].Num > props[j].Num })

	for i := range props {
		if i > 0 && props[i].Num == props[i-1].Num {
			return encodingErr(o.ID, "property %d declared twice", props[i].Num)
		}
		if err := g.writeProperty(r, o, &props[i]); err != nil {
			return err
		}
	}
	r.WriteByte(0)
	return nil
}

// writeProperty writes one property's size/number header and value
// bytes. Reference-valued properties emit placeholders and record the
// reference with the correct packed-ness.
func (g *Generator) writeProperty(r *Region, o *ir.ObjectDef, p *ir.Property) error {
	if p.Num < 1 || int(p.Num) > g.profile.MaxPropNum {
		return capacityErr("property number", int(p.Num), g.profile.MaxPropNum, o.ID)
	}

	size := 2
	if p.Kind == ir.PropBytes {
		size = len(p.Bytes)
		if size == 0 {
			return encodingErr(o.ID, "property %d has no value", p.Num)
		}
	}

	switch {
	case size <= g.profile.CompactPropMax:
		if g.profile.Version <= 3 {
			r.WriteByte(byte((size-1)<<5) | p.Num)
		} else {
			b := p.Num
			if size == 2 {
				b |= 0x40
			}
			r.WriteByte(b)
		}
	case g.profile.ExtendedProps && size <= g.profile.ExtendedPropMax:
		r.WriteByte(0x80 | p.Num)
		r.WriteByte(0x80 | byte(size&0x3F)) // 64 is stored as 0
	default:
		limit := g.profile.CompactPropMax
		if g.profile.ExtendedProps {
			limit = g.profile.ExtendedPropMax
		}
		return capacityErr("property length", size, limit, o.ID)
	}

	switch p.Kind {
	case ir.PropBytes:
		r.Write(p.Bytes)
	case ir.PropString:
		off := r.WriteByte(placeholderByte)
		r.WriteByte(placeholderByte)
		g.resolver.Record(Ref{
			Kind:   RefProperty,
			Region: RegionObjects,
			Offset: off,
			Target: Target{ID: p.Ref},
			Packed: true,
			Width:  2,
			Origin: o.ID,
		})
	case ir.PropWord:
		off := r.WriteByte(placeholderByte)
		r.WriteByte(placeholderByte)
		g.resolver.Record(Ref{
			Kind:   RefDictionary,
			Region: RegionObjects,
			Offset: off,
			Target: Target{ID: p.Ref},
			Width:  2,
			Origin: o.ID,
		})
	case ir.PropObject:
		r.WriteWord(uint16(g.objNumbers[p.Ref]))
	default:
		return encodingErr(o.ID, "property %d has unknown kind %d", p.Num, p.Kind)
	}
	return nil
}
