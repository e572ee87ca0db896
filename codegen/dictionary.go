package codegen

import (
	"bytes"
	"sort"

	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Dictionary serializer
// ---------------------------------------------------------------------------

// The dictionary is searched by the machine with binary search, so
// entries must be unique and sorted ascending by their encoded bytes.
// Distinct source words may collapse to one entry when truncation to
// the profile's z-character width makes them encode identically; every
// contributing id then resolves to the shared entry.

// wordSeparators are the ZSCII codes the header declares as token
// separators for the machine's tokenizer.
var wordSeparators = []byte{'.', ',', '"'}

type dictEntry struct {
	encoded []byte
	flags   uint8
	ids     []ir.ID
}

// serializeDictionary encodes, deduplicates, sorts and writes the
// vocabulary into the dictionary region, defining each word id's entry
// address with the resolver.
func (g *Generator) serializeDictionary(prog *ir.Program) error {
	byEncoding := make(map[string]*dictEntry)
	for i := range prog.Words {
		w := &prog.Words[i]
		enc, err := encodeDictWord(w.Text, g.profile, w.ID)
		if err != nil {
			return err
		}
		key := string(enc)
		e, ok := byEncoding[key]
		if !ok {
			e = &dictEntry{encoded: enc}
			byEncoding[key] = e
		}
		e.flags |= w.Flags
		e.ids = append(e.ids, w.ID)
	}

	entries := make([]*dictEntry, 0, len(byEncoding))
	for _, e := range byEncoding {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].encoded, entries[j].encoded) < 0
	})

	r := g.region(RegionDictionary)
	r.WriteByte(byte(len(wordSeparators)))
	r.Write(wordSeparators)

	entryLen := g.profile.DictTextBytes + g.profile.DictDataBytes
	r.WriteByte(byte(entryLen))
	if len(entries) > 0xFFFF {
		return capacityErr("dictionary entries", len(entries), 0xFFFF, 0)
	}
	r.WriteWord(uint16(len(entries)))

	for _, e := range entries {
		off := r.Write(e.encoded)
		r.WriteByte(e.flags)
		r.Zeros(g.profile.DictDataBytes - 1)
		for _, id := range e.ids {
			if err := g.resolver.Define(id, RegionDictionary, off); err != nil {
				return err
			}
		}
	}

	g.log.Debugf("dictionary: %d entries (%d source words), %d bytes",
		len(entries), len(prog.Words), r.Len())
	return nil
}
