package codegen

import (
	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Dynamic memory: globals, buffers, arrays, abbreviations
// ---------------------------------------------------------------------------

const (
	// 240 global variables of one word each.
	globalsBytes = globalCount * 2

	// Input buffers live after the globals in dynamic memory.
	textBufBytes  = 64
	textBufMax    = textBufBytes - 3 // leaves room for the length byte and terminator
	parseTokenMax = 16
	parseBufBytes = 2 + parseTokenMax*4

	// Three abbreviation tables of 32 word entries each. Abbreviation
	// compression is not performed; the table exists so the header
	// slot points at something well-formed.
	abbrevBytes = 96 * 2
)

// buildGlobals lays out the globals region: the 240 variable slots
// with their initial values, the two input buffers, then the declared
// arrays. Buffer and array offsets are remembered for reference
// targets; string-valued initials become recorded references.
func (g *Generator) buildGlobals(prog *ir.Program) error {
	if len(prog.Globals) > globalCount {
		return capacityErr("global variables", len(prog.Globals), globalCount, 0)
	}

	r := g.region(RegionGlobals)
	init := make(map[int]*ir.GlobalDef, len(prog.Globals))
	for i := range prog.Globals {
		def := &prog.Globals[i]
		g.globalIndex[def.ID] = i
		init[i] = def
	}

	for i := 0; i < globalCount; i++ {
		def := init[i]
		switch {
		case def == nil:
			r.WriteWord(0)
		case def.InitString != 0:
			off := r.WriteByte(placeholderByte)
			r.WriteByte(placeholderByte)
			g.resolver.Record(Ref{
				Kind:   RefString,
				Region: RegionGlobals,
				Offset: off,
				Target: Target{ID: def.InitString},
				Packed: true,
				Width:  2,
				Origin: def.ID,
			})
		default:
			r.WriteWord(uint16(def.Init))
		}
	}

	g.textBufOff = r.Here()
	r.WriteByte(textBufMax)
	r.Zeros(textBufBytes - 1)

	g.parseBufOff = r.Here()
	r.WriteByte(parseTokenMax)
	r.Zeros(parseBufBytes - 1)

	for i := range prog.Arrays {
		a := &prog.Arrays[i]
		g.arrayOffsets[a.ID] = r.Here()
		for w := 0; w < a.Size; w++ {
			var v int16
			if w < len(a.Init) {
				v = a.Init[w]
			}
			r.WriteWord(uint16(v))
		}
	}

	g.log.Debugf("globals: %d declared, %d bytes with buffers and %d arrays",
		len(prog.Globals), r.Len(), len(prog.Arrays))
	return nil
}

// buildAbbreviations emits the empty abbreviations table.
func (g *Generator) buildAbbreviations() {
	g.region(RegionAbbrev).Zeros(abbrevBytes)
}

// buildHeader reserves the 64-byte header. Its fields are backfilled
// by the assembler once every region has a base address.
func (g *Generator) buildHeader() {
	g.region(RegionHeader).Zeros(headerSize)
}
