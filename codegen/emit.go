package codegen

import (
	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Instruction encoder
// ---------------------------------------------------------------------------

// OperandType is the two-bit operand type class of the instruction
// format. The numeric values are the wire encoding.
type OperandType uint8

const (
	OperandLarge    OperandType = 0b00 // 16-bit constant
	OperandSmall    OperandType = 0b01 // 8-bit constant
	OperandVariable OperandType = 0b10 // variable number
	OperandOmitted  OperandType = 0b11
)

// RefSpec describes the unresolved value an operand stands for.
type RefSpec struct {
	Kind   RefKind
	Target Target
	Packed bool
	Origin ir.ID
}

// Operand is one classified instruction operand. Classification is
// final at construction: an operand backed by an unresolved reference
// is always a large constant, so the correct width is reserved before
// anything is known about the eventual value.
type Operand struct {
	Type  OperandType
	Value uint16
	Ref   *RefSpec // non-nil reserves a placeholder and records a reference
}

// Small builds an 8-bit constant operand.
func Small(v uint8) Operand { return Operand{Type: OperandSmall, Value: uint16(v)} }

// Large builds a 16-bit constant operand.
func Large(v uint16) Operand { return Operand{Type: OperandLarge, Value: v} }

// Variable builds a variable-reference operand.
func Variable(v uint8) Operand { return Operand{Type: OperandVariable, Value: uint16(v)} }

// Unresolved builds a large-constant operand to be patched later.
func Unresolved(spec RefSpec) Operand {
	s := spec
	return Operand{Type: OperandLarge, Ref: &s}
}

// Constant classifies an integer into the narrowest constant operand.
func Constant(v int32) Operand {
	if v >= 0 && v <= 0xFF {
		return Small(uint8(v))
	}
	return Large(uint16(v))
}

// BranchArg describes an instruction's branch field. When Target is a
// label id the encoder reserves the full two-byte form; narrowing
// later is disallowed because it would shift every following address.
// Static branches (return-false 0, return-true 1, fall-through 2) use
// the one-byte form since their offset is known.
type BranchArg struct {
	OnTrue bool
	Target ir.ID // label id; 0 selects Static
	Static int
	Origin ir.ID
}

// BranchTo branches to a label when the condition matches the sense.
func BranchTo(label ir.ID, onTrue bool) *BranchArg {
	return &BranchArg{OnTrue: onTrue, Target: label}
}

// BranchFallthrough encodes a branch that never diverts: taken or not,
// execution continues at the next instruction.
func BranchFallthrough() *BranchArg {
	return &BranchArg{OnTrue: true, Static: 2}
}

// BranchReturnFalse returns false from the routine when taken.
func BranchReturnFalse(onTrue bool) *BranchArg {
	return &BranchArg{OnTrue: onTrue, Static: 0}
}

// Layout records where an emitted instruction's patchable parts
// landed, as region-local offsets.
type Layout struct {
	Start       int
	OperandLocs []int
	StoreLoc    int // -1 when absent
	BranchLoc   int // -1 when absent
	End         int
}

// assembler emits instructions into the code region. It is the only
// writer of instruction bytes; everything above it deals in Opcode and
// Operand values.
type assembler struct {
	region  *Region
	resolve *Resolver
	profile *Profile
}

// storesResult reports whether the opcode carries a result slot under
// the assembler's profile. Read becomes a storing instruction from
// version 5 on; everything else follows the static table.
func (a *assembler) storesResult(op Opcode) bool {
	if op == OpSRead {
		return a.profile.Version >= 5
	}
	return op.Stores()
}

// emit encodes one instruction: opcode, operands, optional result
// slot, optional branch. The encoding form falls out of the opcode's
// count class and the operand classification, never the other way
// around.
func (a *assembler) emit(op Opcode, operands []Operand, store *uint8, branch *BranchArg) (Layout, error) {
	lay := Layout{Start: a.region.Here(), StoreLoc: -1, BranchLoc: -1}

	if op.Branches() != (branch != nil) {
		return lay, encodingErr(0, "%s: branch argument mismatch", op)
	}
	if stores := a.storesResult(op); stores != (store != nil) {
		if stores {
			return lay, encodingErr(0, "%s: result slot required", op)
		}
		return lay, encodingErr(0, "%s: does not store a result", op)
	}

	if err := a.emitOpcodeBytes(op, operands); err != nil {
		return lay, err
	}
	locs, err := a.emitOperands(operands)
	if err != nil {
		return lay, err
	}
	lay.OperandLocs = locs

	if store != nil {
		lay.StoreLoc = a.region.WriteByte(*store)
	}
	if branch != nil {
		loc, err := a.emitBranch(branch)
		if err != nil {
			return lay, err
		}
		lay.BranchLoc = loc
	}
	lay.End = a.region.Here()
	return lay, nil
}

// emitOpcodeBytes writes the instruction byte (and the operand types
// byte for the variable form).
func (a *assembler) emitOpcodeBytes(op Opcode, operands []Operand) error {
	switch op.Count {
	case Count0OP:
		if len(operands) != 0 {
			return encodingErr(0, "%s: 0OP opcode given %d operands", op, len(operands))
		}
		if op.N > 0x0F {
			return encodingErr(0, "%s: 0OP number out of range", op)
		}
		a.region.WriteByte(0xB0 | op.N)
		return nil

	case Count1OP:
		if len(operands) != 1 {
			return encodingErr(0, "%s: 1OP opcode given %d operands", op, len(operands))
		}
		if op.N > 0x0F {
			return encodingErr(0, "%s: 1OP number out of range", op)
		}
		a.region.WriteByte(0x80 | uint8(operands[0].Type)<<4 | op.N)
		return nil

	case Count2OP:
		if op.N > 0x1F {
			return encodingErr(0, "%s: 2OP number out of range", op)
		}
		if len(operands) == 2 && operands[0].Type != OperandLarge && operands[1].Type != OperandLarge {
			// Long form: bit 6/5 distinguish small constant (0) from
			// variable (1) for each operand.
			b := op.N
			if operands[0].Type == OperandVariable {
				b |= 0x40
			}
			if operands[1].Type == OperandVariable {
				b |= 0x20
			}
			a.region.WriteByte(b)
			return nil
		}
		// A large-constant operand (which every unresolved operand is)
		// forces the variable encoding of the 2OP opcode.
		if len(operands) == 0 || len(operands) > 4 {
			return encodingErr(0, "%s: 2OP opcode given %d operands", op, len(operands))
		}
		a.region.WriteByte(0xC0 | op.N)
		a.emitTypesByte(operands)
		return nil

	case CountVAR:
		if op.N > 0x1F {
			return encodingErr(0, "%s: VAR number out of range", op)
		}
		if len(operands) > 4 {
			return encodingErr(0, "%s: %d operands exceed VAR limit of 4", op, len(operands))
		}
		a.region.WriteByte(0xE0 | op.N)
		a.emitTypesByte(operands)
		return nil
	}
	return encodingErr(0, "%s: unknown count class", op)
}

// emitTypesByte packs up to four two-bit operand types, high bits
// first, padded with omitted.
func (a *assembler) emitTypesByte(operands []Operand) {
	var b uint8
	for i := 0; i < 4; i++ {
		t := OperandOmitted
		if i < len(operands) {
			t = operands[i].Type
		}
		b |= uint8(t) << uint(6-2*i)
	}
	a.region.WriteByte(b)
}

// emitOperands writes operand bytes and records one unresolved
// reference per placeholder operand.
func (a *assembler) emitOperands(operands []Operand) ([]int, error) {
	locs := make([]int, len(operands))
	for i, o := range operands {
		locs[i] = a.region.Here()
		switch {
		case o.Ref != nil:
			if o.Type != OperandLarge {
				return nil, encodingErr(o.Ref.Origin, "unresolved operand classified as %d, want large", o.Type)
			}
			off := a.region.WriteByte(placeholderByte)
			a.region.WriteByte(placeholderByte)
			a.resolve.Record(Ref{
				Kind:   o.Ref.Kind,
				Region: a.region.ID,
				Offset: off,
				Target: o.Ref.Target,
				Packed: o.Ref.Packed,
				Width:  2,
				Origin: o.Ref.Origin,
			})
		case o.Type == OperandLarge:
			a.region.WriteWord(o.Value)
		case o.Type == OperandSmall, o.Type == OperandVariable:
			if o.Value > 0xFF {
				return nil, encodingErr(0, "operand value 0x%x does not fit one byte", o.Value)
			}
			a.region.WriteByte(byte(o.Value))
		default:
			return nil, encodingErr(0, "omitted operand in operand list")
		}
	}
	return locs, nil
}

// emitBranch writes the branch field. Unknown targets always reserve
// the two-byte form.
func (a *assembler) emitBranch(br *BranchArg) (int, error) {
	if br.Target != 0 {
		off := a.region.WriteByte(placeholderByte)
		a.region.WriteByte(placeholderByte)
		a.resolve.Record(Ref{
			Kind:   RefBranch,
			Region: a.region.ID,
			Offset: off,
			Target: Target{ID: br.Target},
			Width:  2,
			OnTrue: br.OnTrue,
			Origin: br.Origin,
		})
		return off, nil
	}
	if br.Static < 0 || br.Static > 0x3F {
		return 0, encodingErr(br.Origin, "static branch offset %d out of 6-bit range", br.Static)
	}
	b := uint8(0x40) | uint8(br.Static)
	if br.OnTrue {
		b |= 0x80
	}
	return a.region.WriteByte(b), nil
}
