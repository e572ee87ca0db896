package codegen

import (
	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Function compiler
// ---------------------------------------------------------------------------

// Each IR function becomes one routine: a local-count header (with
// initial values on profiles that carry them) followed by encoded
// instructions. Parameters occupy the first local slots; every
// temporary that is ever a result gets its own slot after them.

// compileFunction lowers one function into the code region.
func (g *Generator) compileFunction(prog *ir.Program, f *ir.Function) error {
	slots, err := g.assignLocals(f)
	if err != nil {
		return err
	}

	r := g.region(RegionCode)
	r.PadTo(g.profile.PackRatio)
	if err := g.resolver.Define(f.ID, RegionCode, r.Here()); err != nil {
		return err
	}

	r.WriteByte(byte(len(slots)))
	if g.profile.LocalDefaults {
		for range slots {
			r.WriteWord(0)
		}
	}

	fc := &funcContext{g: g, f: f, slots: slots}
	for i := range f.Body {
		if err := fc.lower(prog, &f.Body[i]); err != nil {
			return err
		}
	}

	// A routine must not run off its end; fall-off returns true, the
	// same default the source language gives bodies without an
	// explicit return.
	if n := len(f.Body); n == 0 || !endsControl(f.Body[n-1].Op) {
		if _, err := g.asm.emit(OpRTrue, nil, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func endsControl(op ir.Op) bool {
	return op == ir.OpReturn || op == ir.OpJump || op == ir.OpQuit
}

// assignLocals maps parameter and temporary ids to local slots.
func (g *Generator) assignLocals(f *ir.Function) (map[ir.ID]int, error) {
	slots := make(map[ir.ID]int)
	for _, p := range f.Params {
		slots[p] = len(slots)
	}
	for i := range f.Body {
		dst := f.Body[i].Dst
		if dst == 0 {
			continue
		}
		if _, isGlobal := g.globalIndex[dst]; isGlobal {
			continue
		}
		if _, ok := slots[dst]; !ok {
			slots[dst] = len(slots)
		}
	}
	if len(slots) > g.profile.MaxLocals {
		return nil, capacityErr("routine locals", len(slots), g.profile.MaxLocals, f.ID)
	}
	return slots, nil
}

// funcContext carries per-function lowering state.
type funcContext struct {
	g     *Generator
	f     *ir.Function
	slots map[ir.ID]int
}

// operand classifies one IR value into a machine operand. The
// classification happens here, before anything is resolved: values
// backed by unknown addresses become large-constant placeholders.
func (fc *funcContext) operand(v ir.Value) (Operand, error) {
	g := fc.g
	switch v.Kind {
	case ir.ValConst:
		if v.Int >= 0 && v.Int <= 0xFF {
			return Small(uint8(v.Int)), nil
		}
		if v.Int < -32768 || v.Int > 65535 {
			return Operand{}, encodingErr(fc.f.ID, "constant %d does not fit a machine word", v.Int)
		}
		return Large(uint16(v.Int)), nil
	case ir.ValTemp:
		slot, ok := fc.slots[v.Ref]
		if !ok {
			return Operand{}, encodingErr(fc.f.ID, "temporary %d used before definition", v.Ref)
		}
		return Variable(localVar(slot)), nil
	case ir.ValGlobal:
		idx, ok := g.globalIndex[v.Ref]
		if !ok {
			return Operand{}, encodingErr(fc.f.ID, "unknown global %d", v.Ref)
		}
		return Variable(globalVar(idx)), nil
	case ir.ValObject:
		num, ok := g.objNumbers[v.Ref]
		if !ok {
			return Operand{}, encodingErr(fc.f.ID, "unknown object %d", v.Ref)
		}
		return Constant(int32(num)), nil
	case ir.ValString:
		return Unresolved(RefSpec{Kind: RefString, Target: Target{ID: v.Ref}, Packed: true, Origin: fc.f.ID}), nil
	case ir.ValWord:
		return Unresolved(RefSpec{Kind: RefDictionary, Target: Target{ID: v.Ref}, Origin: fc.f.ID}), nil
	case ir.ValArray:
		off, ok := g.arrayOffsets[v.Ref]
		if !ok {
			return Operand{}, encodingErr(fc.f.ID, "unknown array %d", v.Ref)
		}
		return Unresolved(RefSpec{Kind: RefTable, Target: Target{Region: RegionGlobals, Offset: off}, Origin: fc.f.ID}), nil
	}
	return Operand{}, encodingErr(fc.f.ID, "unknown value kind %d", v.Kind)
}

// args classifies the instruction's operands, checking arity.
func (fc *funcContext) args(in *ir.Instr, n int) ([]Operand, error) {
	if len(in.Args) != n {
		return nil, encodingErr(fc.f.ID, "%s: %d operands, want %d", in.Op, len(in.Args), n)
	}
	out := make([]Operand, n)
	for i, a := range in.Args {
		o, err := fc.operand(a)
		if err != nil {
			return nil, err
		}
		out[i] = o
	}
	return out, nil
}

// dstVar returns the variable receiving an instruction's result:
// a global, a local slot, or the stack when the result is unused.
func (fc *funcContext) dstVar(dst ir.ID) uint8 {
	if dst == 0 {
		return VarStack
	}
	if idx, ok := fc.g.globalIndex[dst]; ok {
		return globalVar(idx)
	}
	return localVar(fc.slots[dst])
}

// lower encodes one IR instruction.
func (fc *funcContext) lower(prog *ir.Program, in *ir.Instr) error {
	g := fc.g
	switch in.Op {
	case ir.OpNop:
		return nil

	case ir.OpMove:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		// store takes the destination variable number as a small
		// constant operand.
		_, err = g.asm.emit(OpStore, []Operand{Small(fc.dstVar(in.Dst)), ops[0]}, nil, nil)
		return err

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod:
		ops, err := fc.args(in, 2)
		if err != nil {
			return err
		}
		dst := fc.dstVar(in.Dst)
		_, err = g.asm.emit(arithOpcode(in.Op), ops, &dst, nil)
		return err

	case ir.OpCmpEQ, ir.OpCmpLT, ir.OpCmpGT:
		return fc.lowerCompare(in)

	case ir.OpLabel:
		return g.resolver.Define(in.Label, RegionCode, g.region(RegionCode).Here())

	case ir.OpJump:
		_, err := g.asm.emit(OpJump, []Operand{
			Unresolved(RefSpec{Kind: RefJump, Target: Target{ID: in.Label}, Origin: fc.f.ID}),
		}, nil, nil)
		return err

	case ir.OpBranchEQ, ir.OpBranchNE, ir.OpBranchLT, ir.OpBranchGT:
		ops, err := fc.args(in, 2)
		if err != nil {
			return err
		}
		op, onTrue := branchOpcode(in.Op)
		br := BranchTo(in.Label, onTrue)
		br.Origin = fc.f.ID
		_, err = g.asm.emit(op, ops, nil, br)
		return err

	case ir.OpBranchZero:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		br := BranchTo(in.Label, true)
		br.Origin = fc.f.ID
		_, err = g.asm.emit(OpJZ, ops, nil, br)
		return err

	case ir.OpCall:
		return fc.lowerCall(prog, in)

	case ir.OpReturn:
		return fc.lowerReturn(in)

	case ir.OpGetParent:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		dst := fc.dstVar(in.Dst)
		_, err = g.asm.emit(OpGetParent, ops, &dst, nil)
		return err

	case ir.OpGetSibling, ir.OpGetChild:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		op := OpGetSibling
		if in.Op == ir.OpGetChild {
			op = OpGetChild
		}
		dst := fc.dstVar(in.Dst)
		// The machine branches when the relation exists; the IR label
		// names where to go when it does not.
		var br *BranchArg
		if in.Label != 0 {
			br = BranchTo(in.Label, false)
			br.Origin = fc.f.ID
		} else {
			br = BranchFallthrough()
		}
		_, err = g.asm.emit(op, ops, &dst, br)
		return err

	case ir.OpInsertObj:
		ops, err := fc.args(in, 2)
		if err != nil {
			return err
		}
		_, err = g.asm.emit(OpInsert, ops, nil, nil)
		return err

	case ir.OpRemoveObj:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		_, err = g.asm.emit(OpRemove, ops, nil, nil)
		return err

	case ir.OpGetProp:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		dst := fc.dstVar(in.Dst)
		_, err = g.asm.emit(OpGetProp, []Operand{ops[0], Small(in.Prop)}, &dst, nil)
		return err

	case ir.OpSetProp:
		ops, err := fc.args(in, 2)
		if err != nil {
			return err
		}
		_, err = g.asm.emit(OpPutProp, []Operand{ops[0], Small(in.Prop), ops[1]}, nil, nil)
		return err

	case ir.OpTestAttr:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		br := BranchTo(in.Label, true)
		br.Origin = fc.f.ID
		_, err = g.asm.emit(OpTestAttr, []Operand{ops[0], Small(in.Attr)}, nil, br)
		return err

	case ir.OpSetAttr, ir.OpClearAttr:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		op := OpSetAttr
		if in.Op == ir.OpClearAttr {
			op = OpClrAttr
		}
		_, err = g.asm.emit(op, []Operand{ops[0], Small(in.Attr)}, nil, nil)
		return err

	case ir.OpPrint:
		_, err := g.asm.emit(OpPrintPaddr, []Operand{
			Unresolved(RefSpec{Kind: RefString, Target: Target{ID: in.Str}, Packed: true, Origin: fc.f.ID}),
		}, nil, nil)
		return err

	case ir.OpPrintNum, ir.OpPrintChar:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		op := OpPrintNum
		if in.Op == ir.OpPrintChar {
			op = OpPrintChar
		}
		_, err = g.asm.emit(op, ops, nil, nil)
		return err

	case ir.OpPrintObj:
		ops, err := fc.args(in, 1)
		if err != nil {
			return err
		}
		_, err = g.asm.emit(OpPrintObj, ops, nil, nil)
		return err

	case ir.OpNewline:
		_, err := g.asm.emit(OpNewline, nil, nil, nil)
		return err

	case ir.OpQuit:
		_, err := g.asm.emit(OpQuit, nil, nil, nil)
		return err
	}
	return encodingErr(fc.f.ID, "unknown operation %d", in.Op)
}

func arithOpcode(op ir.Op) Opcode {
	switch op {
	case ir.OpAdd:
		return OpAdd
	case ir.OpSub:
		return OpSub
	case ir.OpMul:
		return OpMul
	case ir.OpDiv:
		return OpDiv
	default:
		return OpMod
	}
}

func branchOpcode(op ir.Op) (Opcode, bool) {
	switch op {
	case ir.OpBranchEQ:
		return OpJE, true
	case ir.OpBranchNE:
		return OpJE, false
	case ir.OpBranchLT:
		return OpJL, true
	default:
		return OpJG, true
	}
}

// lowerCompare materializes a 0/1 result from a comparison: assume
// true, branch over the correction when the comparison holds.
func (fc *funcContext) lowerCompare(in *ir.Instr) error {
	g := fc.g
	ops, err := fc.args(in, 2)
	if err != nil {
		return err
	}
	dst := fc.dstVar(in.Dst)
	var op Opcode
	switch in.Op {
	case ir.OpCmpEQ:
		op = OpJE
	case ir.OpCmpLT:
		op = OpJL
	default:
		op = OpJG
	}

	done := g.synthLabel()
	if _, err := g.asm.emit(OpStore, []Operand{Small(dst), Small(1)}, nil, nil); err != nil {
		return err
	}
	br := BranchTo(done, true)
	br.Origin = fc.f.ID
	if _, err := g.asm.emit(op, ops, nil, br); err != nil {
		return err
	}
	if _, err := g.asm.emit(OpStore, []Operand{Small(dst), Small(0)}, nil, nil); err != nil {
		return err
	}
	return g.resolver.Define(done, RegionCode, g.region(RegionCode).Here())
}

// lowerCall encodes a routine call. The target may be a plain function
// or a dispatch; a dispatch must have been synthesized before any
// caller binds to it.
func (fc *funcContext) lowerCall(prog *ir.Program, in *ir.Instr) error {
	g := fc.g
	if prog.Dispatch(in.Func) != nil && !g.dispatchBuilt[in.Func] {
		return &UnresolvedReferenceError{
			What:     "caller bound to dispatch before synthesis",
			Region:   RegionCode,
			Offset:   g.region(RegionCode).Here(),
			TargetID: in.Func,
		}
	}
	if len(in.Args) > g.profile.MaxCallArgs {
		return capacityErr("call arguments", len(in.Args), g.profile.MaxCallArgs, fc.f.ID)
	}
	operands := []Operand{
		Unresolved(RefSpec{Kind: RefCall, Target: Target{ID: in.Func}, Packed: true, Origin: fc.f.ID}),
	}
	for _, a := range in.Args {
		o, err := fc.operand(a)
		if err != nil {
			return err
		}
		operands = append(operands, o)
	}
	dst := fc.dstVar(in.Dst)
	_, err := g.asm.emit(OpCallVS, operands, &dst, nil)
	return err
}

// lowerReturn encodes a return, using the one-byte true/false returns
// for the constant cases.
func (fc *funcContext) lowerReturn(in *ir.Instr) error {
	g := fc.g
	if len(in.Args) == 0 {
		_, err := g.asm.emit(OpRFalse, nil, nil, nil)
		return err
	}
	if in.Args[0].Kind == ir.ValConst {
		switch in.Args[0].Int {
		case 0:
			_, err := g.asm.emit(OpRFalse, nil, nil, nil)
			return err
		case 1:
			_, err := g.asm.emit(OpRTrue, nil, nil, nil)
			return err
		}
	}
	o, err := fc.operand(in.Args[0])
	if err != nil {
		return err
	}
	_, err = g.asm.emit(OpRet, []Operand{o}, nil, nil)
	return err
}
