package codegen

import (
	"sort"

	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Grammar dispatch compiler
// ---------------------------------------------------------------------------

// Player input arrives tokenized in the parse buffer: a max-token
// byte, a count byte, then four bytes per token of which the first two
// are the token's dictionary address. Verb matchers compare those
// addresses against compile-time dictionary references and route to
// handlers; specialized handlers are reached through synthesized
// dispatch routines keyed on the resolved object.

// Parse buffer word offsets for loadw: token n's dictionary address
// sits at byte 2+4n, i.e. word index 1+2n.
func parseWordIndex(token int) uint8 { return uint8(1 + 2*token) }

// Matcher local slots.
const (
	matchLocCount = 1 // token count
	matchLocWord  = 2 // word 0 dictionary address
	matchLocObj   = 3 // resolved noun object
)

// synthesizeDispatchRoutines builds one routine per overload group,
// before any caller is compiled. Each routine compares its object
// argument against every specialization and falls back to the generic
// handler. The built-set bookkeeping lets lowerCall refuse a binding
// to a dispatch that was not synthesized first.
func (g *Generator) synthesizeDispatchRoutines(prog *ir.Program) error {
	for i := range prog.Dispatches {
		d := &prog.Dispatches[i]
		if err := g.synthesizeDispatch(d); err != nil {
			return err
		}
		g.dispatchBuilt[d.ID] = true
	}
	return nil
}

func (g *Generator) synthesizeDispatch(d *ir.Dispatch) error {
	r := g.region(RegionCode)
	r.PadTo(g.profile.PackRatio)
	if err := g.resolver.Define(d.ID, RegionCode, r.Here()); err != nil {
		return err
	}
	r.WriteByte(1) // one local: the object argument
	if g.profile.LocalDefaults {
		r.WriteWord(0)
	}
	obj := Variable(localVar(0))

	labels := make([]ir.ID, len(d.Specializations))
	for i, s := range d.Specializations {
		labels[i] = g.synthLabel()
		num := g.objNumbers[s.Object]
		br := BranchTo(labels[i], true)
		br.Origin = d.ID
		if _, err := g.asm.emit(OpJE, []Operand{obj, Constant(int32(num))}, nil, br); err != nil {
			return err
		}
	}

	if d.Generic != 0 {
		if err := g.emitTailCall(d.Generic, &obj, d.ID); err != nil {
			return err
		}
	} else {
		if _, err := g.asm.emit(OpRFalse, nil, nil, nil); err != nil {
			return err
		}
	}

	for i, s := range d.Specializations {
		if err := g.resolver.Define(labels[i], RegionCode, r.Here()); err != nil {
			return err
		}
		if err := g.emitTailCall(s.Handler, &obj, d.ID); err != nil {
			return err
		}
	}
	return nil
}

// emitTailCall calls a handler and returns its result.
func (g *Generator) emitTailCall(fn ir.ID, arg *Operand, origin ir.ID) error {
	operands := []Operand{
		Unresolved(RefSpec{Kind: RefCall, Target: Target{ID: fn}, Packed: true, Origin: origin}),
	}
	if arg != nil {
		operands = append(operands, *arg)
	}
	sp := uint8(VarStack)
	if _, err := g.asm.emit(OpCallVS, operands, &sp, nil); err != nil {
		return err
	}
	_, err := g.asm.emit(OpRet, []Operand{Variable(VarStack)}, nil, nil)
	return err
}

// ---------------------------------------------------------------------------
// Noun lookup
// ---------------------------------------------------------------------------

// synthesizeNounLookup builds the routine mapping a dictionary address
// to an object number: a comparison chain over every vocabulary word
// any object claims, returning 0 for an unknown noun.
func (g *Generator) synthesizeNounLookup(prog *ir.Program) error {
	r := g.region(RegionCode)
	r.PadTo(g.profile.PackRatio)
	g.nounLookup = g.synthLabel()
	if err := g.resolver.Define(g.nounLookup, RegionCode, r.Here()); err != nil {
		return err
	}
	r.WriteByte(1) // one local: the dictionary address
	if g.profile.LocalDefaults {
		r.WriteWord(0)
	}
	addr := Variable(localVar(0))

	type hit struct {
		label ir.ID
		num   int
	}
	var hits []hit
	for i := range prog.Objects {
		o := &prog.Objects[i]
		if len(o.Words) == 0 {
			continue
		}
		label := g.synthLabel()
		hits = append(hits, hit{label: label, num: g.objNumbers[o.ID]})
		for _, w := range o.Words {
			br := BranchTo(label, true)
			br.Origin = o.ID
			word := Unresolved(RefSpec{Kind: RefDictionary, Target: Target{ID: w}, Origin: o.ID})
			if _, err := g.asm.emit(OpJE, []Operand{addr, word}, nil, br); err != nil {
				return err
			}
		}
	}
	if _, err := g.asm.emit(OpRFalse, nil, nil, nil); err != nil {
		return err
	}
	for _, h := range hits {
		if err := g.resolver.Define(h.label, RegionCode, r.Here()); err != nil {
			return err
		}
		if _, err := g.asm.emit(OpRet, []Operand{Constant(int32(h.num))}, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Verb matchers
// ---------------------------------------------------------------------------

// specificity ranks a pattern: literals outweigh noun slots, and the
// bare verb ranks last. Patterns are tried in descending rank.
func specificity(p *ir.Pattern) int {
	rank := 0
	for _, e := range p.Elems {
		if e.Kind == ir.ElemLiteral {
			rank += 2
		} else {
			rank++
		}
	}
	return rank
}

// synthesizeVerbMatchers builds one matcher routine per verb and
// remembers their ids for the main loop chain.
func (g *Generator) synthesizeVerbMatchers(prog *ir.Program) error {
	g.verbMatchers = make([]ir.ID, len(prog.Verbs))
	for i := range prog.Verbs {
		id, err := g.synthesizeVerbMatcher(prog, &prog.Verbs[i])
		if err != nil {
			return err
		}
		g.verbMatchers[i] = id
	}
	return nil
}

// synthesizeVerbMatcher builds the routine for one verb: reject unless
// token 0 is the verb, then try each pattern in specificity order,
// falling through to the verb default. Returns true when input was
// handled.
func (g *Generator) synthesizeVerbMatcher(prog *ir.Program, v *ir.Verb) (ir.ID, error) {
	r := g.region(RegionCode)
	r.PadTo(g.profile.PackRatio)
	id := g.synthLabel()
	if err := g.resolver.Define(id, RegionCode, r.Here()); err != nil {
		return 0, err
	}
	r.WriteByte(3)
	if g.profile.LocalDefaults {
		for i := 0; i < 3; i++ {
			r.WriteWord(0)
		}
	}

	parse := func() Operand {
		return Unresolved(RefSpec{Kind: RefTable, Target: Target{Region: RegionGlobals, Offset: g.parseBufOff}, Origin: v.Word})
	}
	count := Variable(localVar(matchLocCount - 1))
	word0 := Variable(localVar(matchLocWord - 1))
	objVar := localVar(matchLocObj - 1)

	// Token count and token 0 dictionary address.
	countVar := localVar(matchLocCount - 1)
	if _, err := g.asm.emit(OpLoadB, []Operand{parse(), Small(1)}, &countVar, nil); err != nil {
		return 0, err
	}
	word0Var := localVar(matchLocWord - 1)
	if _, err := g.asm.emit(OpLoadW, []Operand{parse(), Small(parseWordIndex(0))}, &word0Var, nil); err != nil {
		return 0, err
	}

	// Not our verb: return false immediately via the one-byte branch.
	verbRef := Unresolved(RefSpec{Kind: RefDictionary, Target: Target{ID: v.Word}, Origin: v.Word})
	if _, err := g.asm.emit(OpJE, []Operand{word0, verbRef}, nil, BranchReturnFalse(false)); err != nil {
		return 0, err
	}

	ordered := make([]*ir.Pattern, len(v.Patterns))
	for i := range v.Patterns {
		ordered[i] = &v.Patterns[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return specificity(ordered[i]) > specificity(ordered[j])
	})

	done := g.synthLabel()
	for _, pat := range ordered {
		if err := g.emitPattern(prog, v, pat, parse, count, objVar, done); err != nil {
			return 0, err
		}
	}

	if v.Default != 0 {
		if err := g.emitHandlerCall(prog, v.Default, nil, v.Word); err != nil {
			return 0, err
		}
		jmp := Unresolved(RefSpec{Kind: RefJump, Target: Target{ID: done}, Origin: v.Word})
		if _, err := g.asm.emit(OpJump, []Operand{jmp}, nil, nil); err != nil {
			return 0, err
		}
	} else {
		if _, err := g.asm.emit(OpRFalse, nil, nil, nil); err != nil {
			return 0, err
		}
	}

	// Shared continuation: every matched pattern lands here.
	if err := g.resolver.Define(done, RegionCode, r.Here()); err != nil {
		return 0, err
	}
	if _, err := g.asm.emit(OpRTrue, nil, nil, nil); err != nil {
		return 0, err
	}
	return id, nil
}

// emitPattern emits one candidate: check token count, check each
// literal by dictionary address, resolve the noun slot, call the
// handler, jump to the shared continuation. Any failed check falls
// through to the next candidate.
func (g *Generator) emitPattern(prog *ir.Program, v *ir.Verb, pat *ir.Pattern, parse func() Operand, count Operand, objVar uint8, done ir.ID) error {
	skip := g.synthLabel()

	expected := 1 + len(pat.Elems)
	br := BranchTo(skip, false)
	br.Origin = v.Word
	if _, err := g.asm.emit(OpJE, []Operand{count, Small(uint8(expected))}, nil, br); err != nil {
		return err
	}

	var nounArg *Operand
	for i, e := range pat.Elems {
		sp := uint8(VarStack)
		if _, err := g.asm.emit(OpLoadW, []Operand{parse(), Small(parseWordIndex(i + 1))}, &sp, nil); err != nil {
			return err
		}
		switch e.Kind {
		case ir.ElemLiteral:
			lit := Unresolved(RefSpec{Kind: RefDictionary, Target: Target{ID: e.Word}, Origin: v.Word})
			br := BranchTo(skip, false)
			br.Origin = v.Word
			if _, err := g.asm.emit(OpJE, []Operand{Variable(VarStack), lit}, nil, br); err != nil {
				return err
			}
		case ir.ElemNoun:
			if err := g.emitNounResolve(objVar, v.Word); err != nil {
				return err
			}
			br := BranchTo(skip, true)
			br.Origin = v.Word
			if _, err := g.asm.emit(OpJZ, []Operand{Variable(objVar)}, nil, br); err != nil {
				return err
			}
			o := Variable(objVar)
			nounArg = &o
		}
	}

	if err := g.emitHandlerCall(prog, pat.Handler, nounArg, v.Word); err != nil {
		return err
	}
	jmp := Unresolved(RefSpec{Kind: RefJump, Target: Target{ID: done}, Origin: v.Word})
	if _, err := g.asm.emit(OpJump, []Operand{jmp}, nil, nil); err != nil {
		return err
	}
	return g.resolver.Define(skip, RegionCode, g.region(RegionCode).Here())
}

// emitNounResolve calls the noun lookup on the dictionary address on
// top of the stack, storing the object number.
func (g *Generator) emitNounResolve(objVar uint8, origin ir.ID) error {
	operands := []Operand{
		Unresolved(RefSpec{Kind: RefCall, Target: Target{ID: g.nounLookup}, Packed: true, Origin: origin}),
		Variable(VarStack),
	}
	_, err := g.asm.emit(OpCallVS, operands, &objVar, nil)
	return err
}

// emitHandlerCall calls a pattern handler, which may be a dispatch.
// Dispatches are synthesized before any grammar code, so binding here
// is always to a complete dispatch.
func (g *Generator) emitHandlerCall(prog *ir.Program, handler ir.ID, nounArg *Operand, origin ir.ID) error {
	if prog.Dispatch(handler) != nil && !g.dispatchBuilt[handler] {
		return &UnresolvedReferenceError{
			What:     "grammar bound to dispatch before synthesis",
			Region:   RegionCode,
			Offset:   g.region(RegionCode).Here(),
			TargetID: handler,
		}
	}
	operands := []Operand{
		Unresolved(RefSpec{Kind: RefCall, Target: Target{ID: handler}, Packed: true, Origin: origin}),
	}
	if nounArg != nil {
		operands = append(operands, *nounArg)
	}
	sp := uint8(VarStack)
	_, err := g.asm.emit(OpCallVS, operands, &sp, nil)
	return err
}

// ---------------------------------------------------------------------------
// Entry stub and main loop
// ---------------------------------------------------------------------------

// buildEntry emits the startup code the initial PC points at: run the
// entry function, then loop reading input and offering it to each verb
// matcher, reporting unhandled input. Programs without grammar just
// quit when the entry function returns.
func (g *Generator) buildEntry(prog *ir.Program) error {
	r := g.region(RegionCode)
	g.entryPC = r.Here()

	sp := uint8(VarStack)
	entryCall := []Operand{
		Unresolved(RefSpec{Kind: RefCall, Target: Target{ID: prog.Entry}, Packed: true, Origin: prog.Entry}),
	}
	if _, err := g.asm.emit(OpCallVS, entryCall, &sp, nil); err != nil {
		return err
	}

	if len(prog.Verbs) == 0 {
		_, err := g.asm.emit(OpQuit, nil, nil, nil)
		return err
	}

	loop := g.synthLabel()
	if err := g.resolver.Define(loop, RegionCode, r.Here()); err != nil {
		return err
	}

	text := Unresolved(RefSpec{Kind: RefTable, Target: Target{Region: RegionGlobals, Offset: g.textBufOff}})
	parse := Unresolved(RefSpec{Kind: RefTable, Target: Target{Region: RegionGlobals, Offset: g.parseBufOff}})
	if g.profile.Version >= 5 {
		if _, err := g.asm.emit(OpSRead, []Operand{text, parse}, &sp, nil); err != nil {
			return err
		}
	} else {
		if _, err := g.asm.emit(OpSRead, []Operand{text, parse}, nil, nil); err != nil {
			return err
		}
	}

	for _, matcher := range g.verbMatchers {
		call := []Operand{
			Unresolved(RefSpec{Kind: RefCall, Target: Target{ID: matcher}, Packed: true}),
		}
		if _, err := g.asm.emit(OpCallVS, call, &sp, nil); err != nil {
			return err
		}
		// Handled input restarts the loop; the branch is taken when
		// the matcher returned nonzero.
		if _, err := g.asm.emit(OpJZ, []Operand{Variable(VarStack)}, nil, BranchTo(loop, false)); err != nil {
			return err
		}
	}

	notUnderstood, err := g.internString("I don't understand that.")
	if err != nil {
		return err
	}
	if _, err := g.asm.emit(OpPrintPaddr, []Operand{
		Unresolved(RefSpec{Kind: RefString, Target: Target{ID: notUnderstood}, Packed: true}),
	}, nil, nil); err != nil {
		return err
	}
	if _, err := g.asm.emit(OpNewline, nil, nil, nil); err != nil {
		return err
	}
	jmp := Unresolved(RefSpec{Kind: RefJump, Target: Target{ID: loop}})
	_, err = g.asm.emit(OpJump, []Operand{jmp}, nil, nil)
	return err
}
