package ir

import "fmt"

// Validate checks referential integrity: every id an instruction or
// table references must name something the program declares. Uniqueness
// of ids is the front end's contract and is checked here only because a
// duplicate would make address maps ambiguous downstream.
func (p *Program) Validate() error {
	seen := make(map[ID]string)
	declare := func(id ID, what string) error {
		if id == 0 {
			return fmt.Errorf("ir: %s declared with id 0", what)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("ir: id %d declared twice (%s, %s)", id, prev, what)
		}
		seen[id] = what
		return nil
	}

	callable := make(map[ID]bool)
	for i := range p.Functions {
		f := &p.Functions[i]
		if err := declare(f.ID, "function "+f.Name); err != nil {
			return err
		}
		callable[f.ID] = true
	}
	for i := range p.Dispatches {
		d := &p.Dispatches[i]
		if err := declare(d.ID, "dispatch "+d.Name); err != nil {
			return err
		}
		callable[d.ID] = true
	}

	objects := make(map[ID]bool)
	for i := range p.Objects {
		o := &p.Objects[i]
		if err := declare(o.ID, "object "+o.Name); err != nil {
			return err
		}
		objects[o.ID] = true
	}
	strings := make(map[ID]bool)
	for i := range p.Strings {
		if err := declare(p.Strings[i].ID, "string"); err != nil {
			return err
		}
		strings[p.Strings[i].ID] = true
	}
	words := make(map[ID]bool)
	for i := range p.Words {
		if err := declare(p.Words[i].ID, "word "+p.Words[i].Text); err != nil {
			return err
		}
		words[p.Words[i].ID] = true
	}
	for i := range p.Globals {
		if err := declare(p.Globals[i].ID, "global "+p.Globals[i].Name); err != nil {
			return err
		}
		if s := p.Globals[i].InitString; s != 0 && !strings[s] {
			return fmt.Errorf("ir: global %s initialized with unknown string %d", p.Globals[i].Name, s)
		}
	}
	for i := range p.Arrays {
		if err := declare(p.Arrays[i].ID, "array "+p.Arrays[i].Name); err != nil {
			return err
		}
	}

	for i := range p.Objects {
		o := &p.Objects[i]
		for _, rel := range []ID{o.Parent, o.Sibling, o.Child} {
			if rel != 0 && !objects[rel] {
				return fmt.Errorf("ir: object %s links unknown object %d", o.Name, rel)
			}
		}
		for _, w := range o.Words {
			if !words[w] {
				return fmt.Errorf("ir: object %s names unknown word %d", o.Name, w)
			}
		}
		for _, pr := range o.Props {
			switch pr.Kind {
			case PropString:
				if !strings[pr.Ref] {
					return fmt.Errorf("ir: object %s property %d references unknown string %d", o.Name, pr.Num, pr.Ref)
				}
			case PropWord:
				if !words[pr.Ref] {
					return fmt.Errorf("ir: object %s property %d references unknown word %d", o.Name, pr.Num, pr.Ref)
				}
			case PropObject:
				if !objects[pr.Ref] {
					return fmt.Errorf("ir: object %s property %d references unknown object %d", o.Name, pr.Num, pr.Ref)
				}
			}
		}
	}

	for i := range p.Dispatches {
		d := &p.Dispatches[i]
		for _, s := range d.Specializations {
			if !objects[s.Object] {
				return fmt.Errorf("ir: dispatch %s specializes unknown object %d", d.Name, s.Object)
			}
			if p.Function(s.Handler) == nil {
				return fmt.Errorf("ir: dispatch %s specialization handler %d is not a function", d.Name, s.Handler)
			}
		}
		if d.Generic != 0 && p.Function(d.Generic) == nil {
			return fmt.Errorf("ir: dispatch %s generic handler %d is not a function", d.Name, d.Generic)
		}
	}

	for i := range p.Verbs {
		v := &p.Verbs[i]
		if !words[v.Word] {
			return fmt.Errorf("ir: verb references unknown word %d", v.Word)
		}
		if v.Default != 0 && !callable[v.Default] {
			return fmt.Errorf("ir: verb default handler %d is not callable", v.Default)
		}
		for _, pat := range v.Patterns {
			if !callable[pat.Handler] {
				return fmt.Errorf("ir: pattern handler %d is not callable", pat.Handler)
			}
			for _, e := range pat.Elems {
				if e.Kind == ElemLiteral && !words[e.Word] {
					return fmt.Errorf("ir: pattern literal references unknown word %d", e.Word)
				}
			}
		}
	}

	for i := range p.Functions {
		f := &p.Functions[i]
		if err := f.validateBody(p, callable, objects, strings, words); err != nil {
			return err
		}
	}

	if p.Entry == 0 || p.Function(p.Entry) == nil {
		return fmt.Errorf("ir: entry function %d is not a function", p.Entry)
	}
	return nil
}

func (f *Function) validateBody(p *Program, callable, objects, strings, words map[ID]bool) error {
	labels := make(map[ID]bool)
	for _, in := range f.Body {
		if in.Op == OpLabel {
			if labels[in.Label] {
				return fmt.Errorf("ir: function %s defines label %d twice", f.Name, in.Label)
			}
			labels[in.Label] = true
		}
	}
	for idx, in := range f.Body {
		switch in.Op {
		case OpJump, OpBranchEQ, OpBranchNE, OpBranchLT, OpBranchGT, OpBranchZero, OpTestAttr:
			if !labels[in.Label] {
				return fmt.Errorf("ir: function %s instr %d targets unknown label %d", f.Name, idx, in.Label)
			}
		case OpGetSibling, OpGetChild:
			if in.Label != 0 && !labels[in.Label] {
				return fmt.Errorf("ir: function %s instr %d targets unknown label %d", f.Name, idx, in.Label)
			}
		case OpCall:
			if !callable[in.Func] {
				return fmt.Errorf("ir: function %s instr %d calls unknown target %d", f.Name, idx, in.Func)
			}
		case OpPrint:
			if !strings[in.Str] {
				return fmt.Errorf("ir: function %s instr %d prints unknown string %d", f.Name, idx, in.Str)
			}
		}
		for _, a := range in.Args {
			switch a.Kind {
			case ValObject:
				if !objects[a.Ref] {
					return fmt.Errorf("ir: function %s instr %d uses unknown object %d", f.Name, idx, a.Ref)
				}
			case ValString:
				if !strings[a.Ref] {
					return fmt.Errorf("ir: function %s instr %d uses unknown string %d", f.Name, idx, a.Ref)
				}
			case ValWord:
				if !words[a.Ref] {
					return fmt.Errorf("ir: function %s instr %d uses unknown word %d", f.Name, idx, a.Ref)
				}
			}
		}
	}
	return nil
}
