// Package ir defines the intermediate representation handed to the code
// generation backend. The front end produces a Program with all names
// resolved to numeric ids; the backend trusts ids to be unique and
// pre-validated and never re-parses source text.
package ir

// ID is a virtual identifier. IDs are unique across an entire Program,
// regardless of what they name (function, label, string, object, word).
type ID uint32

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Op identifies an IR operation. The set is closed: the backend switches
// over these tags and never dispatches on names.
type Op uint8

const (
	OpNop Op = iota

	// Data movement
	OpMove // Dst <- Args[0]

	// Arithmetic
	OpAdd // Dst <- Args[0] + Args[1]
	OpSub // Dst <- Args[0] - Args[1]
	OpMul // Dst <- Args[0] * Args[1]
	OpDiv // Dst <- Args[0] / Args[1]
	OpMod // Dst <- Args[0] % Args[1]

	// Comparison producing 0/1
	OpCmpEQ // Dst <- Args[0] == Args[1]
	OpCmpLT // Dst <- Args[0] < Args[1]
	OpCmpGT // Dst <- Args[0] > Args[1]

	// Control flow. Label defines a jump target; branches name one.
	OpLabel      // defines Label
	OpJump       // unconditional jump to Label
	OpBranchEQ   // if Args[0] == Args[1] goto Label
	OpBranchNE   // if Args[0] != Args[1] goto Label
	OpBranchLT   // if Args[0] < Args[1] goto Label
	OpBranchGT   // if Args[0] > Args[1] goto Label
	OpBranchZero // if Args[0] == 0 goto Label

	// Calls. Func names a Function or Dispatch id.
	OpCall   // Dst (optional) <- call Func(Args...)
	OpReturn // return Args[0], or 0 when Args empty

	// Object tree
	OpGetParent  // Dst <- parent of Args[0]
	OpGetSibling // Dst <- sibling of Args[0]; optional Label: taken when none
	OpGetChild   // Dst <- first child of Args[0]; optional Label: taken when none
	OpInsertObj  // move Args[0] under Args[1]
	OpRemoveObj  // detach Args[0]

	// Properties and attributes
	OpGetProp   // Dst <- property Prop of Args[0]
	OpSetProp   // property Prop of Args[0] <- Args[1]
	OpTestAttr  // if attribute Attr of Args[0] set goto Label
	OpSetAttr   // set attribute Attr of Args[0]
	OpClearAttr // clear attribute Attr of Args[0]

	// Output
	OpPrint     // print string Str
	OpPrintNum  // print Args[0] as signed decimal
	OpPrintChar // print Args[0] as a character
	OpPrintObj  // print short name of object Args[0]
	OpNewline

	OpQuit
)

var opNames = [...]string{
	OpNop: "nop", OpMove: "move",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpCmpEQ: "cmp-eq", OpCmpLT: "cmp-lt", OpCmpGT: "cmp-gt",
	OpLabel: "label", OpJump: "jump",
	OpBranchEQ: "br-eq", OpBranchNE: "br-ne", OpBranchLT: "br-lt",
	OpBranchGT: "br-gt", OpBranchZero: "br-zero",
	OpCall: "call", OpReturn: "return",
	OpGetParent: "get-parent", OpGetSibling: "get-sibling", OpGetChild: "get-child",
	OpInsertObj: "insert-obj", OpRemoveObj: "remove-obj",
	OpGetProp: "get-prop", OpSetProp: "set-prop",
	OpTestAttr: "test-attr", OpSetAttr: "set-attr", OpClearAttr: "clear-attr",
	OpPrint: "print", OpPrintNum: "print-num", OpPrintChar: "print-char",
	OpPrintObj: "print-obj", OpNewline: "newline", OpQuit: "quit",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// ValueKind discriminates instruction operands.
type ValueKind uint8

const (
	ValConst  ValueKind = iota // immediate integer in Int
	ValTemp                    // virtual temporary, Ref is its defining id
	ValGlobal                  // global variable, Ref is the Global's id
	ValObject                  // object constant, Ref is the Object's id
	ValString                  // address of string constant, Ref is its id
	ValWord                    // dictionary address of word, Ref is its id
	ValArray                   // base address of array, Ref is its id
)

// Value is an instruction operand.
type Value struct {
	Kind ValueKind `cbor:"k"`
	Int  int32     `cbor:"n,omitempty"`
	Ref  ID        `cbor:"r,omitempty"`
}

// Const builds an immediate operand.
func Const(n int32) Value { return Value{Kind: ValConst, Int: n} }

// Temp builds a temporary operand.
func Temp(id ID) Value { return Value{Kind: ValTemp, Ref: id} }

// Global builds a global-variable operand.
func Global(id ID) Value { return Value{Kind: ValGlobal, Ref: id} }

// Object builds an object-constant operand.
func Object(id ID) Value { return Value{Kind: ValObject, Ref: id} }

// ---------------------------------------------------------------------------
// Instructions and functions
// ---------------------------------------------------------------------------

// Instr is one IR instruction. Fields beyond Op are meaningful only for
// the operations that document them above.
type Instr struct {
	Op    Op      `cbor:"op"`
	Dst   ID      `cbor:"dst,omitempty"` // result temporary, 0 when none
	Args  []Value `cbor:"args,omitempty"`
	Label ID      `cbor:"label,omitempty"` // defined or targeted label
	Func  ID      `cbor:"func,omitempty"`  // call target (Function or Dispatch)
	Prop  uint8   `cbor:"prop,omitempty"`  // property number
	Attr  uint8   `cbor:"attr,omitempty"`  // attribute number
	Str   ID      `cbor:"str,omitempty"`   // string constant for OpPrint
}

// Function is one routine: parameters arrive in the first NumParams
// temporary slots referenced by Params.
type Function struct {
	ID     ID      `cbor:"id"`
	Name   string  `cbor:"name"`
	Params []ID    `cbor:"params,omitempty"` // temp ids bound to arguments
	Body   []Instr `cbor:"body"`
}

// ---------------------------------------------------------------------------
// Static data
// ---------------------------------------------------------------------------

// StringConst is a string literal referenced by id.
type StringConst struct {
	ID   ID     `cbor:"id"`
	Text string `cbor:"text"`
}

// Word is a vocabulary entry destined for the dictionary.
type Word struct {
	ID    ID     `cbor:"id"`
	Text  string `cbor:"text"`
	Flags uint8  `cbor:"flags,omitempty"`
}

// PropKind discriminates property values.
type PropKind uint8

const (
	PropBytes  PropKind = iota // literal bytes
	PropString                 // packed address of a string constant
	PropWord                   // dictionary address of a word
	PropObject                 // object number
)

// Property is one property of an object. Values are fixed at compile
// time; there is no runtime-computed property mechanism.
type Property struct {
	Num   uint8    `cbor:"num"`
	Kind  PropKind `cbor:"kind"`
	Bytes []byte   `cbor:"bytes,omitempty"`
	Ref   ID       `cbor:"ref,omitempty"`
}

// ObjectDef declares one object in the game tree. Parent, Sibling and
// Child are object ids (0 for none). Words lists vocabulary words the
// player may use to name the object.
type ObjectDef struct {
	ID      ID         `cbor:"id"`
	Name    string     `cbor:"name"` // short name, printed by OpPrintObj
	Attrs   []uint8    `cbor:"attrs,omitempty"`
	Parent  ID         `cbor:"parent,omitempty"`
	Sibling ID         `cbor:"sibling,omitempty"`
	Child   ID         `cbor:"child,omitempty"`
	Props   []Property `cbor:"props,omitempty"`
	Words   []ID       `cbor:"words,omitempty"`
}

// GlobalDef declares one global variable with its initial value.
type GlobalDef struct {
	ID   ID    `cbor:"id"`
	Name string `cbor:"name"`
	Init int32 `cbor:"init,omitempty"`
	// InitString, when nonzero, overrides Init with the packed address
	// of the named string constant.
	InitString ID `cbor:"init_string,omitempty"`
}

// ArrayDef declares a writable word array in dynamic memory.
type ArrayDef struct {
	ID   ID      `cbor:"id"`
	Name string  `cbor:"name"`
	Size int     `cbor:"size"` // length in words
	Init []int16 `cbor:"init,omitempty"`
}

// ---------------------------------------------------------------------------
// Grammar
// ---------------------------------------------------------------------------

// ElemKind discriminates grammar pattern elements.
type ElemKind uint8

const (
	ElemLiteral ElemKind = iota // a fixed word, matched by dictionary address
	ElemNoun                    // a slot resolved to an object at runtime
)

// Elem is one element of a grammar pattern.
type Elem struct {
	Kind ElemKind `cbor:"kind"`
	Word ID       `cbor:"word,omitempty"` // for ElemLiteral
}

// Pattern maps one input shape to a handler. An empty Elems list is the
// verb-only pattern.
type Pattern struct {
	Elems   []Elem `cbor:"elems,omitempty"`
	Handler ID     `cbor:"handler"` // Function or Dispatch id
}

// Verb groups the patterns for one verb word.
type Verb struct {
	Word     ID        `cbor:"word"` // dictionary word id
	Patterns []Pattern `cbor:"patterns"`
	Default  ID        `cbor:"default,omitempty"` // fallback handler, 0 for none
}

// Specialization binds one object to a handler variant.
type Specialization struct {
	Object  ID `cbor:"object"`
	Handler ID `cbor:"handler"`
}

// Dispatch represents overloaded handlers sharing one base name. The
// backend synthesizes a routine selecting among Specializations by the
// runtime object argument, falling back to Generic. A Dispatch is
// complete on arrival: the front end never appends specializations
// after handing over the program.
type Dispatch struct {
	ID              ID               `cbor:"id"`
	Name            string           `cbor:"name"`
	Specializations []Specialization `cbor:"specializations,omitempty"`
	Generic         ID               `cbor:"generic,omitempty"`
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is the complete backend input. It is immutable once built;
// the backend consumes it read-only.
type Program struct {
	Functions  []Function    `cbor:"functions"`
	Objects    []ObjectDef   `cbor:"objects,omitempty"`
	Strings    []StringConst `cbor:"strings,omitempty"`
	Words      []Word        `cbor:"words,omitempty"`
	Globals    []GlobalDef   `cbor:"globals,omitempty"`
	Arrays     []ArrayDef    `cbor:"arrays,omitempty"`
	Verbs      []Verb        `cbor:"verbs,omitempty"`
	Dispatches []Dispatch    `cbor:"dispatches,omitempty"`

	// Entry is the function run at startup, before the input loop.
	Entry ID `cbor:"entry"`
}

// Function returns the function with the given id, or nil.
func (p *Program) Function(id ID) *Function {
	for i := range p.Functions {
		if p.Functions[i].ID == id {
			return &p.Functions[i]
		}
	}
	return nil
}

// Dispatch returns the dispatch with the given id, or nil.
func (p *Program) Dispatch(id ID) *Dispatch {
	for i := range p.Dispatches {
		if p.Dispatches[i].ID == id {
			return &p.Dispatches[i]
		}
	}
	return nil
}

// String returns the string constant with the given id, or nil.
func (p *Program) String(id ID) *StringConst {
	for i := range p.Strings {
		if p.Strings[i].ID == id {
			return &p.Strings[i]
		}
	}
	return nil
}

// Word returns the vocabulary word with the given id, or nil.
func (p *Program) Word(id ID) *Word {
	for i := range p.Words {
		if p.Words[i].ID == id {
			return &p.Words[i]
		}
	}
	return nil
}
