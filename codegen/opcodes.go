package codegen

import "fmt"

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

// A raw opcode number is meaningless alone: number 0 is je as a 2OP,
// jz as a 1OP, rtrue as a 0OP and call_vs as a VAR. The unit of
// identity everywhere in this package is therefore (count class,
// number), never the bare number, and the encoder derives the final
// instruction byte from both.

// OpCount is the operand-count class of an opcode.
type OpCount uint8

const (
	Count0OP OpCount = iota
	Count1OP
	Count2OP
	CountVAR
)

func (c OpCount) String() string {
	switch c {
	case Count0OP:
		return "0OP"
	case Count1OP:
		return "1OP"
	case Count2OP:
		return "2OP"
	case CountVAR:
		return "VAR"
	}
	return "?OP"
}

// Opcode identifies one machine operation.
type Opcode struct {
	Count OpCount
	N     uint8 // raw opcode number within the class
}

func (op Opcode) String() string {
	return fmt.Sprintf("%s:0x%02x", op.Count, op.N)
}

// 2OP opcodes.
var (
	OpJE       = Opcode{Count2OP, 0x01} // je a b ?label
	OpJL       = Opcode{Count2OP, 0x02} // jl a b ?label
	OpJG       = Opcode{Count2OP, 0x03} // jg a b ?label
	OpTestAttr = Opcode{Count2OP, 0x0A} // test_attr obj attr ?label
	OpSetAttr  = Opcode{Count2OP, 0x0B} // set_attr obj attr
	OpClrAttr  = Opcode{Count2OP, 0x0C} // clear_attr obj attr
	OpStore    = Opcode{Count2OP, 0x0D} // store (var) value
	OpInsert   = Opcode{Count2OP, 0x0E} // insert_obj obj dest
	OpLoadW    = Opcode{Count2OP, 0x0F} // loadw array idx -> result
	OpLoadB    = Opcode{Count2OP, 0x10} // loadb array idx -> result
	OpGetProp  = Opcode{Count2OP, 0x11} // get_prop obj prop -> result
	OpAdd      = Opcode{Count2OP, 0x14}
	OpSub      = Opcode{Count2OP, 0x15}
	OpMul      = Opcode{Count2OP, 0x16}
	OpDiv      = Opcode{Count2OP, 0x17}
	OpMod      = Opcode{Count2OP, 0x18}
)

// 1OP opcodes.
var (
	OpJZ         = Opcode{Count1OP, 0x00} // jz a ?label
	OpGetSibling = Opcode{Count1OP, 0x01} // get_sibling obj -> result ?label
	OpGetChild   = Opcode{Count1OP, 0x02} // get_child obj -> result ?label
	OpGetParent  = Opcode{Count1OP, 0x03} // get_parent obj -> result
	OpRemove     = Opcode{Count1OP, 0x09} // remove_obj obj
	OpPrintObj   = Opcode{Count1OP, 0x0A} // print_obj obj
	OpRet        = Opcode{Count1OP, 0x0B} // ret value
	OpJump       = Opcode{Count1OP, 0x0C} // jump offset
	OpPrintPaddr = Opcode{Count1OP, 0x0D} // print_paddr packed-string
)

// 0OP opcodes.
var (
	OpRTrue   = Opcode{Count0OP, 0x00}
	OpRFalse  = Opcode{Count0OP, 0x01}
	OpNewline = Opcode{Count0OP, 0x0B}
	OpQuit    = Opcode{Count0OP, 0x0A}
)

// VAR opcodes.
var (
	OpCallVS    = Opcode{CountVAR, 0x00} // call routine args... -> result
	OpStoreW    = Opcode{CountVAR, 0x01} // storew array idx value
	OpPutProp   = Opcode{CountVAR, 0x03} // put_prop obj prop value
	OpSRead     = Opcode{CountVAR, 0x04} // sread text parse
	OpPrintChar = Opcode{CountVAR, 0x05}
	OpPrintNum  = Opcode{CountVAR, 0x06}
	OpPush      = Opcode{CountVAR, 0x08}
	OpPull      = Opcode{CountVAR, 0x09}
)

// branches lists the opcodes that carry a branch field. The encoder
// refuses a branch argument on anything else and requires one here.
var branchOpcodes = map[Opcode]bool{
	OpJE: true, OpJL: true, OpJG: true, OpTestAttr: true,
	OpJZ: true, OpGetSibling: true, OpGetChild: true,
}

// stores lists the opcodes that carry a result slot.
var storeOpcodes = map[Opcode]bool{
	OpLoadW: true, OpLoadB: true, OpGetProp: true,
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true,
	OpGetSibling: true, OpGetChild: true, OpGetParent: true,
	OpCallVS: true,
}

// Branches reports whether the opcode carries a branch field.
func (op Opcode) Branches() bool { return branchOpcodes[op] }

// Stores reports whether the opcode carries a result slot.
func (op Opcode) Stores() bool { return storeOpcodes[op] }

// ---------------------------------------------------------------------------
// Variable numbering
// ---------------------------------------------------------------------------

// Variable numbers: 0 is the stack, 1..15 the current routine's
// locals, 16..255 the globals.
const (
	VarStack    = 0
	varLocal0   = 1
	varGlobal0  = 16
	globalCount = 240
)

// localVar returns the variable number of local slot n (0-based).
func localVar(n int) uint8 { return uint8(varLocal0 + n) }

// globalVar returns the variable number of global index g (0-based).
func globalVar(g int) uint8 { return uint8(varGlobal0 + g) }
