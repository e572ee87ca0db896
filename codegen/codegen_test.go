package codegen

import (
	"bytes"
	"testing"

	"github.com/halden/zmic/ir"
)

func mustGenerate(t *testing.T, prog *ir.Program, opts Options) []byte {
	t.Helper()
	img, err := Generate(prog, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return img
}

func word(img []byte, off int) uint16 {
	return uint16(img[off])<<8 | uint16(img[off+1])
}

// checkImage verifies the invariants every finished image must hold:
// consistent header fields, a matching checksum, the declared length,
// and pack-aligned code and string bases.
func checkImage(t *testing.T, img []byte, p *Profile) {
	t.Helper()
	if img[hdrVersion] != p.Version {
		t.Errorf("version byte = %d, want %d", img[hdrVersion], p.Version)
	}
	if len(img)%p.LengthDivisor != 0 {
		t.Errorf("image length %d not a multiple of %d", len(img), p.LengthDivisor)
	}
	if got, want := int(word(img, hdrFileLen))*p.LengthDivisor, len(img); got != want {
		t.Errorf("declared length = %d, want %d", got, want)
	}
	if got, want := word(img, hdrChecksum), checksum(img); got != want {
		t.Errorf("checksum = 0x%04x, want 0x%04x", got, want)
	}

	highMem := int(word(img, hdrHighMem))
	if highMem%p.PackRatio != 0 {
		t.Errorf("code base 0x%04x not aligned to pack ratio %d", highMem, p.PackRatio)
	}
	if got := int(word(img, hdrStaticMem)); got != highMem {
		t.Errorf("static memory base = 0x%04x, want code base 0x%04x", got, highMem)
	}
	pc := int(word(img, hdrInitialPC))
	if pc < highMem || pc >= len(img) {
		t.Errorf("initial PC 0x%04x outside code [0x%04x, 0x%04x)", pc, highMem, len(img))
	}
	for _, off := range []int{hdrDictionary, hdrObjects, hdrGlobals, hdrAbbrev} {
		base := int(word(img, off))
		if base < headerSize || base >= highMem {
			t.Errorf("table base at header 0x%02x = 0x%04x outside dynamic memory", off, base)
		}
	}
}

func minimalProgram() *ir.Program {
	return &ir.Program{
		Functions: []ir.Function{{
			ID: 100, Name: "main",
			Body: []ir.Instr{
				{Op: ir.OpPrint, Str: 200},
				{Op: ir.OpNewline},
				{Op: ir.OpReturn},
			},
		}},
		Strings: []ir.StringConst{{ID: 200, Text: "Hello, world."}},
		Entry:   100,
	}
}

func TestGenerateMinimalV3(t *testing.T) {
	img := mustGenerate(t, minimalProgram(), Options{Profile: V3, Release: 1, Serial: "260829"})
	checkImage(t, img, V3)

	if got := word(img, hdrRelease); got != 1 {
		t.Errorf("release = %d, want 1", got)
	}
	if got := string(img[hdrSerial : hdrSerial+6]); got != "260829" {
		t.Errorf("serial = %q, want 260829", got)
	}
}

func TestGenerateMinimalV5(t *testing.T) {
	img := mustGenerate(t, minimalProgram(), Options{Profile: V5, Release: 7})
	checkImage(t, img, V5)
}

func TestGenerateDeterministic(t *testing.T) {
	opts := Options{Profile: V3, Release: 3, Serial: "123456"}
	a := mustGenerate(t, minimalProgram(), opts)
	b := mustGenerate(t, minimalProgram(), opts)
	if !bytes.Equal(a, b) {
		t.Error("two runs over the same program produced different images")
	}
}

func TestGenerateSiblingWalk(t *testing.T) {
	// Walk a three-object chain printing each name; get_sibling's
	// branch-on-none exits the loop.
	prog := &ir.Program{
		Objects: []ir.ObjectDef{
			{ID: 10, Name: "lamp", Sibling: 11},
			{ID: 11, Name: "sword", Sibling: 12},
			{ID: 12, Name: "rope"},
		},
		Functions: []ir.Function{{
			ID: 100, Name: "list",
			Body: []ir.Instr{
				{Op: ir.OpMove, Dst: 1, Args: []ir.Value{ir.Object(10)}},
				{Op: ir.OpLabel, Label: 50},
				{Op: ir.OpPrintObj, Args: []ir.Value{ir.Temp(1)}},
				{Op: ir.OpNewline},
				{Op: ir.OpGetSibling, Dst: 1, Args: []ir.Value{ir.Temp(1)}, Label: 51},
				{Op: ir.OpJump, Label: 50},
				{Op: ir.OpLabel, Label: 51},
				{Op: ir.OpReturn},
			},
		}},
		Entry: 100,
	}
	img := mustGenerate(t, prog, Options{Profile: V3})
	checkImage(t, img, V3)

	// Object 2's sibling field (entry offset 5 under v3) holds object 3.
	objBase := int(word(img, hdrObjects))
	entry2 := objBase + V3.PropDefaults*2 + V3.ObjEntrySize
	if img[entry2+5] != 3 {
		t.Errorf("object 2 sibling = %d, want 3", img[entry2+5])
	}
}

func TestGenerateLongForwardBranch(t *testing.T) {
	// The body between the branch and its target is well past the
	// one-byte branch range, so the reserved two-byte form is required.
	body := []ir.Instr{
		{Op: ir.OpBranchZero, Args: []ir.Value{ir.Temp(1)}, Label: 50},
	}
	for i := 0; i < 20; i++ {
		body = append(body, ir.Instr{Op: ir.OpPrint, Str: 200})
	}
	body = append(body,
		ir.Instr{Op: ir.OpLabel, Label: 50},
		ir.Instr{Op: ir.OpReturn},
	)
	prog := &ir.Program{
		Functions: []ir.Function{
			{ID: 100, Name: "main", Body: []ir.Instr{
				{Op: ir.OpCall, Func: 101, Args: []ir.Value{ir.Const(0)}},
				{Op: ir.OpReturn},
			}},
			{ID: 101, Name: "skip", Params: []ir.ID{1}, Body: body},
		},
		Strings: []ir.StringConst{{ID: 200, Text: "filler"}},
		Entry:   100,
	}
	img := mustGenerate(t, prog, Options{Profile: V3})
	checkImage(t, img, V3)
}

func TestGenerateGrammar(t *testing.T) {
	// One verb, a noun pattern routed through a dispatch with two
	// specializations, and a verb-only default.
	prog := &ir.Program{
		Objects: []ir.ObjectDef{
			{ID: 10, Name: "lamp", Words: []ir.ID{31}},
			{ID: 11, Name: "sword", Words: []ir.ID{32}},
		},
		Words: []ir.Word{
			{ID: 30, Text: "take"},
			{ID: 31, Text: "lamp"},
			{ID: 32, Text: "sword"},
		},
		Strings: []ir.StringConst{
			{ID: 200, Text: "Taken."},
			{ID: 201, Text: "The lamp flickers."},
			{ID: 202, Text: "Take what?"},
		},
		Functions: []ir.Function{
			{ID: 100, Name: "main", Body: []ir.Instr{{Op: ir.OpReturn}}},
			{ID: 101, Name: "take-generic", Params: []ir.ID{1}, Body: []ir.Instr{
				{Op: ir.OpPrint, Str: 200}, {Op: ir.OpNewline}, {Op: ir.OpReturn, Args: []ir.Value{ir.Const(1)}},
			}},
			{ID: 102, Name: "take-lamp", Params: []ir.ID{1}, Body: []ir.Instr{
				{Op: ir.OpPrint, Str: 201}, {Op: ir.OpNewline}, {Op: ir.OpReturn, Args: []ir.Value{ir.Const(1)}},
			}},
			{ID: 103, Name: "take-default", Body: []ir.Instr{
				{Op: ir.OpPrint, Str: 202}, {Op: ir.OpNewline}, {Op: ir.OpReturn, Args: []ir.Value{ir.Const(1)}},
			}},
		},
		Dispatches: []ir.Dispatch{{
			ID: 120, Name: "take",
			Specializations: []ir.Specialization{{Object: 10, Handler: 102}},
			Generic:         101,
		}},
		Verbs: []ir.Verb{{
			Word: 30,
			Patterns: []ir.Pattern{
				{Elems: []ir.Elem{{Kind: ir.ElemNoun}}, Handler: 120},
			},
			Default: 103,
		}},
		Entry: 100,
	}
	img := mustGenerate(t, prog, Options{Profile: V3})
	checkImage(t, img, V3)

	// With grammar present the entry stub must not be a bare quit: the
	// input loop needs the dictionary the header points at.
	dictBase := int(word(img, hdrDictionary))
	nsep := int(img[dictBase])
	count := int(word(img, dictBase+2+nsep))
	if count != 3 {
		t.Errorf("dictionary entries = %d, want 3", count)
	}
}

func TestGenerateGlobalsAndArrays(t *testing.T) {
	prog := &ir.Program{
		Globals: []ir.GlobalDef{
			{ID: 40, Name: "score", Init: 17},
			{ID: 41, Name: "banner", InitString: 200},
		},
		Arrays: []ir.ArrayDef{
			{ID: 50, Name: "scratch", Size: 4, Init: []int16{1, -2}},
		},
		Strings: []ir.StringConst{{ID: 200, Text: "west of house"}},
		Functions: []ir.Function{{
			ID: 100, Name: "main",
			Body: []ir.Instr{
				{Op: ir.OpMove, Dst: 40, Args: []ir.Value{ir.Const(18)}},
				{Op: ir.OpReturn},
			},
		}},
		Entry: 100,
	}
	img := mustGenerate(t, prog, Options{Profile: V3})
	checkImage(t, img, V3)

	globBase := int(word(img, hdrGlobals))
	if got := word(img, globBase); got != 17 {
		t.Errorf("global 0 initial value = %d, want 17", got)
	}
	// The banner global holds the packed address of its string; it must
	// decode to a nonzero address within the file.
	packed := int(word(img, globBase+2))
	if packed == 0 || packed*V3.PackRatio >= len(img) {
		t.Errorf("string-initialized global = 0x%04x, not a plausible packed address", packed)
	}
}

func TestGenerateUndefinedString(t *testing.T) {
	prog := &ir.Program{
		Functions: []ir.Function{{
			ID: 100, Name: "main",
			Body: []ir.Instr{{Op: ir.OpPrint, Str: 999}, {Op: ir.OpReturn}},
		}},
		Entry: 100,
	}
	_, err := Generate(prog, Options{Profile: V3})
	if err == nil {
		t.Fatal("expected error for print of undefined string id")
	}
	if _, ok := err.(*UnresolvedReferenceError); !ok {
		t.Fatalf("error type = %T, want *UnresolvedReferenceError", err)
	}
}

func TestGenerateTooManyObjects(t *testing.T) {
	prog := minimalProgram()
	for i := 0; i < V3.MaxObjects+1; i++ {
		prog.Objects = append(prog.Objects, ir.ObjectDef{ID: ir.ID(1000 + i), Name: "x"})
	}
	_, err := Generate(prog, Options{Profile: V3})
	if err == nil {
		t.Fatal("expected capacity error for too many objects")
	}
	if _, ok := err.(*CapacityError); !ok {
		t.Fatalf("error type = %T, want *CapacityError", err)
	}
}

func TestGenerateTooManyLocals(t *testing.T) {
	f := ir.Function{ID: 100, Name: "main"}
	for i := 0; i < V3.MaxLocals+1; i++ {
		f.Body = append(f.Body, ir.Instr{
			Op: ir.OpMove, Dst: ir.ID(500 + i), Args: []ir.Value{ir.Const(0)},
		})
	}
	f.Body = append(f.Body, ir.Instr{Op: ir.OpReturn})
	prog := &ir.Program{Functions: []ir.Function{f}, Entry: 100}
	_, err := Generate(prog, Options{Profile: V3})
	if err == nil {
		t.Fatal("expected capacity error for too many locals")
	}
	if _, ok := err.(*CapacityError); !ok {
		t.Fatalf("error type = %T, want *CapacityError", err)
	}
}
