package codegen

import (
	"github.com/tliron/commonlog"

	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// regionSet holds every region of the image under construction.
type regionSet [regionCount]*Region

func (rs *regionSet) at(id RegionID) *Region { return rs[id] }

// Options configures one generation run.
type Options struct {
	Profile *Profile
	Release uint16
	Serial  string // six ASCII characters; zero-padded when shorter
}

// Generator owns every piece of backend state: the regions, the
// resolver, the identity maps. Each map has exactly one writer; none
// of the state outlives a Generate call.
type Generator struct {
	profile  *Profile
	regions  regionSet
	resolver *Resolver
	asm      *assembler
	log      commonlog.Logger

	// Identity maps, written during the emit phase.
	objNumbers    map[ir.ID]int
	globalIndex   map[ir.ID]int
	arrayOffsets  map[ir.ID]int
	dispatchBuilt map[ir.ID]bool

	// Synthesized code landmarks.
	verbMatchers []ir.ID
	nounLookup   ir.ID
	textBufOff   int
	parseBufOff  int
	entryPC      int

	// Allocation results.
	pad       map[RegionID]int
	totalSize int

	release uint16
	serial  [6]byte

	nextSynth ir.ID
	interned  []internedString
}

type internedString struct {
	id   ir.ID
	text string
}

// synthBase starts the id space for backend-synthesized labels and
// routines, far above anything a front end produces.
const synthBase ir.ID = 0x8000_0000

// NewGenerator creates a generator for one program.
func NewGenerator(opts Options) *Generator {
	p := opts.Profile
	if p == nil {
		p = V3
	}
	g := &Generator{
		profile:       p,
		resolver:      NewResolver(p),
		log:           commonlog.GetLogger("zmic.codegen"),
		objNumbers:    make(map[ir.ID]int),
		globalIndex:   make(map[ir.ID]int),
		arrayOffsets:  make(map[ir.ID]int),
		dispatchBuilt: make(map[ir.ID]bool),
		pad:           make(map[RegionID]int),
		release:       opts.Release,
		nextSynth:     synthBase,
	}
	copy(g.serial[:], "000000")
	copy(g.serial[:], opts.Serial)

	for _, id := range regionOrder {
		align := 1
		if id == RegionCode || id == RegionStrings {
			align = p.PackRatio
		}
		g.regions[id] = newRegion(id, align)
	}
	g.asm = &assembler{region: g.regions[RegionCode], resolve: g.resolver, profile: p}
	return g
}

func (g *Generator) region(id RegionID) *Region { return g.regions.at(id) }

// synthLabel allocates a fresh backend-private id.
func (g *Generator) synthLabel() ir.ID {
	g.nextSynth++
	return g.nextSynth
}

// internString adds a backend-synthesized string constant to the
// string table and returns its id. Usable only while the strings
// region is still growing.
func (g *Generator) internString(text string) (ir.ID, error) {
	for _, s := range g.interned {
		if s.text == text {
			return s.id, nil
		}
	}
	id := g.synthLabel()
	enc, err := encodeString(text, id)
	if err != nil {
		return 0, err
	}
	r := g.region(RegionStrings)
	r.PadTo(g.profile.PackRatio)
	off := r.Write(enc)
	if err := g.resolver.Define(id, RegionStrings, off); err != nil {
		return 0, err
	}
	g.interned = append(g.interned, internedString{id: id, text: text})
	return id, nil
}

// Generate runs the full pipeline and returns the finished image.
// The phases are hard barriers: all emission completes before any
// region is frozen, all freezing before allocation, allocation before
// resolution, resolution before assembly. On any error, no image.
func Generate(prog *ir.Program, opts Options) ([]byte, error) {
	g := NewGenerator(opts)
	return g.generate(prog)
}

func (g *Generator) generate(prog *ir.Program) ([]byte, error) {
	g.log.Infof("generating v%d image: %d functions, %d objects, %d words, %d verbs",
		g.profile.Version, len(prog.Functions), len(prog.Objects), len(prog.Words), len(prog.Verbs))

	// Object numbers are positional: declaration order, starting at 1.
	for i := range prog.Objects {
		g.objNumbers[prog.Objects[i].ID] = i + 1
	}

	// Phase 1: emission. Region fill order is free; this one keeps
	// related tables together for readable images.
	g.buildHeader()
	if err := g.buildGlobals(prog); err != nil {
		return nil, err
	}
	g.buildAbbreviations()
	if err := g.serializeObjects(prog); err != nil {
		return nil, err
	}
	if err := g.serializeDictionary(prog); err != nil {
		return nil, err
	}
	if err := g.serializeStrings(prog); err != nil {
		return nil, err
	}
	if err := g.emitCode(prog); err != nil {
		return nil, err
	}

	// Phase 2: freeze every region.
	for _, id := range regionOrder {
		g.region(id).Freeze()
	}

	// Phase 3: assign base addresses.
	if err := g.allocate(); err != nil {
		return nil, err
	}

	// Phase 4: patch every recorded reference, exactly once each.
	refs := g.resolver.Pending()
	if err := g.resolver.ResolveAll(&g.regions); err != nil {
		return nil, err
	}
	g.log.Debugf("resolved %d references", refs)

	// Phase 5: concatenate and finalize.
	image, err := g.assemble()
	if err != nil {
		return nil, err
	}
	g.log.Infof("image complete: %d bytes, checksum 0x%04x", len(image), checksum(image))
	return image, nil
}

// emitCode fills the code region: dispatch routines first (so nothing
// can bind to an incomplete one), then the noun lookup and verb
// matchers, then the entry stub, then every IR function.
func (g *Generator) emitCode(prog *ir.Program) error {
	if err := g.synthesizeDispatchRoutines(prog); err != nil {
		return err
	}
	if needsNounLookup(prog) {
		if err := g.synthesizeNounLookup(prog); err != nil {
			return err
		}
	}
	if err := g.synthesizeVerbMatchers(prog); err != nil {
		return err
	}
	if err := g.buildEntry(prog); err != nil {
		return err
	}
	for i := range prog.Functions {
		if err := g.compileFunction(prog, &prog.Functions[i]); err != nil {
			return err
		}
	}
	return nil
}

func needsNounLookup(prog *ir.Program) bool {
	for i := range prog.Verbs {
		for _, pat := range prog.Verbs[i].Patterns {
			for _, e := range pat.Elems {
				if e.Kind == ir.ElemNoun {
					return true
				}
			}
		}
	}
	return false
}
