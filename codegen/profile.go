package codegen

// ---------------------------------------------------------------------------
// Target profiles
// ---------------------------------------------------------------------------

// Profile captures the numeric parameters of one Z-machine version.
// Everything that varies between versions 3 and 5 is a field here;
// nothing else in the package switches on the version number directly.
type Profile struct {
	Version byte

	// PackRatio divides byte addresses to form packed routine and
	// string references. Routine and string starts must divide evenly.
	PackRatio int

	// Object model
	AttrCount     int // attribute flags per object
	AttrBytes     int // bytes of attribute bitset in an object entry
	ObjEntrySize  int // bytes per object table entry
	MaxObjects    int
	PropDefaults  int // words in the property defaults table
	MaxPropNum    int
	CompactPropMax  int  // max property data bytes for the one-byte header
	ExtendedProps   bool // whether the two-byte property header exists
	ExtendedPropMax int  // max property data bytes with it (0 when unsupported)

	// Dictionary
	DictZChars    int // z-characters per encoded dictionary word
	DictTextBytes int // bytes those z-characters occupy
	DictDataBytes int // flag/data bytes per entry

	// Routines
	MaxLocals   int
	MaxCallArgs int
	LocalDefaults bool // v3 routines carry initial-value words per local

	// Image
	LengthDivisor int // file length field stores total/LengthDivisor
	MaxFileSize   int
}

// V3 is the version 3 profile, the classic 128K format.
var V3 = &Profile{
	Version:         3,
	PackRatio:       2,
	AttrCount:       32,
	AttrBytes:       4,
	ObjEntrySize:    9,
	MaxObjects:      255,
	PropDefaults:    31,
	MaxPropNum:      31,
	CompactPropMax:  8,
	ExtendedProps:   false,
	ExtendedPropMax: 0,
	DictZChars:      6,
	DictTextBytes:   4,
	DictDataBytes:   3,
	MaxLocals:       15,
	MaxCallArgs:     3,
	LocalDefaults:   true,
	LengthDivisor:   2,
	MaxFileSize:     128 * 1024,
}

// V5 is the version 5 profile: 256K images, wider property headers,
// longer dictionary words.
var V5 = &Profile{
	Version:         5,
	PackRatio:       4,
	AttrCount:       48,
	AttrBytes:       6,
	ObjEntrySize:    14,
	MaxObjects:      65535,
	PropDefaults:    63,
	MaxPropNum:      63,
	CompactPropMax:  2,
	ExtendedProps:   true,
	ExtendedPropMax: 64,
	DictZChars:      9,
	DictTextBytes:   6,
	DictDataBytes:   3,
	MaxLocals:       15,
	MaxCallArgs:     7,
	LocalDefaults:   false,
	LengthDivisor:   4,
	MaxFileSize:     256 * 1024,
}

// ProfileFor returns the profile for a version tag ("v3" or "v5").
func ProfileFor(name string) (*Profile, bool) {
	switch name {
	case "v3", "3":
		return V3, true
	case "v5", "5":
		return V5, true
	}
	return nil, false
}
