package codegen

import (
	"strings"

	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Z-character text encoding
// ---------------------------------------------------------------------------

// Text is stored as 5-bit z-characters packed three to a 16-bit word,
// with the top bit of the final word marking the end. Three alphabets
// cover lowercase, uppercase and punctuation; anything else printable
// goes through the two-z-character ZSCII escape.

const (
	zSpace   = 0
	zShiftA1 = 4
	zShiftA2 = 5
	zEscape  = 6 // in A2: next two z-chars form a 10-bit ZSCII code
	zPad     = 5
)

const (
	alphabet0 = "abcdefghijklmnopqrstuvwxyz"
	alphabet1 = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// alphabet2 runs from z-char 8; z-char 6 is the escape and 7 is
	// newline.
	alphabet2 = "0123456789.,!?_#'\"/\\-:()"
)

// zchars converts text to a z-character sequence. origin tags errors
// with the IR id of the string or word being encoded.
func zchars(text string, origin ir.ID) ([]uint8, error) {
	var out []uint8
	for _, r := range text {
		switch {
		case r == ' ':
			out = append(out, zSpace)
		case r == '\n':
			out = append(out, zShiftA2, 7)
		case r >= 'a' && r <= 'z':
			out = append(out, uint8(6+strings.IndexRune(alphabet0, r)))
		case r >= 'A' && r <= 'Z':
			out = append(out, zShiftA1, uint8(6+strings.IndexRune(alphabet1, r)))
		default:
			if i := strings.IndexRune(alphabet2, r); i >= 0 {
				out = append(out, zShiftA2, uint8(8+i))
				continue
			}
			// ZSCII escape covers the rest of printable ASCII.
			if r < 32 || r > 126 {
				return nil, encodingErr(origin, "character %q outside supported set", r)
			}
			out = append(out, zShiftA2, zEscape, uint8(r>>5), uint8(r&0x1F))
		}
	}
	return out, nil
}

// packZChars packs z-characters three per word, padding the tail and
// setting the terminator bit on the last word. Empty input still
// produces one terminated word of padding.
func packZChars(zs []uint8) []byte {
	for len(zs)%3 != 0 || len(zs) == 0 {
		zs = append(zs, zPad)
	}
	out := make([]byte, 0, len(zs)/3*2)
	for i := 0; i < len(zs); i += 3 {
		w := uint16(zs[i])<<10 | uint16(zs[i+1])<<5 | uint16(zs[i+2])
		if i+3 == len(zs) {
			w |= 0x8000
		}
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}

// encodeString encodes a string constant to its in-image bytes.
func encodeString(text string, origin ir.ID) ([]byte, error) {
	zs, err := zchars(text, origin)
	if err != nil {
		return nil, err
	}
	return packZChars(zs), nil
}

// encodeDictWord encodes a vocabulary word to the profile's fixed
// width: z-characters are truncated or padded to exactly DictZChars,
// so the encoded form is always DictTextBytes long. Matching is
// case-insensitive, so the word is lowercased first.
func encodeDictWord(text string, p *Profile, origin ir.ID) ([]byte, error) {
	zs, err := zchars(strings.ToLower(text), origin)
	if err != nil {
		return nil, err
	}
	if len(zs) > p.DictZChars {
		zs = zs[:p.DictZChars]
	}
	for len(zs) < p.DictZChars {
		zs = append(zs, zPad)
	}
	out := packZChars(zs)
	if len(out) != p.DictTextBytes {
		return nil, encodingErr(origin, "dictionary word %q encoded to %d bytes, want %d", text, len(out), p.DictTextBytes)
	}
	return out, nil
}
