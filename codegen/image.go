package codegen

// ---------------------------------------------------------------------------
// Image assembly
// ---------------------------------------------------------------------------

// Header layout (byte offsets).
const (
	headerSize = 64

	hdrVersion    = 0x00
	hdrFlags1     = 0x01
	hdrRelease    = 0x02
	hdrHighMem    = 0x04
	hdrInitialPC  = 0x06
	hdrDictionary = 0x08
	hdrObjects    = 0x0A
	hdrGlobals    = 0x0C
	hdrStaticMem  = 0x0E
	hdrFlags2     = 0x10
	hdrSerial     = 0x12
	hdrAbbrev     = 0x18
	hdrFileLen    = 0x1A
	hdrChecksum   = 0x1C
)

// assemble concatenates the placed regions in canonical order,
// backfills the header, pads the file to the length granularity and
// computes the checksum. It asserts rather than repairs: any region
// that should have been aligned and is not is reported as the defect
// it is.
func (g *Generator) assemble() ([]byte, error) {
	out := make([]byte, 0, g.totalSize)
	for _, id := range regionOrder {
		r := g.region(id)
		base, err := r.Base()
		if err != nil {
			return nil, err
		}
		for i := 0; i < g.pad[id]; i++ {
			out = append(out, 0)
		}
		if len(out) != base {
			return nil, &UnresolvedReferenceError{
				What:   "region base disagrees with concatenation",
				Region: id,
				Offset: len(out),
			}
		}
		if r.Align > 1 && base%r.Align != 0 {
			return nil, alignmentErr("assembled region "+id.String(), base, r.Align, 0)
		}
		out = append(out, r.Bytes()...)
	}

	if err := g.fillHeader(out); err != nil {
		return nil, err
	}

	// Declared length is in units of the profile's divisor; pad the
	// body so the division is exact.
	for len(out)%g.profile.LengthDivisor != 0 {
		out = append(out, 0)
	}
	if len(out) > g.profile.MaxFileSize {
		return nil, capacityErr("image size", len(out), g.profile.MaxFileSize, 0)
	}
	putWord(out, hdrFileLen, uint16(len(out)/g.profile.LengthDivisor))
	putWord(out, hdrChecksum, checksum(out))
	return out, nil
}

// fillHeader writes every fixed header field except length and
// checksum, which depend on the padded file.
func (g *Generator) fillHeader(out []byte) error {
	codeBase, err := g.region(RegionCode).Base()
	if err != nil {
		return err
	}
	dictBase, err := g.region(RegionDictionary).Base()
	if err != nil {
		return err
	}
	objBase, err := g.region(RegionObjects).Base()
	if err != nil {
		return err
	}
	globBase, err := g.region(RegionGlobals).Base()
	if err != nil {
		return err
	}
	abbrevBase, err := g.region(RegionAbbrev).Base()
	if err != nil {
		return err
	}

	// Every table the header names lives below the code region, so
	// one bound covers them all.
	if codeBase > 0xFFFF {
		return capacityErr("dynamic memory", codeBase, 0xFFFF, 0)
	}
	pc := codeBase + g.entryPC
	if pc > 0xFFFF {
		return capacityErr("entry point address", pc, 0xFFFF, 0)
	}
	if g.entryPC >= g.region(RegionCode).Len() {
		return &UnresolvedReferenceError{What: "entry point past end of code", Region: RegionCode, Offset: g.entryPC}
	}

	out[hdrVersion] = g.profile.Version
	out[hdrFlags1] = 0
	putWord(out, hdrRelease, g.release)
	putWord(out, hdrHighMem, uint16(codeBase))
	putWord(out, hdrInitialPC, uint16(pc))
	putWord(out, hdrDictionary, uint16(dictBase))
	putWord(out, hdrObjects, uint16(objBase))
	putWord(out, hdrGlobals, uint16(globBase))
	// Everything below the code region is writable; static memory
	// begins where routines do.
	putWord(out, hdrStaticMem, uint16(codeBase))
	putWord(out, hdrFlags2, 0)
	copy(out[hdrSerial:hdrSerial+6], g.serial[:])
	putWord(out, hdrAbbrev, uint16(abbrevBase))
	return nil
}

// checksum sums every byte past the header, modulo 2^16. The header's
// own checksum field lies outside the range by construction.
func checksum(image []byte) uint16 {
	var sum uint16
	for _, b := range image[headerSize:] {
		sum += uint16(b)
	}
	return sum
}

func putWord(buf []byte, off int, w uint16) {
	buf[off] = byte(w >> 8)
	buf[off+1] = byte(w)
}
