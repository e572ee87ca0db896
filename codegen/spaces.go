package codegen

// ---------------------------------------------------------------------------
// Space allocation
// ---------------------------------------------------------------------------

// allocate assigns every region its base address, in the canonical
// image order, inserting padding bytes where a region's base must
// divide by its alignment. All regions must be frozen first: a base is
// only meaningful against a final size.
//
// Padding is accounted in the pad map; the assembler re-inserts the
// same bytes when concatenating, so addresses and file contents agree.
func (g *Generator) allocate() error {
	addr := 0
	for _, id := range regionOrder {
		r := g.region(id)
		if !r.Frozen() {
			return &UnresolvedReferenceError{What: "region allocated before freeze", Region: id}
		}
		if r.Align > 1 {
			for addr%r.Align != 0 {
				g.pad[id]++
				addr++
			}
		}
		if err := r.SetBase(addr); err != nil {
			return err
		}
		addr += r.Len()
		if addr > g.profile.MaxFileSize {
			return capacityErr("image size at region "+id.String(), addr, g.profile.MaxFileSize, 0)
		}
		base, _ := r.Base()
		g.log.Debugf("region %s: base 0x%04x, %d bytes", id, base, r.Len())
	}
	g.totalSize = addr
	return nil
}
