// Package codegen turns a validated ir.Program into a byte-exact
// Z-machine story image. The pipeline is strictly phased: emit into
// regions, freeze sizes, allocate base addresses, resolve references,
// assemble. No partial image ever leaves this package.
package codegen

import (
	"fmt"

	"github.com/halden/zmic/ir"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// All generation failures are fatal and fall into one of four kinds.
// None of them is recovered with a fallback value: substituting a
// plausible guess is exactly how corrupt images get shipped.

// CapacityError reports a value exceeding a fixed limit of the target
// profile: too many objects, a property too long, an image too large.
type CapacityError struct {
	What  string
	Limit int
	Got   int
	ID    ir.ID // offending IR id, 0 when not tied to one
}

func (e *CapacityError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("capacity: %s: %d exceeds limit %d (ir id %d)", e.What, e.Got, e.Limit, e.ID)
	}
	return fmt.Sprintf("capacity: %s: %d exceeds limit %d", e.What, e.Got, e.Limit)
}

// AlignmentError reports an address that violates a divisibility
// requirement: a packed address with a remainder, or a region base that
// must be even and is not.
type AlignmentError struct {
	What    string
	Address int
	Ratio   int
	ID      ir.ID
}

func (e *AlignmentError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("alignment: %s: address 0x%04x not divisible by %d (ir id %d)", e.What, e.Address, e.Ratio, e.ID)
	}
	return fmt.Sprintf("alignment: %s: address 0x%04x not divisible by %d", e.What, e.Address, e.Ratio)
}

// UnresolvedReferenceError reports a bookkeeping failure in the patch
// pass: a reference with no placeholder, a placeholder with no
// reference, or a location patched twice.
type UnresolvedReferenceError struct {
	What     string
	Region   RegionID
	Offset   int
	TargetID ir.ID
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference: %s (%s+0x%04x, target %d)", e.What, e.Region, e.Offset, e.TargetID)
}

// EncodingError reports a value that does not fit its chosen encoding:
// an operand out of range for its width, a branch offset too far, a
// character outside the supported set.
type EncodingError struct {
	What string
	ID   ir.ID
}

func (e *EncodingError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("encoding: %s (ir id %d)", e.What, e.ID)
	}
	return "encoding: " + e.What
}

func capacityErr(what string, got, limit int, id ir.ID) error {
	return &CapacityError{What: what, Limit: limit, Got: got, ID: id}
}

func alignmentErr(what string, addr, ratio int, id ir.ID) error {
	return &AlignmentError{What: what, Address: addr, Ratio: ratio, ID: id}
}

func encodingErr(id ir.ID, format string, args ...interface{}) error {
	return &EncodingError{What: fmt.Sprintf(format, args...), ID: id}
}
