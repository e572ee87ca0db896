package ir

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Programs travel from the front end as CBOR. Canonical encoding mode
// keeps the handoff deterministic.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Program to CBOR bytes.
func Marshal(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// Unmarshal deserializes a Program from CBOR bytes and validates its
// referential integrity.
func Unmarshal(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ir: unmarshal program: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Read reads a CBOR-encoded Program from r.
func Read(r io.Reader) (*Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ir: read program: %w", err)
	}
	return Unmarshal(data)
}

// ReadFile reads a CBOR-encoded Program from the named file.
func ReadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ir: read %s: %w", path, err)
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
