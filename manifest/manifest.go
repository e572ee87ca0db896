// Package manifest handles zmic.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a zmic.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Target  Target      `toml:"target"`
	Image   ImageConfig `toml:"image"`

	// Dir is the directory containing the zmic.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Target selects the machine profile and the identity words stamped
// into the image header.
type Target struct {
	Profile string `toml:"profile"` // "v3" or "v5"
	Release int    `toml:"release"`
	Serial  string `toml:"serial"` // six characters, conventionally YYMMDD
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// Load parses a zmic.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "zmic.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Target.Profile == "" {
		m.Target.Profile = "v3"
	}
	if m.Image.Output == "" {
		ext := "z3"
		if m.Target.Profile == "v5" || m.Target.Profile == "5" {
			ext = "z5"
		}
		name := m.Project.Name
		if name == "" {
			name = "game"
		}
		m.Image.Output = name + "." + ext
	}
	if m.Target.Release < 0 || m.Target.Release > 0xFFFF {
		return nil, fmt.Errorf("%s: release %d out of range", path, m.Target.Release)
	}
	if len(m.Target.Serial) > 6 {
		return nil, fmt.Errorf("%s: serial %q longer than six characters", path, m.Target.Serial)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a zmic.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "zmic.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// OutputPath returns the absolute path of the configured image output.
func (m *Manifest) OutputPath() string {
	if filepath.IsAbs(m.Image.Output) {
		return m.Image.Output
	}
	return filepath.Join(m.Dir, m.Image.Output)
}
