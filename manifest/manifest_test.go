package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a zmic.toml
	dir := t.TempDir()
	tomlContent := `
[project]
name = "cavern"
version = "0.3.0"

[target]
profile = "v5"
release = 7
serial = "260829"

[image]
output = "cavern.z5"
`
	if err := os.WriteFile(filepath.Join(dir, "zmic.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "cavern" {
		t.Errorf("project name = %q, want cavern", m.Project.Name)
	}
	if m.Target.Profile != "v5" {
		t.Errorf("profile = %q, want v5", m.Target.Profile)
	}
	if m.Target.Release != 7 {
		t.Errorf("release = %d, want 7", m.Target.Release)
	}
	if m.Target.Serial != "260829" {
		t.Errorf("serial = %q, want 260829", m.Target.Serial)
	}
	if m.Image.Output != "cavern.z5" {
		t.Errorf("output = %q, want cavern.z5", m.Image.Output)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "cavern"
`
	if err := os.WriteFile(filepath.Join(dir, "zmic.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Target.Profile != "v3" {
		t.Errorf("default profile = %q, want v3", m.Target.Profile)
	}
	if m.Image.Output != "cavern.z3" {
		t.Errorf("default output = %q, want cavern.z3", m.Image.Output)
	}
}

func TestLoadManifestBadSerial(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[target]
serial = "26-08-29"
`
	if err := os.WriteFile(filepath.Join(dir, "zmic.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for over-long serial")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "src", "deep")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "zmic.toml"), []byte("[project]\nname = \"up\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("manifest not found from nested directory")
	}
	if m.Project.Name != "up" {
		t.Errorf("project name = %q, want up", m.Project.Name)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}
