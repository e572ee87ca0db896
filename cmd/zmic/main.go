// zmic - compiles a front-end IR program into a Z-machine story image
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/halden/zmic/codegen"
	"github.com/halden/zmic/ir"
	"github.com/halden/zmic/manifest"
)

func main() {
	verbose := flag.Int("v", 0, "Verbosity (0-2)")
	output := flag.String("o", "", "Output image path (overrides zmic.toml)")
	profileName := flag.String("profile", "", "Target profile: v3 or v5 (overrides zmic.toml)")
	release := flag.Int("release", 0, "Release number stamped into the header")
	serial := flag.String("serial", "", "Six-character serial stamped into the header")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zmic [options] program.zir\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a CBOR-encoded IR program into a Z-machine story image.\n")
		fmt.Fprintf(os.Stderr, "Settings default from the nearest zmic.toml, then flags override.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  zmic game.zir                  # Compile using zmic.toml settings\n")
		fmt.Fprintf(os.Stderr, "  zmic -profile v5 -o game.z5 game.zir\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	if err := run(input, *output, *profileName, *release, *serial); err != nil {
		fmt.Fprintf(os.Stderr, "zmic: %v\n", err)
		os.Exit(1)
	}
}

func run(input, output, profileName string, release int, serial string) error {
	m, err := manifest.FindAndLoad(filepath.Dir(input))
	if err != nil {
		return err
	}
	if m != nil {
		if profileName == "" {
			profileName = m.Target.Profile
		}
		if output == "" {
			output = m.OutputPath()
		}
		if release == 0 {
			release = m.Target.Release
		}
		if serial == "" {
			serial = m.Target.Serial
		}
	}
	if profileName == "" {
		profileName = "v3"
	}
	profile, ok := codegen.ProfileFor(profileName)
	if !ok {
		return fmt.Errorf("unknown profile %q (want v3 or v5)", profileName)
	}
	if output == "" {
		ext := ".z3"
		if profile.Version == 5 {
			ext = ".z5"
		}
		base := filepath.Base(input)
		output = base[:len(base)-len(filepath.Ext(base))] + ext
	}

	prog, err := ir.ReadFile(input)
	if err != nil {
		return err
	}

	image, err := codegen.Generate(prog, codegen.Options{
		Profile: profile,
		Release: uint16(release),
		Serial:  serial,
	})
	if err != nil {
		return err
	}

	return writeAtomic(output, image)
}

// writeAtomic writes the image through a temp file and a rename, so a
// failed compile can never leave a partial image behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".zmic-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
