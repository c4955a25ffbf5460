package build

import (
	"fmt"
	"slices"
	"strings"
)

// Placeholders available to toolchain templates.
const (
	varConfig  = "{config}"  // Installer configuration, as seen inside the environment.
	varScript  = "{script}"  // Post-install script, as seen inside the environment.
	varWork    = "{work}"    // Scratch directory for image assembly.
	varOutput  = "{output}"  // Directory the assembled image is written to.
	varProfile = "{profile}" // Image profile directory.
	varLabel   = "{label}"   // Volume label for the image.
)

// The commands a build is allowed to run inside its environment.
//
// Each template is an argument vector. A placeholder such as "{config}"
// must make up a whole argument and is replaced by a single argument, so
// substituted values are never split or interpreted by a shell.
type Toolchain struct {
	Bootstrap   []string // Installs the tools below into the environment. Optional.
	Installer   []string // Runs the installer against {config}.
	PostInstall []string // Runs the post-install {script}.
	Assemble    []string // Writes the image into {output}.
}

// Returns the Arch Linux toolchain: archinstall, then bash, then mkarchiso.
func DefaultToolchain() Toolchain {
	return Toolchain{
		Bootstrap:   []string{"pacman", "-Sy", "--noconfirm", "--needed", "archiso", "archinstall"},
		Installer:   []string{"archinstall", "--config", varConfig, "--silent"},
		PostInstall: []string{"bash", varScript},
		Assemble:    []string{"mkarchiso", "-v", "-L", varLabel, "-w", varWork, "-o", varOutput, varProfile},
	}
}

// Checks that every template is present and uses its required input.
func (t Toolchain) Validate() error {
	required := []struct {
		name     string
		template []string
		needs    string
	}{
		{"installer", t.Installer, varConfig},
		{"post-install", t.PostInstall, varScript},
		{"assemble", t.Assemble, varOutput},
	}

	for _, r := range required {
		if len(r.template) == 0 {
			return fmt.Errorf("%w: %s command is empty", ErrToolchain, r.name)
		}
		if !slices.Contains(r.template, r.needs) {
			return fmt.Errorf("%w: %s command must pass %s", ErrToolchain, r.name, r.needs)
		}
	}
	return nil
}

// Values substituted into toolchain templates.
type vars map[string]string

// Returns the argument vector for template with placeholders replaced.
//
// An argument that looks like a placeholder but has no value is an error,
// so a typo in a template fails the build instead of running a bogus
// command.
func (v vars) expand(template []string) ([]string, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrToolchain)
	}

	argv := make([]string, len(template))
	for i, arg := range template {
		if !isPlaceholder(arg) {
			argv[i] = arg
			continue
		}
		value, ok := v[arg]
		if !ok {
			return nil, fmt.Errorf("%w: unknown placeholder %s", ErrToolchain, arg)
		}
		argv[i] = value
	}
	return argv, nil
}

func isPlaceholder(arg string) bool {
	return len(arg) > 2 && strings.HasPrefix(arg, "{") && strings.HasSuffix(arg, "}") && !strings.ContainsAny(arg[1:len(arg)-1], "{} ")
}
