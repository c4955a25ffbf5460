package distro

import (
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var schema = gojsonschema.NewBytesLoader(schemaJSON)

var (
	hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	namePattern     = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)
)

// Largest swap file accepted.
const maxSwap = 128 * datasize.GB

// Checks a decoded document against the embedded JSON schema.
//
// The document is the generic form produced by decoding YAML or JSON into
// an any value.
func ValidateDocument(doc any) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.Field()+": "+desc.Description())
	}
	return fmt.Errorf("%w: %w", ErrSchema, &ValidationError{Problems: problems})
}

// Checks the semantic rules a schema cannot express.
//
// Every problem is reported, not only the first. The returned error is a
// [*ValidationError] or nil.
func Validate(c BuildConfiguration) error {
	var p problems

	d := c.DesktopEnvironment
	switch d.Type {
	case TypeDesktop:
		p.require(d.SelectedDE != "", "desktopEnvironment.selectedDE", "a desktop environment must be selected")
		p.require(d.SelectedWM == "", "desktopEnvironment.selectedWM", "must be empty when type is %q", TypeDesktop)
		if d.SelectedDE != "" {
			p.member(DesktopEnvironments, d.SelectedDE, "desktopEnvironment.selectedDE")
		}
	case TypeWindowManager:
		p.require(d.SelectedWM != "", "desktopEnvironment.selectedWM", "a window manager must be selected")
		p.require(d.SelectedDE == "", "desktopEnvironment.selectedDE", "must be empty when type is %q", TypeWindowManager)
		if d.SelectedWM != "" {
			p.member(WindowManagers, d.SelectedWM, "desktopEnvironment.selectedWM")
		}
	default:
		p.add("desktopEnvironment.type", "must be %q or %q, got %q", TypeDesktop, TypeWindowManager, d.Type)
	}

	for _, id := range c.PackageIDs() {
		p.member(Software, id, "selectedPackages."+id)
	}

	s := c.SystemConfig
	p.require(hostnamePattern.MatchString(s.Hostname), "systemConfig.hostname",
		"%q is not a valid hostname (lowercase letters, digits and hyphens)", s.Hostname)
	p.require(s.Locale != "", "systemConfig.locale", "must not be empty")
	p.require(s.Timezone != "", "systemConfig.timezone", "must not be empty")
	p.member(KeyboardLayouts, s.KeyboardLayout, "systemConfig.keyboardLayout")
	p.member(MirrorRegions, s.MirrorRegion, "systemConfig.mirrorRegion")
	p.member(Bootloaders, s.Bootloader, "systemConfig.bootloader")
	p.member(AudioSystems, s.Audio, "systemConfig.audio")
	p.member(Kernels, s.Kernel, "systemConfig.kernel")
	p.member(NetworkManagers, s.NetworkManager, "systemConfig.networkManager")

	u := s.UserAccount
	p.require(namePattern.MatchString(u.Username), "systemConfig.userAccount.username",
		"%q is not a valid user name", u.Username)
	p.require(u.Password != "", "systemConfig.userAccount.password", "must not be empty")
	for _, g := range u.Groups {
		p.require(namePattern.MatchString(g), "systemConfig.userAccount.groups", "%q is not a valid group name", g)
	}

	t := c.SystemTweaks
	p.member(DisplayServers, t.DisplayServer, "systemTweaks.displayServer")
	p.member(Partitionings, t.Partitioning, "systemTweaks.partitioning")
	p.member(Filesystems, t.Filesystem, "systemTweaks.filesystem")
	if t.Swap {
		if size, err := t.SwapBytes(); err != nil {
			p.add("systemTweaks.swapSize", "%v", err)
		} else if size == 0 || size > maxSwap {
			p.add("systemTweaks.swapSize", "must be between 1MB and %s", maxSwap.HR())
		}
	}
	if t.Dotfiles {
		p.validateRepository(t.DotfilesURL)
	}

	return p.err()
}

// Returns the swap size in bytes. A bare number is read as gigabytes.
func (t SystemTweaks) SwapBytes() (datasize.ByteSize, error) {
	raw := strings.TrimSpace(t.SwapSize)
	if raw == "" {
		return 0, fmt.Errorf("swap size is empty")
	}
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return datasize.ByteSize(n) * datasize.GB, nil
	}
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("%q is not a size", raw)
	}
	return size, nil
}

type problems []string

func (p *problems) add(field, format string, args ...any) {
	*p = append(*p, field+": "+fmt.Sprintf(format, args...))
}

func (p *problems) require(ok bool, field, format string, args ...any) {
	if !ok {
		p.add(field, format, args...)
	}
}

func (p *problems) member(c Catalog, id, field string) {
	if !c.Has(id) {
		p.add(field, "%q is not one of %s", id, strings.Join(c.IDs(), ", "))
	}
}

func (p *problems) validateRepository(raw string) {
	const field = "systemTweaks.dotfilesUrl"
	if raw == "" {
		p.add(field, "required when dotfiles are enabled")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		p.add(field, "%v", err)
		return
	}
	switch u.Scheme {
	case "https", "http", "git", "ssh":
	default:
		p.add(field, "unsupported scheme %q", u.Scheme)
		return
	}
	p.require(u.Host != "", field, "missing host")
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: p}
}
