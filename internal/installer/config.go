package installer

import (
	"encoding/json"
	"sort"

	"github.com/opencontainers/go-digest"
	"github.com/samber/lo"

	"github.com/nextos/nextiso/internal/distro"
)

// Name of the staged installer configuration file.
const ConfigFile = "archinstall.json"

// Declarative configuration consumed by the installer.
//
// The JSON keys follow archinstall's configuration format. The value is a
// pure function of the build configuration and carries no timestamps, so
// its serialised form is byte-identical across runs.
type Config struct {
	Hostname           string   `json:"hostname"`
	Locale             string   `json:"locale"`
	KeyboardLayout     string   `json:"keyboard_layout"`
	MirrorRegion       string   `json:"mirror_region"`
	Bootloader         string   `json:"bootloader"`
	Audio              string   `json:"audio"`
	Kernel             string   `json:"kernel"`
	NetworkManager     string   `json:"network_manager"`
	Timezone           string   `json:"timezone"`
	RootPassword       string   `json:"root_password"`
	UserAccount        User     `json:"user_account"`
	DesktopEnvironment string   `json:"desktop_environment"`
	Packages           []string `json:"packages"`
	Filesystem         string   `json:"filesystem"`
	Partitioning       string   `json:"partitioning"`
	Swap               bool     `json:"swap"`
}

// The primary user account.
type User struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Groups   []string `json:"groups"`
}

// Packages implied by the root filesystem type.
var filesystemPackages = map[string][]string{
	"btrfs": {"btrfs-progs"},
	"ext3":  {"e2fsprogs"},
	"ext4":  {"e2fsprogs"},
	"xfs":   {"xfsprogs"},
}

// Builds the installer configuration for c.
//
// The desktop is the selected environment or window manager according to
// the selection mode. Packages are the selected optional packages plus the
// utilities the chosen filesystem needs, sorted and without duplicates.
func Translate(c distro.BuildConfiguration) Config {
	s := c.SystemConfig

	groups := s.UserAccount.Groups
	if groups == nil {
		groups = []string{}
	}

	return Config{
		Hostname:       s.Hostname,
		Locale:         s.Locale,
		KeyboardLayout: s.KeyboardLayout,
		MirrorRegion:   s.MirrorRegion,
		Bootloader:     s.Bootloader,
		Audio:          s.Audio,
		Kernel:         s.Kernel,
		NetworkManager: s.NetworkManager,
		Timezone:       s.Timezone,
		RootPassword:   s.RootPassword,
		UserAccount: User{
			Username: s.UserAccount.Username,
			Password: s.UserAccount.Password,
			Groups:   append([]string{}, groups...),
		},
		DesktopEnvironment: c.DesktopEnvironment.Choice(),
		Packages:           resolvePackages(c),
		Filesystem:         c.SystemTweaks.Filesystem,
		Partitioning:       c.SystemTweaks.Partitioning,
		Swap:               c.SystemTweaks.Swap,
	}
}

func resolvePackages(c distro.BuildConfiguration) []string {
	selected := lo.FlatMap(c.PackageIDs(), func(id string, _ int) []string {
		return distro.SoftwarePackages(id)
	})
	pkgs := lo.Uniq(append(selected, filesystemPackages[c.SystemTweaks.Filesystem]...))
	sort.Strings(pkgs)
	return pkgs
}

// Returns the indented JSON form, newline terminated.
func (c Config) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Returns the sha256 digest of the marshalled configuration.
func (c Config) Digest() (digest.Digest, error) {
	data, err := c.Marshal()
	if err != nil {
		return "", err
	}
	return digest.FromBytes(data), nil
}
