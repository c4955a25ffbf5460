package distro

import (
	"maps"
	"slices"
	"sort"
)

// Desktop selection modes.
const (
	TypeDesktop       = "desktop" // Full desktop environment.
	TypeWindowManager = "wm"      // Standalone window manager.
)

// Everything the wizard collects before a build starts.
//
// Field names on the wire follow the wizard's JSON shape. A value handed to
// a build is cloned first, so the build works on a snapshot that later edits
// cannot reach.
type BuildConfiguration struct {
	BaseSystem         BaseSystem         `json:"baseSystem" yaml:"baseSystem"`
	DesktopEnvironment DesktopEnvironment `json:"desktopEnvironment" yaml:"desktopEnvironment"`
	SelectedPackages   map[string]bool    `json:"selectedPackages" yaml:"selectedPackages"`
	SystemConfig       SystemConfig       `json:"systemConfig" yaml:"systemConfig"`
	SystemTweaks       SystemTweaks       `json:"systemTweaks" yaml:"systemTweaks"`
}

// Driver and firmware options for the base system.
type BaseSystem struct {
	BaseArch      bool `json:"baseArch" yaml:"baseArch"`           // Install the base package group.
	NvidiaDrivers bool `json:"nvidiaDrivers" yaml:"nvidiaDrivers"` // Proprietary NVIDIA driver.
	AMDDrivers    bool `json:"amdDrivers" yaml:"amdDrivers"`       // Mesa and the amdgpu Xorg driver.
	IntelDrivers  bool `json:"intelDrivers" yaml:"intelDrivers"`   // Mesa and the intel Xorg driver.
	Firmware      bool `json:"firmware" yaml:"firmware"`           // linux-firmware.
}

// Desktop selection. Exactly one of SelectedDE and SelectedWM is set,
// according to Type.
type DesktopEnvironment struct {
	Type       string `json:"type" yaml:"type"`             // [TypeDesktop] or [TypeWindowManager].
	SelectedDE string `json:"selectedDE" yaml:"selectedDE"` // Desktop environment id.
	SelectedWM string `json:"selectedWM" yaml:"selectedWM"` // Window manager id.
}

// System settings written into the installer configuration.
type SystemConfig struct {
	Hostname       string      `json:"hostname" yaml:"hostname"`
	Locale         string      `json:"locale" yaml:"locale"`
	Timezone       string      `json:"timezone" yaml:"timezone"`
	KeyboardLayout string      `json:"keyboardLayout" yaml:"keyboardLayout"`
	MirrorRegion   string      `json:"mirrorRegion" yaml:"mirrorRegion"`
	Bootloader     string      `json:"bootloader" yaml:"bootloader"`
	Audio          string      `json:"audio" yaml:"audio"`
	Kernel         string      `json:"kernel" yaml:"kernel"`
	NetworkManager string      `json:"networkManager" yaml:"networkManager"`
	RootPassword   string      `json:"rootPassword" yaml:"rootPassword"`
	UserAccount    UserAccount `json:"userAccount" yaml:"userAccount"`
}

// The primary user account.
type UserAccount struct {
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
	Groups   []string `json:"groups" yaml:"groups"`
}

// Optional adjustments applied after installation.
type SystemTweaks struct {
	DisplayServer string `json:"displayServer" yaml:"displayServer"` // "x11" or "wayland".
	AutoLogin     bool   `json:"autoLogin" yaml:"autoLogin"`
	Swap          bool   `json:"swap" yaml:"swap"`
	SwapSize      string `json:"swapSize" yaml:"swapSize"`         // Gigabytes, or a size with a unit such as "512MB".
	Partitioning  string `json:"partitioning" yaml:"partitioning"` // "auto" or "manual".
	Filesystem    string `json:"filesystem" yaml:"filesystem"`     // Root filesystem type.
	Dotfiles      bool   `json:"dotfiles" yaml:"dotfiles"`
	DotfilesURL   string `json:"dotfilesUrl" yaml:"dotfilesUrl"` // Git repository cloned into the user's home.
}

// Returns the configuration the wizard starts from.
//
// No desktop is selected; a configuration must pick one before it validates.
func Default() BuildConfiguration {
	return BuildConfiguration{
		BaseSystem: BaseSystem{
			BaseArch: true,
			Firmware: true,
		},
		DesktopEnvironment: DesktopEnvironment{
			Type: TypeDesktop,
		},
		SelectedPackages: map[string]bool{},
		SystemConfig: SystemConfig{
			Hostname:       "nextos",
			Locale:         "en_US.UTF-8",
			Timezone:       "UTC",
			KeyboardLayout: "us",
			MirrorRegion:   "Worldwide",
			Bootloader:     "grub",
			Audio:          "pipewire",
			Kernel:         "linux",
			NetworkManager: "networkmanager",
			UserAccount: UserAccount{
				Groups: DefaultGroups(),
			},
		},
		SystemTweaks: SystemTweaks{
			DisplayServer: "x11",
			Swap:          true,
			SwapSize:      "4",
			Partitioning:  "auto",
			Filesystem:    "ext4",
		},
	}
}

// Returns the groups a new user joins by default.
func DefaultGroups() []string {
	return []string{"wheel", "audio", "video", "storage", "optical", "network", "lp", "scanner"}
}

// Returns a deep copy of c.
func (c BuildConfiguration) Clone() BuildConfiguration {
	c.SelectedPackages = maps.Clone(c.SelectedPackages)
	c.SystemConfig.UserAccount.Groups = slices.Clone(c.SystemConfig.UserAccount.Groups)
	return c
}

// Returns the selected desktop environment or window manager id.
func (d DesktopEnvironment) Choice() string {
	if d.Type == TypeDesktop {
		return d.SelectedDE
	}
	return d.SelectedWM
}

// Returns the ids of the selected optional packages, sorted.
func (c BuildConfiguration) PackageIDs() []string {
	ids := make([]string, 0, len(c.SelectedPackages))
	for id, selected := range c.SelectedPackages {
		if selected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
