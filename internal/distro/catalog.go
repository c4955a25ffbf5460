package distro

// One choice in a catalog.
type Option struct {
	ID       string   // Identifier stored in the configuration.
	Name     string   // Display name.
	Packages []string // Packages the choice installs.
	Category string   // Grouping for optional software.
}

// A fixed set of choices.
type Catalog []Option

// Returns the option with the given id.
func (c Catalog) Lookup(id string) (Option, bool) {
	for _, o := range c {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Reports whether id is in the catalog.
func (c Catalog) Has(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// Returns the ids in catalog order.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c))
	for i, o := range c {
		ids[i] = o.ID
	}
	return ids
}

// Full desktop environments.
var DesktopEnvironments = Catalog{
	{ID: "gnome", Name: "GNOME", Packages: []string{"gnome", "gnome-extra"}},
	{ID: "kde", Name: "KDE Plasma", Packages: []string{"plasma", "plasma-extra"}},
	{ID: "xfce", Name: "XFCE", Packages: []string{"xfce4", "xfce4-goodies"}},
	{ID: "cinnamon", Name: "Cinnamon", Packages: []string{"cinnamon"}},
	{ID: "mate", Name: "MATE", Packages: []string{"mate", "mate-extra"}},
	{ID: "lxqt", Name: "LXQt", Packages: []string{"lxqt", "lxqt-extra"}},
}

// Standalone window managers.
var WindowManagers = Catalog{
	{ID: "i3", Name: "i3", Packages: []string{"i3", "i3status", "i3lock"}},
	{ID: "bspwm", Name: "bspwm", Packages: []string{"bspwm", "sxhkd"}},
	{ID: "hyprland", Name: "Hyprland", Packages: []string{"hyprland", "waybar"}},
	{ID: "openbox", Name: "Openbox", Packages: []string{"openbox", "tint2"}},
	{ID: "sway", Name: "Sway", Packages: []string{"sway", "waybar"}},
}

// Optional software offered by the wizard.
var Software = Catalog{
	{ID: "firefox", Name: "Firefox", Category: "browsers", Packages: []string{"firefox"}},
	{ID: "chromium", Name: "Chromium", Category: "browsers", Packages: []string{"chromium"}},
	{ID: "brave", Name: "Brave", Category: "browsers", Packages: []string{"brave"}},
	{ID: "vivaldi", Name: "Vivaldi", Category: "browsers", Packages: []string{"vivaldi"}},
	{ID: "librewolf", Name: "LibreWolf", Category: "browsers", Packages: []string{"librewolf"}},
	{ID: "vlc", Name: "VLC", Category: "media", Packages: []string{"vlc"}},
	{ID: "mpv", Name: "MPV", Category: "media", Packages: []string{"mpv"}},
	{ID: "smplayer", Name: "SMPlayer", Category: "media", Packages: []string{"smplayer"}},
	{ID: "yay", Name: "Yay", Category: "packageManagers", Packages: []string{"yay"}},
	{ID: "paru", Name: "Paru", Category: "packageManagers", Packages: []string{"paru"}},
	{ID: "trizen", Name: "Trizen", Category: "packageManagers", Packages: []string{"trizen"}},
	{ID: "dolphin", Name: "Dolphin", Category: "fileExplorers", Packages: []string{"dolphin"}},
	{ID: "nautilus", Name: "Nautilus", Category: "fileExplorers", Packages: []string{"nautilus"}},
	{ID: "thunar", Name: "Thunar", Category: "fileExplorers", Packages: []string{"thunar"}},
	{ID: "pcmanfm", Name: "PCManFM", Category: "fileExplorers", Packages: []string{"pcmanfm"}},
	{ID: "ranger", Name: "Ranger", Category: "fileExplorers", Packages: []string{"ranger"}},
	{ID: "vim", Name: "Vim", Category: "editors", Packages: []string{"vim"}},
	{ID: "nano", Name: "Nano", Category: "editors", Packages: []string{"nano"}},
	{ID: "neovim", Name: "Neovim", Category: "editors", Packages: []string{"neovim"}},
	{ID: "vscode", Name: "VS Code", Category: "editors", Packages: []string{"code"}},
	{ID: "kate", Name: "Kate", Category: "editors", Packages: []string{"kate"}},
}

var (
	KeyboardLayouts = ids("us", "uk", "de", "fr", "es", "it", "pt", "ru", "jp", "kr", "cn")
	MirrorRegions   = ids("Worldwide", "United States", "Canada", "United Kingdom", "Germany", "France",
		"Japan", "China", "India", "Australia", "Brazil", "Russia")
	Bootloaders     = ids("grub", "systemd-boot", "refind")
	AudioSystems    = ids("pipewire", "pulseaudio")
	NetworkManagers = ids("networkmanager", "systemd-networkd", "connman")
	DisplayServers  = ids("x11", "wayland")
	Partitionings   = ids("auto", "manual")
	Filesystems     = ids("ext4", "ext3", "btrfs", "xfs")
)

// Kernel variants; each id is also its package name.
var Kernels = ids("linux", "linux-lts", "linux-zen", "linux-hardened")

func ids(values ...string) Catalog {
	c := make(Catalog, len(values))
	for i, v := range values {
		c[i] = Option{ID: v, Name: v}
	}
	return c
}

// Returns the packages implied by the base-system options.
//
// The kernel package follows the configured variant and its headers are
// added whenever the proprietary NVIDIA driver needs to build against them.
func (c BuildConfiguration) BasePackages() []string {
	kernel := c.SystemConfig.Kernel
	if kernel == "" {
		kernel = "linux"
	}

	var pkgs []string
	if c.BaseSystem.BaseArch {
		pkgs = append(pkgs, "base", kernel)
	}
	if c.BaseSystem.Firmware {
		pkgs = append(pkgs, "linux-firmware")
	}
	if c.BaseSystem.NvidiaDrivers {
		if kernel == "linux" {
			pkgs = append(pkgs, "nvidia", "nvidia-utils")
		} else {
			pkgs = append(pkgs, "nvidia-dkms", "nvidia-utils", kernel+"-headers")
		}
	}
	if c.BaseSystem.AMDDrivers {
		pkgs = append(pkgs, "mesa", "xf86-video-amdgpu")
	}
	if c.BaseSystem.IntelDrivers {
		pkgs = append(pkgs, "mesa", "xf86-video-intel")
	}
	return pkgs
}

// Returns the packages of the selected desktop environment or window
// manager, or nil if the choice is not in its catalog.
func (c BuildConfiguration) DesktopPackages() []string {
	d := c.DesktopEnvironment
	catalog := WindowManagers
	if d.Type == TypeDesktop {
		catalog = DesktopEnvironments
	}
	if o, ok := catalog.Lookup(d.Choice()); ok {
		return o.Packages
	}
	return nil
}

// Returns the package names for a selected software id, or nil for an id
// outside the catalog. [Validate] rejects such ids.
func SoftwarePackages(id string) []string {
	if o, ok := Software.Lookup(id); ok {
		return o.Packages
	}
	return nil
}
