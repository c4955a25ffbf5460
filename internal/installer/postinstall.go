package installer

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"

	"github.com/nextos/nextiso/internal/distro"
)

const (
	swapFile        = "/swapfile"
	autologinDropIn = "/etc/systemd/system/getty@tty1.service.d/autologin.conf"
	dotfilesDir     = ".dotfiles"
)

// Work done on the installed system after the installer finishes.
type PostInstall struct {
	Packages     []string          // Installed with pacman, sorted.
	Services     []string          // System units to enable.
	UserServices []string          // User units enabled for every user.
	Swap         datasize.ByteSize // Swap file size. Zero means no swap file.
	AutoLogin    string            // User logged in on tty1 without a password, if set.
	Dotfiles     *Dotfiles         // Repository to clone, if set.
}

// A dotfiles repository cloned into a user's home.
type Dotfiles struct {
	URL  string // Git repository.
	User string // Owner of the clone.
}

// One shell command with an optional output redirection.
type Step struct {
	Argv     []string
	AppendTo string // Appends stdout to this file.
	WriteTo  string // Replaces this file with stdout.
}

// Returns the step as a quoted shell line.
func (s Step) String() string {
	line := shellescape.QuoteCommand(s.Argv)
	switch {
	case s.WriteTo != "":
		line += " > " + shellescape.Quote(s.WriteTo)
	case s.AppendTo != "":
		line += " >> " + shellescape.Quote(s.AppendTo)
	}
	return line
}

var networkServices = map[string]string{
	"networkmanager":   "NetworkManager.service",
	"systemd-networkd": "systemd-networkd.service",
	"connman":          "connman.service",
}

var networkPackages = map[string][]string{
	"networkmanager": {"networkmanager"},
	"connman":        {"connman"},
}

var audioPackages = map[string][]string{
	"pipewire":   {"pipewire", "pipewire-pulse", "wireplumber"},
	"pulseaudio": {"pulseaudio"},
}

var audioUserServices = map[string][]string{
	"pipewire":   {"pipewire.socket", "pipewire-pulse.socket", "wireplumber.service"},
	"pulseaudio": {"pulseaudio.socket"},
}

var displayServerPackages = map[string][]string{
	"x11":     {"xorg-server", "xorg-xinit"},
	"wayland": {"wayland", "xorg-xwayland"},
}

// Display manager per desktop environment, with its packages.
var displayManagers = map[string]struct {
	service  string
	packages []string
}{
	"gnome":    {"gdm.service", []string{"gdm"}},
	"kde":      {"sddm.service", []string{"sddm"}},
	"lxqt":     {"sddm.service", []string{"sddm"}},
	"xfce":     {"lightdm.service", []string{"lightdm", "lightdm-gtk-greeter"}},
	"cinnamon": {"lightdm.service", []string{"lightdm", "lightdm-gtk-greeter"}},
	"mate":     {"lightdm.service", []string{"lightdm", "lightdm-gtk-greeter"}},
}

// Plans the post-install work for c.
//
// Packages cover the base system, drivers, the desktop, the display server,
// audio, networking and the selected software. Tweaks become services, a
// swap file, an auto-login drop-in and a dotfiles clone.
func PlanPostInstall(c distro.BuildConfiguration) PostInstall {
	s := c.SystemConfig
	t := c.SystemTweaks
	user := s.UserAccount.Username

	pkgs := append([]string{}, c.BasePackages()...)
	pkgs = append(pkgs, c.DesktopPackages()...)
	pkgs = append(pkgs, displayServerPackages[t.DisplayServer]...)
	pkgs = append(pkgs, audioPackages[s.Audio]...)
	pkgs = append(pkgs, networkPackages[s.NetworkManager]...)
	pkgs = append(pkgs, resolvePackages(c)...)

	var services []string
	if svc, ok := networkServices[s.NetworkManager]; ok {
		services = append(services, svc)
	}
	if c.DesktopEnvironment.Type == distro.TypeDesktop {
		if dm, ok := displayManagers[c.DesktopEnvironment.SelectedDE]; ok {
			services = append(services, dm.service)
			pkgs = append(pkgs, dm.packages...)
		}
	}

	p := PostInstall{
		Services:     services,
		UserServices: audioUserServices[s.Audio],
	}

	if t.Swap {
		if size, err := t.SwapBytes(); err == nil {
			p.Swap = size
		}
	}
	if t.AutoLogin && user != "" {
		p.AutoLogin = user
	}
	if t.Dotfiles && t.DotfilesURL != "" && user != "" {
		p.Dotfiles = &Dotfiles{URL: t.DotfilesURL, User: user}
		pkgs = append(pkgs, "git")
	}

	p.Packages = lo.Uniq(pkgs)
	sort.Strings(p.Packages)
	return p
}

// Returns the commands that carry out the plan, in order.
func (p PostInstall) Steps() []Step {
	steps := []Step{
		{Argv: []string{"pacman", "-Syu", "--noconfirm"}},
	}

	if len(p.Packages) > 0 {
		steps = append(steps, Step{Argv: append([]string{"pacman", "-S", "--noconfirm", "--needed"}, p.Packages...)})
	}
	if len(p.Services) > 0 {
		steps = append(steps, Step{Argv: append([]string{"systemctl", "enable"}, p.Services...)})
	}
	if len(p.UserServices) > 0 {
		steps = append(steps, Step{Argv: append([]string{"systemctl", "--global", "enable"}, p.UserServices...)})
	}

	if p.Swap > 0 {
		steps = append(steps,
			Step{Argv: []string{"fallocate", "-l", fmt.Sprintf("%d", p.Swap.Bytes()), swapFile}},
			Step{Argv: []string{"chmod", "600", swapFile}},
			Step{Argv: []string{"mkswap", swapFile}},
			Step{Argv: []string{"printf", `%s\n`, swapFile + " none swap defaults 0 0"}, AppendTo: "/etc/fstab"},
		)
	}

	if p.AutoLogin != "" {
		steps = append(steps,
			Step{Argv: []string{"mkdir", "-p", path.Dir(autologinDropIn)}},
			Step{
				Argv: []string{"printf", `%s\n`,
					"[Service]",
					"ExecStart=",
					"ExecStart=-/sbin/agetty --autologin " + p.AutoLogin + " --noclear %I $TERM",
				},
				WriteTo: autologinDropIn,
			},
		)
	}

	if p.Dotfiles != nil {
		home := path.Join("/home", p.Dotfiles.User)
		steps = append(steps, Step{
			Argv: []string{"runuser", "-u", p.Dotfiles.User, "--",
				"git", "clone", "--depth", "1", "--", p.Dotfiles.URL, path.Join(home, dotfilesDir)},
		})
	}

	return steps
}

// Returns the plan as a bash script that stops at the first failure.
//
// Every interpolated value is shell-quoted.
func (p PostInstall) Script() string {
	var b strings.Builder
	b.WriteString("set -euo pipefail\n")
	for _, s := range p.Steps() {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}
