package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Subdirectory name under each XDG base directory.
	appName = "nextiso"

	// Filename of the cached base installation image.
	baseImageName = "archlinux-x86_64.iso"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Directory for downloaded assets that can be fetched again at any time.
//
//	Linux:   $XDG_CACHE_HOME/nextiso or ~/.cache/nextiso
//	macOS:   ~/Library/Caches/nextiso
func Cache() string {
	return filepath.Join(xdg.CacheHome, appName)
}

// Default location of the cached base installation image.
func BaseImage() string {
	return filepath.Join(Cache(), baseImageName)
}

// Default directory for finished images.
//
//	Linux:   $XDG_DATA_HOME/nextiso/images
//	macOS:   ~/Library/Application Support/nextiso/images
func Output() string {
	return filepath.Join(xdg.DataHome, appName, "images")
}

// Directory holding per-build working state (staged installer
// configuration and the image-creation work tree).
//
//	Linux:   $XDG_STATE_HOME/nextiso/work
func Work() string {
	return filepath.Join(xdg.StateHome, appName, "work")
}

// Staging directory for a single build.
func Stage(work, buildID string) string {
	return filepath.Join(work, "stage", buildID)
}

// Directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/nextiso or /run/user/<uid>/nextiso
//	macOS:   ~/Library/Caches/nextiso/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(Cache(), "run")
}

// Default path to the daemon's Unix domain socket.
func Socket() string {
	return filepath.Join(Runtime(), "nextiso.sock")
}

// Default path to the daemon's PID file.
func PIDFile() string {
	return filepath.Join(Runtime(), "nextiso.pid")
}
