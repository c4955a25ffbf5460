package internal

import (
	"fmt"
	"runtime"
	"strings"
)

const (

	// Program name, used for log groups, XDG directories, and CLI help.
	Name = "nextiso"

	// Placeholder for a linker variable that was not provided.
	undefined = "(undefined)"

	// Reported instead of a version string for developer builds.
	localBuild = "(local)"

	// Release branch; omitted from version strings.
	releaseBranch = "main"
)

// Set through -ldflags "-X github.com/nextos/nextiso/internal.<name>=<value>".
var (
	version   = "" // Release version, with or without a "v" prefix.
	stage     = "" // Branch the binary was built from.
	gitCommit = "" // Abbreviated commit hash.

	rawQuiet   = "false" // Default for quiet mode.
	rawDebug   = "false" // Default for debug logging.
	rawVerbose = "false" // Default for verbose logging.
)

// Returns the release version without its "v" prefix, or "(undefined)".
func Version() string {
	return strings.TrimPrefix(strings.ToLower(orUndefined(version)), "v")
}

// Returns the branch the binary was built from, or "(undefined)".
func Stage() string {
	return strings.ToLower(orUndefined(stage))
}

// Returns the commit the binary was built from, or "(undefined)".
func GitCommit() string {
	return orUndefined(gitCommit)
}

// Returns true unless version, stage, and commit were all set at link time.
func IsLocal() bool {
	for _, v := range []string{version, stage, gitCommit} {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// Returns a human-readable version string.
//
// Developer builds report "(local)". Release builds report
// "<version>[+<stage>] <commit> [<os>/<arch>]", where the stage suffix is
// dropped for the release branch.
func VersionString() string {
	if IsLocal() {
		return localBuild
	}

	suffix := ""
	if s := Stage(); s != releaseBranch {
		suffix = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s/%s]", Version(), suffix, GitCommit(), runtime.GOOS, runtime.GOARCH)
}

func orUndefined(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return undefined
	}
	return v
}
