// Package cli implements the nextiso command line.
//
// Commands:
//
//	build    Build an image from a configuration file.
//	check    Check that the container engine is usable.
//	serve    Run the build daemon on a Unix socket.
//	status   Show the status of a running daemon.
//	version  Show version information.
//
// Global flags:
//
//	-q, --quiet        Suppress informational output.
//	-v, --verbose      Enable verbose output.
//	-d, --debug        Enable debug output.
//	-s, --socket       Daemon socket path.
//	    --log-format   "pretty" or "json".
//
// Every flag can also be set through a NEXTISO_* environment variable, and
// a .env file in the working directory is loaded before flags are parsed.
// Flags override build-time defaults set via linker flags. After parsing,
// the global logger is reconfigured to reflect the final level and format.
package cli
