package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/nextos/nextiso/internal"
	"github.com/nextos/nextiso/internal/build"
	"github.com/nextos/nextiso/internal/logging"
	"github.com/nextos/nextiso/internal/telemetry"
)

// Time allowed to flush metrics on exit.
const telemetryShutdownTimeout = 5 * time.Second

// Global flags and subcommands.
type Root struct {
	Quiet     bool       `short:"q" env:"NEXTISO_QUIET" help:"Suppress informational output."`
	Verbose   bool       `short:"v" env:"NEXTISO_VERBOSE" help:"Enable verbose output."`
	Debug     bool       `short:"d" env:"NEXTISO_DEBUG" help:"Enable debug output."`
	LogFormat string     `enum:"pretty,json" default:"pretty" env:"NEXTISO_LOG_FORMAT" help:"Log format (${enum})."`
	Socket    string     `short:"s" type:"path" env:"NEXTISO_SOCKET" help:"Override the default daemon socket path." placeholder:"PATH"`
	Build     BuildCmd   `cmd:"" help:"Build an image from a configuration file."`
	Check     CheckCmd   `cmd:"" help:"Check that the container engine is usable."`
	Serve     ServeCmd   `cmd:"" help:"Run the build daemon."`
	Status    StatusCmd  `cmd:"" help:"Show the status of a running daemon."`
	Version   VersionCmd `cmd:"" help:"Show version information."`
}

// Represents the root command for nextiso.
var RootCmd Root

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {
	loadEnv(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd, options(ctx)...)

	if err := configureLogger(&RootCmd); err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Service: internal.Name,
		Version: internal.VersionString(),
		Global:  true,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("failed to flush metrics", "error", err)
		}
	}()

	return kongCtx.Run(tel)
}

func options(ctx context.Context) []kong.Option {
	return []kong.Option{
		kong.Name(internal.Name),
		kong.Description("Builds a customised Arch Linux live image inside a container."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
			"image":   build.DefaultImage,
			"builder": build.DefaultName,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	}
}

// Loads environment variables from a dotenv file, if present. Variables
// already set in the environment win.
func loadEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load environment file", "path", path, "error", err)
	}
}

// Configures the global logger based on CLI flags.
func configureLogger(root *Root) error {
	internal.SetQuiet(root.Quiet || internal.IsQuiet())
	internal.SetDebug(root.Debug || internal.IsDebug())
	internal.SetVerbose(root.Verbose || internal.IsVerbose())

	format, err := logging.ParseFormat(root.LogFormat)
	if err != nil {
		return err
	}

	slog.SetDefault(logging.New(os.Stderr, format, internal.LogLevel(), internal.IsVerbose()))
	return nil
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
