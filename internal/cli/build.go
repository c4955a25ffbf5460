package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/nextos/nextiso/internal/distro"
	"github.com/nextos/nextiso/internal/progress"
	"github.com/nextos/nextiso/internal/server"
)

// Represents the 'nextiso build' command.
type BuildCmd struct {
	BuilderFlags `embed:""`

	Config string `short:"c" required:"" type:"existingfile" env:"NEXTISO_CONFIG" help:"System configuration file (YAML or JSON)." placeholder:"FILE"`
	JSON   bool   `help:"Print events as newline-delimited JSON."`
	Daemon bool   `help:"Run the build on the running daemon instead of locally."`
}

// Executes the build command.
//
// Loads and validates the configuration, runs the build, and prints its
// progress. Ctrl-C cancels the build; the build environment is still
// removed.
func (c *BuildCmd) Run(ctx context.Context) error {
	cfg, err := distro.Load(c.Config)
	if err != nil {
		return err
	}

	sink := c.sink()

	if c.Daemon {
		last, err := server.NewClient(RootCmd.Socket).Build(ctx, cfg, sink)
		if err != nil {
			return err
		}
		if last.Kind == progress.KindFailure {
			return errors.New(last.Message)
		}
		return nil
	}

	b, release, err := c.builder()
	if err != nil {
		return err
	}
	defer release()

	res, err := b.Run(ctx, cfg, sink)
	if err != nil {
		return err
	}
	slog.Debug("build result", "id", res.ID, "digest", res.ConfigDigest, "duration", res.Duration)
	return nil
}

func (c *BuildCmd) sink() progress.Sink {
	if c.JSON {
		return newJSONSink(os.Stdout)
	}
	return newRenderer(os.Stderr, !isatty(os.Stderr), RootCmd.Quiet)
}
