package cli

import (
	"context"
	"log/slog"

	"github.com/nextos/nextiso/internal/server"
	"github.com/nextos/nextiso/internal/telemetry"
)

// Represents the 'nextiso serve' command.
type ServeCmd struct {
	BuilderFlags `embed:""`
}

// Executes the serve command.
//
// Starts the daemon on a Unix domain socket and blocks until the context
// is cancelled (e.g. via SIGINT or SIGTERM) or a client requests shutdown.
// Build and stage totals from tel are reported by GET /status.
func (c *ServeCmd) Run(ctx context.Context, tel *telemetry.Telemetry) error {
	b, release, err := c.builder()
	if err != nil {
		return err
	}
	defer release()

	srv, err := server.New(server.Config{
		SocketPath: RootCmd.Socket,
		Builder:    b,
		Metrics:    tel,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	slog.Info("nextiso daemon is running", "socket", srv.SocketPath(), "engine", c.Engine, "otlp", tel.Exporting())
	return srv.Serve(ctx)
}
