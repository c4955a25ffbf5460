package cli

import (
	"context"
	"fmt"

	"github.com/nextos/nextiso/internal"
)

// Represents the 'nextiso version' command.
type VersionCmd struct{}

// Executes the version command.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Println(internal.VersionString())
	return nil
}
