package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/nextos/nextiso/internal/paths"
)

// Represents the 'nextiso check' command.
type CheckCmd struct {
	EngineFlags `embed:""`
}

// Executes the check command.
//
// Runs only the preflight stage and reports whether the base image is
// already cached.
func (c *CheckCmd) Run(ctx context.Context) error {
	env, release, err := c.open()
	if err != nil {
		return err
	}
	defer release()

	info, err := env.Check(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("engine:     %s\n", info.Engine)
	fmt.Printf("client:     %s\n", info.Client)
	fmt.Printf("server:     %s\n", info.Server)
	if info.Address != "" {
		fmt.Printf("address:    %s\n", info.Address)
	}

	base := paths.BaseImage()
	if st, err := os.Stat(base); err == nil && st.Mode().IsRegular() {
		fmt.Printf("base image: %s\n", base)
	} else {
		fmt.Printf("base image: not downloaded yet (%s)\n", base)
	}
	return nil
}
