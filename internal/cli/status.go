package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/nextos/nextiso/internal/build"
	"github.com/nextos/nextiso/internal/server"
)

// Represents the 'nextiso status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	st, err := server.NewClient(RootCmd.Socket).Status(ctx)
	if err != nil {
		return err
	}

	state := "idle"
	if st.Busy {
		state = "building"
	}
	fmt.Printf("version: %s\n", st.Version)
	fmt.Printf("pid:     %d\n", st.PID)
	fmt.Printf("uptime:  %s\n", st.Uptime)
	fmt.Printf("builds:  %d\n", st.Builds)
	fmt.Printf("state:   %s\n", state)

	if st.Metrics != nil && len(st.Metrics.Stages) > 0 {
		fmt.Println()
		fmt.Printf("%-18s %6s %6s %10s\n", "STAGE", "RUNS", "FAILED", "AVG")
		for _, s := range build.Stages() {
			ss, ok := st.Metrics.Stages[s.Name]
			if !ok || ss.Count == 0 {
				continue
			}
			avg := time.Duration(ss.Seconds / float64(ss.Count) * float64(time.Second))
			fmt.Printf("%-18s %6d %6d %10s\n", s.Name, ss.Count, ss.Failed, avg.Round(time.Millisecond))
		}
	}
	return nil
}
