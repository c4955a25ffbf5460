// Package process runs external commands and streams their output.
//
// Commands are argument vectors, never shell strings. Output is delivered
// line by line to a [LineHandler] while the command runs, and is also
// captured in full for the [Result]. A bare carriage return counts as a line
// terminator so that progress meters from tools like pacman or xorriso
// arrive as discrete updates.
//
// A non-zero exit code is reported as [*CommandFailed], which carries the
// exit code and the complete standard error. A missing executable wraps
// [os/exec.ErrNotFound] and a deadline wraps [ErrTimeout], so callers can
// tell "the tool is not installed" from "the tool ran and failed".
//
// Example usage:
//
//	runner := process.NewExec(10 * time.Minute)
//	res, err := runner.Run(ctx, process.New("docker", "version"), func(s process.Stream, line string) {
//	    fmt.Println(s, line)
//	})
//	var failed *process.CommandFailed
//	if errors.As(err, &failed) {
//	    fmt.Println("exit", failed.ExitCode, failed.Stderr)
//	}
package process
