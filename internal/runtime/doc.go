// Package runtime provides the isolated environments builds run in.
//
// An [Environment] is a long-lived container created from a builder image,
// kept alive by a "sleep infinity" foreground process, and used as the
// target of one command after another. Host directories are bind-mounted
// in, so inputs and outputs never need to be copied through the engine.
//
// Two backends are available. [Engine] drives the docker or podman
// command-line client through a [process.Runner]. [Containerd] talks to a
// containerd daemon directly: it pulls and unpacks the builder image,
// creates the container with an OCI spec carrying the bind mounts and
// privileges, and attaches each command to the running task as an extra
// process with streamed stdio.
//
// Both backends share a [Tracker] that records the lifecycle of every
// environment (absent, created, running, stopped, removed) and refuses
// Exec unless the environment is running.
//
// Example usage:
//
//	env, err := runtime.Open("docker", process.NewExec(0), "")
//	if err != nil {
//	    return err
//	}
//	if _, err := env.Check(ctx); err != nil {
//	    return err
//	}
//	if err := env.Create(ctx, runtime.Spec{Name: "nextos-builder", Image: "archlinux:latest"}); err != nil {
//	    return err
//	}
//	defer env.Destroy(context.WithoutCancel(ctx), "nextos-builder")
//
//	res, err := env.Exec(ctx, "nextos-builder", []string{"uname", "-a"}, nil)
package runtime
