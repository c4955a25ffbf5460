package runtime

import (
	"context"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Queries the state of the container called id.
//
// Returns [StateRunning] if the task is active, [StateStopped] if the
// container exists without a running task, and [StateAbsent] if there is no
// such container.
func containerStatus(ctx context.Context, client *containerd.Client, id string) (State, error) {
	ctr, err := client.LoadContainer(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return StateAbsent, nil
		}
		return "", err
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return StateCreated, nil
		}
		return "", err
	}

	status, err := task.Status(ctx)
	if err != nil {
		return "", err
	}

	switch status.Status {
	case containerd.Running:
		return StateRunning, nil
	case containerd.Created:
		return StateCreated, nil
	default:
		return StateStopped, nil
	}
}

// Kills and deletes the container's task, keeping the container record.
//
// Stopping a container without a task, or one that does not exist, is not
// an error.
func stopContainer(ctx context.Context, client *containerd.Client, id string) error {
	ctr, err := client.LoadContainer(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}

	task.Kill(ctx, syscall.SIGKILL)
	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

// Removes the container called id along with its task and snapshot.
//
// A missing container is not an error.
func removeContainer(ctx context.Context, client *containerd.Client, id string) error {
	existing, err := client.LoadContainer(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}
	if task, err := existing.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}
	if err := existing.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

// Creates the container for spec from an unpacked image.
func newContainer(ctx context.Context, client *containerd.Client, image containerd.Image, spec Spec, platform string) (containerd.Container, error) {
	opts := []oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(platform),
		oci.WithImageConfig(image),
		oci.WithHostNamespace(specs.NetworkNamespace),
		oci.WithHostResolvconf,
		oci.WithHostname(spec.Name),
		oci.WithMounts(bindMounts(spec.Mounts)),
		oci.WithProcessArgs("sleep", "infinity"),
	}
	if len(spec.Env) > 0 {
		opts = append(opts, oci.WithEnv(spec.Env))
	}
	if spec.Privileged {
		opts = append(opts, oci.WithPrivileged, oci.WithAllDevicesAllowed, oci.WithHostDevices)
	}

	return client.NewContainer(ctx, spec.Name,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(spec.Name, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(opts...),
	)
}

// Converts mounts into OCI bind mounts.
func bindMounts(mounts []Mount) []specs.Mount {
	out := make([]specs.Mount, 0, len(mounts))
	for _, m := range mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		out = append(out, specs.Mount{
			Type:        "bind",
			Source:      m.Source,
			Destination: m.Destination,
			Options:     []string{"rbind", mode},
		})
	}
	return out
}

// Starts the container's long-running task with no attached IO.
func startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}
