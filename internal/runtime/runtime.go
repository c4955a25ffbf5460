package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/version"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/nextos/nextiso/internal/process"
)

const (

	// Default containerd socket.
	DefaultAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for build environments.
	DefaultNamespace = "nextiso"

	// Snapshotter used for container filesystems. Image assembly needs loop
	// devices and mounts, so the daemon runs as root and plain overlayfs is
	// available.
	snapshotter = "overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// An [Environment] backed by a containerd daemon.
//
// The client connects lazily on first use so that an unreachable daemon is
// reported by Check as a [*DependencyMissing] rather than at construction.
type Containerd struct {
	address   string           // Path of the containerd socket.
	namespace string           // Namespace scoping every containerd operation.
	platform  ocispec.Platform // Platform images are pulled and run for.

	mu      sync.Mutex
	client  *containerd.Client
	tracker Tracker
}

// Creates a containerd-backed environment for the socket at address.
//
// The namespace scopes all containerd operations to a single tenant. The
// environment must be closed when no longer needed.
func NewContainerd(address, namespace string) *Containerd {
	if address == "" {
		address = DefaultAddress
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Containerd{
		address:   address,
		namespace: namespace,
		platform:  defaultPlatform(),
	}
}

// Closes the containerd client connection, if one was opened.
func (c *Containerd) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Returns the connected client, dialling on first use.
func (c *Containerd) connect() (*containerd.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := containerd.New(c.address, containerd.WithDefaultNamespace(c.namespace))
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// Checks that the socket exists and that the daemon answers.
func (c *Containerd) Check(ctx context.Context) (EngineInfo, error) {
	info := EngineInfo{Engine: "containerd", Address: c.address}

	if _, err := os.Stat(c.address); err != nil {
		return info, &DependencyMissing{Engine: info.Engine, Reason: NotInstalled, Detail: err.Error()}
	}

	client, err := c.connect()
	if err != nil {
		return info, &DependencyMissing{Engine: info.Engine, Reason: Unreachable, Detail: err.Error()}
	}

	serving, err := client.IsServing(ctx)
	if err != nil || !serving {
		detail := "daemon is not serving"
		if err != nil {
			detail = err.Error()
		}
		return info, &DependencyMissing{Engine: info.Engine, Reason: Unreachable, Detail: detail}
	}

	v, err := client.Version(ctx)
	if err != nil {
		return info, &DependencyMissing{Engine: info.Engine, Reason: Unreachable, Detail: err.Error()}
	}
	info.Server = v.Version
	info.Client = version.Version

	slog.Debug("containerd available", "address", c.address, "version", v.Version, "revision", v.Revision)
	return info, nil
}

// Kills and deletes any container with the given name.
func (c *Containerd) Reset(ctx context.Context, name string) error {
	client, err := c.connect()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	if err := removeContainer(ctx, client, name); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	c.tracker.Observe(name, StateRemoved)
	return nil
}

// Pulls and unpacks the image, creates the container and starts its
// long-running task.
//
// Any existing container with the same name is removed before the new one
// is created. The task runs "sleep infinity" so that subsequent Exec calls
// have a running process to attach to.
func (c *Containerd) Create(ctx context.Context, spec Spec) error {
	if err := c.tracker.Transition(spec.Name, StateCreated); err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironmentStart, err)
	}

	if err := c.create(ctx, spec); err != nil {
		c.tracker.Observe(spec.Name, StateAbsent)
		return fmt.Errorf("%w: %w", ErrEnvironmentStart, err)
	}

	state, err := c.Status(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironmentStart, err)
	}
	if state != StateRunning {
		return fmt.Errorf("%w: %s is %s after start", ErrEnvironmentStart, spec.Name, state)
	}
	return nil
}

func (c *Containerd) create(ctx context.Context, spec Spec) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	ref, err := normalizeImage(spec.Image)
	if err != nil {
		return err
	}

	image, err := c.pullImage(ctx, client, ref)
	if err != nil {
		return err
	}

	// Remove any stale container from a previous build with the same name.
	if err := removeContainer(ctx, client, spec.Name); err != nil {
		return err
	}

	ctr, err := newContainer(ctx, client, image, spec, platforms.Format(c.platform))
	if err != nil {
		return err
	}

	if err := startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return err
	}

	slog.Debug("container started", "name", spec.Name, "image", ref)
	return nil
}

// Pulls ref for the configured platform and unpacks it into the snapshotter.
func (c *Containerd) pullImage(ctx context.Context, client *containerd.Client, ref string) (containerd.Image, error) {
	p := c.platform

	if img, err := client.GetImage(ctx, ref); err == nil {
		image := containerd.NewImageWithPlatform(client, img.Metadata(), platforms.Only(p))
		if unpacked, err := image.IsUnpacked(ctx, snapshotter); err == nil && unpacked {
			return image, nil
		}
	}

	slog.Info("pulling image", "ref", ref, "platform", platforms.Format(p))
	return client.Pull(ctx, ref,
		containerd.WithPlatformMatcher(platforms.Only(p)),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	)
}

// Returns the state containerd reports and records it.
func (c *Containerd) Status(ctx context.Context, name string) (State, error) {
	client, err := c.connect()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	state, err := containerStatus(ctx, client, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	if state == StateAbsent && c.tracker.State(name) == StateRemoved {
		return StateRemoved, nil
	}
	c.tracker.Observe(name, state)
	return state, nil
}

// Kills the task, then deletes the container and its snapshot.
func (c *Containerd) Destroy(ctx context.Context, name string) error {
	client, err := c.connect()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var errs []error
	if err := stopContainer(ctx, client, name); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
	} else {
		c.tracker.Observe(name, StateStopped)
	}
	if err := removeContainer(ctx, client, name); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove %s: %w", name, err))
	} else {
		c.tracker.Observe(name, StateRemoved)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	slog.Debug("container destroyed", "name", name)
	return nil
}

// Runs argv as an additional process in the container's task.
func (c *Containerd) Exec(ctx context.Context, name string, argv []string, handler process.LineHandler) (*process.Result, error) {
	if err := c.tracker.RequireRunning(name); err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrRuntime)
	}

	client, err := c.connect()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return execArgs(ctx, client, name, argv, handler)
}

// Expands a short image name such as "archlinux:latest" into a fully
// qualified reference containerd can pull.
func normalizeImage(image string) (string, error) {
	named, err := reference.ParseDockerRef(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	return named.String(), nil
}

// Returns the default OCI platform for the host architecture.
func defaultPlatform() ocispec.Platform {
	return platforms.Normalize(ocispec.Platform{OS: "linux", Architecture: goruntime.GOARCH})
}
