package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/platforms"
)

func TestNormalizeImage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"archlinux", "docker.io/library/archlinux:latest"},
		{"archlinux:base-devel", "docker.io/library/archlinux:base-devel"},
		{"archlinux/archlinux:latest", "docker.io/archlinux/archlinux:latest"},
		{"ghcr.io/nextos/builder:1.0", "ghcr.io/nextos/builder:1.0"},
	}

	for _, tt := range tests {
		got, err := normalizeImage(tt.in)
		if err != nil {
			t.Fatalf("normalizeImage(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("normalizeImage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := normalizeImage("Not Valid"); err == nil {
		t.Error("expected error for invalid reference")
	}
}

func TestBindMounts(t *testing.T) {
	got := bindMounts([]Mount{
		{Source: "/a", Destination: "/b", ReadOnly: true},
		{Source: "/c", Destination: "/d"},
	})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != "bind" || got[0].Options[1] != "ro" {
		t.Errorf("read-only mount = %+v", got[0])
	}
	if got[1].Options[1] != "rw" || got[1].Destination != "/d" {
		t.Errorf("read-write mount = %+v", got[1])
	}
}

func TestDefaultPlatform(t *testing.T) {
	p := defaultPlatform()
	if p.OS != "linux" || p.Architecture == "" {
		t.Fatalf("defaultPlatform = %+v, want linux/<arch>", p)
	}
	if got := platforms.Format(p); !strings.HasPrefix(got, "linux/") {
		t.Fatalf("formatted platform = %q, want linux/<arch>", got)
	}
}

func TestNextExecIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := nextExecID()
		if seen[id] {
			t.Fatalf("duplicate exec id %q", id)
		}
		seen[id] = true
	}
}

func TestContainerdCheckMissingSocket(t *testing.T) {
	c := NewContainerd(filepath.Join(t.TempDir(), "containerd.sock"), "")
	defer c.Close()

	_, err := c.Check(context.Background())

	var dm *DependencyMissing
	if !errors.As(err, &dm) {
		t.Fatalf("err = %v, want DependencyMissing", err)
	}
	if dm.Reason != NotInstalled {
		t.Errorf("reason = %s, want %s", dm.Reason, NotInstalled)
	}
}

func TestContainerdExecRequiresRunning(t *testing.T) {
	c := NewContainerd("", "")
	defer c.Close()

	_, err := c.Exec(context.Background(), "b", []string{"true"}, nil)
	if !errors.Is(err, ErrEnvironmentNotReady) {
		t.Fatalf("err = %v, want ErrEnvironmentNotReady", err)
	}
}
