package build

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/kdomanski/iso9660"

	"github.com/nextos/nextiso/internal/paths"
)

// Returns the single image file the assembler wrote into dir.
func findImage(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.iso"))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no image written to %s", ErrArtifact, dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: expected one image in %s, found %d", ErrArtifact, dir, len(matches))
	}
}

// Opens path as an ISO 9660 image and returns the number of entries in
// its root directory.
//
// An image without a readable, non-empty root directory is rejected, which
// catches truncated or zero-length output from a failed assembler run that
// still exited 0.
func verifyImage(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrArtifact, filepath.Base(path), err)
	}

	root, err := img.RootDir()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrArtifact, filepath.Base(path), err)
	}
	if !root.IsDir() {
		return 0, fmt.Errorf("%w: %s: root is not a directory", ErrArtifact, filepath.Base(path))
	}

	children, err := root.GetChildren()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrArtifact, filepath.Base(path), err)
	}
	if len(children) == 0 {
		return 0, fmt.Errorf("%w: %s: image is empty", ErrArtifact, filepath.Base(path))
	}
	return len(children), nil
}

// Moves src to dst, copying when they are on different filesystems.
//
// dst is replaced atomically in both cases.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), paths.DefaultDirMode); err != nil {
		return err
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := renameio.NewPendingFile(dst, renameio.WithPermissions(paths.DefaultFileMode))
	if err != nil {
		return err
	}
	defer out.Cleanup()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return os.Remove(src)
}
