package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PathExists reports whether a path exists and is accessible.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates the directory (and parents) when missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// CreateSymlink creates a symbolic link at linkPath resolving to sourcePath.
// The link target is stored relative to the link's directory so the library
// tree survives bind mounts that remap absolute prefixes. Parent directories
// are created as needed.
//
// When linkPath already exists: a link already pointing at sourcePath is left
// alone; a link pointing elsewhere is replaced; anything that is not a
// symlink is an error. The source file is never touched.
func CreateSymlink(sourcePath, linkPath string) error {
	linkDir := filepath.Dir(linkPath)
	if err := EnsureDir(linkDir); err != nil {
		return err
	}

	relTarget, err := filepath.Rel(linkDir, sourcePath)
	if err != nil {
		return fmt.Errorf("resolve relative target: %w", err)
	}

	err = os.Symlink(relTarget, linkPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create symlink: %w", err)
	}

	info, lerr := os.Lstat(linkPath)
	if lerr != nil {
		return fmt.Errorf("inspect existing destination: %w", lerr)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("destination %q exists and is not a symlink", linkPath)
	}
	existing, rerr := os.Readlink(linkPath)
	if rerr != nil {
		return fmt.Errorf("read existing symlink: %w", rerr)
	}
	if existing == relTarget {
		return nil
	}
	if err := os.Remove(linkPath); err != nil {
		return fmt.Errorf("replace existing symlink: %w", err)
	}
	if err := os.Symlink(relTarget, linkPath); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	return nil
}

// VerifySymlink reports whether linkPath is a symlink resolving to expectedSource.
func VerifySymlink(linkPath, expectedSource string) bool {
	info, err := os.Lstat(linkPath)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := os.Readlink(linkPath)
	if err != nil {
		return false
	}
	linkDir := filepath.Dir(linkPath)
	expectedRel, err := filepath.Rel(linkDir, expectedSource)
	if err != nil {
		return false
	}
	return target == expectedRel
}

// RemoveSymlink removes linkPath when it is a symlink. Missing paths are not
// an error; regular files are left untouched so the source can never be lost
// to a misdirected cleanup.
func RemoveSymlink(linkPath string) error {
	info, err := os.Lstat(linkPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("inspect symlink: %w", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if err := os.Remove(linkPath); err != nil {
		return fmt.Errorf("remove symlink: %w", err)
	}
	return nil
}

// SymlinkTarget resolves linkPath to the absolute path of its target, or
// returns an empty string when linkPath is not a symlink.
func SymlinkTarget(linkPath string) string {
	info, err := os.Lstat(linkPath)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return ""
	}
	target, err := os.Readlink(linkPath)
	if err != nil {
		return ""
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(filepath.Dir(linkPath), target)
}
