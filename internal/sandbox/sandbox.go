// Package sandbox confines file writes to a single directory tree. Every
// path handed to a Root is resolved through symlinks and rejected when
// it would land outside the root.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
)

// ErrEscape is returned for paths that resolve outside the root.
var ErrEscape = fmt.Errorf("path escapes sandbox: %w", errdefs.ErrInvalidArgument)

// Root is a directory that all operations are confined to.
type Root struct {
	dir string
}

// Open returns a Root for dir, creating the directory when missing.
func Open(dir string) (*Root, error) {
	if dir == "" {
		return nil, fmt.Errorf("sandbox root is empty: %w", errdefs.ErrInvalidArgument)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating sandbox root %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root symlinks: %w", err)
	}
	return &Root{dir: resolved}, nil
}

// Dir returns the resolved root directory.
func (r *Root) Dir() string { return r.dir }

// Resolve returns the absolute path for rel after following symlinks.
// The path does not need to exist.
func (r *Root) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%q is absolute: %w", rel, ErrEscape)
	}
	candidate := filepath.Clean(filepath.Join(r.dir, rel))

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", rel, err)
	}

	// Trailing separator keeps "root2" from matching "root".
	if resolved != r.dir && !strings.HasPrefix(resolved, r.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%q resolves to %s outside %s: %w", rel, resolved, r.dir, ErrEscape)
	}
	return resolved, nil
}

// resolveExisting follows symlinks along the longest existing prefix of
// path and appends whatever does not exist yet.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == path {
		return path, nil
	}
	parent, err := resolveExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}

// WriteFile atomically replaces rel with content.
func (r *Root) WriteFile(rel string, content []byte, perm os.FileMode) error {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	if _, err := r.Resolve(filepath.Dir(rel)); err != nil {
		return fmt.Errorf("parent directory: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Same directory as the target so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".pkgrelay-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, resolved); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", resolved, err)
	}

	success = true
	return nil
}

// ReadFile reads rel. A missing file is reported as errdefs.ErrNotFound.
func (r *Root) ReadFile(rel string) ([]byte, error) {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, errdefs.ErrNotFound)
	}
	return data, err
}

// Stat returns file info for rel. A missing file is reported as
// errdefs.ErrNotFound.
func (r *Root) Stat(rel string) (os.FileInfo, error) {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, errdefs.ErrNotFound)
	}
	return fi, err
}

// Remove deletes rel. A missing file is reported as errdefs.ErrNotFound.
func (r *Root) Remove(rel string) error {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	err = os.Remove(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", rel, errdefs.ErrNotFound)
	}
	return err
}

// MkdirAll creates rel and any missing parents.
func (r *Root) MkdirAll(rel string, perm os.FileMode) error {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(resolved, perm)
}

// ReadDir lists the entries of rel. A missing directory lists as empty.
func (r *Root) ReadDir(rel string) ([]os.DirEntry, error) {
	resolved, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}
