// Package workspace is the local working directory that generated code runs in. Notebooks are written here before
// execution, and whatever they leave behind is found by comparing snapshots.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

var (
	ErrFileNotFound error = fmt.Errorf("file not found")
)

// Dir is a directory tree addressed with slash-separated relative paths.
type Dir struct {
	root string
}

func New(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", abs, err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute path of the directory.
func (d *Dir) Root() string {
	return d.root
}

// Abs returns the absolute path of p, which must stay inside the directory.
func (d *Dir) Abs(p string) (string, error) {
	full := filepath.Join(d.root, filepath.FromSlash(p))
	rel, err := filepath.Rel(d.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", p)
	}
	return full, nil
}

// Read reads the content of a file at the given path
func (d *Dir) Read(p string) ([]byte, error) {
	full, err := d.Abs(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrFileNotFound)
	}
	return data, err
}

// FileExists returns true if a regular file exists at the given path
func (d *Dir) FileExists(p string) bool {
	full, err := d.Abs(p)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// Write writes the content to a file at the given path, creating the file and its parents if they don't exist
func (d *Dir) Write(p string, data []byte) error {
	full, err := d.Abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	return os.WriteFile(full, data, 0o644)
}

// Delete deletes a file at the given path. Deleting a missing file is not an error.
func (d *Dir) Delete(p string) error {
	full, err := d.Abs(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

type fileState struct {
	modTime time.Time
	size    int64
}

// Snapshot records the state of every file under a directory, keyed by relative path.
type Snapshot map[string]fileState

// Snapshot walks the whole tree. Version control metadata is skipped.
func (d *Dir) Snapshot() (Snapshot, error) {
	snap := Snapshot{}
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		snap[filepath.ToSlash(rel)] = fileState{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", d.root, err)
	}
	return snap, nil
}

// ChangedSince lists files that appeared or were modified after before was taken, sorted.
func (d *Dir) ChangedSince(before Snapshot) ([]string, error) {
	after, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, p := range slices.Sorted(maps.Keys(after)) {
		if old, ok := before[p]; !ok || !old.modTime.Equal(after[p].modTime) || old.size != after[p].size {
			changed = append(changed, p)
		}
	}
	return changed, nil
}
