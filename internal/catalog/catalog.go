// Package catalog discovers scenario files under a dataset root and holds the
// bounded, ordered subset a loader samples from.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrRootNotFound is returned when the dataset root does not exist.
	ErrRootNotFound = errors.New("scene root not found")
	// ErrNotDirectory is returned when the dataset root is a regular file.
	ErrNotDirectory = errors.New("scene root is not a directory")
	// ErrNoScenes is returned when no file under the root matches the filter.
	ErrNoScenes = errors.New("no scenario files found")
)

// Filter selects scenario files by name.
type Filter struct {
	Prefix    string
	Extension string
}

// Match reports whether a file name is a scenario file.
func (f Filter) Match(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasPrefix(name, f.Prefix) && strings.HasSuffix(name, f.Extension)
}

// Enumerate lists the scenario files directly under root in lexicographic
// order. Subdirectories are not descended into.
func Enumerate(ctx context.Context, root string, filter Filter) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrRootNotFound, err)
		}
		return nil, fmt.Errorf("stat scene root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read scene root: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		if filter.Match(entry.Name()) {
			paths = append(paths, filepath.Join(root, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s (prefix %q, extension %q)", ErrNoScenes, root, filter.Prefix, filter.Extension)
	}

	// os.ReadDir already sorts by name; sort again so the order does not
	// depend on that detail.
	sort.Strings(paths)
	return paths, nil
}

// Catalog is an immutable ordered set of scenario identifiers.
type Catalog struct {
	paths []string
	index map[string]struct{}
}

// New keeps the first size entries of paths. When fewer paths are available
// the catalog holds all of them and clamped is true. Duplicate paths are
// collapsed, keeping the first occurrence.
func New(paths []string, size int) (c *Catalog, clamped bool) {
	c = &Catalog{index: make(map[string]struct{}, min(len(paths), max(size, 0)))}
	for _, p := range paths {
		if len(c.paths) >= size {
			break
		}
		if _, dup := c.index[p]; dup {
			continue
		}
		c.index[p] = struct{}{}
		c.paths = append(c.paths, p)
	}
	return c, len(c.paths) < size
}

// Len returns the number of scenes in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.paths)
}

// At returns the i-th scene.
func (c *Catalog) At(i int) string {
	return c.paths[i]
}

// Paths returns a copy of the scenes in catalog order.
func (c *Catalog) Paths() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.paths...)
}

// Set returns the scenes as a membership set.
func (c *Catalog) Set() map[string]struct{} {
	out := make(map[string]struct{}, c.Len())
	if c == nil {
		return out
	}
	for p := range c.index {
		out[p] = struct{}{}
	}
	return out
}

// Contains reports whether path is in the catalog.
func (c *Catalog) Contains(path string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[path]
	return ok
}
