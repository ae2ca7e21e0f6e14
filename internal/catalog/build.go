package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/SakodaShintaro/gpudrive/internal/manifest"
	"github.com/SakodaShintaro/gpudrive/internal/scenario"
)

// Source names where a catalog's paths came from.
type Source string

const (
	SourceRoot     Source = "root"
	SourceManifest Source = "manifest"
)

// Options configure Build.
type Options struct {
	Root     string
	Filter   Filter
	Size     int
	Manifest string // when set, paths come from this manifest instead of Root
	Validate bool   // probe each selected file for a scenario header
}

// Info describes how a catalog was realized.
type Info struct {
	Source    Source
	Available int  // paths found before truncation
	Clamped   bool // Size exceeded Available
}

// Build enumerates (or reads a manifest), truncates to opts.Size and
// optionally validates every selected scene.
func Build(ctx context.Context, opts Options) (*Catalog, Info, error) {
	var (
		paths []string
		info  Info
	)
	if opts.Manifest != "" {
		m, err := manifest.Read(opts.Manifest)
		if err != nil {
			return nil, info, err
		}
		paths = m.Paths()
		info.Source = SourceManifest
	} else {
		var err error
		paths, err = Enumerate(ctx, opts.Root, opts.Filter)
		if err != nil {
			return nil, info, err
		}
		info.Source = SourceRoot
	}
	info.Available = len(paths)

	c, clamped := New(paths, opts.Size)
	info.Clamped = clamped

	if opts.Validate {
		if err := Validate(ctx, c); err != nil {
			return nil, info, err
		}
	}
	return c, info, nil
}

// Validate probes every scene in c and reports all files that are not
// scenario records.
func Validate(ctx context.Context, c *Catalog) error {
	var errs []error
	for _, p := range c.paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := scenario.Probe(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d scenes failed validation: %w", len(errs), c.Len(), errors.Join(errs...))
	}
	return nil
}
