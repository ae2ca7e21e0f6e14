package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SakodaShintaro/gpudrive/internal/config"
	"github.com/SakodaShintaro/gpudrive/internal/manifest"
	"github.com/SakodaShintaro/gpudrive/internal/output"
	"github.com/SakodaShintaro/gpudrive/internal/scenario"
)

func newCatalogCmd(a *app) *cobra.Command {
	var (
		probe       bool
		manifestOut string
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the realized scene catalog",
		Long: `Enumerates the dataset root (or reads a manifest), truncates to the
dataset size and prints the catalog in order. With --manifest-out the catalog
is pinned to a YAML manifest that later runs can load via --manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCatalog(cmd, probe, manifestOut)
		},
	}
	config.RegisterFlags(cmd)
	cmd.Flags().BoolVar(&probe, "probe", false, "Read each scenario header and print its id and object counts")
	cmd.Flags().StringVar(&manifestOut, "manifest-out", "", "Write the catalog to this manifest path")
	return cmd
}

func (a *app) runCatalog(cmd *cobra.Command, probe bool, manifestOut string) error {
	l, err := a.newLoader(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	paths := l.Catalog().Paths()

	var headers []scenario.Header
	if probe {
		headers = make([]scenario.Header, len(paths))
		for i, p := range paths {
			h, err := scenario.Probe(p)
			if err != nil {
				return err
			}
			headers[i] = h
		}
	}

	if err := output.PrintCatalog(a.stdout, paths, headers, a.cfg.JSONOutput); err != nil {
		return err
	}

	if manifestOut == "" {
		return nil
	}
	m := manifest.Manifest{
		RunID:       manifest.NewRunID(),
		Root:        a.cfg.Root,
		Seed:        a.cfg.Seed,
		DatasetSize: l.Len(),
		Shuffle:     a.cfg.Shuffle,
		Scenes:      make([]manifest.Entry, len(paths)),
	}
	for i, p := range paths {
		m.Scenes[i].Path = p
		if headers != nil {
			m.Scenes[i].ScenarioID = headers[i].ScenarioID
		}
	}
	if err := manifest.Write(manifestOut, m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	a.logger.Info("manifest written",
		zap.String("path", manifestOut),
		zap.String("run_id", m.RunID),
		zap.Int("scenes", len(m.Scenes)),
	)
	return nil
}
