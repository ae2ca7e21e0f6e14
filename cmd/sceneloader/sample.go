package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SakodaShintaro/gpudrive/internal/config"
	"github.com/SakodaShintaro/gpudrive/internal/dashboard"
	"github.com/SakodaShintaro/gpudrive/internal/loader"
	"github.com/SakodaShintaro/gpudrive/internal/manifest"
	"github.com/SakodaShintaro/gpudrive/internal/metrics"
	"github.com/SakodaShintaro/gpudrive/internal/output"
	"github.com/SakodaShintaro/gpudrive/internal/pacing"
	"github.com/SakodaShintaro/gpudrive/internal/threshold"
)

func newSampleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw batches of scenes and report coverage",
		Long: `Builds the loader and pulls --batches batches (0 means until the loader
is exhausted or interrupted), optionally paced with --rate. Each batch is
printed as it is drawn, followed by a sampling report. With --json-output the
batches are JSON lines on stdout and the report goes to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSample(cmd)
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func (a *app) runSample(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	cfg := a.cfg

	l, err := a.newLoader(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	collector := metrics.NewCollector()

	// Batches would scroll over the dashboard, so they are discarded while it runs.
	batchOut := a.stdout
	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.SessionConfig{
			Source:      describeSource(cfg),
			CatalogSize: l.Len(),
			BatchSize:   l.BatchSize(),
			Seed:        cfg.Seed,
			Replacement: cfg.SampleWithReplacement,
			Shuffle:     cfg.Shuffle,
			Batches:     cfg.Stream.Batches,
			Rate:        cfg.Stream.Rate,
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		batchOut = io.Discard
		dash.Start()
	}

	var progress *output.ProgressReporter
	if cfg.Progress && dash == nil {
		progress = output.NewProgressReporter(collector, l.Len(), progressInterval, a.stderr)
		progress.Start()
	}

	res, runErr := pacing.Run(ctx, l, pacing.Options{
		Batches:   cfg.Stream.Batches,
		Rate:      cfg.Stream.Rate,
		Collector: collector,
	}, func(i int, batch loader.Batch) error {
		return output.PrintBatch(batchOut, i, batch, cfg.JSONOutput)
	})
	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}

	report := output.Report{
		RunID:                 manifest.NewRunID(),
		Source:                string(l.Info().Source),
		Root:                  cfg.Root,
		Manifest:              cfg.Manifest,
		CatalogSize:           l.Len(),
		BatchSize:             l.BatchSize(),
		Seed:                  cfg.Seed,
		SampleWithReplacement: cfg.SampleWithReplacement,
		Shuffle:               cfg.Shuffle,
		Exhausted:             res.Exhausted,
		Stats:                 collector.Stats(l.Len()),
	}
	if res.Batches > 0 && !cfg.SampleWithReplacement {
		report.Epochs = l.Epoch() + 1
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	report.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(report.Stats)

	a.logger.Info("sampling finished",
		zap.String("run_id", report.RunID),
		zap.Int64("batches", res.Batches),
		zap.Bool("exhausted", res.Exhausted),
		zap.Duration("duration", res.Duration),
	)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(a.stderr, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(a.stdout, report)
	}

	if cfg.HTMLOutput != "" {
		if err := writeHTMLReport(cfg.HTMLOutput, report, collector.DrawCounts()); err != nil {
			return err
		}
		a.logger.Info("html report written", zap.String("path", cfg.HTMLOutput))
	}

	if runErr != nil {
		return fmt.Errorf("sampling stopped after %d batches: %w", res.Batches, runErr)
	}
	if failed := threshold.Failed(report.Thresholds); failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(report.Thresholds))
	}
	return nil
}

func writeHTMLReport(path string, report output.Report, counts map[string]int64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return output.GenerateHTMLReport(f, report, counts)
}

func describeSource(cfg *config.Config) string {
	if cfg.Manifest != "" {
		return "manifest " + cfg.Manifest
	}
	return cfg.Root
}
