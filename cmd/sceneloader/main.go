package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SakodaShintaro/gpudrive/internal/catalog"
	"github.com/SakodaShintaro/gpudrive/internal/config"
	"github.com/SakodaShintaro/gpudrive/internal/loader"
	"github.com/SakodaShintaro/gpudrive/internal/tracing"
)

const progressInterval = time.Second

// app carries the state shared by every subcommand once flags are parsed.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	verbose bool

	cfg     *config.Config
	logger  *zap.Logger
	tracing *tracing.Provider
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sceneloader",
		Short: "Seeded batching and sampling over a directory of driving scenarios",
		Long: `sceneloader enumerates processed scenario files under a dataset root,
keeps the first N in sorted order as the catalog, and serves fixed-size
batches of scenario paths (one per simulated world) reproducibly for a seed.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newCatalogCmd(a), newSampleCmd(a))
	return root
}

// init loads configuration from the subcommand's flags and builds the logger
// and tracer.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.NewLoader().FromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.Log, a.verbose, a.stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	provider, err := tracing.Init(cmd.Context(), cfg.Tracing)
	if err != nil {
		return err
	}
	a.tracing = provider
	if provider.Enabled() {
		a.logger.Debug("tracing enabled",
			zap.String("endpoint", cfg.Tracing.Endpoint),
			zap.String("protocol", cfg.Tracing.Protocol),
		)
	}
	return nil
}

func (a *app) close() {
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *app) newLoader(ctx context.Context) (*loader.Loader, error) {
	return loader.New(ctx, toLoaderConfig(a.cfg),
		loader.WithLogger(a.logger.Named("loader")),
		loader.WithTracer(a.tracing.Tracer()),
	)
}

// newLogger builds a production zap logger writing to w. verbose forces
// debug level regardless of the configured level.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(zc.EncoderConfig)
	default:
		ec := zc.EncoderConfig
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zc.Level)
	return zap.New(core, zap.AddCaller()), nil
}

func toLoaderConfig(cfg *config.Config) loader.Config {
	return loader.Config{
		Root:                  cfg.Root,
		Filter:                catalog.Filter{Prefix: cfg.FilePrefix, Extension: cfg.FileExtension},
		Manifest:              cfg.Manifest,
		ValidateScenes:        cfg.ValidateScenes,
		BatchSize:             cfg.BatchSize,
		DatasetSize:           cfg.DatasetSize,
		SampleWithReplacement: cfg.SampleWithReplacement,
		Seed:                  cfg.Seed,
		Shuffle:               cfg.Shuffle,
		Remainder:             toLoaderRemainder(cfg.Remainder),
		OnExhausted:           toLoaderExhaustion(cfg.OnExhausted),
	}
}

func toLoaderRemainder(policy config.RemainderPolicy) loader.Remainder {
	switch strings.ToLower(string(policy)) {
	case string(config.RemainderDrop):
		return loader.RemainderDrop
	case string(config.RemainderReject):
		return loader.RemainderReject
	default:
		return loader.RemainderPad
	}
}

func toLoaderExhaustion(policy config.ExhaustionPolicy) loader.Exhaustion {
	switch strings.ToLower(string(policy)) {
	case string(config.ExhaustionStop):
		return loader.ExhaustStop
	default:
		return loader.ExhaustRestart
	}
}

// isConfigError reports whether err stems from invalid parameters, including
// a root that is missing, not a directory or holds no scenario files.
func isConfigError(err error) bool {
	var verr config.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, loader.ErrInvalidConfig):
		return true
	case errors.Is(err, catalog.ErrRootNotFound),
		errors.Is(err, catalog.ErrNotDirectory),
		errors.Is(err, catalog.ErrNoScenes):
		return true
	default:
		return false
	}
}
