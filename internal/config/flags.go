package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all loader flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sceneloader",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Catalog flags
	flags.String("root", "", "Directory containing processed scenario files")
	flags.String("file-prefix", DefaultFilePrefix, "Only files whose name starts with this prefix are scenarios")
	flags.String("file-extension", DefaultFileExtension, "Only files with this extension are scenarios")
	flags.IntP("dataset-size", "n", 0, "Maximum number of distinct scenes in the catalog")
	flags.String("manifest", "", "Path to a pinned catalog manifest (YAML) used instead of enumerating root")
	flags.Bool("validate-scenes", false, "Probe every catalog file for a scenario header at startup")

	// Sampling flags
	flags.IntP("batch-size", "b", 1, "Number of scenes per batch (one per simulated world)")
	flags.Bool("sample-with-replacement", false, "Draw every batch independently with replacement")
	flags.Int64("seed", DefaultSeed, "Random seed controlling shuffles and draws")
	flags.Bool("shuffle", false, "Shuffle the catalog before partitioning into batches")
	flags.String("remainder", string(RemainderPad), "Final short batch policy: 'pad', 'drop' or 'reject'")
	flags.String("on-exhausted", string(ExhaustionRestart), "End of epoch policy: 'restart' or 'stop'")

	// Stream flags
	flags.Int("batches", 1, "Number of batches to fetch (0 means until exhausted)")
	flags.Float64P("rate", "r", 0, "Batches per second limit (0 means unlimited)")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("html-output", "", "Write an HTML sampling report to the specified file path")
	flags.Bool("progress", false, "Show live sampling progress on stderr")
	flags.Bool("dashboard", false, "Show a live terminal dashboard while sampling")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log format: console or json")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Sampling thresholds (repeatable, e.g., 'coverage:ratio >= 0.9')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of traces to sample (0.0-1.0)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("root") {
		val, err := fs.GetString("root")
		if err != nil {
			return err
		}
		cfg.Root = strings.TrimSpace(val)
	}
	if fs.Changed("file-prefix") {
		val, err := fs.GetString("file-prefix")
		if err != nil {
			return err
		}
		cfg.FilePrefix = val
	}
	if fs.Changed("file-extension") {
		val, err := fs.GetString("file-extension")
		if err != nil {
			return err
		}
		cfg.FileExtension = strings.TrimSpace(val)
	}
	if fs.Changed("dataset-size") {
		val, err := fs.GetInt("dataset-size")
		if err != nil {
			return err
		}
		cfg.DatasetSize = val
	}
	if fs.Changed("manifest") {
		val, err := fs.GetString("manifest")
		if err != nil {
			return err
		}
		cfg.Manifest = strings.TrimSpace(val)
	}
	if fs.Changed("validate-scenes") {
		val, err := fs.GetBool("validate-scenes")
		if err != nil {
			return err
		}
		cfg.ValidateScenes = val
	}
	if fs.Changed("batch-size") {
		val, err := fs.GetInt("batch-size")
		if err != nil {
			return err
		}
		cfg.BatchSize = val
	}
	if fs.Changed("sample-with-replacement") {
		val, err := fs.GetBool("sample-with-replacement")
		if err != nil {
			return err
		}
		cfg.SampleWithReplacement = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("shuffle") {
		val, err := fs.GetBool("shuffle")
		if err != nil {
			return err
		}
		cfg.Shuffle = val
	}
	if fs.Changed("remainder") {
		val, err := fs.GetString("remainder")
		if err != nil {
			return err
		}
		cfg.Remainder = RemainderPolicy(val)
	}
	if fs.Changed("on-exhausted") {
		val, err := fs.GetString("on-exhausted")
		if err != nil {
			return err
		}
		cfg.OnExhausted = ExhaustionPolicy(val)
	}
	if fs.Changed("batches") {
		val, err := fs.GetInt("batches")
		if err != nil {
			return err
		}
		cfg.Stream.Batches = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Stream.Rate = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
