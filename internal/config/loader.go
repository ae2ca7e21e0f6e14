package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	return l.FromFlags(flagSet)
}

// FromFlags builds a Config from an already parsed flag set. Values from the
// file named by --config are applied first and changed flags override them.
func (Loader) FromFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Root = strings.TrimSpace(cfg.Root)
	cfg.Manifest = strings.TrimSpace(cfg.Manifest)
	cfg.Remainder = RemainderPolicy(strings.ToLower(strings.TrimSpace(string(cfg.Remainder))))
	cfg.OnExhausted = ExhaustionPolicy(strings.ToLower(strings.TrimSpace(string(cfg.OnExhausted))))
	if cfg.FileExtension != "" && !strings.HasPrefix(cfg.FileExtension, ".") {
		cfg.FileExtension = "." + cfg.FileExtension
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	settings, err := toStringKeyMap(settings)
	if err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "root"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("root: %w", err)
		}
		cfg.Root = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "fileprefix", "file_prefix", "file-prefix"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("filePrefix: %w", err)
		}
		cfg.FilePrefix = val
	}

	if raw, ok := lookupSetting(settings, "fileextension", "file_extension", "file-extension"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("fileExtension: %w", err)
		}
		cfg.FileExtension = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "batchsize", "batch_size", "batch-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("batchSize: %w", err)
		}
		cfg.BatchSize = val
	}

	if raw, ok := lookupSetting(settings, "datasetsize", "dataset_size", "dataset-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("datasetSize: %w", err)
		}
		cfg.DatasetSize = val
	}

	if raw, ok := lookupSetting(settings, "samplewithreplacement", "sample_with_replacement", "sample-with-replacement"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("sampleWithReplacement: %w", err)
		}
		cfg.SampleWithReplacement = val
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}

	if raw, ok := lookupSetting(settings, "shuffle"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("shuffle: %w", err)
		}
		cfg.Shuffle = val
	}

	if raw, ok := lookupSetting(settings, "remainder"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("remainder: %w", err)
		}
		if val != "" {
			cfg.Remainder = RemainderPolicy(val)
		}
	}

	if raw, ok := lookupSetting(settings, "onexhausted", "on_exhausted", "on-exhausted"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("onExhausted: %w", err)
		}
		if val != "" {
			cfg.OnExhausted = ExhaustionPolicy(val)
		}
	}

	if raw, ok := lookupSetting(settings, "manifest"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		cfg.Manifest = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "validatescenes", "validate_scenes", "validate-scenes"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("validateScenes: %w", err)
		}
		cfg.ValidateScenes = val
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "stream"); ok {
		if err := parseStream(&cfg.Stream, raw); err != nil {
			return fmt.Errorf("stream: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		if err := parseLog(&cfg.Log, raw); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracing(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func parseStream(stream *StreamConfig, raw interface{}) error {
	m, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if v, ok := lookupSetting(m, "batches"); ok {
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("batches: %w", err)
		}
		stream.Batches = n
	}
	if v, ok := lookupSetting(m, "rate"); ok {
		r, err := asFloat64(v)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		stream.Rate = r
	}
	return nil
}

func parseLog(log *LogConfig, raw interface{}) error {
	m, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if v, ok := lookupSetting(m, "level"); ok {
		s, err := asString(v)
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		log.Level = strings.ToLower(strings.TrimSpace(s))
	}
	if v, ok := lookupSetting(m, "format"); ok {
		s, err := asString(v)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		log.Format = strings.ToLower(strings.TrimSpace(s))
	}
	return nil
}

func parseTracing(tc *TracingConfig, raw interface{}) error {
	m, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if v, ok := lookupSetting(m, "endpoint"); ok {
		s, err := asString(v)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(s)
	}
	if v, ok := lookupSetting(m, "protocol"); ok {
		s, err := asString(v)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(s))
	}
	if v, ok := lookupSetting(m, "insecure"); ok {
		b, err := asBool(v)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = b
	}
	if v, ok := lookupSetting(m, "samplerate", "sample_rate", "sample-rate"); ok {
		f, err := asFloat64(v)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = f
	}
	if v, ok := lookupSetting(m, "servicename", "service_name", "service-name"); ok {
		s, err := asString(v)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(s)
	}
	return nil
}
