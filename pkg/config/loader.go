package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".miraload"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for miraload settings.
const envPrefix = "MIRALOAD"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	cfg.Sink.Backend = strings.ToLower(strings.TrimSpace(cfg.Sink.Backend))

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// applyDefaults registers every key so that AutomaticEnv can override
// keys absent from the file.
func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("sink.backend", DefaultSinkBackend)
	viperCfg.SetDefault("sink.url", DefaultSinkURL)
	viperCfg.SetDefault("sink.username", "")
	viperCfg.SetDefault("sink.password", "")
	viperCfg.SetDefault("sink.bulk_size", DefaultBulkSize)
	viperCfg.SetDefault("sink.workers", DefaultWorkers)
	viperCfg.SetDefault("sink.requests_per_second", 0)
	viperCfg.SetDefault("sink.timeout", DefaultTimeout)
	viperCfg.SetDefault("sink.retry_max", DefaultRetryMax)
	viperCfg.SetDefault("sink.output_dir", DefaultOutputDir)
	viperCfg.SetDefault("sink.compression", DefaultCompression)

	viperCfg.SetDefault("load.data_dir", DefaultDataDir)
	viperCfg.SetDefault("load.mode", DefaultLoadMode)
	viperCfg.SetDefault("load.chunk_size", DefaultChunkSize)
	viperCfg.SetDefault("load.memory_budget", DefaultMemoryBudget)
	viperCfg.SetDefault("load.max_gene_index", DefaultMaxGeneIndex)
	viperCfg.SetDefault("load.strict_entry_count", DefaultStrictEntryCount)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.prometheus_addr", "")
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0)
	viperCfg.SetDefault("telemetry.trace_verbose", false)

	viperCfg.SetDefault("remote.endpoint", "")
	viperCfg.SetDefault("remote.bucket", "")
	viperCfg.SetDefault("remote.prefix", "")
	viperCfg.SetDefault("remote.region", "")
	viperCfg.SetDefault("remote.access_key_id", "")
	viperCfg.SetDefault("remote.secret_access_key", "")
	viperCfg.SetDefault("remote.use_ssl", DefaultRemoteUseSSL)

	viperCfg.SetDefault("checkpoint.enabled", DefaultCheckpointEnabled)
	viperCfg.SetDefault("checkpoint.dir", DefaultCheckpointDir)
}
