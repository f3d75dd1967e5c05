// Package config provides configuration loading and validation for miraload.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/miraload/pkg/matrix"
	"github.com/Sumatoshi-tech/miraload/pkg/persist"
	"github.com/Sumatoshi-tech/miraload/pkg/pipeline"
	"github.com/Sumatoshi-tech/miraload/pkg/streaming"
	"github.com/Sumatoshi-tech/miraload/pkg/verify"
)

// Sink backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendFile          = "file"
)

var backends = []string{BackendElasticsearch, BackendFile}

var logFormats = []string{"text", "json"}

// Sentinel validation errors.
var (
	// ErrInvalidChunkSize wraps matrix.ErrChunkTooSmall so the configuration
	// error matches the reader's.
	ErrInvalidChunkSize    = fmt.Errorf("invalid load.chunk_size: %w", matrix.ErrChunkTooSmall)
	ErrInvalidBulkSize     = errors.New("sink.bulk_size must be positive")
	ErrInvalidWorkers      = errors.New("sink.workers must be positive")
	ErrUnknownBackend      = errors.New("unknown sink.backend")
	ErrInvalidMemoryBudget = errors.New("invalid load.memory_budget")
	ErrInvalidMode         = errors.New("invalid load.mode")
	ErrInvalidGeneIndex    = errors.New("load.max_gene_index must not be negative")
	ErrInvalidLogFormat    = errors.New("invalid logging.format")
)

// Config is the top-level configuration. Field tags use mapstructure for
// viper unmarshalling.
type Config struct {
	Sink       SinkConfig       `mapstructure:"sink"`
	Load       LoadSettings     `mapstructure:"load"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
}

// SinkConfig selects and tunes the output sink.
type SinkConfig struct {
	Backend           string        `mapstructure:"backend"`
	URL               string        `mapstructure:"url"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	BulkSize          int           `mapstructure:"bulk_size"`
	Workers           int           `mapstructure:"workers"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryMax          int           `mapstructure:"retry_max"`
	OutputDir         string        `mapstructure:"output_dir"`
	Compression       string        `mapstructure:"compression"`
}

// LoadSettings controls how matrices are read and verified.
type LoadSettings struct {
	DataDir          string `mapstructure:"data_dir"`
	Mode             string `mapstructure:"mode"`
	ChunkSize        int    `mapstructure:"chunk_size"`
	MemoryBudget     string `mapstructure:"memory_budget"`
	MaxGeneIndex     int    `mapstructure:"max_gene_index"`
	StrictEntryCount bool   `mapstructure:"strict_entry_count"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint   string            `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool              `mapstructure:"otlp_insecure"`
	OTLPHeaders    map[string]string `mapstructure:"otlp_headers"`
	PrometheusAddr string            `mapstructure:"prometheus_addr"`
	Environment    string            `mapstructure:"environment"`
	SampleRatio    float64           `mapstructure:"sample_ratio"`
	TraceVerbose   bool              `mapstructure:"trace_verbose"`
}

// RemoteConfig points at the object storage holding analysis inputs.
type RemoteConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// CheckpointConfig holds the manifest run journal settings.
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Load.ChunkSize != 0 && c.Load.ChunkSize < matrix.MinChunkRows {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, c.Load.ChunkSize)
	}

	if c.Load.MaxGeneIndex < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGeneIndex, c.Load.MaxGeneIndex)
	}

	_, err := streaming.ParseMode(c.Load.Mode)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Load.Mode)
	}

	_, err = c.Load.MemoryBudgetBytes()
	if err != nil {
		return err
	}

	if !slices.Contains(backends, c.Sink.Backend) {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Sink.Backend)
	}

	if c.Sink.BulkSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBulkSize, c.Sink.BulkSize)
	}

	if c.Sink.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Sink.Workers)
	}

	_, err = persist.ParseCompression(c.Sink.Compression)
	if err != nil {
		return fmt.Errorf("sink.compression: %w", err)
	}

	if !slices.Contains(logFormats, c.Logging.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	return nil
}

// MemoryBudgetBytes parses the humanized memory budget. Empty means none.
func (l LoadSettings) MemoryBudgetBytes() (int64, error) {
	if l.MemoryBudget == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(l.MemoryBudget)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidMemoryBudget, l.MemoryBudget, err)
	}

	return int64(min(n, uint64(1<<62))), nil
}

// EntryPolicy maps strict_entry_count to the verifier policy.
func (l LoadSettings) EntryPolicy() verify.EntryPolicy {
	if l.StrictEntryCount {
		return verify.EntryPolicyStrict
	}

	return verify.EntryPolicyWarn
}

// Options converts the load settings into pipeline options. The settings
// must have passed Validate.
func (l LoadSettings) Options() (pipeline.Options, error) {
	mode, err := streaming.ParseMode(l.Mode)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("%w: %q", ErrInvalidMode, l.Mode)
	}

	budget, err := l.MemoryBudgetBytes()
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		DataDir:      l.DataDir,
		Mode:         mode,
		ChunkSize:    l.ChunkSize,
		MemoryBudget: budget,
		MaxGeneIndex: l.MaxGeneIndex,
		EntryPolicy:  l.EntryPolicy(),
	}, nil
}
