package config

import "time"

// Sink defaults.
const (
	DefaultSinkBackend = BackendElasticsearch
	DefaultSinkURL     = "http://localhost:9200"
	DefaultBulkSize    = 500
	DefaultWorkers     = 4
	DefaultTimeout     = 30 * time.Second
	DefaultRetryMax    = 3
	DefaultOutputDir   = "./export"
	DefaultCompression = "none"
)

// Load defaults.
const (
	DefaultLoadMode         = "auto"
	DefaultChunkSize        = 0
	DefaultMemoryBudget     = ""
	DefaultMaxGeneIndex     = 0
	DefaultStrictEntryCount = false
	DefaultDataDir          = "./data"
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Remote defaults.
const (
	DefaultRemoteUseSSL = true
)

// Checkpoint defaults.
const (
	DefaultCheckpointEnabled = true
	DefaultCheckpointDir     = ""
)
