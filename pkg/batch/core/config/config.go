// Package config provides the configuration structures of the stepguard batch runtime.
package config

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// Synchronizer kinds accepted by BatchConfig.Synchronizer.
const (
	SynchronizerKeyed = "keyed"
	SynchronizerNoOp  = "noop"
)

// Job repository kinds accepted by InfrastructureConfig.JobRepository.
const (
	JobRepositoryInMemory = "inmemory"
	JobRepositorySQL      = "sql"
)

// BatchConfig holds configuration for the step executor.
type BatchConfig struct {
	// JobName is the job name used when the launcher is not given one.
	JobName string `yaml:"job_name"`
	// StepName is the default step name.
	StepName string `yaml:"step_name"`
	// ChunkSize is the number of items per chunk transaction.
	ChunkSize int `yaml:"chunk_size"`
	// StepIterationLimit caps the number of chunks a step runs. Zero means unlimited.
	StepIterationLimit int `yaml:"step_iteration_limit"`
	// StartLimit is how many times a step may be started for one job. Zero means unlimited.
	StartLimit int `yaml:"start_limit"`
	// AllowStartIfComplete lets a completed step run again.
	AllowStartIfComplete bool `yaml:"allow_start_if_complete"`
	// Synchronizer selects the step execution synchronizer ("keyed" or "noop").
	Synchronizer string `yaml:"synchronizer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig selects infrastructure implementations.
type InfrastructureConfig struct {
	// JobRepository is "inmemory" or "sql".
	JobRepository string `yaml:"job_repository"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig describes the database backing the SQL job repository and item writers.
type DatabaseConfig struct {
	// Type is "sqlite", "mysql" or "postgres".
	Type     string     `yaml:"type"`
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Database string     `yaml:"database"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Sslmode  string     `yaml:"sslmode"`
	Pool     PoolConfig `yaml:"pool"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// OTLPProtocol is "grpc" or "http".
	OTLPProtocol string `yaml:"otlp_protocol"`
}

// StepguardConfig holds all configuration under the "stepguard" top-level key.
type StepguardConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	// Database is kept as a raw map and bound with configbinder, so loosely typed YAML is accepted.
	Database      map[string]interface{} `yaml:"database"`
	Observability ObservabilityConfig    `yaml:"observability"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Stepguard StepguardConfig `yaml:"stepguard"`
	// EmbeddedConfig holds the raw bytes the configuration was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Stepguard: StepguardConfig{
			Batch: BatchConfig{
				JobName:      "stepguardJob",
				StepName:     "chunkStep",
				ChunkSize:    10,
				Synchronizer: SynchronizerKeyed,
			},
			System: SystemConfig{
				Logging: LoggingConfig{Level: "INFO"},
			},
			Infrastructure: InfrastructureConfig{
				JobRepository: JobRepositoryInMemory,
			},
			Observability: ObservabilityConfig{
				OTLPProtocol: "grpc",
			},
		},
	}
}
