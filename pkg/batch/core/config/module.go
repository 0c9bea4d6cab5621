package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Stepguard.System.Logging
}

// NewBatchConfigProvider extracts *BatchConfig from *Config.
func NewBatchConfigProvider(cfg *Config) *BatchConfig {
	return &cfg.Stepguard.Batch
}

// NewObservabilityConfigProvider extracts *ObservabilityConfig from *Config.
func NewObservabilityConfigProvider(cfg *Config) *ObservabilityConfig {
	return &cfg.Stepguard.Observability
}

// Module provides *Config and its sub-configurations to Fx.
// The application supplies EmbeddedConfig (and optionally a named "envFilePath").
var Module = fx.Options(
	fx.Provide(
		func() EnvironmentExpander { return NewOsEnvironmentExpander() },
		NewConfigProvider,
		NewLoggingConfigProvider,
		NewBatchConfigProvider,
		NewObservabilityConfigProvider,
	),
)
