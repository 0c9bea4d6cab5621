package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string              `name:"envFilePath" optional:"true"`
	Expander       EnvironmentExpander `optional:"true"`
}

// LoadConfig loads configuration from embedded YAML, a .env file and environment variables.
// Precedence, lowest first: defaults, YAML, environment.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	raw := []byte(embeddedConfig)
	if expander != nil {
		expanded, err := expander.Expand(raw)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, exception.KindConfig, "failed to expand environment placeholders", err)
		}
		raw = expanded
	}

	var yamlConfig Config
	if err := yaml.Unmarshal(raw, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindConfig, "failed to unmarshal embedded config", err)
	}
	mergeStepguardConfig(&cfg.Stepguard, &yamlConfig.Stepguard)
	cfg.EmbeddedConfig = embeddedConfig

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindConfig, "failed to load config from environment variables", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads *Config and applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	expander := params.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, expander)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Stepguard.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Stepguard.System.Logging.Level)
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	b := c.Stepguard.Batch
	if b.ChunkSize < 1 {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "chunk_size must be at least 1, got %d", b.ChunkSize)
	}
	if b.StepIterationLimit < 0 {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "step_iteration_limit must not be negative, got %d", b.StepIterationLimit)
	}
	if b.StartLimit < 0 {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "start_limit must not be negative, got %d", b.StartLimit)
	}
	switch b.Synchronizer {
	case SynchronizerKeyed, SynchronizerNoOp:
	default:
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "unknown synchronizer %q", b.Synchronizer)
	}
	switch c.Stepguard.Infrastructure.JobRepository {
	case JobRepositoryInMemory, JobRepositorySQL:
	default:
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "unknown job_repository %q", c.Stepguard.Infrastructure.JobRepository)
	}
	switch strings.ToLower(c.Stepguard.Observability.OTLPProtocol) {
	case "grpc", "http":
	default:
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "unknown otlp_protocol %q", c.Stepguard.Observability.OTLPProtocol)
	}
	return nil
}

// DatabaseConfig binds the raw database section into a DatabaseConfig.
func (c *Config) DatabaseConfig() (DatabaseConfig, error) {
	var dbCfg DatabaseConfig
	if err := configbinder.BindProperties(c.Stepguard.Database, &dbCfg); err != nil {
		return DatabaseConfig{}, exception.NewBatchError(moduleName, exception.KindConfig, "failed to bind database config", err)
	}
	if dbCfg.Type == "" {
		dbCfg.Type = "sqlite"
	}
	return dbCfg, nil
}

// mergeStepguardConfig merges source into dest. Zero values in source leave dest unchanged.
func mergeStepguardConfig(dest, source *StepguardConfig) {
	if source.Batch.JobName != "" {
		dest.Batch.JobName = source.Batch.JobName
	}
	if source.Batch.StepName != "" {
		dest.Batch.StepName = source.Batch.StepName
	}
	if source.Batch.ChunkSize != 0 {
		dest.Batch.ChunkSize = source.Batch.ChunkSize
	}
	if source.Batch.StepIterationLimit != 0 {
		dest.Batch.StepIterationLimit = source.Batch.StepIterationLimit
	}
	if source.Batch.StartLimit != 0 {
		dest.Batch.StartLimit = source.Batch.StartLimit
	}
	if source.Batch.AllowStartIfComplete {
		dest.Batch.AllowStartIfComplete = true
	}
	if source.Batch.Synchronizer != "" {
		dest.Batch.Synchronizer = strings.ToLower(source.Batch.Synchronizer)
	}

	if source.System.Logging.Level != "" {
		dest.System.Logging.Level = source.System.Logging.Level
	}
	if source.Infrastructure.JobRepository != "" {
		dest.Infrastructure.JobRepository = strings.ToLower(source.Infrastructure.JobRepository)
	}

	if source.Database != nil {
		if dest.Database == nil {
			dest.Database = make(map[string]interface{})
		}
		for key, value := range source.Database {
			dest.Database[key] = value
		}
	}

	if source.Observability.MetricsEnabled {
		dest.Observability.MetricsEnabled = true
	}
	if source.Observability.OTLPEndpoint != "" {
		dest.Observability.OTLPEndpoint = source.Observability.OTLPEndpoint
	}
	if source.Observability.OTLPProtocol != "" {
		dest.Observability.OTLPProtocol = source.Observability.OTLPProtocol
	}
}

// loadStructFromEnv recursively loads values into a struct from environment variables
// named after the upper-cased "yaml" tag path, e.g. STEPGUARD_BATCH_CHUNK_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map:
			if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface {
				loadMapFromEnv(field, envVarName+"_")
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapFromEnv copies PREFIX_KEY=value variables into a map[string]interface{} as key=value.
// Values stay strings; configbinder converts them when the map is bound.
func loadMapFromEnv(mapField reflect.Value, prefix string) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		if mapField.IsNil() {
			mapField.Set(reflect.MakeMap(mapField.Type()))
		}
		mapField.SetMapIndex(reflect.ValueOf(strings.ToLower(parts[0])), reflect.ValueOf(parts[1]))
	}
}

// setField sets a string, int, float or bool field from its string form.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
