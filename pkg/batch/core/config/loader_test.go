package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
)

const sampleYAML = `
stepguard:
  batch:
    job_name: importJob
    chunk_size: 25
    step_iteration_limit: 4
    synchronizer: NOOP
  system:
    logging:
      level: DEBUG
  infrastructure:
    job_repository: sql
  database:
    type: postgres
    host: ${STEPGUARD_TEST_DB_HOST}
    port: "5432"
    database: batch
    pool:
      max_open_conns: 8
  observability:
    otlp_endpoint: localhost:4317
`

func TestLoadConfig_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := LoadConfig("", EmbeddedConfig(""))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Stepguard.Batch.ChunkSize)
	assert.Equal(t, SynchronizerKeyed, cfg.Stepguard.Batch.Synchronizer)
	assert.Equal(t, JobRepositoryInMemory, cfg.Stepguard.Infrastructure.JobRepository)
	assert.Equal(t, "INFO", cfg.Stepguard.System.Logging.Level)
	assert.Equal(t, "grpc", cfg.Stepguard.Observability.OTLPProtocol)
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("STEPGUARD_TEST_DB_HOST", "db.internal")

	cfg, err := LoadConfig("", EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	b := cfg.Stepguard.Batch
	assert.Equal(t, "importJob", b.JobName)
	assert.Equal(t, "chunkStep", b.StepName)
	assert.Equal(t, 25, b.ChunkSize)
	assert.Equal(t, 4, b.StepIterationLimit)
	assert.Equal(t, SynchronizerNoOp, b.Synchronizer)
	assert.Equal(t, JobRepositorySQL, cfg.Stepguard.Infrastructure.JobRepository)
	assert.Equal(t, "localhost:4317", cfg.Stepguard.Observability.OTLPEndpoint)

	dbCfg, err := cfg.DatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", dbCfg.Type)
	assert.Equal(t, "db.internal", dbCfg.Host)
	assert.Equal(t, 5432, dbCfg.Port)
	assert.Equal(t, 8, dbCfg.Pool.MaxOpenConns)
}

func TestLoadConfig_EnvironmentOverridesYAML(t *testing.T) {
	t.Setenv("STEPGUARD_BATCH_CHUNK_SIZE", "3")
	t.Setenv("STEPGUARD_BATCH_ALLOW_START_IF_COMPLETE", "true")
	t.Setenv("STEPGUARD_DATABASE_USER", "batch_user")

	cfg, err := LoadConfig("", EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Stepguard.Batch.ChunkSize)
	assert.True(t, cfg.Stepguard.Batch.AllowStartIfComplete)

	dbCfg, err := cfg.DatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, "batch_user", dbCfg.User)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"chunk size":     "stepguard:\n  batch:\n    chunk_size: -1\n",
		"synchronizer":   "stepguard:\n  batch:\n    synchronizer: redis\n",
		"job repository": "stepguard:\n  infrastructure:\n    job_repository: etcd\n",
		"otlp protocol":  "stepguard:\n  observability:\n    otlp_protocol: udp\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig("", EmbeddedConfig(doc))
			require.Error(t, err)
			assert.Equal(t, exception.KindConfig, exception.KindOf(err))
		})
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("stepguard: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal embedded config")
}

func TestDatabaseConfig_DefaultsToSQLite(t *testing.T) {
	cfg := NewConfig()
	dbCfg, err := cfg.DatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dbCfg.Type)
}
