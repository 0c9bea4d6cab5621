package configbinder_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
)

type pool struct {
	MaxOpenConns int           `yaml:"max_open_conns"`
	Idle         time.Duration `yaml:"idle"`
}

type target struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	Enabled bool     `yaml:"enabled"`
	Tags    []string `yaml:"tags"`
	Pool    pool     `yaml:"pool"`
}

func TestBindProperties_ConvertsExpandedStrings(t *testing.T) {
	var got target
	err := configbinder.BindProperties(map[string]interface{}{
		"host":    "db.local",
		"port":    "5432",
		"enabled": "true",
		"tags":    "a,b",
		"pool":    map[string]interface{}{"max_open_conns": "8", "idle": "90s"},
		"extra":   "ignored",
	}, &got)
	require.NoError(t, err)
	assert.Equal(t, target{
		Host:    "db.local",
		Port:    5432,
		Enabled: true,
		Tags:    []string{"a", "b"},
		Pool:    pool{MaxOpenConns: 8, Idle: 90 * time.Second},
	}, got)
}

func TestBindProperties_InvalidValue(t *testing.T) {
	var got target
	err := configbinder.BindProperties(map[string]interface{}{"port": "not-a-number"}, &got)
	require.Error(t, err)
	assert.Equal(t, exception.KindConfig, exception.KindOf(err))
}

func TestBindPropertiesStrict_RejectsUnknownKeys(t *testing.T) {
	var got target
	err := configbinder.BindPropertiesStrict(map[string]interface{}{"host": "h", "hots": "typo"}, &got)
	require.Error(t, err)
	assert.Equal(t, exception.KindConfig, exception.KindOf(err))
	assert.Contains(t, err.Error(), "hots")

	require.NoError(t, configbinder.BindPropertiesStrict(map[string]interface{}{"host": "h"}, &got))
	assert.Equal(t, "h", got.Host)
}
