package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settld/core/pkg/obs/config"
)

type dbConfig struct {
	Host string `env:"SETTLD_TEST_DB_HOST" envDefault:"localhost"`
	Port int    `env:"SETTLD_TEST_DB_PORT" envDefault:"5432"`
}

type appConfig struct {
	Name     string   `env:"SETTLD_TEST_APP_NAME" envRequired:"true"`
	Debug    bool     `env:"SETTLD_TEST_DEBUG" envDefault:"false"`
	Tags     []string `env:"SETTLD_TEST_TAGS"`
	Database dbConfig
}

func TestLoad_UsesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("SETTLD_TEST_APP_NAME", "settld")

	var cfg appConfig
	require.NoError(t, config.Load("", &cfg))

	assert.Equal(t, "settld", cfg.Name)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("SETTLD_TEST_APP_NAME", "settld")
	t.Setenv("SETTLD_TEST_DEBUG", "true")
	t.Setenv("SETTLD_TEST_DB_PORT", "6543")
	t.Setenv("SETTLD_TEST_TAGS", "a, b,c")

	var cfg appConfig
	require.NoError(t, config.Load("", &cfg))

	assert.True(t, cfg.Debug)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
}

func TestLoad_MissingRequiredFails(t *testing.T) {
	require.NoError(t, os.Unsetenv("SETTLD_TEST_APP_NAME"))

	var cfg appConfig
	err := config.Load("", &cfg)
	require.Error(t, err)
}

func TestLoad_RejectsNonStructPointer(t *testing.T) {
	var x int

	err := config.Load("", &x)
	require.Error(t, err)
}
