package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/casualjim/notebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Files(t *testing.T) {
	base := writeEnv(t, "NOTEBUS_NAME=from-file\nNOTEBUS_MAX_CONCURRENCY=4\nNOTEBUS_LOG_LEVEL=debug\n")
	override := writeEnv(t, "NOTEBUS_MAX_CONCURRENCY=8\nNOTEBUS_HANDLER_TIMEOUT=250ms\nNOTEBUS_LOG_EMISSIONS=true\n")

	cfg, err := Load(base, override)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Name:           "from-file",
		MaxConcurrency: 8,
		HandlerTimeout: 250 * time.Millisecond,
		LogLevel:       slog.LevelDebug,
		LogEmissions:   true,
	}, cfg)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	file := writeEnv(t, "NOTEBUS_NAME=from-file\n")
	t.Setenv(EnvName, "from-env")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestParse_Errors(t *testing.T) {
	_, err := parse(map[string]string{
		EnvMaxConcurrency: "many",
		EnvHandlerTimeout: "-1s",
		EnvLogLevel:       "loud",
		EnvLogEmissions:   "sometimes",
	})
	require.Error(t, err)
	for _, key := range []string{EnvMaxConcurrency, EnvHandlerTimeout, EnvLogLevel, EnvLogEmissions} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestConfig_BusOptions(t *testing.T) {
	cfg := Config{Name: "configured", MaxConcurrency: 2, HandlerTimeout: time.Second, LogEmissions: true}

	bus, err := notebus.New(cfg.BusOptions(slog.Default())...)
	require.NoError(t, err)
	assert.Equal(t, "configured", bus.Name())

	em, err := bus.Emit(context.Background(), struct{}{})
	require.Error(t, err, "undeclared notes are rejected")
	assert.Nil(t, em)
}
