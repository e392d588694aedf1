package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "http://localhost:5173", cfg.AllowedOrigin)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(10000), cfg.MaxConnections)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGIN", "https://todo.example.com")
	t.Setenv("MAX_CONNECTIONS", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "https://todo.example.com", cfg.AllowedOrigin)
	assert.Equal(t, int64(500), cfg.MaxConnections)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_InvalidOrigin(t *testing.T) {
	t.Setenv("ALLOWED_ORIGIN", "not a url")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOWED_ORIGIN")
}

func TestLoad_InvalidMaxConnections(t *testing.T) {
	t.Setenv("MAX_CONNECTIONS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONNECTIONS")
}

func TestLoad_InvalidConnectionRate(t *testing.T) {
	t.Setenv("CONNECTION_RATE", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONNECTION_RATE")
}
