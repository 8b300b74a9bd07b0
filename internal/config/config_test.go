package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "synergysphere", cfg.DBName)
	assert.Equal(t, 168*time.Hour, cfg.TokenExpiry)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "secret", cfg.Credentials.Key)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nKAFKA_BROKERS=a:9092, b:9092\nREDIS_ENABLED=true\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("KAFKA_BROKERS")
		os.Unsetenv("REDIS_ENABLED")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("STORAGE_TYPE", "s3")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})

	t.Run("unknown storage", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("STORAGE_TYPE", "ftp")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
}
